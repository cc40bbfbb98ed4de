package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func releaseServer(t *testing.T, handler http.HandlerFunc) *VersionChecker {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/"+githubRepo+"/releases/latest", r.URL.Path)
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return NewVersionChecker(ts.URL)
}

func setVersion(t *testing.T, v string) {
	t.Helper()
	prev := Version
	Version = v
	t.Cleanup(func() { Version = prev })
}

func TestVersionCheckFindsNewerRelease(t *testing.T) {
	setVersion(t, "v1.0.0")

	var conditional atomic.Int32
	vc := releaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"abc"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v1.2.0","draft":false,"prerelease":false}`))
	})

	assert.True(t, vc.check(context.Background()))
	info := vc.Info()
	assert.Equal(t, "1.0.0", info.Current)
	assert.Equal(t, "1.2.0", info.Latest)
	assert.True(t, info.UpdateAvail)

	assert.True(t, vc.check(context.Background()))
	assert.Equal(t, int32(1), conditional.Load())
	assert.Equal(t, "1.2.0", vc.Info().Latest)
}

func TestVersionCheckOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		ok     bool
		latest string
	}{
		{"prerelease ignored", http.StatusOK, `{"tag_name":"v2.0.0-rc1","prerelease":true}`, true, ""},
		{"draft ignored", http.StatusOK, `{"tag_name":"v2.0.0","draft":true}`, true, ""},
		{"missing tag retried", http.StatusOK, `{}`, false, ""},
		{"no releases", http.StatusNotFound, `{"message":"Not Found"}`, true, ""},
		{"rate limited", http.StatusForbidden, `{}`, false, ""},
		{"server error", http.StatusBadGateway, ``, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vc := releaseServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			assert.Equal(t, tt.ok, vc.check(context.Background()))
			assert.Equal(t, tt.latest, vc.Info().Latest)
		})
	}
}

func TestDevBuildNeverReportsUpdate(t *testing.T) {
	setVersion(t, "dev")
	vc := releaseServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tag_name":"v9.9.9"}`))
	})
	assert.True(t, vc.check(context.Background()))
	assert.False(t, vc.Info().UpdateAvail)
}

func TestIsNewerVersion(t *testing.T) {
	assert.True(t, isNewerVersion("1.2.0", "1.1.9"))
	assert.True(t, isNewerVersion("v2.0.0", "1.9.9"))
	assert.False(t, isNewerVersion("1.0.0", "1.0.0"))
	assert.False(t, isNewerVersion("1.0.0", "v1.0.1"))
}

func TestStopIsIdempotent(t *testing.T) {
	vc := NewVersionChecker("http://127.0.0.1:0")
	vc.Start()
	vc.Stop()
	vc.Stop()
}
