package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-voice/internal/audio"
	"github.com/oszuidwest/zwfm-voice/internal/auth"
	"github.com/oszuidwest/zwfm-voice/internal/config"
	"github.com/oszuidwest/zwfm-voice/internal/connection"
	"github.com/oszuidwest/zwfm-voice/internal/eventlog"
	"github.com/oszuidwest/zwfm-voice/internal/livekit"
	"github.com/oszuidwest/zwfm-voice/internal/session"
	"github.com/oszuidwest/zwfm-voice/internal/trackstate"
	"github.com/oszuidwest/zwfm-voice/internal/types"
)

const (
	testLiveKitURL    = "wss://lk.example"
	testLiveKitKey    = "APIkey123"
	testLiveKitSecret = "secret-with-enough-entropy-for-hs256"
	testPassword      = "studio-password"
)

type testEnv struct {
	cfg        *config.Config
	srv        *Server
	negotiator *connection.Negotiator
	ts         *httptest.Server
}

type testOptions struct {
	login    bool
	livekit  bool
	relayKey string
}

func newTestEnv(t *testing.T, opts testOptions) *testEnv {
	t.Helper()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	cfg.Connection.Manual = config.ManualConfig{WSURL: testLiveKitURL, Token: "static-token"}
	cfg.LiveKit.RelayAPIKey = opts.relayKey

	var minter *livekit.Minter
	if opts.livekit {
		cfg.LiveKit.URL = testLiveKitURL
		cfg.LiveKit.APIKey = testLiveKitKey
		cfg.LiveKit.APISecret = testLiveKitSecret
		m, err := livekit.NewMinter(testLiveKitKey, testLiveKitSecret, time.Hour)
		require.NoError(t, err)
		minter = m
	}

	var gate *auth.Gate
	if opts.login {
		g, err := auth.NewGate("cookie-secret", []string{testPassword})
		require.NoError(t, err)
		gate = g
	}

	env := &testEnv{cfg: cfg}
	env.negotiator = connection.NewNegotiator(
		func() connection.Settings { return connectionSettings(cfg.Snapshot()) },
		nil,
		connection.NewRelayClient(5*time.Second, opts.relayKey),
	)

	failJoin := func(context.Context, string, string, *trackstate.Bus) (session.Room, error) {
		return nil, errors.New("no media server in tests")
	}
	controller := session.NewController(env.negotiator, failJoin, audio.NewBandProcessor(5), eventlog.NewLogger(0))

	env.srv = NewServer(cfg, env.negotiator, controller, gate, minter, NewVersionChecker("http://127.0.0.1:0"))
	env.ts = httptest.NewServer(env.srv.SetupRoutes())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) get(t *testing.T, path string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRelayRoundTrip(t *testing.T) {
	env := newTestEnv(t, testOptions{livekit: true, relayKey: "relay-key"})
	env.cfg.Connection.Env.BaseURL = env.ts.URL + "/api/connection"

	d, err := env.negotiator.Connect(context.Background(), connection.ModeEnv, connection.Options{Language: "fi"})
	require.NoError(t, err)
	assert.True(t, d.ShouldConnect)
	assert.Equal(t, testLiveKitURL, d.WSURL)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(d.Token, claims, func(*jwt.Token) (any, error) {
		return []byte(testLiveKitSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	video, ok := claims["video"].(map[string]any)
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^voice-[A-Za-z0-9]{8}$`), video["room"])
	assert.Equal(t, true, video["roomJoin"])
	assert.JSONEq(t, `{"language":"fi"}`, claims["metadata"].(string))
}

func TestRelayEndpointErrors(t *testing.T) {
	t.Run("no credentials", func(t *testing.T) {
		env := newTestEnv(t, testOptions{})
		resp := env.get(t, "/api/connection?uuid=abcd1234")
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	env := newTestEnv(t, testOptions{livekit: true, relayKey: "relay-key"})

	t.Run("method", func(t *testing.T) {
		resp, err := http.Post(env.ts.URL+"/api/connection?uuid=abcd1234", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, http.MethodGet, resp.Header.Get("Allow"))
	})

	t.Run("missing key", func(t *testing.T) {
		resp := env.get(t, "/api/connection?uuid=abcd1234")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	for name, query := range map[string]string{
		"missing uuid":  "",
		"short uuid":    "?uuid=ab",
		"symbols":       "?uuid=ab-cd-ef",
		"bad language":  "?uuid=abcd1234&language=not+a+tag",
		"overlong uuid": "?uuid=" + strings.Repeat("a", 65),
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/connection"+query, nil)
			require.NoError(t, err)
			req.Header.Set("X-API-Key", "relay-key")
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var verr types.ValidationError
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&verr))
			assert.NotEmpty(t, verr.Errors)
		})
	}
}

func TestAPIConfig(t *testing.T) {
	env := newTestEnv(t, testOptions{livekit: true, login: true})
	resp := env.get(t, "/api/config")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg types.APIConfigResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, []string{"cloud", "manual"}, cfg.Modes)
	assert.Equal(t, config.DefaultAppName, cfg.AppName)
	assert.True(t, cfg.LoginActive)
	assert.Equal(t, "dev", cfg.Version.Current)
}

func TestLoginGateProtectsRoutes(t *testing.T) {
	env := newTestEnv(t, testOptions{login: true})

	resp := env.get(t, "/")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login.html", resp.Header.Get("Location"))

	assert.Equal(t, http.StatusUnauthorized, env.get(t, "/api/session").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, env.get(t, "/login").StatusCode)

	page := env.get(t, "/login.html")
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "DENY", page.Header.Get("X-Frame-Options"))

	loginResp, err := http.Post(env.ts.URL+"/login", "application/json",
		strings.NewReader(`{"email":"host@zuidwest.nl","password":"`+testPassword+`"}`))
	require.NoError(t, err)
	defer loginResp.Body.Close()
	require.Equal(t, http.StatusOK, loginResp.StatusCode)

	var cookie *http.Cookie
	for _, c := range loginResp.Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	resp = env.get(t, "/api/session", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state session.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	assert.Equal(t, trackstate.Disconnected, state.UIState)

	index := env.get(t, "/", cookie)
	assert.Equal(t, http.StatusOK, index.StatusCode)
	assert.Equal(t, "text/html", index.Header.Get("Content-Type"))
}

func TestOpenInterfaceWithoutLogin(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	assert.Equal(t, http.StatusOK, env.get(t, "/").StatusCode)
	assert.Equal(t, http.StatusOK, env.get(t, "/app.js").StatusCode)
	assert.Equal(t, http.StatusOK, env.get(t, "/favicon.svg").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/missing.js").StatusCode)

	var cfg types.APIConfigResponse
	resp := env.get(t, "/api/config")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.False(t, cfg.LoginActive)
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == typ {
			return msg
		}
	}
}

func TestWebSocketPushesStateAndAnswersCommands(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	state := readUntil(t, conn, "state")
	assert.Equal(t, "disconnected", state["state"].(map[string]any)["ui_state"])

	bands := readUntil(t, conn, "bands")
	assert.Len(t, bands["bands"], 5)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "config/get", "id": "1"}))
	result := readUntil(t, conn, "config/get_result")
	assert.Equal(t, true, result["success"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "session/connect", "id": "2", "data": map[string]string{"mode": "manual"}}))
	result = readUntil(t, conn, "session/connect_result")
	assert.Equal(t, true, result["success"])
	assert.True(t, env.negotiator.Details().ShouldConnect)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "session/disconnect", "id": "3"}))
	readUntil(t, conn, "session/disconnect_result")
	assert.False(t, env.negotiator.Details().ShouldConnect)
}
