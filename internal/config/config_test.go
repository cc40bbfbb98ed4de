package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := New(path)
	require.NoError(t, cfg.Load())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Contains(t, onDisk, "connection")

	snap := cfg.Snapshot()
	assert.Equal(t, DefaultWebPort, snap.WebPort)
	assert.Equal(t, DefaultMode, snap.DefaultMode)
	assert.Equal(t, 5, snap.VisualizerBands)
	assert.Equal(t, 10*time.Millisecond, snap.VisualizerInterval)
	assert.Equal(t, 10*time.Second, snap.RelayTimeout)
	assert.True(t, snap.MicrophoneEnabled)
	assert.False(t, snap.HasLogin())
}

func TestLoadJSONKeepsDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{
		"web": {"app_name": "Studio Voice"},
		"connection": {
			"manual": {"ws_url": "wss://lk.example", "token": "static-token"},
			"servers": [{"name": "EU", "url": "https://relay.example/connect"}]
		}
	}`)

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.Equal(t, "Studio Voice", snap.AppName)
	assert.Equal(t, DefaultColorLight, snap.ColorLight)
	assert.Equal(t, "wss://lk.example", snap.ManualWSURL)
	assert.Equal(t, "static-token", snap.ManualToken)
	require.Len(t, snap.Servers, 1)
	assert.Equal(t, "EU", snap.Servers[0].Name)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
system:
  port: 9090
  session_secret: s3cret
  passwords: [alpha, beta]
web:
  language: fi
connection:
  default_mode: env
  env:
    base_url: https://relay.example/connect
livekit:
  url: wss://lk.example
  api_key: key
  api_secret: secret
`)

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.Equal(t, 9090, snap.WebPort)
	assert.Equal(t, []string{"alpha", "beta"}, snap.Passwords)
	assert.Equal(t, "fi", snap.Language)
	assert.Equal(t, "env", snap.DefaultMode)
	assert.Equal(t, "https://relay.example/connect", snap.RelayBaseURL)
	assert.True(t, snap.HasLiveKitCredentials())
	assert.True(t, snap.HasLogin())
}

func TestMissingYAMLIsNotCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	require.NoError(t, New(path).Load())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"system": {"port": 8081}, "livekit": {"api_key": "from-file"}}`)

	t.Setenv("PORT", "7070")
	t.Setenv("LIVEKIT_API_KEY", "from-env")
	t.Setenv("HOMEPAGE_PASSWORDS", "one,two,,three")
	t.Setenv("SESSION_SECRET", "env-secret")

	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	assert.Equal(t, 7070, snap.WebPort)
	assert.Equal(t, "from-env", snap.LiveKitKey)
	assert.Equal(t, []string{"one", "two", "three"}, snap.Passwords)
	assert.Equal(t, "env-secret", snap.SessionSecret)
}

func TestDotEnvFileIsLoaded(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{}`)
	writeFile(t, dir, ".env", "RELAY_BASE_URL=https://dotenv.example/connect\n")
	t.Cleanup(func() { _ = os.Unsetenv("RELAY_BASE_URL") })

	cfg := New(path)
	require.NoError(t, cfg.Load())
	assert.Equal(t, "https://dotenv.example/connect", cfg.Snapshot().RelayBaseURL)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad color", `{"web": {"color_light": "red"}}`, "color_light"},
		{"bad language", `{"web": {"language": "not a tag"}}`, "language"},
		{"bad mode", `{"connection": {"default_mode": "satellite"}}`, "default_mode"},
		{"too many bands", `{"visualizer": {"bands": 500}}`, "bands"},
		{"server without url", `{"connection": {"servers": [{"name": "x"}]}}`, "server 0"},
		{"passwords without secret", `{"system": {"passwords": ["pw"]}}`, "session_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.json", tt.content)
			err := New(path).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"system": {"session_secret": "x", "passwords": ["a"]}}`)
	cfg := New(path)
	require.NoError(t, cfg.Load())

	snap := cfg.Snapshot()
	snap.Passwords[0] = "mutated"
	assert.Equal(t, []string{"a"}, cfg.Snapshot().Passwords)
}
