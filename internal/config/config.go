// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/oszuidwest/zwfm-voice/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort            = 8080
	DefaultLogLevel           = "info"
	DefaultAppName            = "ZuidWest Voice"
	DefaultColorLight         = "#E6007E"
	DefaultColorDark          = "#E6007E"
	DefaultLanguage           = "en"
	DefaultMode               = "manual"
	DefaultRelayTimeoutMs     = 10000
	DefaultTokenTTLMinutes    = 60
	DefaultVisualizerBands    = 5
	DefaultVisualizerInterval = 10 // milliseconds
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// App name: any printable characters except control chars
	appNamePattern  = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	colorPattern    = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	languagePattern = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z0-9]{2,8})*$`)
	modePattern     = regexp.MustCompile(`^(cloud|manual|env)$`)
)

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port          int      `json:"port" yaml:"port" env:"PORT"`                                          // HTTP server port
	LogLevel      string   `json:"log_level" yaml:"log_level" env:"LOG_LEVEL"`                           // debug, info, warn or error
	SessionSecret string   `json:"session_secret" yaml:"session_secret" env:"SESSION_SECRET"`            // HMAC key for login cookies
	Passwords     []string `json:"passwords" yaml:"passwords" env:"HOMEPAGE_PASSWORDS" envSeparator:","` // Login allow-list
}

// WebConfig holds branding and UI preferences.
type WebConfig struct {
	AppName    string `json:"app_name" yaml:"app_name" env:"APP_NAME"`          // Display name
	ColorLight string `json:"color_light" yaml:"color_light" env:"COLOR_LIGHT"` // Accent color for light mode (#RRGGBB)
	ColorDark  string `json:"color_dark" yaml:"color_dark" env:"COLOR_DARK"`    // Accent color for dark mode (#RRGGBB)
	Language   string `json:"language" yaml:"language" env:"VOICE_LANGUAGE"`    // Preferred agent language tag
}

// DevicesConfig holds local device enablement preferences.
type DevicesConfig struct {
	Camera     bool `json:"camera" yaml:"camera" env:"DEVICE_CAMERA"`
	Microphone bool `json:"microphone" yaml:"microphone" env:"DEVICE_MICROPHONE"`
}

// ManualConfig holds the static credential used by the manual connection mode.
type ManualConfig struct {
	WSURL string `json:"ws_url" yaml:"ws_url" env:"LIVEKIT_WS_URL"`
	Token string `json:"token" yaml:"token" env:"LIVEKIT_TOKEN"`
}

// EnvRelayConfig holds the token relay used by the env connection mode.
type EnvRelayConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url" env:"RELAY_BASE_URL"`
	APIKey    string `json:"api_key" yaml:"api_key" env:"RELAY_API_KEY"`
	TimeoutMs int64  `json:"timeout_ms" yaml:"timeout_ms" env:"RELAY_TIMEOUT_MS"`
}

// ServerInfo is a selectable token relay shown in the UI.
type ServerInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	URL         string `json:"url" yaml:"url"`
}

// ConnectionConfig holds connection provisioning settings.
type ConnectionConfig struct {
	DefaultMode string         `json:"default_mode" yaml:"default_mode" env:"CONNECTION_MODE"`
	Manual      ManualConfig   `json:"manual" yaml:"manual"`
	Env         EnvRelayConfig `json:"env" yaml:"env"`
	Servers     []ServerInfo   `json:"servers" yaml:"servers"`
}

// CloudConfig holds the hosted token service used by the cloud connection mode.
// Without a token URL, tokens are minted locally from the LiveKit API credentials.
type CloudConfig struct {
	WSURL        string   `json:"ws_url" yaml:"ws_url" env:"CLOUD_WS_URL"`
	TokenURL     string   `json:"token_url" yaml:"token_url" env:"CLOUD_TOKEN_URL"`
	AuthURL      string   `json:"auth_url" yaml:"auth_url" env:"CLOUD_AUTH_URL"` // OAuth2 token endpoint
	ClientID     string   `json:"client_id" yaml:"client_id" env:"CLOUD_CLIENT_ID"`
	ClientSecret string   `json:"client_secret" yaml:"client_secret" env:"CLOUD_CLIENT_SECRET"`
	Scopes       []string `json:"scopes" yaml:"scopes" env:"CLOUD_SCOPES" envSeparator:","`
}

// LiveKitConfig holds LiveKit server credentials for local token minting.
type LiveKitConfig struct {
	URL             string `json:"url" yaml:"url" env:"LIVEKIT_URL"`
	APIKey          string `json:"api_key" yaml:"api_key" env:"LIVEKIT_API_KEY"`
	APISecret       string `json:"api_secret" yaml:"api_secret" env:"LIVEKIT_API_SECRET"`
	TokenTTLMinutes int    `json:"token_ttl_minutes" yaml:"token_ttl_minutes" env:"LIVEKIT_TOKEN_TTL_MINUTES"`
	RelayAPIKey     string `json:"relay_api_key" yaml:"relay_api_key" env:"LIVEKIT_RELAY_API_KEY"` // Guards /api/connection
}

// VisualizerConfig holds volume band settings.
type VisualizerConfig struct {
	Bands      int   `json:"bands" yaml:"bands" env:"VISUALIZER_BANDS"`
	IntervalMs int64 `json:"interval_ms" yaml:"interval_ms" env:"VISUALIZER_INTERVAL_MS"`
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System     SystemConfig     `json:"system" yaml:"system"`
	Web        WebConfig        `json:"web" yaml:"web"`
	Devices    DevicesConfig    `json:"devices" yaml:"devices"`
	Connection ConnectionConfig `json:"connection" yaml:"connection"`
	Cloud      CloudConfig      `json:"cloud" yaml:"cloud"`
	LiveKit    LiveKitConfig    `json:"livekit" yaml:"livekit"`
	Visualizer VisualizerConfig `json:"visualizer" yaml:"visualizer"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:     DefaultWebPort,
			LogLevel: DefaultLogLevel,
		},
		Web: WebConfig{
			AppName:    DefaultAppName,
			ColorLight: DefaultColorLight,
			ColorDark:  DefaultColorDark,
			Language:   DefaultLanguage,
		},
		Devices: DevicesConfig{Microphone: true},
		Connection: ConnectionConfig{
			DefaultMode: DefaultMode,
			Env:         EnvRelayConfig{TimeoutMs: DefaultRelayTimeoutMs},
			Servers:     []ServerInfo{},
		},
		LiveKit: LiveKitConfig{TokenTTLMinutes: DefaultTokenTTLMinutes},
		Visualizer: VisualizerConfig{
			Bands:      DefaultVisualizerBands,
			IntervalMs: DefaultVisualizerInterval,
		},
		filePath: filePath,
	}
}

// isYAML reports whether the config file uses YAML syntax.
func (c *Config) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(c.filePath))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads config from file, creating a default JSON file if none exists,
// and then applies .env and environment overrides.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if !c.isYAML() {
			if err := c.saveLocked(); err != nil {
				return err
			}
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	case c.isYAML():
		if err := yaml.Unmarshal(data, c); err != nil {
			return util.WrapError("parse YAML config", err)
		}
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return util.WrapError("parse config", err)
		}
	}

	if err := c.applyEnvLocked(); err != nil {
		return err
	}

	c.applyDefaults()

	return c.validate()
}

// applyEnvLocked loads an optional .env file next to the config file and
// overrides fields from the process environment. Caller must hold c.mu.
func (c *Config) applyEnvLocked() error {
	dotenv := filepath.Join(filepath.Dir(c.filePath), ".env")
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return util.WrapError("load .env file", err)
	} else if err == nil {
		slog.Info("loaded environment file", "path", dotenv)
	}

	if err := env.Parse(c); err != nil {
		return util.WrapError("parse environment overrides", err)
	}
	return nil
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	name := c.Web.AppName
	if name == "" || len(name) > 40 || !appNamePattern.MatchString(name) {
		return fmt.Errorf("invalid app_name %q: must be 1-40 printable characters", name)
	}
	if !colorPattern.MatchString(c.Web.ColorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", c.Web.ColorLight)
	}
	if !colorPattern.MatchString(c.Web.ColorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", c.Web.ColorDark)
	}
	if !languagePattern.MatchString(c.Web.Language) {
		return fmt.Errorf("invalid language %q: must be a language tag such as en or fi-FI", c.Web.Language)
	}
	if !modePattern.MatchString(c.Connection.DefaultMode) {
		return fmt.Errorf("invalid default_mode %q: must be cloud, manual or env", c.Connection.DefaultMode)
	}
	if c.Visualizer.Bands < 1 || c.Visualizer.Bands > 64 {
		return fmt.Errorf("invalid visualizer bands %d: must be between 1 and 64", c.Visualizer.Bands)
	}
	for i, s := range c.Connection.Servers {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("invalid server %d: name and url are required", i)
		}
	}
	if len(c.System.Passwords) > 0 && c.System.SessionSecret == "" {
		return fmt.Errorf("session_secret is required when passwords are configured")
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	c.System.LogLevel = cmp.Or(c.System.LogLevel, DefaultLogLevel)
	c.System.Passwords = slices.DeleteFunc(c.System.Passwords, func(p string) bool {
		return strings.TrimSpace(p) == ""
	})
	c.Web.AppName = cmp.Or(c.Web.AppName, DefaultAppName)
	c.Web.ColorLight = cmp.Or(c.Web.ColorLight, DefaultColorLight)
	c.Web.ColorDark = cmp.Or(c.Web.ColorDark, DefaultColorDark)
	c.Web.Language = cmp.Or(c.Web.Language, DefaultLanguage)
	c.Connection.DefaultMode = cmp.Or(c.Connection.DefaultMode, DefaultMode)
	if c.Connection.Env.TimeoutMs <= 0 {
		c.Connection.Env.TimeoutMs = DefaultRelayTimeoutMs
	}
	if c.Connection.Servers == nil {
		c.Connection.Servers = []ServerInfo{}
	}
	if c.LiveKit.TokenTTLMinutes <= 0 {
		c.LiveKit.TokenTTLMinutes = DefaultTokenTTLMinutes
	}
	if c.Visualizer.Bands == 0 {
		c.Visualizer.Bands = DefaultVisualizerBands
	}
	if c.Visualizer.IntervalMs <= 0 {
		c.Visualizer.IntervalMs = DefaultVisualizerInterval
	}
}

// saveLocked persists configuration as JSON. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort       int
	LogLevel      string
	SessionSecret string
	Passwords     []string

	// Web/Branding
	AppName    string
	ColorLight string
	ColorDark  string
	Language   string

	// Devices
	CameraEnabled     bool
	MicrophoneEnabled bool

	// Connection
	DefaultMode    string
	ManualWSURL    string
	ManualToken    string
	RelayBaseURL   string
	RelayAPIKey    string
	RelayTimeout   time.Duration
	Servers        []ServerInfo
	CloudWSURL     string
	CloudTokenURL  string
	CloudAuthURL   string
	CloudClientID  string
	CloudSecret    string
	CloudScopes    []string
	LiveKitURL     string
	LiveKitKey     string
	LiveKitSecret  string
	LiveKitTTL     time.Duration
	RelayServerKey string

	// Visualizer
	VisualizerBands    int
	VisualizerInterval time.Duration
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		// System
		WebPort:       c.System.Port,
		LogLevel:      c.System.LogLevel,
		SessionSecret: c.System.SessionSecret,
		Passwords:     slices.Clone(c.System.Passwords),

		// Web/Branding
		AppName:    c.Web.AppName,
		ColorLight: c.Web.ColorLight,
		ColorDark:  c.Web.ColorDark,
		Language:   c.Web.Language,

		// Devices
		CameraEnabled:     c.Devices.Camera,
		MicrophoneEnabled: c.Devices.Microphone,

		// Connection (with defaults)
		DefaultMode:    cmp.Or(c.Connection.DefaultMode, DefaultMode),
		ManualWSURL:    c.Connection.Manual.WSURL,
		ManualToken:    c.Connection.Manual.Token,
		RelayBaseURL:   c.Connection.Env.BaseURL,
		RelayAPIKey:    c.Connection.Env.APIKey,
		RelayTimeout:   time.Duration(cmp.Or(c.Connection.Env.TimeoutMs, DefaultRelayTimeoutMs)) * time.Millisecond,
		Servers:        slices.Clone(c.Connection.Servers),
		CloudWSURL:     c.Cloud.WSURL,
		CloudTokenURL:  c.Cloud.TokenURL,
		CloudAuthURL:   c.Cloud.AuthURL,
		CloudClientID:  c.Cloud.ClientID,
		CloudSecret:    c.Cloud.ClientSecret,
		CloudScopes:    slices.Clone(c.Cloud.Scopes),
		LiveKitURL:     c.LiveKit.URL,
		LiveKitKey:     c.LiveKit.APIKey,
		LiveKitSecret:  c.LiveKit.APISecret,
		LiveKitTTL:     time.Duration(cmp.Or(c.LiveKit.TokenTTLMinutes, DefaultTokenTTLMinutes)) * time.Minute,
		RelayServerKey: c.LiveKit.RelayAPIKey,

		// Visualizer
		VisualizerBands:    cmp.Or(c.Visualizer.Bands, DefaultVisualizerBands),
		VisualizerInterval: time.Duration(cmp.Or(c.Visualizer.IntervalMs, DefaultVisualizerInterval)) * time.Millisecond,
	}
}

// HasLiveKitCredentials reports whether tokens can be minted locally.
func (s *Snapshot) HasLiveKitCredentials() bool {
	return util.IsConfigured(s.LiveKitURL, s.LiveKitKey, s.LiveKitSecret)
}

// HasCloudTokenService reports whether a hosted token service is configured.
func (s *Snapshot) HasCloudTokenService() bool {
	return util.IsConfigured(s.CloudTokenURL, s.CloudAuthURL, s.CloudClientID, s.CloudSecret)
}

// CloudEndpoint returns the WebSocket URL used by the cloud mode. It falls
// back to the LiveKit server URL when tokens are minted locally.
func (s *Snapshot) CloudEndpoint() string {
	return cmp.Or(s.CloudWSURL, s.LiveKitURL)
}

// HasLogin reports whether the login gate is enabled.
func (s *Snapshot) HasLogin() bool {
	return len(s.Passwords) > 0
}

// SlogLevel maps the configured log level to a slog.Level.
func (s *Snapshot) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
