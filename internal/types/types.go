package types

// RelayServer is a selectable token relay shown on the connect screen.
type RelayServer struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
}

// DeviceFlags are the configured local device preferences.
type DeviceFlags struct {
	Camera     bool `json:"camera"`
	Microphone bool `json:"microphone"`
}

// APIConfigResponse holds the public client settings returned by
// GET /api/config and config/get.
type APIConfigResponse struct {
	AppName     string        `json:"app_name"`     // Display name
	ColorLight  string        `json:"color_light"`  // Accent color for light mode
	ColorDark   string        `json:"color_dark"`   // Accent color for dark mode
	Language    string        `json:"language"`     // Preferred agent language tag
	Devices     DeviceFlags   `json:"devices"`      // Local device preferences
	DefaultMode string        `json:"default_mode"` // Mode preselected on the connect screen
	Modes       []string      `json:"modes"`        // Modes usable with the current configuration
	Servers     []RelayServer `json:"servers"`      // Selectable token relays
	LoginActive bool          `json:"login_active"` // Whether the login gate is enabled
	Version     VersionInfo   `json:"version"`      // Version information
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// RelayTokenResponse is the body returned by the token relay endpoint.
type RelayTokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}
