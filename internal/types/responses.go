package types

// WSStateResponse is pushed to clients whenever the session state changes
// and periodically as a keepalive.
type WSStateResponse struct {
	Type    string      `json:"type"`    // "state"
	State   any         `json:"state"`   // Current session state
	Version VersionInfo `json:"version"` // Version information
}

// WSBandsResponse is pushed to clients with the agent volume bands.
type WSBandsResponse struct {
	Type  string    `json:"type"`  // "bands"
	Bands []float64 `json:"bands"` // One amplitude in [0,1] per band
}

// WSEventsResult is sent in response to session/events.
type WSEventsResult struct {
	Events  any  `json:"events"`   // Newest first
	HasMore bool `json:"has_more"` // More events exist past this page
}

// WSCommandResult is the standard response for command execution.
type WSCommandResult struct {
	Type    string `json:"type"`            // "<command>_result"
	Success bool   `json:"success"`         // true if command succeeded
	Error   any    `json:"error,omitempty"` // Message or *ValidationError if failed
	Data    any    `json:"data,omitempty"`  // Optional response data
}
