// Package connection resolves a provisioning mode into LiveKit session
// credentials and owns the connect/disconnect lifecycle.
package connection

// Mode selects how session credentials are provisioned.
type Mode string

// Supported provisioning modes. Any other value is treated like ModeManual.
const (
	// ModeCloud requests an ephemeral token from a token issuer.
	ModeCloud Mode = "cloud"
	// ModeManual uses the statically configured URL and token.
	ModeManual Mode = "manual"
	// ModeEnv fetches URL and token from a token relay.
	ModeEnv Mode = "env"
)

// Known reports whether m is one of the supported modes.
func (m Mode) Known() bool {
	switch m {
	case ModeCloud, ModeManual, ModeEnv:
		return true
	}
	return false
}

// Options are per-call connection parameters.
type Options struct {
	Language  string // Agent language tag, forwarded to the relay in env mode
	ServerURL string // Overrides the configured relay base URL in env mode
}

// Details is the live connection slot. It is replaced wholesale, never
// mutated in place. ShouldConnect implies WSURL and Token are non-empty.
type Details struct {
	WSURL         string `json:"ws_url"`
	Token         string `json:"-"`
	Mode          Mode   `json:"mode"`
	ShouldConnect bool   `json:"should_connect"`
}

// Settings are the static inputs read on every Connect.
type Settings struct {
	ManualWSURL  string
	ManualToken  string
	CloudWSURL   string
	RelayBaseURL string
}
