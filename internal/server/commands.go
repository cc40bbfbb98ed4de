package server

import (
	"cmp"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-voice/internal/config"
	"github.com/oszuidwest/zwfm-voice/internal/connection"
	"github.com/oszuidwest/zwfm-voice/internal/eventlog"
	"github.com/oszuidwest/zwfm-voice/internal/session"
	"github.com/oszuidwest/zwfm-voice/internal/types"
)

// Command limits.
const (
	ConnectTimeout   = 30 * time.Second // Upper bound for a single negotiation
	DefaultEventPage = 50               // Events returned when no limit is given
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Negotiator resolves and drops connection details.
type Negotiator interface {
	Connect(ctx context.Context, mode connection.Mode, opts connection.Options) (connection.Details, error)
	Disconnect()
}

// SessionView exposes the joined session.
type SessionView interface {
	State() session.State
	Events() *eventlog.Logger
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg         *config.Config
	negotiator  Negotiator
	session     SessionView
	// loginActive reports whether the server enforces a login gate.
	loginActive bool
	version     func() types.VersionInfo
}

// NewCommandHandler creates a new command handler. version may be nil.
func NewCommandHandler(cfg *config.Config, negotiator Negotiator, sess SessionView, loginActive bool, version func() types.VersionInfo) *CommandHandler {
	if version == nil {
		version = func() types.VersionInfo { return types.VersionInfo{} }
	}
	return &CommandHandler{
		cfg:         cfg,
		negotiator:  negotiator,
		session:     sess,
		loginActive: loginActive,
		version:     version,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "session/connect").
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, action, _ := strings.Cut(cmd.Type, "/")
	slog.Debug("WebSocket command", "type", cmd.Type, "id", cmd.ID)

	switch namespace {
	case "session":
		h.handleSession(action, cmd, send)
	case "config":
		h.handleConfig(action, cmd, send)
	case "status":
		// Status is sent automatically, an explicit get triggers an immediate update.
		if action != "get" {
			slog.Warn("unknown status action", "action", action)
		}
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// handleSession routes session/* commands
func (h *CommandHandler) handleSession(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "connect":
		h.handleConnect(cmd, send)
	case "disconnect":
		h.negotiator.Disconnect()
		SendSuccess(send, cmd.Type, nil)
	case "get":
		SendSuccess(send, cmd.Type, h.session.State())
	case "events":
		h.handleEvents(cmd, send)
	default:
		slog.Warn("unknown session action", "action", action)
	}
}

// handleConfig routes config/* commands
func (h *CommandHandler) handleConfig(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "get":
		SendSuccess(send, cmd.Type, ClientConfig(h.cfg.Snapshot(), h.loginActive, h.version()))
	default:
		slog.Warn("unknown config action", "action", action)
	}
}

// handleConnect negotiates in the background; the room join follows from
// the resulting details.
func (h *CommandHandler) handleConnect(cmd WSCommand, send chan<- any) {
	var req ConnectRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	snap := h.cfg.Snapshot()
	mode := connection.Mode(cmp.Or(req.Mode, snap.DefaultMode))
	opts := connection.Options{
		Language:  cmp.Or(req.Language, snap.Language),
		ServerURL: req.ServerURL,
	}

	HandleActionAsync(cmd, send, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
		defer cancel()

		d, err := h.negotiator.Connect(ctx, mode, opts)
		if err != nil {
			slog.Warn("connection negotiation failed", "mode", mode, "error", err)
			return nil, err
		}
		return d, nil
	})
}

// handleEvents returns a page of the current session's event log.
func (h *CommandHandler) handleEvents(cmd WSCommand, send chan<- any) {
	HandleCommand(cmd, send, func(req *EventsRequest) (any, error) {
		log := h.session.Events()
		if log == nil {
			return types.WSEventsResult{Events: []eventlog.Event{}}, nil
		}
		events, hasMore := log.ReadLast(cmp.Or(req.Limit, DefaultEventPage), req.Offset, eventlog.TypeFilter(req.Filter))
		return types.WSEventsResult{Events: events, HasMore: hasMore}, nil
	})
}

// ClientConfig builds the public client settings. loginActive reflects the
// gate the server enforces, which is not necessarily derived from snap.
func ClientConfig(snap config.Snapshot, loginActive bool, version types.VersionInfo) types.APIConfigResponse {
	servers := make([]types.RelayServer, 0, len(snap.Servers))
	for _, s := range snap.Servers {
		servers = append(servers, types.RelayServer{Name: s.Name, Description: s.Description, URL: s.URL})
	}

	return types.APIConfigResponse{
		AppName:    snap.AppName,
		ColorLight: snap.ColorLight,
		ColorDark:  snap.ColorDark,
		Language:   snap.Language,
		Devices: types.DeviceFlags{
			Camera:     snap.CameraEnabled,
			Microphone: snap.MicrophoneEnabled,
		},
		DefaultMode: snap.DefaultMode,
		Modes:       AvailableModes(snap),
		Servers:     servers,
		LoginActive: loginActive,
		Version:     version,
	}
}

// AvailableModes lists the connection modes the configuration can serve.
func AvailableModes(snap config.Snapshot) []string {
	modes := make([]string, 0, 3)
	if snap.CloudEndpoint() != "" && (snap.HasCloudTokenService() || snap.HasLiveKitCredentials()) {
		modes = append(modes, string(connection.ModeCloud))
	}
	if snap.ManualWSURL != "" && snap.ManualToken != "" {
		modes = append(modes, string(connection.ModeManual))
	}
	if snap.RelayBaseURL != "" || len(snap.Servers) > 0 {
		modes = append(modes, string(connection.ModeEnv))
	}
	return modes
}
