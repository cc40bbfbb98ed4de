package session

import (
	"time"

	"github.com/oszuidwest/zwfm-voice/internal/connection"
	"github.com/oszuidwest/zwfm-voice/internal/trackstate"
	"github.com/oszuidwest/zwfm-voice/internal/util"
)

// AgentInfo describes the agent participant.
type AgentInfo struct {
	ID       string `json:"id"`
	Metadata string `json:"metadata,omitempty"`
}

// TrackInfo describes the agent's audio track.
type TrackInfo struct {
	ParticipantID string            `json:"participant_id"`
	Source        trackstate.Source `json:"source"`
	Placeholder   bool              `json:"placeholder"`
}

// State is the snapshot of the voice session pushed to browsers.
type State struct {
	UIState       trackstate.UIState `json:"ui_state"`
	Mode          connection.Mode    `json:"mode"`
	ShouldConnect bool               `json:"should_connect"`
	WSURL         string             `json:"ws_url,omitempty"`
	Agent         *AgentInfo         `json:"agent,omitempty"`
	AgentTrack    *TrackInfo         `json:"agent_track,omitempty"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	Duration      string             `json:"duration,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// BuildState combines connection details and track state into a State.
// startedAt is the zero time when no room is joined.
func BuildState(d connection.Details, ts trackstate.State, startedAt, now time.Time, lastErr string) State {
	s := State{
		UIState:       ts.UI,
		Mode:          d.Mode,
		ShouldConnect: d.ShouldConnect,
		WSURL:         d.WSURL,
		Error:         lastErr,
	}
	if s.UIState == "" {
		s.UIState = trackstate.Disconnected
	}
	if ts.Agent != nil {
		s.Agent = &AgentInfo{ID: ts.Agent.ID, Metadata: ts.Agent.Metadata}
	}
	if ts.AgentTrack != nil {
		s.AgentTrack = &TrackInfo{
			ParticipantID: ts.AgentTrack.Participant.ID,
			Source:        ts.AgentTrack.Source,
			Placeholder:   ts.AgentTrack.IsPlaceholder(),
		}
	}
	if !startedAt.IsZero() {
		started := startedAt
		s.StartedAt = &started
		s.Duration = util.FormatSessionDuration(now.Sub(startedAt))
	}
	return s
}
