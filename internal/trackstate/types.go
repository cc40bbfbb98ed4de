// Package trackstate derives the agent track and UI state of a voice session
// from the participants and tracks of a room.
package trackstate

// Kind is the media kind of a track.
type Kind string

// Track kinds.
const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Source identifies what a track captures.
type Source string

// Track sources.
const (
	SourceMicrophone       Source = "microphone"
	SourceCamera           Source = "camera"
	SourceScreenShare      Source = "screen_share"
	SourceScreenShareAudio Source = "screen_share_audio"
	SourceUnknown          Source = "unknown"
)

// UIState is the coarse state shown to the user.
type UIState string

// UI states.
const (
	Disconnected UIState = "disconnected"
	Waiting      UIState = "waiting"
	Visualizing  UIState = "visualizing"
)

// Publication is a handle to a published track.
type Publication interface {
	SID() string
}

// Participant is a remote participant of the room.
type Participant struct {
	ID       string `json:"id"`
	IsAgent  bool   `json:"is_agent"`
	Metadata string `json:"metadata,omitempty"`
}

// Track is a track published in the room.
type Track struct {
	ParticipantID string
	Kind          Kind
	Source        Source
	Publication   Publication
}

// TrackReference points at a participant's track. A reference without a
// publication is a placeholder.
type TrackReference struct {
	Participant Participant
	Source      Source
	Publication Publication
}

// IsPlaceholder reports whether the reference has no publication.
func (r *TrackReference) IsPlaceholder() bool {
	return r == nil || r.Publication == nil
}

// RoomView is a snapshot of the room.
type RoomView interface {
	Connected() bool
	Participants() []Participant
	Tracks() []Track
}

// State is the derived session state.
type State struct {
	UI         UIState
	Agent      *Participant
	AgentTrack *TrackReference
}

// Equal reports whether two states describe the same agent, track and UI state.
func (s State) Equal(o State) bool {
	if s.UI != o.UI {
		return false
	}
	if (s.Agent == nil) != (o.Agent == nil) || s.Agent != nil && *s.Agent != *o.Agent {
		return false
	}
	if (s.AgentTrack == nil) != (o.AgentTrack == nil) {
		return false
	}
	if s.AgentTrack == nil {
		return true
	}
	a, b := s.AgentTrack, o.AgentTrack
	return a.Participant == b.Participant && a.Source == b.Source && publicationSID(a.Publication) == publicationSID(b.Publication)
}

func publicationSID(p Publication) string {
	if p == nil {
		return ""
	}
	return p.SID()
}
