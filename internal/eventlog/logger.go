// Package eventlog keeps an in-memory history of the current voice session:
// room joins and leaves, agent arrivals and UI state transitions. The
// history is cleared when a new session starts.
package eventlog

import (
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Session event types.
const (
	SessionJoined EventType = "session_joined"
	SessionLeft   EventType = "session_left"
	SessionError  EventType = "session_error"
)

// Agent event types.
const (
	AgentJoined EventType = "agent_joined"
	AgentLeft   EventType = "agent_left"
)

// StateChanged is recorded on every UI state transition.
const StateChanged EventType = "state_changed"

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SessionDetails contains session-specific event details.
type SessionDetails struct {
	Mode     string `json:"mode,omitempty"`
	URL      string `json:"url,omitempty"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// AgentDetails contains agent-specific event details.
type AgentDetails struct {
	ParticipantID string `json:"participant_id"`
	Metadata      string `json:"metadata,omitempty"`
}

// StateDetails contains the UI states of a transition.
type StateDetails struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DefaultCapacity bounds the history when no capacity is given.
const DefaultCapacity = 1000

// Logger holds the events of the current session, oldest first. When full
// the oldest events are dropped. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	events   []Event
	capacity int
}

// NewLogger creates an empty event log holding up to capacity events.
func NewLogger(capacity int) *Logger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Logger{capacity: capacity}
}

// Log appends an event.
func (l *Logger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if len(l.events) == l.capacity {
		copy(l.events, l.events[1:])
		l.events = l.events[:len(l.events)-1]
	}
	l.events = append(l.events, event)
}

// LogSession logs a session event.
func (l *Logger) LogSession(eventType EventType, message, mode, url, duration, errMsg string) {
	l.Log(Event{
		Type:    eventType,
		Message: message,
		Details: &SessionDetails{Mode: mode, URL: url, Duration: duration, Error: errMsg},
	})
}

// LogAgent logs an agent event.
func (l *Logger) LogAgent(eventType EventType, participantID, metadata string) {
	l.Log(Event{
		Type:    eventType,
		Details: &AgentDetails{ParticipantID: participantID, Metadata: metadata},
	})
}

// LogState logs a UI state transition.
func (l *Logger) LogState(from, to string) {
	l.Log(Event{Type: StateChanged, Details: &StateDetails{From: from, To: to}})
}

// Reset discards the history.
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// Len returns the number of stored events.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterSession TypeFilter = "session"
	FilterAgent   TypeFilter = "agent"
	FilterState   TypeFilter = "state"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast returns up to n events starting from offset, filtered by type,
// newest first. n is capped at MaxReadLimit. The boolean reports whether
// older matching events exist.
func (l *Logger) ReadLast(n, offset int, filter TypeFilter) ([]Event, bool) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]Event, 0, n)
	skipped := 0
	for i := len(l.events) - 1; i >= 0; i-- {
		event := l.events[i]
		if !filter.matches(event.Type) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		if len(events) == n {
			return events, true
		}
		events = append(events, event)
	}
	return events, false
}

func (f TypeFilter) matches(t EventType) bool {
	switch f {
	case FilterAll:
		return true
	case FilterSession:
		return IsSessionEvent(t)
	case FilterAgent:
		return IsAgentEvent(t)
	case FilterState:
		return t == StateChanged
	default:
		return false
	}
}

// IsSessionEvent returns true if the event type is a session event.
func IsSessionEvent(t EventType) bool {
	return t == SessionJoined || t == SessionLeft || t == SessionError
}

// IsAgentEvent returns true if the event type is an agent event.
func IsAgentEvent(t EventType) bool {
	return t == AgentJoined || t == AgentLeft
}
