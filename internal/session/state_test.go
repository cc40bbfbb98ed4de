package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-voice/internal/connection"
	"github.com/oszuidwest/zwfm-voice/internal/trackstate"
)

func TestBuildStateIdle(t *testing.T) {
	s := BuildState(connection.Details{Mode: connection.ModeManual}, trackstate.State{}, time.Time{}, time.Now(), "")

	assert.Equal(t, trackstate.Disconnected, s.UIState)
	assert.Nil(t, s.StartedAt)
	assert.Empty(t, s.Duration)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ui_state":"disconnected","mode":"manual","should_connect":false}`, string(raw))
}

func TestBuildStateVisualizing(t *testing.T) {
	agent := trackstate.Participant{ID: "agent", IsAgent: true, Metadata: "m"}
	started := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s := BuildState(
		connection.Details{WSURL: "wss://lk.example", Token: "secret", Mode: connection.ModeEnv, ShouldConnect: true},
		trackstate.State{
			UI:         trackstate.Visualizing,
			Agent:      &agent,
			AgentTrack: &trackstate.TrackReference{Participant: agent, Source: trackstate.SourceMicrophone, Publication: toneTrack{sid: "TR"}},
		},
		started, started.Add(time.Hour+2*time.Minute+3*time.Second), "",
	)

	assert.Equal(t, "1h 2m 3s", s.Duration)
	require.NotNil(t, s.Agent)
	assert.Equal(t, AgentInfo{ID: "agent", Metadata: "m"}, *s.Agent)
	assert.Equal(t, TrackInfo{ParticipantID: "agent", Source: trackstate.SourceMicrophone}, *s.AgentTrack)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}
