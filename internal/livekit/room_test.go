package livekit

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oszuidwest/zwfm-voice/internal/audio"
	"github.com/oszuidwest/zwfm-voice/internal/trackstate"
)

func recordEvents(bus *trackstate.Bus) func() []trackstate.EventKind {
	var mu sync.Mutex
	var kinds []trackstate.EventKind
	bus.Subscribe(func(ev trackstate.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})
	return func() []trackstate.EventKind {
		mu.Lock()
		defer mu.Unlock()
		return append([]trackstate.EventKind(nil), kinds...)
	}
}

func TestRoomDrivesMachineThroughAgentLifecycle(t *testing.T) {
	bus := trackstate.NewBus()
	events := recordEvents(bus)
	r := newRoom(bus)

	m := trackstate.NewMachine()
	defer m.Attach(bus)()
	m.SetView(r)
	require.Equal(t, trackstate.Disconnected, m.State().UI)

	r.setConnected(true)
	assert.Equal(t, trackstate.Waiting, m.State().UI)

	r.participantJoined(trackstate.Participant{ID: "agent-1", IsAgent: true})
	r.trackPublished("agent-1", "TR_cam", trackstate.KindVideo, trackstate.SourceCamera)
	assert.Equal(t, trackstate.Waiting, m.State().UI)

	r.trackPublished("agent-1", "TR_mic", trackstate.KindAudio, trackstate.SourceMicrophone)
	r.trackPublished("agent-1", "TR_mic", trackstate.KindAudio, trackstate.SourceMicrophone)
	s := m.State()
	require.Equal(t, trackstate.Visualizing, s.UI)
	src, ok := s.AgentTrack.Publication.(audio.Source)
	require.True(t, ok, "audio publication must be sampleable")
	assert.Equal(t, 0, src.Latest(make([]float64, 4)))

	r.participantUpdated(trackstate.Participant{ID: "agent-1", IsAgent: true, Metadata: "speaking"})
	assert.Equal(t, "speaking", m.State().Agent.Metadata)

	r.trackUnpublished("agent-1", "TR_mic")
	assert.Equal(t, trackstate.Waiting, m.State().UI)

	r.participantLeft("agent-1")
	assert.Nil(t, m.State().Agent)
	assert.Empty(t, r.Tracks())

	r.Disconnect()
	assert.Equal(t, trackstate.Disconnected, m.State().UI)

	assert.Equal(t, []trackstate.EventKind{
		trackstate.RoomConnectionChanged,
		trackstate.ParticipantConnected,
		trackstate.TrackPublished,
		trackstate.TrackPublished,
		trackstate.ParticipantMetadataChanged,
		trackstate.TrackUnpublished,
		trackstate.ParticipantDisconnected,
		trackstate.RoomConnectionChanged,
	}, events())
}

func TestRoomKeepsStateWhileReconnecting(t *testing.T) {
	bus := trackstate.NewBus()
	r := newRoom(bus)
	m := trackstate.NewMachine()
	defer m.Attach(bus)()
	m.SetView(r)

	r.setConnected(true)
	r.participantJoined(trackstate.Participant{ID: "agent-1", IsAgent: true})
	r.trackPublished("agent-1", "TR_mic", trackstate.KindAudio, trackstate.SourceMicrophone)
	require.Equal(t, trackstate.Visualizing, m.State().UI)

	cb := r.callback()
	cb.OnReconnecting()
	assert.True(t, r.Connected())
	assert.Equal(t, trackstate.Visualizing, m.State().UI)

	cb.OnReconnected()
	assert.Equal(t, trackstate.Visualizing, m.State().UI)

	cb.OnDisconnected()
	assert.False(t, r.Connected())
	assert.Equal(t, trackstate.Disconnected, m.State().UI)
}

func TestRoomIgnoresUnknownUpdates(t *testing.T) {
	bus := trackstate.NewBus()
	events := recordEvents(bus)
	r := newRoom(bus)

	r.participantUpdated(trackstate.Participant{ID: "ghost"})
	r.trackUnpublished("ghost", "TR_x")
	r.setConnected(false)

	assert.Empty(t, events())
}

type fakeDecoder struct{}

func (fakeDecoder) Decode(data []byte, _ int, _ bool) ([]int16, error) {
	if len(data) == 1 && data[0] == 0xff {
		return nil, errors.New("corrupt frame")
	}
	pcm := make([]int16, len(data))
	for i, b := range data {
		pcm[i] = int16(b) << 8
	}
	return pcm, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestDecodeLoopWritesPCMUntilEOF(t *testing.T) {
	reads := [][]byte{{0x40}, nil, {0xff}, {0x20, 0x10}}
	errs := []error{nil, timeoutErr{}, nil, nil}
	i := 0
	read := func() ([]byte, error) {
		if i >= len(reads) {
			return nil, io.EOF
		}
		p, err := reads[i], errs[i]
		i++
		return p, err
	}

	ring := audio.NewRing(audio.FFTSize)
	decodeLoop(context.Background(), "TR_a", read, fakeDecoder{}, ring)

	dst := make([]float64, 8)
	n := ring.Latest(dst)
	require.Equal(t, 3, n)
	assert.Equal(t, []float64{0.5, 0.25, 0.125}, dst[:n])
}

func TestRemoteAudioDetachStopsReader(t *testing.T) {
	a := newRemoteAudio("TR_a")
	block := make(chan struct{})
	read := func() ([]byte, error) {
		select {
		case <-block:
			return nil, io.EOF
		case <-time.After(5 * time.Millisecond):
			return []byte{0x40}, nil
		}
	}

	a.start(read, fakeDecoder{})
	require.Eventually(t, func() bool { return a.Latest(make([]float64, 1)) == 1 }, time.Second, time.Millisecond)

	a.detach()
	close(block)
	assert.Equal(t, 0, a.Latest(make([]float64, 1)))
	assert.Equal(t, "TR_a", a.SID())
}
