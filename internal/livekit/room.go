package livekit

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/oszuidwest/zwfm-voice/internal/trackstate"
)

// agentStateAttribute is set by LiveKit agents on their participant.
const agentStateAttribute = "lk.agent.state"

// Connector joins LiveKit rooms.
type Connector struct{}

// NewConnector creates a room connector.
func NewConnector() *Connector {
	return &Connector{}
}

// Connect joins the room at url with token. Room events are published to
// bus. The returned Room is a view of the joined room.
func (c *Connector) Connect(ctx context.Context, url, token string, bus *trackstate.Bus) (*Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := newRoom(bus)
	lkRoom, err := lksdk.ConnectToRoomWithToken(url, token, r.callback(), lksdk.WithAutoSubscribe(true))
	if err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	r.room = lkRoom

	// Participants that were present before the join.
	for _, rp := range lkRoom.GetRemoteParticipants() {
		r.participantJoined(participantOf(rp))
		for _, pub := range rp.TrackPublications() {
			if remote, ok := pub.(*lksdk.RemoteTrackPublication); ok {
				r.trackPublished(rp.Identity(), remote.SID(), kindOf(remote), sourceOf(remote))
			}
		}
	}
	r.setConnected(true)
	slog.Info("joined room", "room", lkRoom.Name(), "participants", len(lkRoom.GetRemoteParticipants()))

	if err := ctx.Err(); err != nil {
		r.Disconnect()
		return nil, err
	}
	return r, nil
}

// Room mirrors the participants and tracks of a joined LiveKit room. It
// implements trackstate.RoomView.
type Room struct {
	room      *lksdk.Room
	bus       *trackstate.Bus
	connected atomic.Bool

	mu           sync.Mutex
	participants []trackstate.Participant
	tracks       []trackstate.Track
	audio        map[string]*RemoteAudio // by track SID
}

func newRoom(bus *trackstate.Bus) *Room {
	return &Room{bus: bus, audio: make(map[string]*RemoteAudio)}
}

// Connected implements trackstate.RoomView.
func (r *Room) Connected() bool {
	return r.connected.Load()
}

// Participants implements trackstate.RoomView.
func (r *Room) Participants() []trackstate.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.participants)
}

// Tracks implements trackstate.RoomView.
func (r *Room) Tracks() []trackstate.Track {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.tracks)
}

// Disconnect leaves the room and stops all track readers.
func (r *Room) Disconnect() {
	if r.room != nil {
		r.room.Disconnect()
	}
	r.closeAudio()
	r.setConnected(false)
}

func (r *Room) callback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				r.trackPublished(rp.Identity(), pub.SID(), kindOf(pub), sourceOf(pub))
			},
			OnTrackUnpublished: func(pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				r.trackUnpublished(rp.Identity(), pub.SID())
			},
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				r.trackPublished(rp.Identity(), pub.SID(), kindOf(pub), sourceOf(pub))
				if track.Kind() != webrtc.RTPCodecTypeAudio {
					return
				}
				if a := r.remoteAudio(pub.SID()); a != nil {
					if err := a.attach(track); err != nil {
						slog.Warn("failed to decode audio track", "track", pub.SID(), "participant", rp.Identity(), "error", err)
					}
				}
			},
			OnTrackUnsubscribed: func(_ *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, _ *lksdk.RemoteParticipant) {
				if a := r.remoteAudio(pub.SID()); a != nil {
					a.detach()
				}
			},
			OnMetadataChanged: func(_ string, p lksdk.Participant) {
				if rp, ok := p.(*lksdk.RemoteParticipant); ok {
					r.participantUpdated(participantOf(rp))
				}
			},
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			r.participantJoined(participantOf(rp))
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			r.participantLeft(rp.Identity())
		},
		OnDisconnected: func() {
			slog.Info("room disconnected")
			r.closeAudio()
			r.setConnected(false)
		},
		// A transient reconnect keeps the room state. If it fails the SDK
		// reports OnDisconnected.
		OnReconnecting: func() {
			slog.Warn("room connection lost, reconnecting")
		},
		OnReconnected: func() {
			slog.Info("room reconnected")
			r.setConnected(true)
		},
	}
}

func (r *Room) setConnected(v bool) {
	if r.connected.Swap(v) != v {
		r.bus.Publish(trackstate.Event{Kind: trackstate.RoomConnectionChanged})
	}
}

func (r *Room) participantJoined(p trackstate.Participant) {
	r.mu.Lock()
	i := slices.IndexFunc(r.participants, func(q trackstate.Participant) bool { return q.ID == p.ID })
	if i >= 0 {
		r.participants[i] = p
	} else {
		r.participants = append(r.participants, p)
	}
	r.mu.Unlock()

	if i < 0 {
		slog.Info("participant joined", "participant", p.ID, "agent", p.IsAgent)
		r.bus.Publish(trackstate.Event{Kind: trackstate.ParticipantConnected, ParticipantID: p.ID})
	}
}

func (r *Room) participantUpdated(p trackstate.Participant) {
	r.mu.Lock()
	i := slices.IndexFunc(r.participants, func(q trackstate.Participant) bool { return q.ID == p.ID })
	if i >= 0 {
		r.participants[i] = p
	}
	r.mu.Unlock()

	if i >= 0 {
		r.bus.Publish(trackstate.Event{Kind: trackstate.ParticipantMetadataChanged, ParticipantID: p.ID})
	}
}

func (r *Room) participantLeft(id string) {
	r.mu.Lock()
	r.participants = slices.DeleteFunc(r.participants, func(q trackstate.Participant) bool { return q.ID == id })
	var stale []*RemoteAudio
	r.tracks = slices.DeleteFunc(r.tracks, func(t trackstate.Track) bool {
		if t.ParticipantID != id {
			return false
		}
		if a := r.audio[t.Publication.SID()]; a != nil {
			stale = append(stale, a)
			delete(r.audio, t.Publication.SID())
		}
		return true
	})
	r.mu.Unlock()

	for _, a := range stale {
		a.detach()
	}
	slog.Info("participant left", "participant", id)
	r.bus.Publish(trackstate.Event{Kind: trackstate.ParticipantDisconnected, ParticipantID: id})
}

// trackPublished registers a track. Audio tracks get a RemoteAudio handle
// so they can be sampled once subscribed. Repeated calls are no-ops.
func (r *Room) trackPublished(participantID, sid string, kind trackstate.Kind, source trackstate.Source) {
	r.mu.Lock()
	if slices.ContainsFunc(r.tracks, func(t trackstate.Track) bool { return t.Publication.SID() == sid }) {
		r.mu.Unlock()
		return
	}
	var pub trackstate.Publication = trackHandle(sid)
	if kind == trackstate.KindAudio {
		a := newRemoteAudio(sid)
		r.audio[sid] = a
		pub = a
	}
	r.tracks = append(r.tracks, trackstate.Track{ParticipantID: participantID, Kind: kind, Source: source, Publication: pub})
	r.mu.Unlock()

	r.bus.Publish(trackstate.Event{Kind: trackstate.TrackPublished, ParticipantID: participantID, TrackSID: sid})
}

func (r *Room) trackUnpublished(participantID, sid string) {
	r.mu.Lock()
	before := len(r.tracks)
	r.tracks = slices.DeleteFunc(r.tracks, func(t trackstate.Track) bool { return t.Publication.SID() == sid })
	removed := len(r.tracks) != before
	a := r.audio[sid]
	delete(r.audio, sid)
	r.mu.Unlock()

	if a != nil {
		a.detach()
	}
	if removed {
		r.bus.Publish(trackstate.Event{Kind: trackstate.TrackUnpublished, ParticipantID: participantID, TrackSID: sid})
	}
}

func (r *Room) remoteAudio(sid string) *RemoteAudio {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audio[sid]
}

func (r *Room) closeAudio() {
	r.mu.Lock()
	handles := make([]*RemoteAudio, 0, len(r.audio))
	for _, a := range r.audio {
		handles = append(handles, a)
	}
	r.mu.Unlock()

	for _, a := range handles {
		a.detach()
	}
}

// trackHandle is the publication handle of a non-audio track.
type trackHandle string

func (h trackHandle) SID() string { return string(h) }

func participantOf(rp *lksdk.RemoteParticipant) trackstate.Participant {
	_, hasAgentState := rp.Attributes()[agentStateAttribute]
	return trackstate.Participant{
		ID:       rp.Identity(),
		IsAgent:  rp.Kind() == lksdk.ParticipantAgent || hasAgentState,
		Metadata: rp.Metadata(),
	}
}

func kindOf(pub *lksdk.RemoteTrackPublication) trackstate.Kind {
	if pub.Kind() == lksdk.TrackKindAudio {
		return trackstate.KindAudio
	}
	return trackstate.KindVideo
}

func sourceOf(pub *lksdk.RemoteTrackPublication) trackstate.Source {
	switch pub.Source() {
	case livekit.TrackSource_MICROPHONE:
		return trackstate.SourceMicrophone
	case livekit.TrackSource_CAMERA:
		return trackstate.SourceCamera
	case livekit.TrackSource_SCREEN_SHARE:
		return trackstate.SourceScreenShare
	case livekit.TrackSource_SCREEN_SHARE_AUDIO:
		return trackstate.SourceScreenShareAudio
	default:
		return trackstate.SourceUnknown
	}
}
