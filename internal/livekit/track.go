package livekit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"layeh.com/gopus"

	"github.com/oszuidwest/zwfm-voice/internal/audio"
)

const (
	opusSampleRate = 48000
	opusChannels   = 1
	// opusMaxFrame is the largest Opus frame (120ms at 48kHz).
	opusMaxFrame = 5760
	// ringSeconds is how much decoded audio a track keeps.
	ringSeconds = 1
	// readDeadline bounds a single RTP read so cancellation is noticed.
	readDeadline = 2 * time.Second
)

// frameDecoder decodes one Opus payload into PCM.
type frameDecoder interface {
	Decode(data []byte, frameSize int, fec bool) ([]int16, error)
}

// RemoteAudio is a published remote audio track. It buffers the decoded PCM
// of the subscribed track and serves it as an audio.Source.
type RemoteAudio struct {
	sid  string
	ring *audio.Ring

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newRemoteAudio(sid string) *RemoteAudio {
	return &RemoteAudio{sid: sid, ring: audio.NewRing(opusSampleRate * ringSeconds)}
}

// SID returns the track id.
func (a *RemoteAudio) SID() string {
	return a.sid
}

// Latest implements audio.Source.
func (a *RemoteAudio) Latest(dst []float64) int {
	return a.ring.Latest(dst)
}

// attach starts decoding track into the ring, replacing an earlier reader.
func (a *RemoteAudio) attach(track *webrtc.TrackRemote) error {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return err
	}
	read := func() ([]byte, error) {
		if err := track.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			return nil, err
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return nil, err
		}
		return pkt.Payload, nil
	}
	a.start(read, dec)
	return nil
}

func (a *RemoteAudio) start(read func() ([]byte, error), dec frameDecoder) {
	a.detach()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		decodeLoop(ctx, a.sid, read, dec, a.ring)
	}()
}

// detach stops the reader and waits for it to exit.
func (a *RemoteAudio) detach() {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	a.ring.Reset()
}

// decodeLoop reads payloads until ctx is done or the track ends.
func decodeLoop(ctx context.Context, sid string, read func() ([]byte, error), dec frameDecoder, ring *audio.Ring) {
	for {
		if ctx.Err() != nil {
			return
		}

		payload, err := read()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF):
				slog.Debug("audio track ended", "track", sid)
				return
			case errors.As(err, &netErr) && netErr.Timeout():
				continue
			default:
				if ctx.Err() == nil {
					slog.Warn("audio track read failed", "track", sid, "error", err)
				}
				return
			}
		}
		if len(payload) == 0 {
			continue
		}

		pcm, err := dec.Decode(payload, opusMaxFrame, false)
		if err != nil {
			slog.Debug("dropping undecodable opus frame", "track", sid, "error", err)
			continue
		}
		ring.WritePCM16(pcm)
	}
}
