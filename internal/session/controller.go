// Package session joins and leaves the LiveKit room as the negotiated
// connection details change, and exposes the resulting session state and
// volume bands.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voice/internal/audio"
	"github.com/oszuidwest/zwfm-voice/internal/connection"
	"github.com/oszuidwest/zwfm-voice/internal/eventlog"
	"github.com/oszuidwest/zwfm-voice/internal/trackstate"
	"github.com/oszuidwest/zwfm-voice/internal/util"
)

// Room is a joined room.
type Room interface {
	trackstate.RoomView
	Disconnect()
}

// ConnectFunc joins the room at url with token, publishing room events to bus.
type ConnectFunc func(ctx context.Context, url, token string, bus *trackstate.Bus) (Room, error)

// DetailsSource provides the negotiated connection details.
type DetailsSource interface {
	Details() connection.Details
	Subscribe(fn func(connection.Details)) (cancel func())
}

// joinTimeout bounds a single room join.
const joinTimeout = 30 * time.Second

// Controller keeps the room membership in line with the connection details.
// It owns the track state machine and the band sampler of the agent track.
type Controller struct {
	details DetailsSource
	connect ConnectFunc
	bands   *audio.BandProcessor
	events  *eventlog.Logger

	bus     *trackstate.Bus
	machine *trackstate.Machine
	wake    chan struct{}

	mu          sync.Mutex
	room        Room
	roomURL     string
	roomToken   string
	startedAt   time.Time
	lastErr     string
	latest      []float64
	stopSampler context.CancelFunc
	samplingSID string
	agentID     string
	ui          trackstate.UIState
	changed     chan struct{}
}

// NewController creates a controller. events may be nil.
func NewController(details DetailsSource, connect ConnectFunc, bands *audio.BandProcessor, events *eventlog.Logger) *Controller {
	c := &Controller{
		details: details,
		connect: connect,
		bands:   bands,
		events:  events,
		bus:     trackstate.NewBus(),
		machine: trackstate.NewMachine(),
		wake:    make(chan struct{}, 1),
		latest:  make([]float64, bands.Bands()),
		ui:      trackstate.Disconnected,
		changed: make(chan struct{}),
	}
	c.machine.Attach(c.bus)
	c.machine.OnChange(c.onTrackState)
	return c
}

// Run reconciles the room with the connection details until ctx is done,
// then leaves any joined room.
func (c *Controller) Run(ctx context.Context) {
	cancel := c.details.Subscribe(func(connection.Details) { c.poke() })
	defer cancel()

	c.poke()
	for {
		select {
		case <-ctx.Done():
			c.leave("shutdown")
			return
		case <-c.wake:
			c.reconcile(ctx)
		}
	}
}

func (c *Controller) poke() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// reconcile joins, switches or leaves the room to match the current details.
func (c *Controller) reconcile(ctx context.Context) {
	d := c.details.Details()

	c.mu.Lock()
	joined := c.room != nil
	same := joined && c.roomURL == d.WSURL && c.roomToken == d.Token
	c.mu.Unlock()

	switch {
	case !d.ShouldConnect:
		if joined {
			c.leave("disconnect requested")
		}
		return
	case same:
		return
	case joined:
		c.leave("connection details changed")
	}

	c.join(ctx, d)
}

func (c *Controller) join(ctx context.Context, d connection.Details) {
	joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	slog.Info("joining room", "mode", d.Mode, "url", d.WSURL)
	room, err := c.connect(joinCtx, d.WSURL, d.Token, c.bus)
	if err != nil {
		slog.Error("failed to join room", "mode", d.Mode, "url", d.WSURL, "error", err)
		c.mu.Lock()
		c.lastErr = util.WrapError("join room", err).Error()
		c.mu.Unlock()
		if c.events != nil {
			c.events.LogSession(eventlog.SessionError, "join failed", string(d.Mode), d.WSURL, "", err.Error())
		}
		c.notify()
		return
	}

	// A disconnect or newer negotiation may have landed while joining.
	if cur := c.details.Details(); !cur.ShouldConnect || cur.WSURL != d.WSURL || cur.Token != d.Token {
		slog.Info("connection details changed while joining, leaving room")
		room.Disconnect()
		c.poke()
		return
	}

	if c.events != nil {
		c.events.Reset()
		c.events.LogSession(eventlog.SessionJoined, "joined room", string(d.Mode), d.WSURL, "", "")
	}

	c.mu.Lock()
	c.room = room
	c.roomURL = d.WSURL
	c.roomToken = d.Token
	c.startedAt = time.Now()
	c.lastErr = ""
	c.mu.Unlock()

	c.machine.SetView(room)
	c.notify()
}

// leave disconnects from the joined room, if any.
func (c *Controller) leave(reason string) {
	c.mu.Lock()
	room, startedAt := c.room, c.startedAt
	c.room = nil
	c.roomURL, c.roomToken = "", ""
	c.startedAt = time.Time{}
	c.mu.Unlock()

	if room == nil {
		return
	}
	room.Disconnect()
	c.machine.SetView(nil)

	duration := util.FormatSessionDuration(time.Since(startedAt))
	slog.Info("left room", "reason", reason, "duration", duration)
	if c.events != nil {
		c.events.LogSession(eventlog.SessionLeft, reason, "", "", duration, "")
	}
	c.notify()
}

// onTrackState starts or stops the sampler as the agent track comes and goes.
func (c *Controller) onTrackState(s trackstate.State) {
	c.record(s)

	var src audio.Source
	var sid string
	if s.UI == trackstate.Visualizing && s.AgentTrack != nil {
		if as, ok := s.AgentTrack.Publication.(audio.Source); ok {
			src, sid = as, s.AgentTrack.Publication.SID()
		}
	}

	c.mu.Lock()
	if sid != "" && sid == c.samplingSID {
		c.mu.Unlock()
		c.notify()
		return
	}
	if c.stopSampler != nil {
		c.stopSampler()
		c.stopSampler = nil
		clear(c.latest)
	}
	c.samplingSID = sid
	if src != nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.stopSampler = cancel
		go c.consume(sid, c.bands.Sample(ctx, src))
	}
	c.mu.Unlock()

	c.notify()
}

// record logs agent arrivals and departures and UI transitions.
func (c *Controller) record(s trackstate.State) {
	id, metadata := "", ""
	if s.Agent != nil {
		id, metadata = s.Agent.ID, s.Agent.Metadata
	}

	c.mu.Lock()
	prevAgent, prevUI := c.agentID, c.ui
	c.agentID, c.ui = id, s.UI
	c.mu.Unlock()

	if c.events == nil {
		return
	}
	if prevAgent != id {
		if prevAgent != "" {
			c.events.LogAgent(eventlog.AgentLeft, prevAgent, "")
		}
		if id != "" {
			c.events.LogAgent(eventlog.AgentJoined, id, metadata)
		}
	}
	if prevUI != s.UI {
		c.events.LogState(string(prevUI), string(s.UI))
	}
}

func (c *Controller) consume(sid string, samples <-chan []float64) {
	for bands := range samples {
		c.mu.Lock()
		if c.samplingSID == sid {
			copy(c.latest, bands)
		}
		c.mu.Unlock()
	}
}

// notify wakes everything waiting on Changed.
func (c *Controller) notify() {
	c.mu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
}

// Changed returns a channel that is closed on the next state change.
func (c *Controller) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}

// Bands returns the latest volume bands. They are all zero while no agent
// audio track is live.
func (c *Controller) Bands() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]float64, len(c.latest))
	copy(out, c.latest)
	return out
}

// State returns the current session state.
func (c *Controller) State() State {
	d := c.details.Details()
	ts := c.machine.State()

	c.mu.Lock()
	startedAt, lastErr := c.startedAt, c.lastErr
	c.mu.Unlock()

	return BuildState(d, ts, startedAt, time.Now(), lastErr)
}

// Events returns the event log of the current session, or nil.
func (c *Controller) Events() *eventlog.Logger {
	return c.events
}
