package connection

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/oszuidwest/zwfm-voice/internal/util"
)

// CorrelationIDLength is the length of the id appended to relay requests.
const CorrelationIDLength = 8

// TokenIssuer issues ephemeral tokens for the cloud mode.
type TokenIssuer interface {
	IssueToken(ctx context.Context) (string, error)
}

// Negotiator resolves provisioning modes into connection details. It owns the
// single Details slot; Connect and Disconnect are its only writers.
// It is safe for concurrent use.
type Negotiator struct {
	settings func() Settings
	cloud    TokenIssuer
	relay    *RelayClient

	// notifyMu is held across a slot write and its notifications so
	// observers see replacements in the order they were made.
	notifyMu sync.Mutex

	mu         sync.Mutex
	current    Details
	generation uint64
	observers  map[int]func(Details)
	nextID     int
}

// NewNegotiator creates a negotiator. cloud may be nil when no token issuer is
// configured; relay may be nil when the env mode is not used.
func NewNegotiator(settings func() Settings, cloud TokenIssuer, relay *RelayClient) *Negotiator {
	return &Negotiator{
		settings:  settings,
		cloud:     cloud,
		relay:     relay,
		current:   Details{Mode: ModeManual},
		observers: make(map[int]func(Details)),
	}
}

// Details returns the current connection details.
func (n *Negotiator) Details() Details {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

// Subscribe registers fn to be called after every change of the details slot,
// in the order the changes were made. fn runs synchronously and must not call
// Connect or Disconnect. The returned function removes the observer.
func (n *Negotiator) Subscribe(fn func(Details)) (cancel func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.observers[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.observers, id)
		n.mu.Unlock()
	}
}

// Connect resolves mode into connection details and stores them with
// ShouldConnect set. A result that was overtaken by Disconnect or a newer
// Connect is dropped without error; the caller then receives the current
// details.
func (n *Negotiator) Connect(ctx context.Context, mode Mode, opts Options) (Details, error) {
	n.mu.Lock()
	n.generation++
	gen := n.generation
	n.mu.Unlock()

	wsURL, token, err := n.resolve(ctx, mode, opts)
	if err == nil && (wsURL == "" || token == "") {
		err = &ProvisioningError{Mode: mode, Op: "resolve credentials", Err: fmt.Errorf("empty url or token")}
	}

	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()

	n.mu.Lock()
	if gen != n.generation {
		current := n.current
		n.mu.Unlock()
		slog.Debug("discarding stale connection result", "mode", mode, "generation", gen)
		return current, nil
	}

	if err != nil {
		n.current = Details{Mode: mode}
	} else {
		n.current = Details{WSURL: wsURL, Token: token, Mode: mode, ShouldConnect: true}
	}
	current, observers := n.current, n.observerList()
	n.mu.Unlock()

	notify(observers, current)

	if err != nil {
		return current, err
	}
	slog.Info("connection details resolved", "mode", mode, "url", wsURL)
	return current, nil
}

// Disconnect clears ShouldConnect. It does not cancel an in-flight Connect,
// but that call's result will be discarded.
func (n *Negotiator) Disconnect() {
	n.notifyMu.Lock()
	defer n.notifyMu.Unlock()

	n.mu.Lock()
	n.generation++
	prev := n.current
	n.current = Details{WSURL: prev.WSURL, Token: prev.Token, Mode: prev.Mode}
	current, observers := n.current, n.observerList()
	n.mu.Unlock()

	if prev.ShouldConnect {
		slog.Info("disconnect requested", "mode", prev.Mode)
	}
	notify(observers, current)
}

// observerList returns the registered observers. Caller must hold n.mu.
func (n *Negotiator) observerList() []func(Details) {
	ids := make([]int, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	list := make([]func(Details), 0, len(ids))
	for _, id := range ids {
		list = append(list, n.observers[id])
	}
	return list
}

func notify(observers []func(Details), d Details) {
	for _, fn := range observers {
		fn(d)
	}
}

// resolve runs the provisioning strategy for mode.
func (n *Negotiator) resolve(ctx context.Context, mode Mode, opts Options) (wsURL, token string, err error) {
	s := n.settings()

	switch mode {
	case ModeCloud:
		if n.cloud == nil {
			return "", "", &ConfigurationError{Mode: mode, Field: "token issuer"}
		}
		if s.CloudWSURL == "" {
			return "", "", &ConfigurationError{Mode: mode, Field: "cloud ws_url"}
		}
		token, err := n.cloud.IssueToken(ctx)
		if err != nil {
			return "", "", &ProvisioningError{Mode: mode, Op: "issue token", Err: err}
		}
		return s.CloudWSURL, token, nil

	case ModeEnv:
		base := opts.ServerURL
		if base == "" {
			base = s.RelayBaseURL
		}
		if base == "" {
			return "", "", &ConfigurationError{Mode: mode, Field: "relay base_url"}
		}
		if n.relay == nil {
			return "", "", &ConfigurationError{Mode: mode, Field: "relay client"}
		}
		id, err := util.RandomAlphanumeric(CorrelationIDLength)
		if err != nil {
			return "", "", &ProvisioningError{Mode: mode, Op: "generate correlation id", Err: err}
		}
		resp, err := n.relay.Fetch(ctx, base, id, opts.Language)
		if err != nil {
			return "", "", err
		}
		return resp.URL, resp.Token, nil

	default:
		if !mode.Known() {
			slog.Warn("unknown connection mode, using static credentials", "mode", mode)
		}
		if s.ManualWSURL == "" {
			return "", "", &ConfigurationError{Mode: mode, Field: "ws_url"}
		}
		if s.ManualToken == "" {
			return "", "", &ConfigurationError{Mode: mode, Field: "token"}
		}
		return s.ManualWSURL, s.ManualToken, nil
	}
}
