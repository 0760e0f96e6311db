// Package host owns the bridge sessions of one process. A Host always has
// a current Session; when it ends, a fresh one replaces it, so callers
// never hold on to torn-down state.
package host

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"enginelink/internal/link/model"
	"enginelink/internal/link/protocol"
	"enginelink/internal/link/transport"
)

var ErrHostClosed = errors.New("host closed")

type Host struct {
	ctx  context.Context
	opts SessionOptions

	mu        sync.Mutex
	current   *Session
	replaced  chan struct{}
	binders   []func(*Session)
	observers []func(*Session, State)
	closed    bool
}

func New(ctx context.Context, opts SessionOptions) *Host {
	h := &Host{ctx: ctx, opts: opts.withDefaults(), replaced: make(chan struct{})}
	h.current = h.newSession()
	return h
}

func (h *Host) Role() protocol.Role {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts.Role
}

// Session returns the current session.
func (h *Host) Session() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// OnSession registers fn to bind every session, starting with the current
// one. Binders run before the session is attached to a transport.
func (h *Host) OnSession(fn func(*Session)) {
	h.mu.Lock()
	h.binders = append(h.binders, fn)
	current := h.current
	h.mu.Unlock()
	fn(current)
}

// OnStateChange registers fn for state transitions of every session.
func (h *Host) OnStateChange(fn func(*Session, State)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, fn)
}

// Attach binds ch to the current session. A session that is already
// attached refuses the channel and the caller should close it.
// If the current session has just ended, Attach waits for its replacement.
func (h *Host) Attach(ch transport.Channel) (*Session, error) {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, ErrHostClosed
		}
		s := h.current
		replaced := h.replaced
		h.mu.Unlock()

		err := s.Attach(ch)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrSessionEnded) {
			return nil, err
		}
		select {
		case <-replaced:
		case <-h.ctx.Done():
			return nil, ErrHostClosed
		}
	}
}

// PerformModelAction schedules fn on the current session's scheduler. Work
// queued before the handshake completes runs in order once it does; work
// still queued when the session ends is dropped.
func (h *Host) PerformModelAction(fn func(*model.Model)) bool {
	return h.Session().Perform(fn)
}

func (h *Host) model() *model.Model {
	return h.Session().Model()
}

func (h *Host) IsEngineSolution() bool { return h.model().IsEngineSolution.Get() }

func (h *Host) IsConnected() bool { return h.model().IsConnected.Get() }

func (h *Host) ConnectionInfo() (model.ConnectionInfo, bool) {
	return h.model().ConnectionInfo.Get().Get()
}

func (h *Host) PlayState() model.PlayState { return h.model().PlayState.Get() }

func (h *Host) PlayMode() int { return h.model().PlayMode.Get() }

func (h *Host) IsLinkInstallInProgress() bool { return h.model().LinkInstallInProgress.Get() }

func (h *Host) IsRefreshInProgress() bool { return h.model().RefreshInProgress.Get() }

func (h *Host) IsProject() bool { return h.model().IsProject.Get() }

func (h *Host) IsInstallInfoAvailable() bool { return h.model().InstallInfoAvailable.Get() }

func (h *Host) IsHotReloadAvailable() bool { return h.model().HotReloadAvailable.Get() }

func (h *Host) IsHotReloadCompiling() bool { return h.model().HotReloadCompiling.Get() }

// Close ends the current session and stops creating new ones.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	s := h.current
	close(h.replaced)
	h.mu.Unlock()

	s.Close()
	<-s.Done()
}

// SetActionRate changes the inbound action limit. The current session keeps
// its limiters; sessions created afterwards use the new rate.
func (h *Host) SetActionRate(perSecond float64, burst int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opts.ActionsPerSecond = perSecond
	h.opts.ActionBurst = burst
	h.opts = h.opts.withDefaults()
}

func (h *Host) newSession() *Session {
	h.mu.Lock()
	opts := h.opts
	h.mu.Unlock()
	s := NewSession(h.ctx, opts)
	s.OnStateChange(func(state State) {
		h.mu.Lock()
		observers := append(([]func(*Session, State))(nil), h.observers...)
		h.mu.Unlock()
		for _, fn := range observers {
			fn(s, state)
		}
	})
	go h.replaceWhenDone(s)
	return s
}

func (h *Host) replaceWhenDone(s *Session) {
	<-s.Done()

	h.mu.Lock()
	if h.closed || h.current != s || h.ctx.Err() != nil {
		h.mu.Unlock()
		return
	}
	binders := append(([]func(*Session))(nil), h.binders...)
	h.mu.Unlock()

	next := h.newSession()
	for _, fn := range binders {
		fn(next)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		next.Close()
		return
	}
	h.current = next
	close(h.replaced)
	h.replaced = make(chan struct{})
	h.mu.Unlock()
	slog.Debug("bridge session replaced", "previous", s.ID(), "session", next.ID())
}
