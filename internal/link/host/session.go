package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	domainerrors "enginelink/internal/core/errors"
	"enginelink/internal/link/model"
	"enginelink/internal/link/protocol"
	"enginelink/internal/link/transport"
	"enginelink/internal/shared/observability"
	"enginelink/internal/shared/util"

	"github.com/google/uuid"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	ErrSessionEnded     = errors.New("session ended")
	ErrAlreadyAttached  = errors.New("session already has a transport")
	ErrHandshakeTimeout = errors.New("handshake timed out")
)

type SessionOptions struct {
	Role             protocol.Role
	HandshakeTimeout time.Duration
	OutboundBuffer   int
	// ActionsPerSecond limits inbound actions per action name; zero disables.
	ActionsPerSecond float64
	ActionBurst      int
	// MaxFrameBytes is the largest frame the transport carries; model writes
	// that would exceed it are refused at the source.
	MaxFrameBytes int
}

func (o SessionOptions) withDefaults() SessionOptions {
	if !o.Role.Valid() {
		o.Role = protocol.RoleBackend
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.OutboundBuffer <= 0 {
		o.OutboundBuffer = 256
	}
	if o.ActionBurst <= 0 {
		o.ActionBurst = 1
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	return o
}

// Session is one connection lifetime between the two processes. It owns a
// fresh model and scheduler and moves through
// Disconnected -> Connecting -> Connected -> Disconnected. Once it leaves
// Connecting or Connected it is finished and never reused.
type Session struct {
	id    string
	opts  SessionOptions
	model *model.Model
	sched *Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	// notifyMu orders state announcements; it is taken before mu.
	notifyMu  sync.Mutex
	mu        sync.Mutex
	state     State
	ended     bool
	cause     error
	ch        transport.Channel
	peer      protocol.Hello
	observers []func(State)

	outbound chan protocol.Message
	limiters *util.LimiterRegistry
	endOnce  sync.Once
	done     chan struct{}
}

func NewSession(parent context.Context, opts SessionOptions) *Session {
	opts = opts.withDefaults()
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:       id,
		opts:     opts,
		model:    model.New(opts.Role),
		sched:    NewScheduler(id),
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan protocol.Message, opts.OutboundBuffer),
		done:     make(chan struct{}),
	}
	s.model.SetFrameLimit(opts.MaxFrameBytes)
	if opts.ActionsPerSecond > 0 {
		s.limiters = util.NewLimiterRegistry(opts.ActionsPerSecond, opts.ActionBurst, time.Minute)
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Role() protocol.Role {
	return s.opts.Role
}

// Model is the session's shared state. Touch it only from scheduled work.
func (s *Session) Model() *model.Model {
	return s.model
}

// Context is cancelled when the session ends. Work tied to the session,
// such as navigation, should wait on it.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ended reports whether the session reached its terminal state.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Err reports why the session ended.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

func (s *Session) Peer() protocol.Hello {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// Done is closed after teardown completes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// OnStateChange registers fn for state transitions. fn runs on the
// goroutine that caused the transition.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Perform schedules fn against the model. Before the handshake completes fn
// is queued; it reports false once the session has ended.
func (s *Session) Perform(fn func(*model.Model)) bool {
	return s.sched.InvokeOrQueue(func() { fn(s.model) })
}

// Do runs fn against the model and waits for it.
func (s *Session) Do(ctx context.Context, fn func(*model.Model) error) error {
	err := s.sched.Do(ctx, func() error { return fn(s.model) })
	if errors.Is(err, ErrSchedulerStopped) {
		return ErrSessionEnded
	}
	return err
}

// Attach binds ch to the session and starts the handshake.
func (s *Session) Attach(ch transport.Channel) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	if s.ch != nil {
		s.mu.Unlock()
		return ErrAlreadyAttached
	}
	s.ch = ch
	s.state = StateConnecting
	s.mu.Unlock()
	s.announce(StateConnecting)

	hello, err := protocol.NewHello(s.opts.Role, s.id, os.Getpid())
	if err != nil {
		return err
	}
	s.outbound <- hello
	for _, msg := range s.model.Snapshot() {
		s.push(msg)
	}
	s.model.SetSink(s.push)

	slog.Info("bridge session connecting", "session", s.id, "role", string(s.opts.Role), "remote", ch.RemoteAddr())

	go s.writeLoop(ch)
	go s.readLoop(ch)
	go s.watch(ch)
	return nil
}

// Close says goodbye to the peer, if any, and ends the session.
func (s *Session) Close() {
	s.mu.Lock()
	ch := s.ch
	connected := s.state == StateConnected
	s.mu.Unlock()

	if ch != nil && connected {
		if bye, err := protocol.NewBye(s.opts.Role, "closing"); err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = ch.Send(ctx, bye)
			cancel()
		}
	}
	s.end(ErrSessionEnded)
}

func (s *Session) push(msg protocol.Message) {
	select {
	case s.outbound <- msg:
	case <-s.ctx.Done():
	}
}

func (s *Session) writeLoop(ch transport.Channel) {
	for {
		select {
		case msg := <-s.outbound:
			if err := ch.Send(s.ctx, msg); err != nil {
				if errors.Is(err, protocol.ErrFrameTooLarge) {
					// Dropping it would leave the peers diverged.
					err = domainerrors.Wrap(err, domainerrors.CodeProtocol, fmt.Sprintf("send %s", msg.Name))
				}
				s.end(err)
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) readLoop(ch transport.Channel) {
	for {
		msg, err := ch.Receive(s.ctx)
		if err != nil {
			s.end(err)
			return
		}
		if err := s.dispatch(msg); err != nil {
			s.end(err)
			return
		}
	}
}

func (s *Session) dispatch(msg protocol.Message) error {
	switch msg.Kind {
	case protocol.KindHello:
		return s.handshake(msg)
	case protocol.KindBye:
		var bye protocol.Bye
		_ = protocol.DecodePayload(msg.Payload, &bye)
		return fmt.Errorf("peer closed session: %s", bye.Reason)
	}

	if s.State() != StateConnected {
		return domainerrors.New(domainerrors.CodeProtocol, fmt.Sprintf("%s frame before handshake", msg.Kind))
	}
	if msg.Kind == protocol.KindAction && s.limiters != nil && !s.limiters.Allow(msg.Name) {
		observability.ActionsRateLimitedTotal.Inc()
		slog.Warn("inbound action rate limited", "session", s.id, "name", msg.Name)
		return nil
	}
	s.sched.InvokeOrQueue(func() {
		if err := s.model.ApplyRemote(msg); err != nil {
			slog.Warn("failed to apply peer update", "session", s.id, "name", msg.Name, "error", err)
		}
	})
	return nil
}

func (s *Session) handshake(msg protocol.Message) error {
	var hello protocol.Hello
	if err := protocol.DecodePayload(msg.Payload, &hello); err != nil {
		return domainerrors.Wrap(err, domainerrors.CodeProtocol, "decode hello")
	}
	if hello.Protocol != protocol.Version {
		return domainerrors.New(domainerrors.CodeProtocol, fmt.Sprintf("peer speaks protocol %d, want %d", hello.Protocol, protocol.Version))
	}
	if hello.Role != s.opts.Role.Peer() {
		return domainerrors.New(domainerrors.CodeProtocol, fmt.Sprintf("peer role %q cannot talk to %q", hello.Role, s.opts.Role))
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return domainerrors.New(domainerrors.CodeProtocol, "duplicate hello")
	}
	s.peer = hello
	s.mu.Unlock()

	s.sched.InvokeOrQueue(func() { s.model.TransportLive.Set(true) })
	s.setState(StateConnected)
	s.sched.Start()
	observability.SessionConnected.Set(1)
	slog.Info("bridge session connected", "session", s.id, "peer_session", hello.SessionID, "peer_pid", hello.PID)
	return nil
}

func (s *Session) watch(ch transport.Channel) {
	timer := time.NewTimer(s.opts.HandshakeTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ch.Done():
			err := ch.Err()
			if err == nil {
				err = transport.ErrClosed
			}
			s.end(err)
			return
		case <-timer.C:
			if s.State() == StateConnecting {
				s.end(ErrHandshakeTimeout)
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// setState moves the session to state and notifies observers. Once the
// session has ended only the final move to Disconnected is applied.
func (s *Session) setState(state State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	if s.state == state || (s.ended && state != StateDisconnected) {
		s.mu.Unlock()
		return
	}
	s.state = state
	observers := append(([]func(State))(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

// announce notifies observers of a state already stored under mu, unless a
// later transition has superseded it.
func (s *Session) announce(state State) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Lock()
	if s.state != state || s.ended {
		s.mu.Unlock()
		return
	}
	observers := append(([]func(State))(nil), s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}

// end moves the session to its terminal state: queued work is discarded,
// the session context is cancelled and the model is reset once the
// scheduler goroutine has exited.
func (s *Session) end(cause error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		reached := s.state
		s.ended = true
		s.cause = cause
		ch := s.ch
		s.mu.Unlock()

		discarded := s.sched.Stop()
		s.cancel()
		if ch != nil {
			_ = ch.Close()
		}
		if s.limiters != nil {
			s.limiters.Stop()
		}

		observability.SessionsTotal.WithLabelValues(reached.String()).Inc()
		if reached == StateConnected {
			observability.SessionConnected.Set(0)
		}
		if reached != StateDisconnected {
			level := slog.LevelWarn
			if errors.Is(cause, ErrSessionEnded) {
				level = slog.LevelInfo
			}
			slog.Log(context.Background(), level, "bridge session ended", "session", s.id, "reached", reached.String(), "discarded", discarded, "error", cause)
		}

		go func() {
			<-s.sched.Done()
			s.model.Reset()
			s.setState(StateDisconnected)
			close(s.done)
		}()
	})
}
