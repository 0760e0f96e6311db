// Package model is the shared state of one bridge session: typed properties
// kept consistent across both processes and one-way actions between them.
//
// A Model is owned by one session and is meant to be touched only from that
// session's scheduler goroutine. Local and remote writes share the same
// storage and notification path.
package model

import (
	"log/slog"
	"sync"
	"sync/atomic"

	domainerrors "enginelink/internal/core/errors"
	"enginelink/internal/link/protocol"
)

type syncable interface {
	Name() string
	applyRemote(msg protocol.Message) (bool, error)
	snapshot() (protocol.Message, bool)
	reset()
}

type deliverable interface {
	Name() string
	deliver(msg protocol.Message) error
	reset()
}

type Model struct {
	role protocol.Role

	sinkMu sync.Mutex
	sink   func(protocol.Message)
	// maxFrame bounds the encoded size of an outbound write.
	maxFrame atomic.Int64

	props   map[string]syncable
	order   []syncable
	actions map[string]deliverable

	IsEngineSolution      *Property[bool]
	ConnectionInfo        *Property[Optional[ConnectionInfo]]
	PlayState             *Property[PlayState]
	PlayMode              *Property[int]
	LinkInstallInProgress *Property[bool]
	RefreshInProgress     *Property[bool]
	IsProject             *Property[bool]
	InstallInfoAvailable  *Property[bool]
	HotReloadAvailable    *Property[bool]
	HotReloadCompiling    *Property[bool]

	// TransportLive mirrors the link state of the owning session.
	TransportLive *Property[bool]
	IsConnected   *Derived[bool]

	OpenClass       *Action[string]
	OpenMember      *Action[MemberRef]
	PlayControl     *Action[PlayRequest]
	CompileFinished *Action[CompileResult]
}

func New(role protocol.Role) *Model {
	m := &Model{
		role:    role,
		props:   make(map[string]syncable),
		actions: make(map[string]deliverable),
	}

	m.IsEngineSolution = newProperty(m, "isEngineSolution", protocol.KindScalar, false)
	m.ConnectionInfo = newProperty(m, "connectionInfo", protocol.KindRecord, None[ConnectionInfo]())
	m.PlayState = newProperty(m, "playState", protocol.KindScalar, PlayIdle)
	m.PlayMode = newProperty(m, "playMode", protocol.KindScalar, 0)
	m.LinkInstallInProgress = newProperty(m, "linkInstallInProgress", protocol.KindScalar, false)
	m.RefreshInProgress = newProperty(m, "refreshInProgress", protocol.KindScalar, false)
	m.IsProject = newProperty(m, "isProject", protocol.KindScalar, false)
	m.InstallInfoAvailable = newProperty(m, "installInfoAvailable", protocol.KindScalar, false)
	m.HotReloadAvailable = newProperty(m, "hotReloadAvailable", protocol.KindScalar, false)
	m.HotReloadCompiling = newProperty(m, "hotReloadCompiling", protocol.KindScalar, false)

	m.TransportLive = newLocalProperty(m, "transportLive", false)
	m.IsConnected = newDerived(func() bool {
		_, ok := m.ConnectionInfo.Get().Get()
		return ok && m.TransportLive.Get()
	}, m.ConnectionInfo, m.TransportLive)

	m.OpenClass = newAction[string](m, "openClass")
	m.OpenMember = newAction[MemberRef](m, "openMember")
	m.PlayControl = newAction[PlayRequest](m, "playControl")
	m.CompileFinished = newAction[CompileResult](m, "compileFinished")
	return m
}

func (m *Model) Role() protocol.Role {
	return m.role
}

func (m *Model) register(p syncable) {
	m.props[p.Name()] = p
	m.order = append(m.order, p)
}

func (m *Model) registerAction(a deliverable) {
	m.actions[a.Name()] = a
}

// SetSink installs the outbound path. Writes made with no sink stay local
// until Snapshot is sent.
func (m *Model) SetSink(sink func(protocol.Message)) {
	m.sinkMu.Lock()
	defer m.sinkMu.Unlock()
	m.sink = sink
}

// SetFrameLimit bounds outbound writes to what the link can carry. Larger
// property writes are refused before they change local state.
func (m *Model) SetFrameLimit(n int) {
	m.maxFrame.Store(int64(n))
}

func (m *Model) checkFrame(msg protocol.Message) error {
	return protocol.CheckFrameSize(msg, int(m.maxFrame.Load()))
}

func (m *Model) send(msg protocol.Message) {
	m.sinkMu.Lock()
	sink := m.sink
	m.sinkMu.Unlock()
	if sink == nil {
		slog.Debug("model write kept local, no link attached", "name", msg.Name, "kind", msg.Kind.String())
		return
	}
	sink(msg)
}

// ApplyRemote routes a frame received from the peer.
func (m *Model) ApplyRemote(msg protocol.Message) error {
	switch msg.Kind {
	case protocol.KindScalar, protocol.KindRecord:
		p, ok := m.props[msg.Name]
		if !ok {
			slog.Debug("ignoring update for unknown property", "name", msg.Name)
			return nil
		}
		if _, err := p.applyRemote(msg); err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeProtocol, "apply property update")
		}
		return nil
	case protocol.KindAction:
		a, ok := m.actions[msg.Name]
		if !ok {
			slog.Debug("ignoring unknown action", "name", msg.Name)
			return nil
		}
		if err := a.deliver(msg); err != nil {
			return domainerrors.Wrap(err, domainerrors.CodeProtocol, "deliver action")
		}
		return nil
	default:
		return domainerrors.New(domainerrors.CodeProtocol, "model cannot apply "+msg.Kind.String()+" frame")
	}
}

// Snapshot returns an update for every property written since creation, in
// declaration order. Sent right after the handshake so writes made before
// the link came up reach the peer.
func (m *Model) Snapshot() []protocol.Message {
	var out []protocol.Message
	for _, p := range m.order {
		if msg, ok := p.snapshot(); ok {
			out = append(out, msg)
		}
	}
	return out
}

// Reset detaches every observer and handler and restores defaults without
// notifying anyone.
func (m *Model) Reset() {
	m.SetSink(nil)
	m.IsConnected.reset()
	for _, p := range m.order {
		p.reset()
	}
	m.TransportLive.reset()
	for _, a := range m.actions {
		a.reset()
	}
}
