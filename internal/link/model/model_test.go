package model

import (
	"strings"
	"testing"

	domainerrors "enginelink/internal/core/errors"
	"enginelink/internal/link/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// link wires two models back to back and buffers frames so tests control
// delivery order.
type link struct {
	toEditor  []protocol.Message
	toBackend []protocol.Message
}

func newLinked(t *testing.T) (*Model, *Model, *link) {
	t.Helper()
	backend, editor := New(protocol.RoleBackend), New(protocol.RoleEditor)
	l := &link{}
	backend.SetSink(func(m protocol.Message) { l.toEditor = append(l.toEditor, m) })
	editor.SetSink(func(m protocol.Message) { l.toBackend = append(l.toBackend, m) })
	return backend, editor, l
}

func (l *link) flush(t *testing.T, backend, editor *Model) {
	t.Helper()
	for len(l.toEditor) > 0 || len(l.toBackend) > 0 {
		toEditor, toBackend := l.toEditor, l.toBackend
		l.toEditor, l.toBackend = nil, nil
		for _, m := range toEditor {
			require.NoError(t, editor.ApplyRemote(m))
		}
		for _, m := range toBackend {
			require.NoError(t, backend.ApplyRemote(m))
		}
	}
}

func TestProperty_NotifiesOnlyOnChangeInOrder(t *testing.T) {
	m := New(protocol.RoleBackend)
	var calls []string
	m.IsProject.Subscribe(func(v bool) { calls = append(calls, "first") })
	m.IsProject.Subscribe(func(v bool) { calls = append(calls, "second") })

	m.IsProject.Set(false)
	assert.Empty(t, calls, "writing the current value must not notify")

	m.IsProject.Set(true)
	m.IsProject.Set(true)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, uint64(1), m.IsProject.Version())
}

func TestProperty_Unsubscribe(t *testing.T) {
	m := New(protocol.RoleBackend)
	var got []int
	unsub := m.PlayMode.Subscribe(func(v int) { got = append(got, v) })
	m.PlayMode.Set(1)
	unsub()
	unsub()
	m.PlayMode.Set(2)
	assert.Equal(t, []int{1}, got)
}

func TestModel_PropagatesAndNotifiesPeer(t *testing.T) {
	backend, editor, l := newLinked(t)
	var seen []bool
	backend.HotReloadAvailable.Subscribe(func(v bool) { seen = append(seen, v) })

	editor.HotReloadAvailable.Set(true)
	l.flush(t, backend, editor)

	assert.True(t, backend.HotReloadAvailable.Get())
	assert.Equal(t, []bool{true}, seen)
}

func TestModel_RecordPropertyRoundTrip(t *testing.T) {
	backend, editor, l := newLinked(t)
	info := ConnectionInfo{Project: "Shooter.uproject", Executable: "UnrealEditor", PID: 4242, EngineVersion: "5.4"}

	editor.ConnectionInfo.Set(Some(info))
	l.flush(t, backend, editor)

	got, ok := backend.ConnectionInfo.Get().Get()
	require.True(t, ok)
	assert.Equal(t, info, got)
}

func TestModel_LastWriteWinsByDeliveryOrder(t *testing.T) {
	backend, editor, l := newLinked(t)

	backend.PlayMode.Set(1)
	l.flush(t, backend, editor)
	editor.PlayMode.Set(2)
	l.flush(t, backend, editor)
	backend.PlayMode.Set(3)
	l.flush(t, backend, editor)

	assert.Equal(t, 3, backend.PlayMode.Get())
	assert.Equal(t, 3, editor.PlayMode.Get())
}

func TestModel_ConcurrentWritesConvergeToLeader(t *testing.T) {
	backend, editor, l := newLinked(t)

	backend.PlayMode.Set(7)
	editor.PlayMode.Set(9)
	l.flush(t, backend, editor)

	assert.Equal(t, 7, backend.PlayMode.Get())
	assert.Equal(t, 7, editor.PlayMode.Get())
}

func TestModel_StaleUpdateDropped(t *testing.T) {
	m := New(protocol.RoleEditor)
	payload := func(v int) []byte {
		p, err := protocol.EncodePayload(v)
		require.NoError(t, err)
		return p
	}
	require.NoError(t, m.ApplyRemote(protocol.Message{Kind: protocol.KindScalar, Name: "playMode", Version: 5, Origin: protocol.RoleBackend, Payload: payload(5)}))
	require.NoError(t, m.ApplyRemote(protocol.Message{Kind: protocol.KindScalar, Name: "playMode", Version: 4, Origin: protocol.RoleBackend, Payload: payload(4)}))
	assert.Equal(t, 5, m.PlayMode.Get())
}

func TestModel_ApplyRemoteErrors(t *testing.T) {
	m := New(protocol.RoleBackend)

	assert.NoError(t, m.ApplyRemote(protocol.Message{Kind: protocol.KindScalar, Name: "somethingNew", Version: 1}))

	err := m.ApplyRemote(protocol.Message{Kind: protocol.KindScalar, Name: "playMode", Version: 1, Payload: []byte{0xc1}})
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeProtocol))

	err = m.ApplyRemote(protocol.Message{Kind: protocol.KindHello})
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeProtocol))
}

func TestAction_OneWay(t *testing.T) {
	backend, editor, l := newLinked(t)
	var local, remote []string
	backend.OpenClass.Handle(func(name string) { local = append(local, name) })
	editor.OpenClass.Handle(func(name string) { remote = append(remote, name) })

	require.NoError(t, backend.OpenClass.Invoke("AMyActor"))
	l.flush(t, backend, editor)

	assert.Empty(t, local, "invoking must not run local handlers")
	assert.Equal(t, []string{"AMyActor"}, remote)
}

func TestIsConnected_Derived(t *testing.T) {
	m := New(protocol.RoleBackend)
	var changes []bool
	m.IsConnected.Subscribe(func(v bool) { changes = append(changes, v) })

	m.TransportLive.Set(true)
	assert.False(t, m.IsConnected.Get())

	m.ConnectionInfo.Set(Some(ConnectionInfo{Project: "P"}))
	assert.True(t, m.IsConnected.Get())

	m.TransportLive.Set(false)
	assert.False(t, m.IsConnected.Get())
	assert.Equal(t, []bool{true, false}, changes)
}

func TestModel_SnapshotCarriesLocalWrites(t *testing.T) {
	m := New(protocol.RoleEditor)
	m.IsEngineSolution.Set(true)
	m.PlayState.Set(PlayPaused)
	m.TransportLive.Set(true)

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "isEngineSolution", snap[0].Name)
	assert.Equal(t, "playState", snap[1].Name)

	peer := New(protocol.RoleBackend)
	for _, msg := range snap {
		require.NoError(t, peer.ApplyRemote(msg))
	}
	assert.Equal(t, PlayPaused, peer.PlayState.Get())
}

func TestModel_ResetRestoresDefaultsAndDetaches(t *testing.T) {
	m := New(protocol.RoleBackend)
	var notified, handled int
	var sent int
	m.SetSink(func(protocol.Message) { sent++ })
	m.RefreshInProgress.Subscribe(func(bool) { notified++ })
	m.IsConnected.Subscribe(func(bool) { notified++ })
	m.CompileFinished.Handle(func(CompileResult) { handled++ })

	m.ConnectionInfo.Set(Some(ConnectionInfo{Project: "P"}))
	m.TransportLive.Set(true)
	m.RefreshInProgress.Set(true)
	notified, sent = 0, 0

	m.Reset()

	assert.False(t, m.RefreshInProgress.Get())
	assert.False(t, m.IsConnected.Get())
	assert.Zero(t, m.RefreshInProgress.Version())
	assert.Zero(t, notified, "reset must not notify detached observers")

	m.RefreshInProgress.Set(true)
	payload, err := protocol.EncodePayload(CompileResult{Succeeded: true})
	require.NoError(t, err)
	require.NoError(t, m.ApplyRemote(protocol.Message{Kind: protocol.KindAction, Name: "compileFinished", Payload: payload}))
	assert.Zero(t, notified)
	assert.Zero(t, handled)
	assert.Zero(t, sent, "sink is detached on reset")
}

func TestProperty_OversizedWriteLeavesStateUnchanged(t *testing.T) {
	backend, editor, l := newLinked(t)
	editor.SetFrameLimit(256)
	var notified int
	editor.ConnectionInfo.Subscribe(func(Optional[ConnectionInfo]) { notified++ })

	small := ConnectionInfo{Project: "Shooter", PID: 1}
	require.NoError(t, editor.ConnectionInfo.Update(Some(small)))
	l.flush(t, backend, editor)

	huge := ConnectionInfo{Project: strings.Repeat("x", 1024), PID: 2}
	err := editor.ConnectionInfo.Update(Some(huge))
	require.ErrorIs(t, err, protocol.ErrFrameTooLarge)
	editor.ConnectionInfo.Set(Some(huge))

	assert.Equal(t, uint64(1), editor.ConnectionInfo.Version())
	assert.Empty(t, l.toBackend, "nothing is sent for a refused write")
	assert.Equal(t, 1, notified)
	got, ok := editor.ConnectionInfo.Get().Get()
	require.True(t, ok)
	assert.Equal(t, small, got)

	for _, msg := range editor.Snapshot() {
		assert.NoError(t, protocol.CheckFrameSize(msg, 256))
	}
	peer, ok := backend.ConnectionInfo.Get().Get()
	require.True(t, ok)
	assert.Equal(t, got, peer, "both ends still agree")
}

func TestAction_OversizedInvokeIsRefused(t *testing.T) {
	backend, editor, l := newLinked(t)
	editor.SetFrameLimit(64)

	err := editor.OpenClass.Invoke(strings.Repeat("A", 512))
	require.ErrorIs(t, err, protocol.ErrFrameTooLarge)
	assert.Empty(t, l.toBackend)

	require.NoError(t, editor.OpenClass.Invoke("AMyActor"))
	l.flush(t, backend, editor)
}
