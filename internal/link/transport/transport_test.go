package transport

import (
	"context"
	"net"
	"testing"
	"time"

	domainerrors "enginelink/internal/core/errors"
	"enginelink/internal/link/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalar(t *testing.T, name string, version uint64, v any) protocol.Message {
	t.Helper()
	payload, err := protocol.EncodePayload(v)
	require.NoError(t, err)
	return protocol.Message{Kind: protocol.KindScalar, Name: name, Version: version, Payload: payload}
}

func TestPipe_DeliversInOrder(t *testing.T) {
	a, b := Pipe(Options{})
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		for i := 1; i <= 10; i++ {
			_ = a.Send(ctx, scalar(t, "Counter", uint64(i), i))
		}
	}()

	for i := 1; i <= 10; i++ {
		msg, err := b.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), msg.Version)
	}
}

func TestPipe_CloseEndsBothSides(t *testing.T) {
	a, b := Pipe(Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, a.Close())

	select {
	case <-b.Done():
	case <-ctx.Done():
		t.Fatal("peer never observed link loss")
	}
	_, err := b.Receive(ctx)
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeTransportLost), "got %v", err)
	assert.Error(t, b.Err())

	err = a.Send(ctx, scalar(t, "X", 1, true))
	assert.True(t, domainerrors.IsCode(err, domainerrors.CodeTransportLost))
	assert.ErrorIs(t, a.Err(), ErrClosed)
}

func TestReceive_HonoursContext(t *testing.T) {
	a, b := Pipe(Options{})
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSend_OversizedFrameKeepsLinkOpen(t *testing.T) {
	a, b := Pipe(Options{MaxFrameBytes: 32})
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	ctx := context.Background()

	err := a.Send(ctx, scalar(t, "Big", 1, string(make([]byte, 64))))
	assert.ErrorIs(t, err, protocol.ErrFrameTooLarge)

	select {
	case <-a.Done():
		t.Fatal("oversized frame must not end the link")
	default:
	}
}

func TestListenAndDial(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan Channel, 1)
	go func() { _ = ln.Serve(ctx, func(c Channel) { accepted <- c }) }()

	client, err := Dial(ctx, ln.Addr().String(), DialOptions{InitialInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer client.Close()

	var server Channel
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("no connection accepted")
	}
	defer server.Close()

	require.NoError(t, client.Send(ctx, scalar(t, "PlayMode", 1, 2)))
	msg, err := server.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PlayMode", msg.Name)
	assert.NotEmpty(t, server.RemoteAddr())
}

func TestDial_RetriesUntilListenerAppears(t *testing.T) {
	reserved, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := reserved.Addr().String()
	require.NoError(t, reserved.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	go func() {
		time.Sleep(150 * time.Millisecond)
		ln, err := Listen(addr, Options{})
		if err != nil {
			return
		}
		_ = ln.Serve(ctx, func(c Channel) {})
	}()

	conn, err := Dial(ctx, addr, DialOptions{InitialInterval: 20 * time.Millisecond, MaxInterval: 50 * time.Millisecond})
	require.NoError(t, err)
	_ = conn.Close()
}

func TestDial_GivesUpWhenContextEnds(t *testing.T) {
	reserved, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := reserved.Addr().String()
	require.NoError(t, reserved.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = Dial(ctx, addr, DialOptions{InitialInterval: 20 * time.Millisecond})
	assert.Error(t, err)
}
