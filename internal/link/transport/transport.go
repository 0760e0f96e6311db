// Package transport carries protocol messages between the two bridge
// processes. A Channel is ordered, reliable and bidirectional; its Done
// channel closes exactly once when the link is lost or closed.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	domainerrors "enginelink/internal/core/errors"
	"enginelink/internal/link/protocol"
	"enginelink/internal/shared/observability"
)

var ErrClosed = errors.New("transport closed")

type Channel interface {
	Send(ctx context.Context, msg protocol.Message) error
	// Receive blocks for the next message. After the link ends it returns
	// the buffered remainder, then a TRANSPORT_LOST error.
	Receive(ctx context.Context) (protocol.Message, error)
	Close() error
	Done() <-chan struct{}
	// Err reports why the link ended, nil while it is live.
	Err() error
	RemoteAddr() string
}

type Options struct {
	MaxFrameBytes int
	InboxSize     int
}

func (o Options) withDefaults() Options {
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 64
	}
	return o
}

var _ Channel = (*Conn)(nil)

// Conn is a Channel over a net.Conn.
type Conn struct {
	conn net.Conn
	opts Options

	writeMu sync.Mutex
	inbox   chan protocol.Message
	done    chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func NewConn(c net.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	conn := &Conn{
		conn:  c,
		opts:  opts,
		inbox: make(chan protocol.Message, opts.InboxSize),
		done:  make(chan struct{}),
	}
	go conn.readLoop()
	return conn
}

func (c *Conn) readLoop() {
	defer close(c.inbox)
	r := bufio.NewReader(c.conn)
	for {
		msg, err := protocol.ReadMessage(r, c.opts.MaxFrameBytes)
		if err != nil {
			c.fail(err)
			return
		}
		observability.FramesReceivedTotal.WithLabelValues(msg.Kind.String()).Inc()
		select {
		case c.inbox <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) Send(ctx context.Context, msg protocol.Message) error {
	select {
	case <-c.done:
		return c.lostError()
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = c.conn.SetWriteDeadline(deadline)

	if err := protocol.WriteMessage(c.conn, msg, c.opts.MaxFrameBytes); err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) || domainerrors.IsCode(err, domainerrors.CodeProtocol) {
			return err
		}
		c.fail(err)
		return c.lostError()
	}
	observability.FramesSentTotal.WithLabelValues(msg.Kind.String()).Inc()
	return nil
}

func (c *Conn) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case msg, ok := <-c.inbox:
		if !ok {
			return protocol.Message{}, c.lostError()
		}
		return msg, nil
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	}
}

func (c *Conn) Close() error {
	c.fail(ErrClosed)
	return nil
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Conn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (c *Conn) fail(err error) {
	c.closeOnce.Do(func() {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			err = fmt.Errorf("peer closed link: %w", err)
		}
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Conn) lostError() error {
	err := c.Err()
	if err == nil {
		err = ErrClosed
	}
	return domainerrors.Wrap(err, domainerrors.CodeTransportLost, "link lost")
}

// Pipe returns two connected in-process channels.
func Pipe(opts Options) (Channel, Channel) {
	a, b := net.Pipe()
	return NewConn(a, opts), NewConn(b, opts)
}
