package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Listener accepts editor connections on the backend side.
type Listener struct {
	ln   net.Listener
	opts Options
}

func Listen(addr string, opts Options) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %q: %w", addr, err)
	}
	return &Listener{ln: ln, opts: opts}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Serve hands every accepted connection to accept until ctx is done.
func (l *Listener) Serve(ctx context.Context, accept func(Channel)) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		c, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		slog.Debug("bridge connection accepted", "remote", c.RemoteAddr().String())
		accept(NewConn(c, l.opts))
	}
}

func (l *Listener) Close() error {
	return l.ln.Close()
}

type DialOptions struct {
	Options
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsed bounds the whole retry loop; zero keeps the backoff default.
	MaxElapsed time.Duration
}

// Dial connects to addr, retrying with exponential backoff until it
// succeeds, ctx ends or MaxElapsed passes.
func Dial(ctx context.Context, addr string, opts DialOptions) (*Conn, error) {
	b := backoff.NewExponentialBackOff()
	if opts.InitialInterval > 0 {
		b.InitialInterval = opts.InitialInterval
	}
	if opts.MaxInterval > 0 {
		b.MaxInterval = opts.MaxInterval
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("bridge dial failed, retrying", "addr", addr, "wait", wait, "error", err)
		}),
	}
	if opts.MaxElapsed > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(opts.MaxElapsed))
	}

	var dialer net.Dialer
	c, err := backoff.Retry(ctx, func() (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp", addr)
	}, retryOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", addr, err)
	}
	return NewConn(c, opts.Options), nil
}
