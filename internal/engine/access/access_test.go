package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_ReadersShareAndWriterExcludes(t *testing.T) {
	m := NewModel()
	ctx := context.Background()

	r1, err := m.AcquireRead(ctx)
	require.NoError(t, err)
	r2, err := m.AcquireRead(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.AcquireWrite(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r1.Release()
	r2.Release()

	w, err := m.AcquireWrite(ctx)
	require.NoError(t, err)
	w.Release()
}

func TestModel_ContextScopeIsExclusive(t *testing.T) {
	m := NewModel()
	ctx := context.Background()

	held, err := m.AcquireContext(ctx)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = m.AcquireContext(short)
	assert.Error(t, err)

	held.Release()
	again, err := m.AcquireContext(ctx)
	require.NoError(t, err)
	again.Release()
}

func TestModel_CancelledWaitIsAbandoned(t *testing.T) {
	m := NewModel()
	w, err := m.AcquireWrite(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := m.AcquireRead(ctx)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("read acquisition did not observe cancellation")
	}

	w.Release()
	r, err := m.AcquireRead(context.Background())
	require.NoError(t, err, "abandoned waiter must not leak a read slot")
	r.Release()
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	m := NewModel()
	g, err := m.AcquireContext(context.Background())
	require.NoError(t, err)
	g.Release()
	g.Release()

	short, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	g2, err := m.AcquireContext(short)
	require.NoError(t, err)
	g2.Release()
}
