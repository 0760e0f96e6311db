// Package access implements the program-model scopes navigation runs under:
// a shared read scope (exclusive against index reloads) and an exclusive
// compilation-context scope. Acquisition honours context cancellation, so a
// session that loses its transport abandons pending waits.
package access

import (
	"context"
	"sync"

	"enginelink/internal/core/ports"

	"golang.org/x/sync/semaphore"
)

// maxReaders bounds concurrent read scopes; a writer takes all of them.
const maxReaders = 1 << 20

var _ ports.ProgramAccess = (*Model)(nil)

type Model struct {
	rw  *semaphore.Weighted
	ctx *semaphore.Weighted
}

func NewModel() *Model {
	return &Model{
		rw:  semaphore.NewWeighted(maxReaders),
		ctx: semaphore.NewWeighted(1),
	}
}

// AcquireRead takes a shared read scope. Waiting readers queue behind a
// waiting writer.
func (m *Model) AcquireRead(ctx context.Context) (ports.Guard, error) {
	if err := m.rw.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return newGuard(func() { m.rw.Release(1) }), nil
}

// AcquireWrite excludes all readers. Used while the symbol index is swapped.
func (m *Model) AcquireWrite(ctx context.Context) (ports.Guard, error) {
	if err := m.rw.Acquire(ctx, maxReaders); err != nil {
		return nil, err
	}
	return newGuard(func() { m.rw.Release(maxReaders) }), nil
}

// AcquireContext takes the exclusive compilation-context scope.
func (m *Model) AcquireContext(ctx context.Context) (ports.Guard, error) {
	if err := m.ctx.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return newGuard(func() { m.ctx.Release(1) }), nil
}

type guard struct {
	once    sync.Once
	release func()
}

func newGuard(release func()) *guard {
	return &guard{release: release}
}

func (g *guard) Release() {
	g.once.Do(g.release)
}
