package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"enginelink/internal/shared/observability"
)

var ErrSchedulerStopped = errors.New("scheduler stopped")

type task struct {
	run  func()
	fail func(error)
}

// Scheduler serializes all work of one session onto a single goroutine.
// Work submitted before Start is queued and runs in submission order once
// the goroutine starts. Work submitted from a running task is queued
// behind it rather than run inline.
type Scheduler struct {
	name string

	mu      sync.Mutex
	queue   []task
	started bool
	stopped bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func NewScheduler(name string) *Scheduler {
	return &Scheduler{
		name: name,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start launches the scheduler goroutine. Calling it again, or after Stop,
// does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	go s.loop()
	s.signal()
}

// Stop ends the scheduler and discards queued work. It returns the number
// of discarded tasks and does not wait for a running task to finish; use
// Done for that.
func (s *Scheduler) Stop() int {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0
	}
	s.stopped = true
	pending := s.queue
	s.queue = nil
	started := s.started
	s.mu.Unlock()

	close(s.quit)
	if !started {
		close(s.done)
	}
	for _, t := range pending {
		if t.fail != nil {
			t.fail(ErrSchedulerStopped)
		}
	}
	if n := len(pending); n > 0 {
		observability.SchedulerDiscarded.Add(float64(n))
		slog.Debug("scheduler discarded queued work", "scheduler", s.name, "count", n)
	}
	return len(pending)
}

// Done is closed once the scheduler goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// InvokeOrQueue schedules fn. It reports false if the scheduler is stopped
// and fn was dropped.
func (s *Scheduler) InvokeOrQueue(fn func()) bool {
	return s.enqueue(task{run: fn})
}

// Do runs fn on the scheduler goroutine and waits for its result. It must
// not be called from a scheduled task.
func (s *Scheduler) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	ok := s.enqueue(task{
		run:  func() { result <- fn() },
		fail: func(err error) { result <- err },
	})
	if !ok {
		return ErrSchedulerStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Scheduler) enqueue(t task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.queue = append(s.queue, t)
	observability.SchedulerQueued.Inc()
	if s.started {
		s.signal()
	}
	return true
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.wake:
		case <-s.quit:
			return
		}
		for {
			t, ok := s.next()
			if !ok {
				break
			}
			s.execute(t)
		}
	}
}

func (s *Scheduler) next() (task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || len(s.queue) == 0 {
		return task{}, false
	}
	t := s.queue[0]
	s.queue[0] = task{}
	s.queue = s.queue[1:]
	return t, true
}

func (s *Scheduler) execute(t task) {
	defer func() {
		if r := recover(); r != nil {
			observability.SchedulerPanics.Inc()
			slog.Error("scheduled task panicked", "scheduler", s.name, "panic", fmt.Sprint(r))
			if t.fail != nil {
				t.fail(fmt.Errorf("scheduled task panicked: %v", r))
			}
		}
	}()
	t.run()
	observability.SchedulerExecuted.Inc()
}
