// Package schedule runs cancellable background tasks keyed by room.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

type Kind string

const (
	KindCountdown Kind = "countdown"
	KindFinalize  Kind = "finalize"
)

const taskTimeout = 10 * time.Second

type task struct {
	id     uint64
	cancel context.CancelFunc
}

// Scheduler holds at most one task per room and kind. Scheduling a task replaces the previous one of the same kind.
type Scheduler struct {
	mu      sync.Mutex
	seq     uint64
	tasks   map[string]map[Kind]task
	stopped bool
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{
		tasks: make(map[string]map[Kind]task),
	}
}

// After runs fn once after d unless cancelled first.
func (s *Scheduler) After(room string, kind Kind, d time.Duration, fn func(ctx context.Context)) {
	ctx, done, ok := s.register(room, kind)
	if !ok {
		return
	}

	go func() {
		defer done()

		t := time.NewTimer(d)
		defer t.Stop()

		select {
		case <-t.C:
			s.run(ctx, room, kind, fn)
		case <-ctx.Done():
		}
	}()
}

// Every runs fn on every tick until fn returns false or the task is cancelled.
func (s *Scheduler) Every(room string, kind Kind, interval time.Duration, fn func(ctx context.Context) bool) {
	ctx, done, ok := s.register(room, kind)
	if !ok {
		return
	}

	go func() {
		defer done()

		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				next := true
				s.run(ctx, room, kind, func(ctx context.Context) { next = fn(ctx) })
				if !next {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Cancel stops the room's tasks of the given kinds, or all of them when no kind is given.
func (s *Scheduler) Cancel(room string, kinds ...Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.tasks[room]
	if len(kinds) == 0 {
		for k := range ts {
			kinds = append(kinds, k)
		}
	}

	for _, k := range kinds {
		if t, ok := ts[k]; ok {
			t.cancel()
			delete(ts, k)
		}
	}

	if len(ts) == 0 {
		delete(s.tasks, room)
	}
}

// Active reports whether the room has a pending task of the given kind.
func (s *Scheduler) Active(room string, kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tasks[room][kind]
	return ok
}

// Stop cancels every task and waits for running ones to return. Tasks scheduled afterwards are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for _, ts := range s.tasks {
		for _, t := range ts {
			t.cancel()
		}
	}
	s.tasks = make(map[string]map[Kind]task)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) register(room string, kind Kind) (context.Context, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		slog.Warn("schedule: scheduler stopped, task dropped", "room", room, "kind", kind)
		return nil, nil, false
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.seq++
	id := s.seq

	if s.tasks[room] == nil {
		s.tasks[room] = make(map[Kind]task)
	}
	if prev, ok := s.tasks[room][kind]; ok {
		prev.cancel()
	}
	s.tasks[room][kind] = task{id: id, cancel: cancel}
	s.wg.Add(1)

	return ctx, func() {
		cancel()
		s.release(room, kind, id)
		s.wg.Done()
	}, true
}

// release forgets the task unless it has already been replaced.
func (s *Scheduler) release(room string, kind Kind, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[room][kind]; ok && t.id == id {
		delete(s.tasks[room], kind)
		if len(s.tasks[room]) == 0 {
			delete(s.tasks, room)
		}
	}
}

// run calls fn with a context detached from the task's cancellation: a task that cancels its own room
// still finishes its writes.
func (s *Scheduler) run(ctx context.Context, room string, kind Kind, fn func(ctx context.Context)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), taskTimeout)
	defer func() {
		cancel()
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "schedule: task panic",
				"room", room,
				"kind", kind,
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}
	}()

	fn(ctx)
}
