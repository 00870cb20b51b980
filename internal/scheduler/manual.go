package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Manual is a Scheduler without timers. Ticks happen only when the caller
// fires them, which lets tests step sessions synchronously.
type Manual struct {
	mu        sync.Mutex
	fns       map[int64]TickFunc
	intervals map[int64]time.Duration
	suspended map[int64]bool
	closed    bool
}

var _ Scheduler = (*Manual)(nil)

func NewManual() *Manual {
	return &Manual{
		fns:       map[int64]TickFunc{},
		intervals: map[int64]time.Duration{},
		suspended: map[int64]bool{},
	}
}

func (m *Manual) Register(sessionID int64, interval time.Duration, fn TickFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, ok := m.fns[sessionID]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, sessionID)
	}
	m.fns[sessionID] = fn
	m.intervals[sessionID] = interval
	return nil
}

func (m *Manual) Suspend(sessionID int64) error {
	return m.setSuspended(sessionID, true)
}

func (m *Manual) Resume(sessionID int64) error {
	return m.setSuspended(sessionID, false)
}

func (m *Manual) setSuspended(sessionID int64, v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fns[sessionID]; !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, sessionID)
	}
	m.suspended[sessionID] = v
	return nil
}

func (m *Manual) Cancel(sessionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.fns[sessionID]; !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, sessionID)
	}
	delete(m.fns, sessionID)
	delete(m.intervals, sessionID)
	delete(m.suspended, sessionID)
	return nil
}

func (m *Manual) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.fns = map[int64]TickFunc{}
	m.intervals = map[int64]time.Duration{}
	m.suspended = map[int64]bool{}
}

// Fire invokes the tick for sessionID even when it is suspended, the same
// way a timer that raced a pause would.
func (m *Manual) Fire(ctx context.Context, sessionID int64) error {
	m.mu.Lock()
	fn, ok := m.fns[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, sessionID)
	}
	return runTick(ctx, sessionID, fn)
}

// FireAll ticks every registered, unsuspended session once in id order and
// returns the first error.
func (m *Manual) FireAll(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.fns))
	for id := range m.fns {
		if !m.suspended[id] {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()
	slices.Sort(ids)

	var first error
	for _, id := range ids {
		if err := m.Fire(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *Manual) Registered(sessionID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.fns[sessionID]
	return ok
}

func (m *Manual) Suspended(sessionID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended[sessionID]
}

func (m *Manual) Interval(sessionID int64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intervals[sessionID]
}
