package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrAlreadyRegistered = errors.New("session already registered")
	ErrNotRegistered     = errors.New("session not registered")
	ErrClosed            = errors.New("scheduler closed")
)

// TickFunc advances one session by one step.
type TickFunc func(ctx context.Context, sessionID int64) error

// Scheduler drives periodic ticks for live sessions. Implementations hold at
// most one timer per session id.
type Scheduler interface {
	Register(sessionID int64, interval time.Duration, fn TickFunc) error
	Suspend(sessionID int64) error
	Resume(sessionID int64) error
	Cancel(sessionID int64) error
	Close()
}

type entry struct {
	id        int64
	interval  time.Duration
	fn        TickFunc
	suspended bool
	stop      context.CancelFunc
	inFlight  atomic.Bool
}

// Ticker runs one goroutine per active session on a time.Ticker. Firings that
// arrive while the previous tick for the same session is still running are
// dropped, not queued.
type Ticker struct {
	log *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[int64]*entry
	wg      sync.WaitGroup
	closed  bool
}

var _ Scheduler = (*Ticker)(nil)

func NewTicker(log *zap.Logger) *Ticker {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Ticker{
		log:     log.Named("scheduler"),
		ctx:     ctx,
		cancel:  cancel,
		entries: map[int64]*entry{},
	}
}

func (t *Ticker) Register(sessionID int64, interval time.Duration, fn TickFunc) error {
	if interval <= 0 {
		return fmt.Errorf("invalid tick interval %s", interval)
	}
	if fn == nil {
		return errors.New("tick func is required")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if _, ok := t.entries[sessionID]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, sessionID)
	}
	e := &entry{id: sessionID, interval: interval, fn: fn}
	t.entries[sessionID] = e
	t.startLocked(e)
	return nil
}

func (t *Ticker) Suspend(sessionID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sessionID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, sessionID)
	}
	if e.suspended {
		return nil
	}
	e.suspended = true
	e.stop()
	return nil
}

// Resume re-arms a suspended timer. The first tick fires one full interval
// later; missed wall-clock time is not caught up.
func (t *Ticker) Resume(sessionID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	e, ok := t.entries[sessionID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, sessionID)
	}
	if !e.suspended {
		return nil
	}
	e.suspended = false
	t.startLocked(e)
	return nil
}

// Cancel stops and forgets the timer. It does not wait for an in-flight
// tick, so it is safe to call from inside a TickFunc.
func (t *Ticker) Cancel(sessionID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[sessionID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotRegistered, sessionID)
	}
	delete(t.entries, sessionID)
	if !e.suspended {
		e.stop()
	}
	return nil
}

// Close cancels every timer and waits for running loops to exit.
func (t *Ticker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.entries = map[int64]*entry{}
	t.cancel()
	t.mu.Unlock()
	t.wg.Wait()
}

// Len returns the number of registered sessions.
func (t *Ticker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Ticker) startLocked(e *entry) {
	ctx, stop := context.WithCancel(t.ctx)
	e.stop = stop
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.fire(ctx, e)
			}
		}
	}()
}

func (t *Ticker) fire(ctx context.Context, e *entry) {
	if !e.inFlight.CompareAndSwap(false, true) {
		t.log.Debug("tick skipped, previous tick still running", zap.Int64("session_id", e.id))
		return
	}
	defer e.inFlight.Store(false)
	if err := runTick(ctx, e.id, e.fn); err != nil && !errors.Is(err, context.Canceled) {
		t.log.Warn("tick failed", zap.Int64("session_id", e.id), zap.Error(err))
	}
}

// runTick converts a panic in fn into an error so one broken session cannot
// take down the process or other sessions.
func runTick(ctx context.Context, id int64, fn TickFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic for session %d: %v", id, r)
		}
	}()
	return fn(ctx, id)
}
