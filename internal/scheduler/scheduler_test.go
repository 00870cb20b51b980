package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestTickerFiresRegisteredSession(t *testing.T) {
	s := NewTicker(nil)
	defer s.Close()

	var n atomic.Int64
	if err := s.Register(1, 10*time.Millisecond, func(context.Context, int64) error {
		n.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	waitFor(t, time.Second, func() bool { return n.Load() >= 3 })

	if err := s.Register(1, 10*time.Millisecond, func(context.Context, int64) error { return nil }); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestTickerSuspendResumeCancel(t *testing.T) {
	s := NewTicker(nil)
	defer s.Close()

	var n atomic.Int64
	_ = s.Register(7, 5*time.Millisecond, func(context.Context, int64) error {
		n.Add(1)
		return nil
	})
	waitFor(t, time.Second, func() bool { return n.Load() >= 1 })

	if err := s.Suspend(7); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	frozen := n.Load()
	time.Sleep(40 * time.Millisecond)
	if got := n.Load(); got != frozen {
		t.Fatalf("ticks advanced while suspended: %d -> %d", frozen, got)
	}

	if err := s.Resume(7); err != nil {
		t.Fatalf("resume: %v", err)
	}
	waitFor(t, time.Second, func() bool { return n.Load() > frozen })

	if err := s.Cancel(7); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("entry not removed")
	}
	if err := s.Cancel(7); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if err := s.Resume(7); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered on resume, got %v", err)
	}
}

func TestTickerSkipsOverlappingTicks(t *testing.T) {
	s := NewTicker(nil)
	defer s.Close()

	var active, maxActive, calls atomic.Int64
	release := make(chan struct{})
	_ = s.Register(3, 2*time.Millisecond, func(context.Context, int64) error {
		cur := active.Add(1)
		defer active.Add(-1)
		for {
			old := maxActive.Load()
			if cur <= old || maxActive.CompareAndSwap(old, cur) {
				break
			}
		}
		if calls.Add(1) == 1 {
			<-release
		}
		return nil
	})
	time.Sleep(30 * time.Millisecond)
	close(release)
	waitFor(t, time.Second, func() bool { return calls.Load() >= 2 })
	if maxActive.Load() != 1 {
		t.Fatalf("overlapping ticks observed: %d", maxActive.Load())
	}
}

func TestTickerRecoversPanicsPerSession(t *testing.T) {
	s := NewTicker(nil)
	defer s.Close()

	var healthy atomic.Int64
	_ = s.Register(1, 5*time.Millisecond, func(context.Context, int64) error {
		panic("boom")
	})
	_ = s.Register(2, 5*time.Millisecond, func(context.Context, int64) error {
		healthy.Add(1)
		return nil
	})
	waitFor(t, time.Second, func() bool { return healthy.Load() >= 3 })
}

func TestTickerCancelFromInsideTick(t *testing.T) {
	s := NewTicker(nil)
	defer s.Close()

	done := make(chan struct{})
	var once sync.Once
	_ = s.Register(9, 5*time.Millisecond, func(_ context.Context, id int64) error {
		err := s.Cancel(id)
		once.Do(func() { close(done) })
		return err
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("tick never ran")
	}
	waitFor(t, time.Second, func() bool { return s.Len() == 0 })
}

func TestTickerCloseStopsEverything(t *testing.T) {
	s := NewTicker(nil)
	var n atomic.Int64
	for id := int64(1); id <= 5; id++ {
		_ = s.Register(id, 5*time.Millisecond, func(context.Context, int64) error {
			n.Add(1)
			return nil
		})
	}
	waitFor(t, time.Second, func() bool { return n.Load() >= 5 })
	s.Close()
	after := n.Load()
	time.Sleep(30 * time.Millisecond)
	if n.Load() != after {
		t.Fatalf("ticks continued after close")
	}
	if err := s.Register(10, time.Millisecond, func(context.Context, int64) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	s.Close()
}

func TestTickerRejectsBadRegistration(t *testing.T) {
	s := NewTicker(nil)
	defer s.Close()
	if err := s.Register(1, 0, func(context.Context, int64) error { return nil }); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if err := s.Register(1, time.Second, nil); err == nil {
		t.Fatalf("expected error for nil func")
	}
}

func TestManualFiresEvenWhenSuspended(t *testing.T) {
	m := NewManual()
	var calls []int64
	fn := func(_ context.Context, id int64) error {
		calls = append(calls, id)
		return nil
	}
	_ = m.Register(2, time.Second, fn)
	_ = m.Register(1, time.Second, fn)
	_ = m.Suspend(2)

	if err := m.FireAll(context.Background()); err != nil {
		t.Fatalf("fire all: %v", err)
	}
	if len(calls) != 1 || calls[0] != 1 {
		t.Fatalf("FireAll should skip suspended sessions, got %v", calls)
	}
	if err := m.Fire(context.Background(), 2); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if len(calls) != 2 || calls[1] != 2 {
		t.Fatalf("Fire should invoke suspended session, got %v", calls)
	}
	if !m.Suspended(2) || m.Interval(1) != time.Second {
		t.Fatalf("unexpected manual state")
	}
	_ = m.Cancel(2)
	if m.Registered(2) {
		t.Fatalf("cancelled session still registered")
	}
	if err := m.Fire(context.Background(), 2); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestManualConvertsPanics(t *testing.T) {
	m := NewManual()
	_ = m.Register(1, time.Second, func(context.Context, int64) error { panic("bad tick") })
	if err := m.Fire(context.Background(), 1); err == nil {
		t.Fatalf("expected panic converted to error")
	}
}
