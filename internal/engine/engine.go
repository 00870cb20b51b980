package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/g960059/ehrsim/internal/model"
	"github.com/g960059/ehrsim/internal/scheduler"
	"github.com/g960059/ehrsim/internal/titration"
)

// seedMix spreads consecutive session ids across the seed space.
const seedMix = 0x9E3779B97F4A7C15

// Engine runs simulation sessions. Operations on one session are serialized
// by that session's lock; different sessions never block each other.
type Engine struct {
	cfg   Config
	store Store
	sched scheduler.Scheduler
	reg   *Registry
	log   *zap.Logger
	seed  uint64
}

func New(store Store, sched scheduler.Scheduler, reg *Registry, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	if reg == nil {
		reg = NewRegistry()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Engine{
		cfg:   cfg,
		store: store,
		sched: sched,
		reg:   reg,
		log:   cfg.Logger.Named("engine"),
		seed:  seed,
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// StartSession validates the scenario and user, persists the start and arms
// the session's timer.
func (e *Engine) StartSession(ctx context.Context, scenarioID, userID int64) (Snapshot, error) {
	sc, err := e.store.GetScenarioByID(ctx, scenarioID)
	if errors.Is(err, model.ErrNotFound) {
		return Snapshot{}, newError(KindScenarioNotFound, nil, "scenario %d not found", scenarioID)
	}
	if err != nil {
		return Snapshot{}, newError(KindInternal, err, "load scenario %d", scenarioID)
	}
	ok, err := e.store.UserExists(ctx, userID)
	if err != nil {
		return Snapshot{}, newError(KindInternal, err, "look up user %d", userID)
	}
	if !ok {
		return Snapshot{}, newError(KindUserNotFound, nil, "user %d not found", userID)
	}

	now := e.cfg.Now()
	id, err := e.store.RecordSessionStart(ctx, scenarioID, userID, now)
	if err != nil {
		return Snapshot{}, newError(KindInternal, err, "record session start")
	}

	adv := e.cfg.NewAdvancer(sc.Definition, e.seed+uint64(id)*seedMix, e.cfg.VitalsNoise)
	s := newSession(id, sc, userID, e.cfg.TickInterval, adv, now)

	// Hold the session lock until the timer is armed so no tick can observe
	// a half-registered session.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := e.reg.insert(s); err != nil {
		e.abandonStart(ctx, id, now)
		return Snapshot{}, newError(KindInternal, err, "register session %d", id)
	}
	if err := e.sched.Register(id, s.interval, e.Tick); err != nil {
		e.reg.remove(id)
		e.abandonStart(ctx, id, now)
		return Snapshot{}, newError(KindInternal, err, "schedule session %d", id)
	}
	e.log.Info("session started",
		zap.Int64("session_id", id),
		zap.Int64("scenario_id", scenarioID),
		zap.Int64("user_id", userID),
	)
	return s.snapshotLocked(), nil
}

func (e *Engine) GetSessionState(_ context.Context, sessionID int64) (Snapshot, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), nil
}

// AdjustMedication sets a new dose. The next tick uses it; current vitals
// are not recomputed.
func (e *Engine) AdjustMedication(_ context.Context, sessionID int64, medicationID string, dose float64) (Snapshot, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == model.StatusEnded {
		return Snapshot{}, alreadyEnded(sessionID)
	}
	if _, err := s.doses.SetDose(medicationID, dose); err != nil {
		switch {
		case errors.Is(err, titration.ErrUnknownMedication):
			return Snapshot{}, newError(KindUnknownMedication, err, "medication %q is not part of session %d", medicationID, sessionID)
		case errors.Is(err, titration.ErrInvalidDose):
			return Snapshot{}, newError(KindInvalidDose, err, "invalid dose for %q", medicationID)
		case errors.Is(err, titration.ErrDoseOutOfRange):
			return Snapshot{}, &Error{Kind: KindDoseOutOfRange, Message: err.Error()}
		default:
			return Snapshot{}, newError(KindInternal, err, "adjust %q", medicationID)
		}
	}
	e.log.Debug("medication adjusted",
		zap.Int64("session_id", sessionID),
		zap.String("medication_id", medicationID),
		zap.Float64("dose", dose),
	)
	return s.snapshotLocked(), nil
}

func (e *Engine) PauseSession(_ context.Context, sessionID int64) (Snapshot, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case model.StatusEnded:
		return Snapshot{}, alreadyEnded(sessionID)
	case model.StatusRunning:
	default:
		return Snapshot{}, newError(KindInvalidTransition, nil, "session %d is %s, not running", sessionID, s.status)
	}
	if err := e.sched.Suspend(sessionID); err != nil && !errors.Is(err, scheduler.ErrNotRegistered) {
		return Snapshot{}, newError(KindInternal, err, "suspend session %d", sessionID)
	}
	s.status = model.StatusPaused
	return s.snapshotLocked(), nil
}

// ResumeSession continues from the same tick count; time spent paused is
// not replayed.
func (e *Engine) ResumeSession(_ context.Context, sessionID int64) (Snapshot, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case model.StatusEnded:
		return Snapshot{}, alreadyEnded(sessionID)
	case model.StatusPaused:
	default:
		return Snapshot{}, newError(KindInvalidTransition, nil, "session %d is %s, not paused", sessionID, s.status)
	}
	if err := e.sched.Resume(sessionID); err != nil {
		return Snapshot{}, newError(KindInternal, err, "resume session %d", sessionID)
	}
	s.status = model.StatusRunning
	return s.snapshotLocked(), nil
}

// EndSession terminates a running or paused session. An empty reason means
// user_end. Ending an ended session fails with SessionAlreadyEnded.
func (e *Engine) EndSession(ctx context.Context, sessionID int64, reason string) (Snapshot, error) {
	why, ok := model.ParseCompletionReason(reason)
	if !ok {
		return Snapshot{}, newError(KindInvalidReason, nil, "unknown completion reason %q", reason)
	}
	s, err := e.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	if s.status == model.StatusEnded {
		s.mu.Unlock()
		return Snapshot{}, alreadyEnded(sessionID)
	}
	e.finishLocked(s, why)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	e.persistEnd(ctx, snap)
	return snap, nil
}

// Tick advances one running session by one step. Ticks that reach a paused
// or ended session are no-ops. A failing step leaves the session unchanged.
func (e *Engine) Tick(ctx context.Context, sessionID int64) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.status != model.StatusRunning {
		s.mu.Unlock()
		return nil
	}
	next, st, err := s.step()
	if err != nil {
		s.mu.Unlock()
		return newError(KindInternal, err, "tick session %d", sessionID)
	}
	s.vitals = next
	s.tickCount++
	s.target = st

	var ended bool
	switch {
	case st.Reached():
		e.finishLocked(s, model.ReasonTargetMet)
		ended = true
	case e.cfg.MaxTicks > 0 && s.tickCount >= e.cfg.MaxTicks:
		e.finishLocked(s, model.ReasonTimeout)
		ended = true
	}
	var snap Snapshot
	if ended {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if ended {
		e.persistEnd(ctx, snap)
	}
	return nil
}

// ListSessions returns snapshots of every session still held in memory.
func (e *Engine) ListSessions(_ context.Context) []Snapshot {
	all := e.reg.all()
	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		out = append(out, s.snapshotLocked())
		s.mu.Unlock()
	}
	return out
}

// EvictExpired drops ended sessions whose grace period elapsed before now
// and returns their ids.
func (e *Engine) EvictExpired(now time.Time) []int64 {
	var evicted []int64
	for _, s := range e.reg.all() {
		s.mu.Lock()
		expired := s.status == model.StatusEnded && s.endedAt != nil && !now.Before(s.endedAt.Add(e.cfg.EvictAfter))
		s.mu.Unlock()
		if expired {
			e.reg.remove(s.id)
			evicted = append(evicted, s.id)
		}
	}
	if len(evicted) > 0 {
		e.log.Debug("evicted ended sessions", zap.Int64s("session_ids", evicted))
	}
	return evicted
}

// Shutdown stops every timer. In-memory sessions are not persisted.
func (e *Engine) Shutdown() {
	e.sched.Close()
}

// finishLocked moves s to ended and cancels its timer. Callers hold s.mu.
// Cancel never waits for an in-flight tick, so this is safe from Tick.
func (e *Engine) finishLocked(s *session, reason model.CompletionReason) {
	s.endLocked(reason, e.cfg.Now())
	if err := e.sched.Cancel(s.id); err != nil && !errors.Is(err, scheduler.ErrNotRegistered) {
		e.log.Warn("cancel session timer", zap.Int64("session_id", s.id), zap.Error(err))
	}
}

func (e *Engine) persistEnd(ctx context.Context, snap Snapshot) {
	e.log.Info("session ended",
		zap.Int64("session_id", snap.SessionID),
		zap.String("reason", string(snap.CompletionReason)),
		zap.Int64("ticks", snap.TickCount),
	)
	if snap.EndedAt == nil {
		return
	}
	if err := e.store.RecordSessionEnd(context.WithoutCancel(ctx), snap.SessionID, *snap.EndedAt); err != nil {
		e.log.Error("record session end", zap.Int64("session_id", snap.SessionID), zap.Error(err))
	}
}

// abandonStart closes the store row of a session that never went live so
// it cannot collect notes.
func (e *Engine) abandonStart(ctx context.Context, id int64, at time.Time) {
	if err := e.store.RecordSessionEnd(context.WithoutCancel(ctx), id, at); err != nil {
		e.log.Error("close abandoned session", zap.Int64("session_id", id), zap.Error(err))
	}
}

func (e *Engine) lookup(sessionID int64) (*session, error) {
	s, ok := e.reg.get(sessionID)
	if !ok {
		return nil, newError(KindSessionNotFound, nil, "session %d not found", sessionID)
	}
	return s, nil
}

func alreadyEnded(sessionID int64) error {
	return newError(KindSessionAlreadyEnded, nil, "session %d has already ended", sessionID)
}
