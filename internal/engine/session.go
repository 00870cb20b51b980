package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/g960059/ehrsim/internal/model"
	"github.com/g960059/ehrsim/internal/target"
	"github.com/g960059/ehrsim/internal/titration"
)

// Snapshot is a consistent, caller-owned copy of one session.
type Snapshot struct {
	SessionID        int64
	ScenarioID       int64
	UserID           int64
	ScenarioName     string
	Patient          model.Patient
	Status           model.SessionStatus
	TickCount        int64
	TickInterval     time.Duration
	CurrentVitals    model.Vitals
	Medications      []model.Medication
	MedicationState  map[string]model.MedicationDose
	Target           target.Status
	CompletionReason model.CompletionReason
	StartedAt        time.Time
	EndedAt          *time.Time
}

type session struct {
	mu sync.Mutex

	id           int64
	scenarioID   int64
	userID       int64
	scenarioName string
	patient      model.Patient
	medications  []model.Medication
	targetSpec   *model.TargetSpec
	interval     time.Duration
	advancer     Advancer
	startedAt    time.Time

	status    model.SessionStatus
	tickCount int64
	vitals    model.Vitals
	doses     *titration.Tracker
	target    target.Status
	reason    model.CompletionReason
	endedAt   *time.Time
}

func newSession(id int64, sc model.Scenario, userID int64, interval time.Duration, adv Advancer, now time.Time) *session {
	def := sc.Definition
	meds := make([]model.Medication, len(def.Medications))
	for i, m := range def.Medications {
		meds[i] = m.Clone()
	}
	var spec *model.TargetSpec
	if def.Target != nil {
		cp := *def.Target
		spec = &cp
	}
	return &session{
		id:           id,
		scenarioID:   sc.ID,
		userID:       userID,
		scenarioName: sc.Name,
		patient:      clonePatient(def.Patient),
		medications:  meds,
		targetSpec:   spec,
		interval:     interval,
		advancer:     adv,
		startedAt:    now,
		status:       model.StatusRunning,
		vitals:       def.Vitals.Current.Clone(),
		doses:        titration.New(meds),
		target:       target.Initial(spec),
	}
}

// snapshotLocked copies every mutable field. Callers hold s.mu.
func (s *session) snapshotLocked() Snapshot {
	meds := make([]model.Medication, len(s.medications))
	for i, m := range s.medications {
		meds[i] = m.Clone()
	}
	st := s.target
	if st.Value != nil {
		st.Value = model.Float(*st.Value)
	}
	var ended *time.Time
	if s.endedAt != nil {
		t := *s.endedAt
		ended = &t
	}
	return Snapshot{
		SessionID:        s.id,
		ScenarioID:       s.scenarioID,
		UserID:           s.userID,
		ScenarioName:     s.scenarioName,
		Patient:          clonePatient(s.patient),
		Status:           s.status,
		TickCount:        s.tickCount,
		TickInterval:     s.interval,
		CurrentVitals:    s.vitals.Clone(),
		Medications:      meds,
		MedicationState:  s.doses.Doses(),
		Target:           st,
		CompletionReason: s.reason,
		StartedAt:        s.startedAt,
		EndedAt:          ended,
	}
}

// step computes the next vitals and target status without touching s.
// A panic in the vitals model becomes an error and leaves s untouched.
func (s *session) step() (next model.Vitals, st target.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("vitals model panic: %v", r)
		}
	}()
	next = s.advancer.Advance(s.vitals, s.doses.Doses(), s.tickCount+1)
	st = target.Evaluate(next, s.targetSpec, s.target.ConsecutiveTicks)
	return next, st, nil
}

func (s *session) endLocked(reason model.CompletionReason, now time.Time) {
	s.status = model.StatusEnded
	s.reason = reason
	s.endedAt = &now
}

func clonePatient(p model.Patient) model.Patient {
	if p.Allergies != nil {
		p.Allergies = append([]string(nil), p.Allergies...)
	}
	return p
}
