package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by collaborator lookups when a row does not exist.
var ErrNotFound = errors.New("not found")

// SessionStatus is the lifecycle state of a simulation session.
type SessionStatus string

const (
	StatusRunning SessionStatus = "running"
	StatusPaused  SessionStatus = "paused"
	StatusEnded   SessionStatus = "ended"
)

// CompletionReason records why a session reached StatusEnded.
type CompletionReason string

const (
	ReasonUserEnd   CompletionReason = "user_end"
	ReasonTargetMet CompletionReason = "target_met"
	ReasonTimeout   CompletionReason = "timeout"
)

func ParseCompletionReason(raw string) (CompletionReason, bool) {
	switch CompletionReason(raw) {
	case "", ReasonUserEnd:
		return ReasonUserEnd, true
	case ReasonTargetMet:
		return ReasonTargetMet, true
	case ReasonTimeout:
		return ReasonTimeout, true
	default:
		return "", false
	}
}

type UserRole string

const (
	RoleStudent    UserRole = "student"
	RoleInstructor UserRole = "instructor"
	RoleAdmin      UserRole = "admin"
)

type Patient struct {
	Name           string   `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Age            int      `json:"age,omitempty" yaml:"age,omitempty" toml:"age,omitempty"`
	Gender         string   `json:"gender,omitempty" yaml:"gender,omitempty" toml:"gender,omitempty"`
	MRN            string   `json:"mrn,omitempty" yaml:"mrn,omitempty" toml:"mrn,omitempty"`
	Diagnosis      string   `json:"diagnosis,omitempty" yaml:"diagnosis,omitempty" toml:"diagnosis,omitempty"`
	ChiefComplaint string   `json:"chiefComplaint,omitempty" yaml:"chiefComplaint,omitempty" toml:"chiefComplaint,omitempty"`
	History        string   `json:"history,omitempty" yaml:"history,omitempty" toml:"history,omitempty"`
	Allergies      []string `json:"allergies,omitempty" yaml:"allergies,omitempty" toml:"allergies,omitempty"`
	Notes          string   `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
}

// Medication is a scenario-declared drug with its safe titration bounds.
// Effects maps a vital metric to the equilibrium shift reached when the dose
// moves across the whole [Min, Max] range.
type Medication struct {
	ID          string             `json:"id" yaml:"id" toml:"id"`
	Name        string             `json:"name" yaml:"name" toml:"name"`
	Dosage      string             `json:"dosage,omitempty" yaml:"dosage,omitempty" toml:"dosage,omitempty"`
	Route       string             `json:"route,omitempty" yaml:"route,omitempty" toml:"route,omitempty"`
	Frequency   string             `json:"frequency,omitempty" yaml:"frequency,omitempty" toml:"frequency,omitempty"`
	Min         float64            `json:"min" yaml:"min" toml:"min"`
	Max         float64            `json:"max" yaml:"max" toml:"max"`
	Step        float64            `json:"step,omitempty" yaml:"step,omitempty" toml:"step,omitempty"`
	Unit        string             `json:"unit,omitempty" yaml:"unit,omitempty" toml:"unit,omitempty"`
	InitialDose float64            `json:"initialDose" yaml:"initialDose" toml:"initialDose"`
	Effects     map[string]float64 `json:"effects,omitempty" yaml:"effects,omitempty" toml:"effects,omitempty"`
}

func (m Medication) Clone() Medication {
	out := m
	if m.Effects != nil {
		out.Effects = make(map[string]float64, len(m.Effects))
		for k, v := range m.Effects {
			out.Effects[k] = v
		}
	}
	return out
}

// MedicationDose is the live titration state of one medication in a session.
// Class is the built-in drug class its name falls under, if any.
type MedicationDose struct {
	Dose  float64 `json:"dose"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step"`
	Unit  string  `json:"unit,omitempty"`
	Class string  `json:"class,omitempty"`
}

type TargetRange struct {
	Min float64 `json:"min" yaml:"min" toml:"min"`
	Max float64 `json:"max" yaml:"max" toml:"max"`
}

// TargetSpec is the optional clinical goal of a scenario: keep Metric within
// Range for HoldTicksRequired consecutive ticks.
type TargetSpec struct {
	Description       string      `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Metric            string      `json:"metric" yaml:"metric" toml:"metric"`
	Range             TargetRange `json:"range" yaml:"range" toml:"range"`
	HoldTicksRequired int         `json:"holdTicksRequired" yaml:"holdTicksRequired" toml:"holdTicksRequired"`
}

type VitalsBlock struct {
	Current Vitals `json:"current" yaml:"current" toml:"current"`
}

// ScenarioDefinition is the decoded, immutable scenario template.
type ScenarioDefinition struct {
	Patient     Patient      `json:"patient" yaml:"patient" toml:"patient"`
	Vitals      VitalsBlock  `json:"vitals" yaml:"vitals" toml:"vitals"`
	Medications []Medication `json:"medications,omitempty" yaml:"medications,omitempty" toml:"medications,omitempty"`
	Target      *TargetSpec  `json:"target,omitempty" yaml:"target,omitempty" toml:"target,omitempty"`
}

type Scenario struct {
	ID         int64
	Name       string
	Definition ScenarioDefinition
}

type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Email     string
	Role      UserRole
}

// SessionRecord is the durable part of a session owned by the store.
type SessionRecord struct {
	ID         int64
	ScenarioID int64
	UserID     int64
	StartedAt  time.Time
	EndedAt    *time.Time
}

type Note struct {
	ID             int64
	SessionID      int64
	UserID         int64
	Content        string
	VitalsSnapshot *Vitals
	CreatedAt      time.Time
}

// Error codes defined by API contract.
const (
	ErrCodeInvalidRequest      = "E_INVALID_REQUEST"
	ErrCodeScenarioNotFound    = "E_SCENARIO_NOT_FOUND"
	ErrCodeScenarioInUse       = "E_SCENARIO_IN_USE"
	ErrCodeUserNotFound        = "E_USER_NOT_FOUND"
	ErrCodeSessionNotFound     = "E_SESSION_NOT_FOUND"
	ErrCodeSessionAlreadyEnded = "E_SESSION_ALREADY_ENDED"
	ErrCodeInvalidTransition   = "E_INVALID_TRANSITION"
	ErrCodeInvalidReason       = "E_INVALID_REASON"
	ErrCodeUnknownMedication   = "E_UNKNOWN_MEDICATION"
	ErrCodeInvalidDose         = "E_INVALID_DOSE"
	ErrCodeDoseOutOfRange      = "E_DOSE_OUT_OF_RANGE"
	ErrCodeNoteNotFound        = "E_NOTE_NOT_FOUND"
	ErrCodeForbidden           = "E_FORBIDDEN"
	ErrCodeDuplicate           = "E_DUPLICATE"
	ErrCodeInternal            = "E_INTERNAL"
)
