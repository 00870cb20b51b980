package api

import (
	"time"

	"github.com/g960059/ehrsim/internal/model"
)

const SchemaVersion = "v1"

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope carries the fields every response shares. Success is false only
// together with Error and ErrorCode.
type Envelope struct {
	SchemaVersion string    `json:"schema_version"`
	GeneratedAt   time.Time `json:"generated_at"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
}

func OK(now time.Time) Envelope {
	return Envelope{SchemaVersion: SchemaVersion, GeneratedAt: now, Success: true}
}

func Failed(now time.Time, apiErr APIError) Envelope {
	return Envelope{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   now,
		Success:       false,
		Error:         apiErr.Message,
		ErrorCode:     apiErr.Code,
	}
}

type ErrorResponse struct {
	Envelope
}

type RegisterUserRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
}

type UserResponse struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

type UserEnvelope struct {
	Envelope
	User UserResponse `json:"user"`
}

type ScenarioSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	PatientName string `json:"patient_name,omitempty"`
	Diagnosis   string `json:"diagnosis,omitempty"`
	Medications int    `json:"medications"`
	HasTarget   bool   `json:"has_target"`
}

type ScenariosEnvelope struct {
	Envelope
	Scenarios []ScenarioSummary `json:"scenarios"`
}

type CreateScenarioRequest struct {
	Name       string                   `json:"name"`
	Definition model.ScenarioDefinition `json:"definition"`
}

type ScenarioResponse struct {
	ID         int64                    `json:"id"`
	Name       string                   `json:"name"`
	Definition model.ScenarioDefinition `json:"definition"`
}

type ScenarioEnvelope struct {
	Envelope
	Scenario ScenarioResponse `json:"scenario"`
}

type DeleteScenarioEnvelope struct {
	Envelope
	ScenarioID int64 `json:"scenario_id"`
}

type StartSessionRequest struct {
	ScenarioID int64 `json:"scenario_id"`
	UserID     int64 `json:"user_id"`
}

type AdjustMedicationRequest struct {
	MedicationID string   `json:"medication_id"`
	NewDose      *float64 `json:"new_dose"`
}

type EndSessionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// TargetStatus reports progress toward the scenario goal. ConsecutiveTicks
// is capped at HoldTicksRequired.
type TargetStatus struct {
	Configured        bool     `json:"configured"`
	Met               bool     `json:"met"`
	ConsecutiveTicks  int      `json:"consecutive_ticks"`
	HoldTicksRequired int      `json:"hold_ticks_required"`
	Description       string   `json:"description,omitempty"`
	Metric            string   `json:"metric,omitempty"`
	Value             *float64 `json:"value,omitempty"`
}

type SessionState struct {
	SessionID        int64                           `json:"session_id"`
	ScenarioID       int64                           `json:"scenario_id"`
	UserID           int64                           `json:"user_id"`
	ScenarioName     string                          `json:"scenario_name"`
	Patient          model.Patient                   `json:"patient"`
	Status           string                          `json:"status"`
	TickCount        int64                           `json:"tick_count"`
	TickIntervalMs   int64                           `json:"tick_interval_ms"`
	CurrentVitals    model.Vitals                    `json:"current_vitals"`
	Medications      []model.Medication              `json:"medications"`
	MedicationState  map[string]model.MedicationDose `json:"medication_state"`
	TargetStatus     TargetStatus                    `json:"target_status"`
	CompletionReason *string                         `json:"completion_reason"`
	StartedAt        string                          `json:"started_at"`
	EndedAt          *string                         `json:"ended_at,omitempty"`
}

type SessionEnvelope struct {
	Envelope
	Session SessionState `json:"session"`
}

type SessionsEnvelope struct {
	Envelope
	Sessions []SessionState `json:"sessions"`
}

type AddNoteRequest struct {
	UserID         int64         `json:"user_id"`
	Content        string        `json:"content"`
	VitalsSnapshot *model.Vitals `json:"vitals_snapshot,omitempty"`
	// AttachVitals copies the live session vitals when no snapshot is given.
	AttachVitals bool `json:"attach_vitals,omitempty"`
}

type NoteResponse struct {
	ID             int64         `json:"id"`
	SessionID      int64         `json:"session_id"`
	UserID         int64         `json:"user_id"`
	Content        string        `json:"content"`
	VitalsSnapshot *model.Vitals `json:"vitals_snapshot,omitempty"`
	CreatedAt      string        `json:"created_at"`
}

type NoteEnvelope struct {
	Envelope
	Note NoteResponse `json:"note"`
}

type NotesEnvelope struct {
	Envelope
	Notes []NoteResponse `json:"notes"`
}

type DeleteNoteEnvelope struct {
	Envelope
	NoteID int64 `json:"note_id"`
}
