package mcp

import "github.com/g960059/ehrsim/internal/api"

type StartSessionInput struct {
	ScenarioID int64 `json:"scenario_id" jsonschema:"Scenario to simulate"`
	UserID     int64 `json:"user_id" jsonschema:"Trainee running the session"`
}

type SessionIDInput struct {
	SessionID int64 `json:"session_id" jsonschema:"Live session id"`
}

type AdjustMedicationInput struct {
	SessionID    int64    `json:"session_id" jsonschema:"Live session id"`
	MedicationID string   `json:"medication_id" jsonschema:"Medication id from the scenario"`
	NewDose      *float64 `json:"new_dose" jsonschema:"New dose within the medication's min and max"`
}

type EndSessionInput struct {
	SessionID int64  `json:"session_id" jsonschema:"Live session id"`
	Reason    string `json:"reason,omitempty" jsonschema:"user_end (default), target_met or timeout"`
}

type ListInput struct{}

type RegisterUserInput struct {
	FirstName string `json:"first_name" jsonschema:"Given name"`
	LastName  string `json:"last_name" jsonschema:"Family name"`
	Username  string `json:"username" jsonschema:"Unique login name"`
	Email     string `json:"email" jsonschema:"Unique email address"`
	Role      string `json:"role,omitempty" jsonschema:"student (default), instructor or admin"`
}

type ScenarioIDInput struct {
	ScenarioID int64 `json:"scenario_id" jsonschema:"Scenario id"`
}

type AddNoteInput struct {
	SessionID    int64  `json:"session_id" jsonschema:"Session the note belongs to"`
	UserID       int64  `json:"user_id" jsonschema:"Author of the note"`
	Content      string `json:"content" jsonschema:"Note text"`
	AttachVitals bool   `json:"attach_vitals,omitempty" jsonschema:"Store the current vitals with the note"`
}

type DeleteNoteInput struct {
	NoteID int64 `json:"note_id" jsonschema:"Note to delete"`
	UserID int64 `json:"user_id" jsonschema:"Author of the note"`
}

type SessionOutput struct {
	Session api.SessionState `json:"session" jsonschema:"Session snapshot"`
}

type SessionsOutput struct {
	Sessions []api.SessionState `json:"sessions" jsonschema:"Sessions held in memory"`
	Count    int                `json:"count"`
}

type UserOutput struct {
	User api.UserResponse `json:"user"`
}

type ScenariosOutput struct {
	Scenarios []api.ScenarioSummary `json:"scenarios"`
	Count     int                   `json:"count"`
}

type ScenarioOutput struct {
	Scenario api.ScenarioResponse `json:"scenario"`
}

type DeleteScenarioOutput struct {
	ScenarioID int64 `json:"scenario_id"`
	Deleted    bool  `json:"deleted"`
}

type NoteOutput struct {
	Note api.NoteResponse `json:"note"`
}

type NotesOutput struct {
	Notes []api.NoteResponse `json:"notes"`
	Count int                `json:"count"`
}

type DeleteNoteOutput struct {
	NoteID  int64 `json:"note_id"`
	Deleted bool  `json:"deleted"`
}
