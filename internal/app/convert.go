package app

import (
	"time"

	"github.com/g960059/ehrsim/internal/api"
	"github.com/g960059/ehrsim/internal/engine"
	"github.com/g960059/ehrsim/internal/model"
)

func SnapshotToAPI(s engine.Snapshot) api.SessionState {
	out := api.SessionState{
		SessionID:       s.SessionID,
		ScenarioID:      s.ScenarioID,
		UserID:          s.UserID,
		ScenarioName:    s.ScenarioName,
		Patient:         s.Patient,
		Status:          string(s.Status),
		TickCount:       s.TickCount,
		TickIntervalMs:  s.TickInterval.Milliseconds(),
		CurrentVitals:   s.CurrentVitals,
		Medications:     s.Medications,
		MedicationState: s.MedicationState,
		TargetStatus: api.TargetStatus{
			Configured:        s.Target.Configured,
			Met:               s.Target.Met,
			ConsecutiveTicks:  s.Target.Display(),
			HoldTicksRequired: s.Target.HoldTicksRequired,
			Description:       s.Target.Description,
			Metric:            string(s.Target.Metric),
			Value:             s.Target.Value,
		},
		StartedAt: formatTime(s.StartedAt),
	}
	if out.Medications == nil {
		out.Medications = []model.Medication{}
	}
	if s.Status == model.StatusEnded {
		reason := string(s.CompletionReason)
		out.CompletionReason = &reason
	}
	if s.EndedAt != nil {
		ended := formatTime(*s.EndedAt)
		out.EndedAt = &ended
	}
	return out
}

func UserToAPI(u model.User) api.UserResponse {
	return api.UserResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
	}
}

func NoteToAPI(n model.Note) api.NoteResponse {
	return api.NoteResponse{
		ID:             n.ID,
		SessionID:      n.SessionID,
		UserID:         n.UserID,
		Content:        n.Content,
		VitalsSnapshot: n.VitalsSnapshot,
		CreatedAt:      formatTime(n.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
