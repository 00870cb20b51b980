package mcp

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/g960059/ehrsim/internal/api"
	"github.com/g960059/ehrsim/internal/app"
)

func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_start_session",
		Description: "Start a simulation session for a scenario and user",
	}, s.handleStartSession)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_get_session_state",
		Description: "Read the current snapshot of a live session",
	}, s.handleGetSessionState)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_adjust_medication",
		Description: "Set a new dose for one of the session's medications; takes effect on the next tick",
	}, s.handleAdjustMedication)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_pause_session",
		Description: "Pause a running session",
	}, s.handlePauseSession)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_resume_session",
		Description: "Resume a paused session",
	}, s.handleResumeSession)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_end_session",
		Description: "End a session with an optional completion reason",
	}, s.handleEndSession)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_list_sessions",
		Description: "List sessions currently held in memory",
	}, s.handleListSessions)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_register_user",
		Description: "Register a trainee or instructor",
	}, s.handleRegisterUser)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_list_scenarios",
		Description: "List the scenario catalog",
	}, s.handleListScenarios)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_get_scenario",
		Description: "Read a scenario definition",
	}, s.handleGetScenario)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_delete_scenario",
		Description: "Delete a scenario that no recorded session uses",
	}, s.handleDeleteScenario)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_add_note",
		Description: "Add a clinical note to a session",
	}, s.handleAddNote)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_get_notes",
		Description: "List a session's notes oldest first",
	}, s.handleGetNotes)
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "ehrsim_delete_note",
		Description: "Delete a note written by the given user",
	}, s.handleDeleteNote)
}

// toolErr renders boundary failures as "CODE: message" so clients see the
// same code the HTTP envelope carries.
func toolErr(err error) error {
	appErr := app.AsError(err)
	return fmt.Errorf("%s: %s", appErr.Code, appErr.Message)
}

func (s *Server) audit(tool string, start time.Time, err error) {
	fields := []zap.Field{zap.String("tool", tool), zap.Duration("elapsed", time.Since(start))}
	if err != nil {
		s.log.Warn("tool failed", append(fields, zap.Error(err))...)
		return
	}
	s.log.Debug("tool called", fields...)
}

func (s *Server) handleStartSession(ctx context.Context, _ *sdk.CallToolRequest, args StartSessionInput) (_ *sdk.CallToolResult, _ SessionOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_start_session", start, retErr) }(time.Now())
	st, err := s.svc.StartSession(ctx, api.StartSessionRequest{ScenarioID: args.ScenarioID, UserID: args.UserID})
	if err != nil {
		return nil, SessionOutput{}, toolErr(err)
	}
	return nil, SessionOutput{Session: st}, nil
}

func (s *Server) handleGetSessionState(ctx context.Context, _ *sdk.CallToolRequest, args SessionIDInput) (_ *sdk.CallToolResult, _ SessionOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_get_session_state", start, retErr) }(time.Now())
	st, err := s.svc.GetSessionState(ctx, args.SessionID)
	if err != nil {
		return nil, SessionOutput{}, toolErr(err)
	}
	return nil, SessionOutput{Session: st}, nil
}

func (s *Server) handleAdjustMedication(ctx context.Context, _ *sdk.CallToolRequest, args AdjustMedicationInput) (_ *sdk.CallToolResult, _ SessionOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_adjust_medication", start, retErr) }(time.Now())
	st, err := s.svc.AdjustMedication(ctx, args.SessionID, api.AdjustMedicationRequest{
		MedicationID: args.MedicationID,
		NewDose:      args.NewDose,
	})
	if err != nil {
		return nil, SessionOutput{}, toolErr(err)
	}
	return nil, SessionOutput{Session: st}, nil
}

func (s *Server) handlePauseSession(ctx context.Context, _ *sdk.CallToolRequest, args SessionIDInput) (_ *sdk.CallToolResult, _ SessionOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_pause_session", start, retErr) }(time.Now())
	st, err := s.svc.PauseSession(ctx, args.SessionID)
	if err != nil {
		return nil, SessionOutput{}, toolErr(err)
	}
	return nil, SessionOutput{Session: st}, nil
}

func (s *Server) handleResumeSession(ctx context.Context, _ *sdk.CallToolRequest, args SessionIDInput) (_ *sdk.CallToolResult, _ SessionOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_resume_session", start, retErr) }(time.Now())
	st, err := s.svc.ResumeSession(ctx, args.SessionID)
	if err != nil {
		return nil, SessionOutput{}, toolErr(err)
	}
	return nil, SessionOutput{Session: st}, nil
}

func (s *Server) handleEndSession(ctx context.Context, _ *sdk.CallToolRequest, args EndSessionInput) (_ *sdk.CallToolResult, _ SessionOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_end_session", start, retErr) }(time.Now())
	st, err := s.svc.EndSession(ctx, args.SessionID, api.EndSessionRequest{Reason: args.Reason})
	if err != nil {
		return nil, SessionOutput{}, toolErr(err)
	}
	return nil, SessionOutput{Session: st}, nil
}

func (s *Server) handleListSessions(ctx context.Context, _ *sdk.CallToolRequest, _ ListInput) (*sdk.CallToolResult, SessionsOutput, error) {
	list := s.svc.ListSessions(ctx)
	return nil, SessionsOutput{Sessions: list, Count: len(list)}, nil
}

func (s *Server) handleRegisterUser(ctx context.Context, _ *sdk.CallToolRequest, args RegisterUserInput) (_ *sdk.CallToolResult, _ UserOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_register_user", start, retErr) }(time.Now())
	u, err := s.svc.RegisterUser(ctx, api.RegisterUserRequest{
		FirstName: args.FirstName,
		LastName:  args.LastName,
		Username:  args.Username,
		Email:     args.Email,
		Role:      args.Role,
	})
	if err != nil {
		return nil, UserOutput{}, toolErr(err)
	}
	return nil, UserOutput{User: u}, nil
}

func (s *Server) handleListScenarios(ctx context.Context, _ *sdk.CallToolRequest, _ ListInput) (_ *sdk.CallToolResult, _ ScenariosOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_list_scenarios", start, retErr) }(time.Now())
	list, err := s.svc.ListScenarios(ctx)
	if err != nil {
		return nil, ScenariosOutput{}, toolErr(err)
	}
	return nil, ScenariosOutput{Scenarios: list, Count: len(list)}, nil
}

func (s *Server) handleGetScenario(ctx context.Context, _ *sdk.CallToolRequest, args ScenarioIDInput) (_ *sdk.CallToolResult, _ ScenarioOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_get_scenario", start, retErr) }(time.Now())
	sc, err := s.svc.GetScenario(ctx, args.ScenarioID)
	if err != nil {
		return nil, ScenarioOutput{}, toolErr(err)
	}
	return nil, ScenarioOutput{Scenario: sc}, nil
}

func (s *Server) handleDeleteScenario(ctx context.Context, _ *sdk.CallToolRequest, args ScenarioIDInput) (_ *sdk.CallToolResult, _ DeleteScenarioOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_delete_scenario", start, retErr) }(time.Now())
	if err := s.svc.DeleteScenario(ctx, args.ScenarioID); err != nil {
		return nil, DeleteScenarioOutput{}, toolErr(err)
	}
	return nil, DeleteScenarioOutput{ScenarioID: args.ScenarioID, Deleted: true}, nil
}

func (s *Server) handleAddNote(ctx context.Context, _ *sdk.CallToolRequest, args AddNoteInput) (_ *sdk.CallToolResult, _ NoteOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_add_note", start, retErr) }(time.Now())
	note, err := s.svc.AddNote(ctx, args.SessionID, api.AddNoteRequest{
		UserID:       args.UserID,
		Content:      args.Content,
		AttachVitals: args.AttachVitals,
	})
	if err != nil {
		return nil, NoteOutput{}, toolErr(err)
	}
	return nil, NoteOutput{Note: note}, nil
}

func (s *Server) handleGetNotes(ctx context.Context, _ *sdk.CallToolRequest, args SessionIDInput) (_ *sdk.CallToolResult, _ NotesOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_get_notes", start, retErr) }(time.Now())
	notes, err := s.svc.GetNotes(ctx, args.SessionID)
	if err != nil {
		return nil, NotesOutput{}, toolErr(err)
	}
	return nil, NotesOutput{Notes: notes, Count: len(notes)}, nil
}

func (s *Server) handleDeleteNote(ctx context.Context, _ *sdk.CallToolRequest, args DeleteNoteInput) (_ *sdk.CallToolResult, _ DeleteNoteOutput, retErr error) {
	defer func(start time.Time) { s.audit("ehrsim_delete_note", start, retErr) }(time.Now())
	if err := s.svc.DeleteNote(ctx, args.NoteID, args.UserID); err != nil {
		return nil, DeleteNoteOutput{}, toolErr(err)
	}
	return nil, DeleteNoteOutput{NoteID: args.NoteID, Deleted: true}, nil
}
