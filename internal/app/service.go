package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/g960059/ehrsim/internal/api"
	"github.com/g960059/ehrsim/internal/db"
	"github.com/g960059/ehrsim/internal/engine"
	"github.com/g960059/ehrsim/internal/model"
	"github.com/g960059/ehrsim/internal/scenario"
	"github.com/g960059/ehrsim/internal/security"
)

// Store is the persistence surface the boundary needs beyond what the
// engine already uses.
type Store interface {
	RegisterUser(ctx context.Context, u model.User) (model.User, error)
	GetScenarioByID(ctx context.Context, id int64) (model.Scenario, error)
	ListScenarios(ctx context.Context) ([]model.Scenario, error)
	CreateScenario(ctx context.Context, name string, def model.ScenarioDefinition) (model.Scenario, error)
	UpdateScenario(ctx context.Context, sc model.Scenario) error
	DeleteScenario(ctx context.Context, id int64) error
	GetSession(ctx context.Context, id int64) (model.SessionRecord, error)
	AddSessionNote(ctx context.Context, n model.Note) (model.Note, error)
	GetSessionNotes(ctx context.Context, sessionID int64) ([]model.Note, error)
	DeleteSessionNote(ctx context.Context, noteID, userID int64) error
}

type Service struct {
	engine  *engine.Engine
	store   Store
	log     *zap.Logger
	version string
}

func NewService(eng *engine.Engine, store Store, log *zap.Logger, version string) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{engine: eng, store: store, log: log, version: version}
}

func (s *Service) Health(ctx context.Context, now time.Time) api.HealthResponse {
	return api.HealthResponse{
		SchemaVersion:  api.SchemaVersion,
		GeneratedAt:    now,
		Status:         "ok",
		Version:        s.version,
		LiveSessions:   len(s.engine.ListSessions(ctx)),
		DBSchema:       db.SchemaVersion(),
		TickIntervalMs: s.engine.Config().TickInterval.Milliseconds(),
	}
}

func (s *Service) RegisterUser(ctx context.Context, req api.RegisterUserRequest) (api.UserResponse, error) {
	u := model.User{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.TrimSpace(req.Email),
		Role:      model.UserRole(strings.ToLower(strings.TrimSpace(req.Role))),
	}
	if u.FirstName == "" || u.LastName == "" || u.Username == "" || u.Email == "" {
		return api.UserResponse{}, invalid("firstName, lastName, username, and email are required")
	}
	if !strings.Contains(u.Email, "@") {
		return api.UserResponse{}, invalid("email is invalid")
	}
	switch u.Role {
	case "":
		u.Role = model.RoleStudent
	case model.RoleStudent, model.RoleInstructor, model.RoleAdmin:
	default:
		return api.UserResponse{}, invalid("role must be student, instructor, or admin")
	}

	created, err := s.store.RegisterUser(ctx, u)
	if err != nil {
		return api.UserResponse{}, AsError(err)
	}
	s.log.Info("user registered", zap.Int64("user_id", created.ID), zap.String("username", created.Username))
	return UserToAPI(created), nil
}

func (s *Service) ListScenarios(ctx context.Context) ([]api.ScenarioSummary, error) {
	list, err := s.store.ListScenarios(ctx)
	if err != nil {
		return nil, AsError(err)
	}
	out := make([]api.ScenarioSummary, 0, len(list))
	for _, sc := range list {
		out = append(out, api.ScenarioSummary{
			ID:          sc.ID,
			Name:        sc.Name,
			PatientName: sc.Definition.Patient.Name,
			Diagnosis:   sc.Definition.Patient.Diagnosis,
			Medications: len(sc.Definition.Medications),
			HasTarget:   sc.Definition.Target != nil,
		})
	}
	return out, nil
}

func (s *Service) GetScenario(ctx context.Context, id int64) (api.ScenarioResponse, error) {
	if id <= 0 {
		return api.ScenarioResponse{}, invalid("scenarioId is required")
	}
	sc, err := s.store.GetScenarioByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return api.ScenarioResponse{}, AsError(engine.ErrScenarioNotFound)
	}
	if err != nil {
		return api.ScenarioResponse{}, AsError(err)
	}
	return api.ScenarioResponse{ID: sc.ID, Name: sc.Name, Definition: sc.Definition}, nil
}

// CreateScenario stores a validated definition. Every validation problem is
// reported in one message.
func (s *Service) CreateScenario(ctx context.Context, req api.CreateScenarioRequest) (api.ScenarioResponse, error) {
	doc := scenario.FromScenario(model.Scenario{Name: strings.TrimSpace(req.Name), Definition: req.Definition})
	if err := doc.Validate(); err != nil {
		return api.ScenarioResponse{}, invalid(strings.ReplaceAll(err.Error(), "\n", "; "))
	}
	sc, err := s.store.CreateScenario(ctx, doc.Name, doc.Definition())
	if err != nil {
		return api.ScenarioResponse{}, AsError(err)
	}
	s.log.Info("scenario created", zap.Int64("scenario_id", sc.ID), zap.String("name", sc.Name))
	return api.ScenarioResponse{ID: sc.ID, Name: sc.Name, Definition: sc.Definition}, nil
}

// UpdateScenario replaces a scenario's name and definition. Live sessions
// keep the definition they started with.
func (s *Service) UpdateScenario(ctx context.Context, id int64, req api.CreateScenarioRequest) (api.ScenarioResponse, error) {
	if id <= 0 {
		return api.ScenarioResponse{}, invalid("scenarioId is required")
	}
	doc := scenario.FromScenario(model.Scenario{ID: id, Name: strings.TrimSpace(req.Name), Definition: req.Definition})
	if err := doc.Validate(); err != nil {
		return api.ScenarioResponse{}, invalid(strings.ReplaceAll(err.Error(), "\n", "; "))
	}
	err := s.store.UpdateScenario(ctx, model.Scenario{ID: id, Name: doc.Name, Definition: doc.Definition()})
	if errors.Is(err, db.ErrNotFound) {
		return api.ScenarioResponse{}, AsError(engine.ErrScenarioNotFound)
	}
	if err != nil {
		return api.ScenarioResponse{}, AsError(err)
	}
	s.log.Info("scenario updated", zap.Int64("scenario_id", id), zap.String("name", doc.Name))
	return s.GetScenario(ctx, id)
}

// DeleteScenario removes a scenario that no recorded session references.
func (s *Service) DeleteScenario(ctx context.Context, id int64) error {
	if id <= 0 {
		return invalid("scenarioId is required")
	}
	err := s.store.DeleteScenario(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return AsError(engine.ErrScenarioNotFound)
	}
	if err != nil {
		return AsError(err)
	}
	s.log.Info("scenario deleted", zap.Int64("scenario_id", id))
	return nil
}

func (s *Service) StartSession(ctx context.Context, req api.StartSessionRequest) (api.SessionState, error) {
	if req.ScenarioID <= 0 || req.UserID <= 0 {
		return api.SessionState{}, invalid("scenarioId and userId are required")
	}
	snap, err := s.engine.StartSession(ctx, req.ScenarioID, req.UserID)
	if err != nil {
		return api.SessionState{}, AsError(err)
	}
	return SnapshotToAPI(snap), nil
}

func (s *Service) GetSessionState(ctx context.Context, sessionID int64) (api.SessionState, error) {
	if sessionID <= 0 {
		return api.SessionState{}, invalid("sessionId is required")
	}
	snap, err := s.engine.GetSessionState(ctx, sessionID)
	if err != nil {
		return api.SessionState{}, AsError(err)
	}
	return SnapshotToAPI(snap), nil
}

func (s *Service) AdjustMedication(ctx context.Context, sessionID int64, req api.AdjustMedicationRequest) (api.SessionState, error) {
	if sessionID <= 0 || strings.TrimSpace(req.MedicationID) == "" || req.NewDose == nil {
		return api.SessionState{}, invalid("sessionId, medicationId, and numeric newDose are required")
	}
	snap, err := s.engine.AdjustMedication(ctx, sessionID, strings.TrimSpace(req.MedicationID), *req.NewDose)
	if err != nil {
		return api.SessionState{}, AsError(err)
	}
	return SnapshotToAPI(snap), nil
}

func (s *Service) PauseSession(ctx context.Context, sessionID int64) (api.SessionState, error) {
	if sessionID <= 0 {
		return api.SessionState{}, invalid("sessionId is required")
	}
	snap, err := s.engine.PauseSession(ctx, sessionID)
	if err != nil {
		return api.SessionState{}, AsError(err)
	}
	return SnapshotToAPI(snap), nil
}

func (s *Service) ResumeSession(ctx context.Context, sessionID int64) (api.SessionState, error) {
	if sessionID <= 0 {
		return api.SessionState{}, invalid("sessionId is required")
	}
	snap, err := s.engine.ResumeSession(ctx, sessionID)
	if err != nil {
		return api.SessionState{}, AsError(err)
	}
	return SnapshotToAPI(snap), nil
}

func (s *Service) EndSession(ctx context.Context, sessionID int64, req api.EndSessionRequest) (api.SessionState, error) {
	if sessionID <= 0 {
		return api.SessionState{}, invalid("sessionId is required")
	}
	snap, err := s.engine.EndSession(ctx, sessionID, strings.TrimSpace(req.Reason))
	if err != nil {
		return api.SessionState{}, AsError(err)
	}
	return SnapshotToAPI(snap), nil
}

func (s *Service) ListSessions(ctx context.Context) []api.SessionState {
	snaps := s.engine.ListSessions(ctx)
	out := make([]api.SessionState, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, SnapshotToAPI(snap))
	}
	return out
}

// AddNote attaches a note to a stored session. The session only has to exist
// in the store, so notes can still be written after it leaves memory.
func (s *Service) AddNote(ctx context.Context, sessionID int64, req api.AddNoteRequest) (api.NoteResponse, error) {
	content := strings.TrimSpace(req.Content)
	if sessionID <= 0 || req.UserID <= 0 || content == "" {
		return api.NoteResponse{}, invalid("sessionId, userId, and content are required")
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return api.NoteResponse{}, AsError(engine.ErrSessionNotFound)
		}
		return api.NoteResponse{}, AsError(err)
	}

	if redacted, changed := security.RedactNote(content); changed {
		s.log.Info("redacted credentials from note", zap.Int64("session_id", sessionID), zap.Int64("user_id", req.UserID))
		content = redacted
	}

	snapshot := req.VitalsSnapshot
	if snapshot == nil && req.AttachVitals {
		if snap, err := s.engine.GetSessionState(ctx, sessionID); err == nil {
			v := snap.CurrentVitals
			snapshot = &v
		}
	}
	note, err := s.store.AddSessionNote(ctx, model.Note{
		SessionID:      sessionID,
		UserID:         req.UserID,
		Content:        content,
		VitalsSnapshot: snapshot,
	})
	if errors.Is(err, db.ErrNotFound) {
		return api.NoteResponse{}, AsError(engine.ErrUserNotFound)
	}
	if err != nil {
		return api.NoteResponse{}, AsError(err)
	}
	return NoteToAPI(note), nil
}

func (s *Service) GetNotes(ctx context.Context, sessionID int64) ([]api.NoteResponse, error) {
	if sessionID <= 0 {
		return nil, invalid("sessionId is required")
	}
	notes, err := s.store.GetSessionNotes(ctx, sessionID)
	if err != nil {
		return nil, AsError(err)
	}
	out := make([]api.NoteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, NoteToAPI(n))
	}
	return out, nil
}

func (s *Service) DeleteNote(ctx context.Context, noteID, userID int64) error {
	if noteID <= 0 {
		return invalid("noteId is required")
	}
	if userID <= 0 {
		return invalid("userId is required")
	}
	err := s.store.DeleteSessionNote(ctx, noteID, userID)
	if errors.Is(err, db.ErrNotFound) {
		return &Error{Code: model.ErrCodeNoteNotFound, Message: "Note not found", Status: http.StatusNotFound, Cause: err}
	}
	if err != nil {
		return AsError(err)
	}
	s.log.Info("note deleted", zap.Int64("note_id", noteID), zap.Int64("user_id", userID))
	return nil
}
