package mcp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/g960059/ehrsim/internal/app"
	"github.com/g960059/ehrsim/internal/db"
	"github.com/g960059/ehrsim/internal/engine"
	"github.com/g960059/ehrsim/internal/model"
	"github.com/g960059/ehrsim/internal/scheduler"
	"github.com/g960059/ehrsim/internal/testutil"
)

type testServer struct {
	*Server
	store *db.Store
	sched *scheduler.Manual
	ctx   context.Context
	logs  *observer.ObservedLogs
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	store, ctx := testutil.NewStore(t)
	sched := scheduler.NewManual()
	cfg := engine.DefaultConfig()
	cfg.VitalsNoise = 0
	cfg.Seed = 3
	eng := engine.New(store, sched, engine.NewRegistry(), cfg)
	t.Cleanup(eng.Shutdown)

	core, logs := observer.New(zap.DebugLevel)
	srv := NewServer(Config{Version: "test"}, app.NewService(eng, store, nil, "test"), zap.New(core))
	return &testServer{Server: srv, store: store, sched: sched, ctx: ctx, logs: logs}
}

func (s *testServer) start(t *testing.T) SessionOutput {
	t.Helper()
	u := testutil.SeedUser(t, s.store, s.ctx, "resident")
	sc := testutil.SeedScenario(t, s.store, s.ctx, "Rate control", testutil.HeartRateScenario(2))
	res, out, err := s.handleStartSession(s.ctx, nil, StartSessionInput{ScenarioID: sc.ID, UserID: u.ID})
	require.NoError(t, err)
	assert.Nil(t, res, "result is filled in by the SDK")
	return out
}

func TestStartAndDriveSession(t *testing.T) {
	s := setupTestServer(t)
	out := s.start(t)
	id := out.Session.SessionID
	assert.Equal(t, "running", out.Session.Status)

	_, adj, err := s.handleAdjustMedication(s.ctx, nil, AdjustMedicationInput{SessionID: id, MedicationID: "metoprolol", NewDose: model.Float(2.5)})
	require.NoError(t, err)
	assert.Equal(t, 2.5, adj.Session.MedicationState["metoprolol"].Dose)

	_, paused, err := s.handlePauseSession(s.ctx, nil, SessionIDInput{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, "paused", paused.Session.Status)

	_, resumed, err := s.handleResumeSession(s.ctx, nil, SessionIDInput{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, "running", resumed.Session.Status)

	_, list, err := s.handleListSessions(s.ctx, nil, ListInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)

	_, ended, err := s.handleEndSession(s.ctx, nil, EndSessionInput{SessionID: id, Reason: "user_end"})
	require.NoError(t, err)
	require.NotNil(t, ended.Session.CompletionReason)
	assert.Equal(t, "user_end", *ended.Session.CompletionReason)
}

func TestToolErrorsCarryCodes(t *testing.T) {
	s := setupTestServer(t)
	out := s.start(t)

	_, _, err := s.handleGetSessionState(s.ctx, nil, SessionIDInput{SessionID: 404})
	require.EqualError(t, err, "E_SESSION_NOT_FOUND: Session not found")

	_, _, err = s.handleAdjustMedication(s.ctx, nil, AdjustMedicationInput{SessionID: out.Session.SessionID, MedicationID: "metoprolol"})
	require.EqualError(t, err, "E_INVALID_REQUEST: sessionId, medicationId, and numeric newDose are required")

	_, _, err = s.handleAdjustMedication(s.ctx, nil, AdjustMedicationInput{SessionID: out.Session.SessionID, MedicationID: "metoprolol", NewDose: model.Float(-1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E_DOSE_OUT_OF_RANGE")

	_, _, err = s.handleResumeSession(s.ctx, nil, SessionIDInput{SessionID: out.Session.SessionID})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E_INVALID_TRANSITION")

	assert.GreaterOrEqual(t, s.logs.FilterMessage("tool failed").Len(), 4)
}

func TestTargetMetVisibleThroughTools(t *testing.T) {
	s := setupTestServer(t)
	out := s.start(t)
	id := out.Session.SessionID

	require.NoError(t, s.sched.Fire(s.ctx, id))
	require.NoError(t, s.sched.Fire(s.ctx, id))

	_, st, err := s.handleGetSessionState(s.ctx, nil, SessionIDInput{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, "ended", st.Session.Status)
	require.NotNil(t, st.Session.CompletionReason)
	assert.Equal(t, "target_met", *st.Session.CompletionReason)
	assert.Equal(t, int64(2), st.Session.TickCount)
}

func TestUserScenarioAndNoteTools(t *testing.T) {
	s := setupTestServer(t)

	_, user, err := s.handleRegisterUser(s.ctx, nil, RegisterUserInput{FirstName: "Li", LastName: "Wei", Username: "liwei", Email: "li@example.com", Role: "instructor"})
	require.NoError(t, err)
	assert.Equal(t, "instructor", user.User.Role)

	_, _, err = s.handleRegisterUser(s.ctx, nil, RegisterUserInput{FirstName: "Li", LastName: "Wei", Username: "liwei", Email: "li2@example.com"})
	require.EqualError(t, err, "E_DUPLICATE: Username or email already exists")

	sc := testutil.SeedScenario(t, s.store, s.ctx, "Rate control", testutil.HeartRateScenario(3))
	_, scenarios, err := s.handleListScenarios(s.ctx, nil, ListInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, scenarios.Count)

	_, one, err := s.handleGetScenario(s.ctx, nil, ScenarioIDInput{ScenarioID: sc.ID})
	require.NoError(t, err)
	assert.Equal(t, "Alex Doe", one.Scenario.Definition.Patient.Name)

	_, started, err := s.handleStartSession(s.ctx, nil, StartSessionInput{ScenarioID: sc.ID, UserID: user.User.ID})
	require.NoError(t, err)
	sid := started.Session.SessionID

	_, note, err := s.handleAddNote(s.ctx, nil, AddNoteInput{SessionID: sid, UserID: user.User.ID, Content: "rate 80, holding", AttachVitals: true})
	require.NoError(t, err)
	require.NotNil(t, note.Note.VitalsSnapshot)

	_, notes, err := s.handleGetNotes(s.ctx, nil, SessionIDInput{SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, 1, notes.Count)

	_, _, err = s.handleDeleteNote(s.ctx, nil, DeleteNoteInput{NoteID: note.Note.ID, UserID: user.User.ID + 1})
	require.EqualError(t, err, "E_FORBIDDEN: You do not have permission to delete this note")

	_, del, err := s.handleDeleteNote(s.ctx, nil, DeleteNoteInput{NoteID: note.Note.ID, UserID: user.User.ID})
	require.NoError(t, err)
	assert.True(t, del.Deleted)
}

func TestDeleteScenarioTool(t *testing.T) {
	s := setupTestServer(t)
	out := s.start(t)

	_, _, err := s.handleDeleteScenario(s.ctx, nil, ScenarioIDInput{ScenarioID: out.Session.ScenarioID})
	require.EqualError(t, err, "E_SCENARIO_IN_USE: Scenario is referenced by recorded sessions")

	spare := testutil.SeedScenario(t, s.store, s.ctx, "Spare", testutil.HeartRateScenario(1))
	_, del, err := s.handleDeleteScenario(s.ctx, nil, ScenarioIDInput{ScenarioID: spare.ID})
	require.NoError(t, err)
	assert.True(t, del.Deleted)
	assert.Equal(t, spare.ID, del.ScenarioID)

	_, _, err = s.handleDeleteScenario(s.ctx, nil, ScenarioIDInput{ScenarioID: spare.ID})
	require.EqualError(t, err, "E_SCENARIO_NOT_FOUND: Scenario not found")
}
