package appclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g960059/ehrsim/internal/api"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func sessionEnvelope(id, ticks int64, status string) api.SessionEnvelope {
	return api.SessionEnvelope{
		Envelope: api.OK(time.Now().UTC()),
		Session:  api.SessionState{SessionID: id, Status: status, TickCount: ticks},
	}
}

func TestStartSessionSendsTypedBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		var req api.StartSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(4), req.ScenarioID)
		assert.Equal(t, int64(9), req.UserID)
		writeJSON(t, w, http.StatusCreated, sessionEnvelope(12, 0, "running"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	st, err := NewWithClient(srv.URL, srv.Client()).StartSession(context.Background(), 4, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(12), st.SessionID)
	assert.Equal(t, "running", st.Status)
}

func TestAdjustMedicationAndDeleteNoteRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions/3/medications", func(w http.ResponseWriter, r *http.Request) {
		var req api.AdjustMedicationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "labetalol", req.MedicationID)
		require.NotNil(t, req.NewDose)
		assert.Equal(t, 20.0, *req.NewDose)
		writeJSON(t, w, http.StatusOK, sessionEnvelope(3, 7, "running"))
	})
	mux.HandleFunc("DELETE /v1/notes/8", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("user_id"))
		writeJSON(t, w, http.StatusOK, api.DeleteNoteEnvelope{Envelope: api.OK(time.Now()), NoteID: 8})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewWithClient(srv.URL, srv.Client())

	st, err := c.AdjustMedication(context.Background(), 3, "labetalol", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.TickCount)

	require.NoError(t, c.DeleteNote(context.Background(), 8, 2))
}

func TestUpdateAndDeleteScenarioRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/scenarios/5", func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateScenarioRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode update body: %v", err)
		}
		assert.Equal(t, "Sepsis v2", req.Name)
		writeJSON(t, w, http.StatusOK, api.ScenarioEnvelope{
			Envelope: api.OK(time.Now()),
			Scenario: api.ScenarioResponse{ID: 5, Name: req.Name},
		})
	})
	mux.HandleFunc("DELETE /v1/scenarios/5", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusConflict, api.ErrorResponse{Envelope: api.Failed(time.Now(), api.APIError{
			Code:    "E_SCENARIO_IN_USE",
			Message: "Scenario is referenced by recorded sessions",
		})})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewWithClient(srv.URL, srv.Client())

	sc, err := c.UpdateScenario(context.Background(), 5, api.CreateScenarioRequest{Name: "Sepsis v2"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), sc.ID)

	err = c.DeleteScenario(context.Background(), 5)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusConflict, reqErr.StatusCode)
	assert.Equal(t, "E_SCENARIO_IN_USE", reqErr.Code)
}

func TestErrorEnvelopeBecomesRequestError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/5", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, api.ErrorResponse{Envelope: api.Failed(time.Now(), api.APIError{
			Code:    "E_SESSION_NOT_FOUND",
			Message: "Session not found",
		})})
	})
	mux.HandleFunc("GET /v1/scenarios", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream gone")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := NewWithClient(srv.URL, srv.Client())

	_, err := c.GetSession(context.Background(), 5)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	assert.Equal(t, "E_SESSION_NOT_FOUND", reqErr.Code)
	assert.EqualError(t, err, "E_SESSION_NOT_FOUND: Session not found")
	assert.False(t, reqErr.Retryable())

	_, err = c.ListScenarios(context.Background())
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "HTTP_502", reqErr.Code)
	assert.Equal(t, "upstream gone", reqErr.Message)
	assert.True(t, reqErr.Retryable())
}

func TestRequestErrorFormatting(t *testing.T) {
	assert.Equal(t, "http 500", (&RequestError{StatusCode: 500}).Error())
	assert.Equal(t, "http 409: E_X", (&RequestError{StatusCode: 409, Code: "E_X"}).Error())
	assert.Equal(t, "http error", (&RequestError{}).Error())
	assert.True(t, (&RequestError{StatusCode: http.StatusTooManyRequests}).Retryable())
	assert.False(t, (*RequestError)(nil).Retryable())
}

func TestWatchSessionStopsWhenEnded(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/1", func(w http.ResponseWriter, _ *http.Request) {
		switch calls.Add(1) {
		case 1:
			writeJSON(t, w, http.StatusOK, sessionEnvelope(1, 1, "running"))
		case 2:
			writeJSON(t, w, http.StatusOK, sessionEnvelope(1, 1, "running"))
		case 3:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 4:
			writeJSON(t, w, http.StatusOK, sessionEnvelope(1, 2, "running"))
		default:
			writeJSON(t, w, http.StatusOK, sessionEnvelope(1, 2, "ended"))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var seen []api.SessionState
	err := NewWithClient(srv.URL, srv.Client()).WatchSession(context.Background(), 1, WatchOptions{
		PollInterval:    time.Millisecond,
		RetryMinBackoff: time.Millisecond,
		RetryMaxBackoff: 2 * time.Millisecond,
	}, func(st api.SessionState) error {
		seen = append(seen, st)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 3, "unchanged snapshots are not re-delivered")
	assert.Equal(t, int64(1), seen[0].TickCount)
	assert.Equal(t, int64(2), seen[1].TickCount)
	assert.Equal(t, "ended", seen[2].Status)
}

func TestWatchSessionReturnsNonRetryableError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/2", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, api.ErrorResponse{Envelope: api.Failed(time.Now(), api.APIError{
			Code:    "E_SESSION_NOT_FOUND",
			Message: "Session not found",
		})})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	err := NewWithClient(srv.URL, srv.Client()).WatchSession(context.Background(), 2, WatchOptions{PollInterval: time.Millisecond}, nil)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "E_SESSION_NOT_FOUND", reqErr.Code)
}

func TestWatchSessionHonoursCancel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/3", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, sessionEnvelope(3, 0, "paused"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	err := NewWithClient(srv.URL, srv.Client()).WatchSession(ctx, 3, WatchOptions{PollInterval: time.Hour}, func(api.SessionState) error {
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}
