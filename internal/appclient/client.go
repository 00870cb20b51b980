package appclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/g960059/ehrsim/internal/api"
)

type Client struct {
	baseURL      string
	client       *http.Client
	unaryTimeout time.Duration
}

const defaultUnaryTimeout = 10 * time.Second

func New(socketPath string) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return NewWithClient("http://unix", &http.Client{Transport: transport})
}

func NewWithClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		unaryTimeout: defaultUnaryTimeout,
	}
}

func (c *Client) WithUnaryTimeout(timeout time.Duration) *Client {
	if c == nil {
		return nil
	}
	clone := *c
	clone.unaryTimeout = timeout
	return &clone
}

type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	message := strings.TrimSpace(e.Message)
	if code != "" && message != "" {
		return fmt.Sprintf("%s: %s", code, message)
	}
	if code != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, code)
		}
		return code
	}
	if message != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("http %d: %s", e.StatusCode, message)
		}
		return message
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return "http error"
}

func (e *RequestError) Retryable() bool {
	if e == nil {
		return false
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= 500
}

func (c *Client) Health(ctx context.Context) (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.call(ctx, http.MethodGet, "/v1/health", nil, nil, &out)
	return out, err
}

func (c *Client) RegisterUser(ctx context.Context, req api.RegisterUserRequest) (api.UserResponse, error) {
	var out api.UserEnvelope
	if err := c.call(ctx, http.MethodPost, "/v1/users", nil, req, &out); err != nil {
		return api.UserResponse{}, err
	}
	return out.User, nil
}

func (c *Client) ListScenarios(ctx context.Context) ([]api.ScenarioSummary, error) {
	var out api.ScenariosEnvelope
	if err := c.call(ctx, http.MethodGet, "/v1/scenarios", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Scenarios, nil
}

func (c *Client) GetScenario(ctx context.Context, id int64) (api.ScenarioResponse, error) {
	var out api.ScenarioEnvelope
	if err := c.call(ctx, http.MethodGet, "/v1/scenarios/"+itoa(id), nil, nil, &out); err != nil {
		return api.ScenarioResponse{}, err
	}
	return out.Scenario, nil
}

func (c *Client) CreateScenario(ctx context.Context, req api.CreateScenarioRequest) (api.ScenarioResponse, error) {
	var out api.ScenarioEnvelope
	if err := c.call(ctx, http.MethodPost, "/v1/scenarios", nil, req, &out); err != nil {
		return api.ScenarioResponse{}, err
	}
	return out.Scenario, nil
}

func (c *Client) UpdateScenario(ctx context.Context, id int64, req api.CreateScenarioRequest) (api.ScenarioResponse, error) {
	var out api.ScenarioEnvelope
	if err := c.call(ctx, http.MethodPut, "/v1/scenarios/"+itoa(id), nil, req, &out); err != nil {
		return api.ScenarioResponse{}, err
	}
	return out.Scenario, nil
}

func (c *Client) DeleteScenario(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, "/v1/scenarios/"+itoa(id), nil, nil, nil)
}

func (c *Client) StartSession(ctx context.Context, scenarioID, userID int64) (api.SessionState, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions", api.StartSessionRequest{ScenarioID: scenarioID, UserID: userID})
}

func (c *Client) GetSession(ctx context.Context, sessionID int64) (api.SessionState, error) {
	return c.session(ctx, http.MethodGet, "/v1/sessions/"+itoa(sessionID), nil)
}

func (c *Client) ListSessions(ctx context.Context) ([]api.SessionState, error) {
	var out api.SessionsEnvelope
	if err := c.call(ctx, http.MethodGet, "/v1/sessions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *Client) AdjustMedication(ctx context.Context, sessionID int64, medicationID string, dose float64) (api.SessionState, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions/"+itoa(sessionID)+"/medications", api.AdjustMedicationRequest{
		MedicationID: medicationID,
		NewDose:      &dose,
	})
}

func (c *Client) PauseSession(ctx context.Context, sessionID int64) (api.SessionState, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions/"+itoa(sessionID)+"/pause", nil)
}

func (c *Client) ResumeSession(ctx context.Context, sessionID int64) (api.SessionState, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions/"+itoa(sessionID)+"/resume", nil)
}

func (c *Client) EndSession(ctx context.Context, sessionID int64, reason string) (api.SessionState, error) {
	return c.session(ctx, http.MethodPost, "/v1/sessions/"+itoa(sessionID)+"/end", api.EndSessionRequest{Reason: reason})
}

func (c *Client) AddNote(ctx context.Context, sessionID int64, req api.AddNoteRequest) (api.NoteResponse, error) {
	var out api.NoteEnvelope
	if err := c.call(ctx, http.MethodPost, "/v1/sessions/"+itoa(sessionID)+"/notes", nil, req, &out); err != nil {
		return api.NoteResponse{}, err
	}
	return out.Note, nil
}

func (c *Client) GetNotes(ctx context.Context, sessionID int64) ([]api.NoteResponse, error) {
	var out api.NotesEnvelope
	if err := c.call(ctx, http.MethodGet, "/v1/sessions/"+itoa(sessionID)+"/notes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Notes, nil
}

func (c *Client) DeleteNote(ctx context.Context, noteID, userID int64) error {
	query := url.Values{}
	query.Set("user_id", itoa(userID))
	return c.call(ctx, http.MethodDelete, "/v1/notes/"+itoa(noteID), query, nil, nil)
}

type WatchOptions struct {
	PollInterval    time.Duration
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration
}

// WatchSession polls a session and calls onState whenever its status or tick
// count changes. It returns nil once the ended snapshot has been delivered.
// Transport errors and retryable responses back off; any other error
// response ends the watch.
func (c *Client) WatchSession(ctx context.Context, sessionID int64, opts WatchOptions, onState func(api.SessionState) error) error {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	minBackoff := opts.RetryMinBackoff
	if minBackoff <= 0 {
		minBackoff = 250 * time.Millisecond
	}
	maxBackoff := opts.RetryMaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 4 * time.Second
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	backoff := minBackoff

	var last *api.SessionState
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := c.GetSession(ctx, sessionID)
		if err != nil {
			var reqErr *RequestError
			if errors.As(err, &reqErr) && !reqErr.Retryable() {
				return err
			}
			if waitErr := sleepWithContext(ctx, backoff); waitErr != nil {
				return waitErr
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = minBackoff
		if last == nil || last.Status != st.Status || last.TickCount != st.TickCount {
			if onState != nil {
				if err := onState(st); err != nil {
					return err
				}
			}
			last = &st
		}
		if st.Status == "ended" {
			return nil
		}
		if err := sleepWithContext(ctx, pollInterval); err != nil {
			return err
		}
	}
}

func (c *Client) session(ctx context.Context, method, path string, body any) (api.SessionState, error) {
	var out api.SessionEnvelope
	if err := c.call(ctx, method, path, nil, body, &out); err != nil {
		return api.SessionState{}, err
	}
	return out.Session, nil
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	payload, err := c.request(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	reqCtx := ctx
	if c.unaryTimeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > c.unaryTimeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, c.unaryTimeout)
			defer cancel()
		}
	}
	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var er api.ErrorResponse
		if err := json.Unmarshal(payload, &er); err == nil && er.ErrorCode != "" {
			return nil, &RequestError{
				StatusCode: resp.StatusCode,
				Code:       er.ErrorCode,
				Message:    er.Error,
			}
		}
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Code:       fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:    strings.TrimSpace(string(payload)),
		}
	}
	return payload, nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
