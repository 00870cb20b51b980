package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/g960059/ehrsim/internal/api"
	"github.com/g960059/ehrsim/internal/app"
	"github.com/g960059/ehrsim/internal/config"
	"github.com/g960059/ehrsim/internal/model"
)

const (
	maxRequestBody  = 1 << 20
	requestIDHeader = "X-Request-ID"
)

type Server struct {
	cfg         config.Config
	svc         *app.Service
	log         *zap.Logger
	now         func() time.Time
	httpSrv     *http.Server
	listener    net.Listener
	lockFile    *os.File
	mu          sync.Mutex
	shutdown    sync.Once
	shutdownErr error
}

func NewServer(cfg config.Config, svc *app.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg: cfg,
		svc: svc,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.healthHandler)
	mux.HandleFunc("POST /v1/users", s.registerUserHandler)
	mux.HandleFunc("GET /v1/scenarios", s.listScenariosHandler)
	mux.HandleFunc("POST /v1/scenarios", s.createScenarioHandler)
	mux.HandleFunc("GET /v1/scenarios/{id}", s.getScenarioHandler)
	mux.HandleFunc("PUT /v1/scenarios/{id}", s.updateScenarioHandler)
	mux.HandleFunc("DELETE /v1/scenarios/{id}", s.deleteScenarioHandler)
	mux.HandleFunc("POST /v1/sessions", s.startSessionHandler)
	mux.HandleFunc("GET /v1/sessions", s.listSessionsHandler)
	mux.HandleFunc("GET /v1/sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("POST /v1/sessions/{id}/medications", s.adjustMedicationHandler)
	mux.HandleFunc("POST /v1/sessions/{id}/pause", s.pauseSessionHandler)
	mux.HandleFunc("POST /v1/sessions/{id}/resume", s.resumeSessionHandler)
	mux.HandleFunc("POST /v1/sessions/{id}/end", s.endSessionHandler)
	mux.HandleFunc("POST /v1/sessions/{id}/notes", s.addNoteHandler)
	mux.HandleFunc("GET /v1/sessions/{id}/notes", s.listNotesHandler)
	mux.HandleFunc("DELETE /v1/notes/{id}", s.deleteNoteHandler)

	s.httpSrv = &http.Server{
		Handler:           s.withRequestLog(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for in-process callers.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := s.acquireLock(); err != nil {
		return err
	}
	if st, err := os.Lstat(s.cfg.SocketPath); err == nil {
		if st.Mode()&os.ModeSocket == 0 {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("socket path exists and is not unix socket: %s", s.cfg.SocketPath)
		}
		if err := os.Remove(s.cfg.SocketPath); err != nil {
			s.releaseLock() //nolint:errcheck
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("stat socket path: %w", err)
	}
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("listen uds: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close()      //nolint:errcheck
		s.releaseLock() //nolint:errcheck
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("daemon listening", zap.String("socket", s.cfg.SocketPath))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("serve uds: %w", err)
		}
		return nil
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdown.Do(func() {
		var errs []error
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.mu.Lock()
		listener := s.listener
		s.listener = nil
		s.mu.Unlock()
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				errs = append(errs, err)
			}
		}
		if s.cfg.SocketPath != "" {
			if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		if err := s.releaseLock(); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			s.shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return s.shutdownErr
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Health(r.Context(), s.now()))
}

func (s *Server) registerUserHandler(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.svc.RegisterUser(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.UserEnvelope{Envelope: api.OK(s.now()), User: u})
}

func (s *Server) listScenariosHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListScenarios(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ScenariosEnvelope{Envelope: api.OK(s.now()), Scenarios: list})
}

func (s *Server) createScenarioHandler(w http.ResponseWriter, r *http.Request) {
	var req api.CreateScenarioRequest
	if !s.decode(w, r, &req) {
		return
	}
	sc, err := s.svc.CreateScenario(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ScenarioEnvelope{Envelope: api.OK(s.now()), Scenario: sc})
}

func (s *Server) getScenarioHandler(w http.ResponseWriter, r *http.Request) {
	sc, err := s.svc.GetScenario(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ScenarioEnvelope{Envelope: api.OK(s.now()), Scenario: sc})
}

func (s *Server) updateScenarioHandler(w http.ResponseWriter, r *http.Request) {
	var req api.CreateScenarioRequest
	if !s.decode(w, r, &req) {
		return
	}
	sc, err := s.svc.UpdateScenario(r.Context(), pathID(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ScenarioEnvelope{Envelope: api.OK(s.now()), Scenario: sc})
}

func (s *Server) deleteScenarioHandler(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	if err := s.svc.DeleteScenario(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteScenarioEnvelope{Envelope: api.OK(s.now()), ScenarioID: id})
}

func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req api.StartSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	st, err := s.svc.StartSession(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.SessionEnvelope{Envelope: api.OK(s.now()), Session: st})
}

func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.SessionsEnvelope{Envelope: api.OK(s.now()), Sessions: s.svc.ListSessions(r.Context())})
}

func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	s.writeSession(w, r)(s.svc.GetSessionState(r.Context(), pathID(r)))
}

func (s *Server) adjustMedicationHandler(w http.ResponseWriter, r *http.Request) {
	var req api.AdjustMedicationRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeSession(w, r)(s.svc.AdjustMedication(r.Context(), pathID(r), req))
}

func (s *Server) pauseSessionHandler(w http.ResponseWriter, r *http.Request) {
	s.writeSession(w, r)(s.svc.PauseSession(r.Context(), pathID(r)))
}

func (s *Server) resumeSessionHandler(w http.ResponseWriter, r *http.Request) {
	s.writeSession(w, r)(s.svc.ResumeSession(r.Context(), pathID(r)))
}

func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req api.EndSessionRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	s.writeSession(w, r)(s.svc.EndSession(r.Context(), pathID(r), req))
}

func (s *Server) addNoteHandler(w http.ResponseWriter, r *http.Request) {
	var req api.AddNoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	note, err := s.svc.AddNote(r.Context(), pathID(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.NoteEnvelope{Envelope: api.OK(s.now()), Note: note})
}

func (s *Server) listNotesHandler(w http.ResponseWriter, r *http.Request) {
	notes, err := s.svc.GetNotes(r.Context(), pathID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotesEnvelope{Envelope: api.OK(s.now()), Notes: notes})
}

func (s *Server) deleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	noteID := pathID(r)
	userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err := s.svc.DeleteNote(r.Context(), noteID, userID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteNoteEnvelope{Envelope: api.OK(s.now()), NoteID: noteID})
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request) func(api.SessionState, error) {
	return func(st api.SessionState, err error) {
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.SessionEnvelope{Envelope: api.OK(s.now()), Session: st})
	}
}

// pathID returns 0 for a malformed id so the service reports the missing
// field with its usual message.
func pathID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, &app.Error{
			Code:    model.ErrCodeInvalidRequest,
			Message: "invalid JSON body",
			Status:  http.StatusBadRequest,
			Cause:   err,
		})
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func (s *Server) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, &app.Error{
			Code:    model.ErrCodeInvalidRequest,
			Message: "invalid JSON body",
			Status:  http.StatusBadRequest,
			Cause:   err,
		})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := app.AsError(err)
	if appErr.Status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", w.Header().Get(requestIDHeader)),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	s.writeJSON(w, appErr.Status, api.ErrorResponse{Envelope: api.Failed(s.now(), appErr.APIError())})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) acquireLock() error {
	lockPath := s.cfg.SocketPath + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("daemon already running")
	}
	s.mu.Lock()
	s.lockFile = f
	s.mu.Unlock()
	return nil
}

func (s *Server) releaseLock() error {
	s.mu.Lock()
	f := s.lockFile
	s.lockFile = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}
