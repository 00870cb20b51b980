package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/g960059/ehrsim/internal/model"
)

var (
	ErrDuplicate = errors.New("duplicate")
	ErrNotFound  = model.ErrNotFound
	ErrForbidden = errors.New("forbidden")
	ErrInUse     = errors.New("in use")
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// RegisterUser inserts a user and returns it with its id. A taken username
// or email yields ErrDuplicate.
func (s *Store) RegisterUser(ctx context.Context, u model.User) (model.User, error) {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.TrimSpace(u.Email)
	if u.Role == "" {
		u.Role = model.RoleStudent
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO users(first_name, last_name, username, email, role, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`, strings.TrimSpace(u.FirstName), strings.TrimSpace(u.LastName), u.Username, u.Email, string(u.Role), ts(s.now()))
	if err != nil {
		if isUniqueErr(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, fmt.Errorf("user id: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, first_name, last_name, username, email, role
FROM users WHERE id = ?
`, id)
	var u model.User
	var role string
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Email, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.UserRole(role)
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, first_name, last_name, username, email, role
FROM users ORDER BY id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.User
	for rows.Next() {
		var u model.User
		var role string
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Email, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = model.UserRole(role)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return true, nil
}

func (s *Store) CreateScenario(ctx context.Context, name string, def model.ScenarioDefinition) (model.Scenario, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return model.Scenario{}, fmt.Errorf("marshal scenario definition: %w", err)
	}
	now := ts(s.now())
	res, err := s.db.ExecContext(ctx, `
INSERT INTO scenarios(name, definition, created_at, updated_at)
VALUES (?, ?, ?, ?)
`, strings.TrimSpace(name), string(raw), now, now)
	if err != nil {
		return model.Scenario{}, fmt.Errorf("insert scenario: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Scenario{}, fmt.Errorf("scenario id: %w", err)
	}
	return s.GetScenarioByID(ctx, id)
}

// GetScenarioByID decodes the stored definition. Callers never see the raw
// JSON text.
func (s *Store) GetScenarioByID(ctx context.Context, id int64) (model.Scenario, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, definition FROM scenarios WHERE id = ?`, id)
	sc, err := scanScenario(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Scenario{}, ErrNotFound
	}
	return sc, err
}

func (s *Store) ListScenarios(ctx context.Context) ([]model.Scenario, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, definition FROM scenarios ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Scenario
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) CountScenarios(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scenarios`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count scenarios: %w", err)
	}
	return n, nil
}

func (s *Store) UpdateScenario(ctx context.Context, sc model.Scenario) error {
	raw, err := json.Marshal(sc.Definition)
	if err != nil {
		return fmt.Errorf("marshal scenario definition: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE scenarios SET name = ?, definition = ?, updated_at = ? WHERE id = ?
`, strings.TrimSpace(sc.Name), string(raw), ts(s.now()), sc.ID)
	if err != nil {
		return fmt.Errorf("update scenario: %w", err)
	}
	return expectOneRow(res)
}

// DeleteScenario fails with ErrInUse while sessions still reference it.
func (s *Store) DeleteScenario(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scenarios WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyErr(err) {
			return ErrInUse
		}
		return fmt.Errorf("delete scenario: %w", err)
	}
	return expectOneRow(res)
}

func (s *Store) RecordSessionStart(ctx context.Context, scenarioID, userID int64, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO sessions(scenario_id, user_id, started_at) VALUES (?, ?, ?)
`, scenarioID, userID, ts(at))
	if err != nil {
		if isForeignKeyErr(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	return id, nil
}

// RecordSessionEnd stamps ended_at once; later calls keep the first value.
func (s *Store) RecordSessionEnd(ctx context.Context, sessionID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE sessions SET ended_at = COALESCE(ended_at, ?) WHERE id = ?
`, ts(at), sessionID)
	if err != nil {
		return fmt.Errorf("record session end: %w", err)
	}
	return expectOneRow(res)
}

func (s *Store) GetSession(ctx context.Context, id int64) (model.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, scenario_id, user_id, started_at, ended_at FROM sessions WHERE id = ?
`, id)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionRecord{}, ErrNotFound
	}
	return rec, err
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID int64) ([]model.SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, scenario_id, user_id, started_at, ended_at
FROM sessions WHERE user_id = ? ORDER BY started_at DESC, id DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AddSessionNote trims content and stores an optional vitals snapshot.
func (s *Store) AddSessionNote(ctx context.Context, n model.Note) (model.Note, error) {
	n.Content = strings.TrimSpace(n.Content)
	if n.Content == "" {
		return model.Note{}, fmt.Errorf("note content is required")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	var snapshot any
	if n.VitalsSnapshot != nil {
		raw, err := json.Marshal(n.VitalsSnapshot)
		if err != nil {
			return model.Note{}, fmt.Errorf("marshal vitals snapshot: %w", err)
		}
		snapshot = string(raw)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO notes(session_id, user_id, content, vitals_snapshot, created_at)
VALUES (?, ?, ?, ?, ?)
`, n.SessionID, n.UserID, n.Content, snapshot, ts(n.CreatedAt))
	if err != nil {
		if isForeignKeyErr(err) {
			return model.Note{}, ErrNotFound
		}
		return model.Note{}, fmt.Errorf("insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Note{}, fmt.Errorf("note id: %w", err)
	}
	n.ID = id
	return n, nil
}

// GetSessionNotes lists notes oldest first.
func (s *Store) GetSessionNotes(ctx context.Context, sessionID int64) ([]model.Note, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, user_id, content, vitals_snapshot, created_at
FROM notes WHERE session_id = ? ORDER BY created_at ASC, id ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Note{}
	for rows.Next() {
		var n model.Note
		var snapshot sql.NullString
		var createdAt string
		if err := rows.Scan(&n.ID, &n.SessionID, &n.UserID, &n.Content, &snapshot, &createdAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		if n.CreatedAt, err = parseTS(createdAt); err != nil {
			return nil, fmt.Errorf("parse note created_at: %w", err)
		}
		if snapshot.Valid && snapshot.String != "" {
			var v model.Vitals
			if err := json.Unmarshal([]byte(snapshot.String), &v); err != nil {
				return nil, fmt.Errorf("unmarshal vitals snapshot: %w", err)
			}
			n.VitalsSnapshot = &v
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteSessionNote removes a note owned by userID. ErrNotFound when the note
// does not exist, ErrForbidden when another user wrote it.
func (s *Store) DeleteSessionNote(ctx context.Context, noteID, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete note: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var owner int64
	err = tx.QueryRowContext(ctx, `SELECT user_id FROM notes WHERE id = ?`, noteID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load note: %w", err)
	}
	if owner != userID {
		return ErrForbidden
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, noteID); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete note: %w", err)
	}
	return nil
}

func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	switch table {
	case "users", "scenarios", "sessions", "notes":
	default:
		return 0, fmt.Errorf("unknown table %q", table)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func scanScenario(scanner interface{ Scan(dest ...any) error }) (model.Scenario, error) {
	var sc model.Scenario
	var raw string
	if err := scanner.Scan(&sc.ID, &sc.Name, &raw); err != nil {
		return model.Scenario{}, err
	}
	if err := json.Unmarshal([]byte(raw), &sc.Definition); err != nil {
		return model.Scenario{}, fmt.Errorf("decode scenario %d definition: %w", sc.ID, err)
	}
	return sc, nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (model.SessionRecord, error) {
	var rec model.SessionRecord
	var startedAt string
	var endedAt sql.NullString
	if err := scanner.Scan(&rec.ID, &rec.ScenarioID, &rec.UserID, &startedAt, &endedAt); err != nil {
		return model.SessionRecord{}, err
	}
	var err error
	if rec.StartedAt, err = parseTS(startedAt); err != nil {
		return model.SessionRecord{}, fmt.Errorf("parse started_at: %w", err)
	}
	if endedAt.Valid {
		t, err := parseTS(endedAt.String)
		if err != nil {
			return model.SessionRecord{}, fmt.Errorf("parse ended_at: %w", err)
		}
		rec.EndedAt = &t
	}
	return rec, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// tsLayout is fixed width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(),
		"UNIQUE constraint failed",
		"constraint failed: UNIQUE",
	)
}

func isForeignKeyErr(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(),
		"FOREIGN KEY constraint failed",
		"constraint failed: FOREIGN KEY",
	)
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}
