package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tw1nflame/chat-langchain/internal"
)

// ErrNotFound is returned when a session, message, file or plan does not exist
var ErrNotFound = errors.New("not found")

// Plan statuses
const (
	PlanPending   = "pending"
	PlanRunning   = "running"
	PlanDone      = "done"
	PlanCancelled = "cancelled"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    payload TEXT NOT NULL DEFAULT '{}', -- files, tables and charts as JSON
    plan_id TEXT NOT NULL DEFAULT '',
    awaiting INTEGER NOT NULL DEFAULT 0,
    summary TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, created_at);

CREATE TABLE IF NOT EXISTS plans (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    message_id TEXT NOT NULL,
    request TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending'
);

CREATE TABLE IF NOT EXISTS files (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    name TEXT NOT NULL,
    content_type TEXT NOT NULL DEFAULT '',
    data BLOB,
    created_at INTEGER NOT NULL
);
`

// Migrate creates the dev backend tables if they do not exist
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Store persists sessions, messages, plans and uploaded files in SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStore opens (or creates) the SQLite database at path and migrates it.
// ":memory:" gives a throwaway database.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection serialises writers and keeps :memory: on a single database
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens the database at path without migrating or writing to it
func OpenReadOnly(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewStore wraps an open database, migrating it first
func NewStore(db *sql.DB) (*Store, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

type messagePayload struct {
	Files  []internal.Attachment `json:"files,omitempty"`
	Tables []internal.Table      `json:"tables,omitempty"`
	Charts []internal.Chart      `json:"charts,omitempty"`
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Plan is a paused multi-step request awaiting confirmation
type Plan struct {
	ID        string
	SessionID string
	MessageID string
	Request   string
	Status    string
}

// StoredFile is an uploaded file
type StoredFile struct {
	ID          string
	SessionID   string
	Name        string
	ContentType string
	Data        []byte
}

// ListSessions returns every session, newest first, with its latest message
func (s *Store) ListSessions(ctx context.Context) ([]internal.SessionSummary, error) {
	const q = `
    SELECT s.id, s.title, s.created_at,
        COALESCE((SELECT m.content FROM messages m WHERE m.session_id = s.id
            ORDER BY m.created_at DESC, m.rowid DESC LIMIT 1), ''),
        COALESCE((SELECT m.role FROM messages m WHERE m.session_id = s.id
            ORDER BY m.created_at DESC, m.rowid DESC LIMIT 1), '')
    FROM sessions s
    ORDER BY s.created_at DESC, s.rowid DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []internal.SessionSummary{}
	for rows.Next() {
		var (
			sum     internal.SessionSummary
			created int64
			role    string
		)
		if err := rows.Scan(&sum.ID, &sum.Title, &created, &sum.LastMessage, &role); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sum.CreatedAt = fromMillis(created)
		sum.LastMessageRole = internal.Role(role)
		sessions = append(sessions, sum)
	}
	return sessions, rows.Err()
}

// CreateSession inserts a new empty session
func (s *Store) CreateSession(ctx context.Context, title string) (internal.SessionSummary, error) {
	sum := internal.SessionSummary{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: fromMillis(s.now().UnixMilli()),
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)",
		sum.ID, sum.Title, sum.CreatedAt.UnixMilli())
	if err != nil {
		return internal.SessionSummary{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return sum, nil
}

// SessionExists reports whether the session is present
func (s *Store) SessionExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM sessions WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query session: %w", err)
	}
	return n > 0, nil
}

// DeleteSession removes a session with its messages, plans and files
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, table := range []string{"messages", "plans", "files"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// ListMessages returns the session history in insertion order
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]internal.RemoteMessage, error) {
	ok, err := s.SessionExists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	const q = `
    SELECT id, session_id, role, content, created_at, payload, plan_id, awaiting, summary
    FROM messages WHERE session_id = ?
    ORDER BY created_at ASC, rowid ASC`
	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []internal.RemoteMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (internal.RemoteMessage, error) {
	var (
		m        internal.RemoteMessage
		role     string
		created  int64
		payload  string
		awaiting int
	)
	if err := row.Scan(&m.ID, &m.SessionID, &role, &m.Content, &created, &payload, &m.PlanID, &awaiting, &m.ConfirmationSummary); err != nil {
		return m, fmt.Errorf("failed to scan message: %w", err)
	}
	m.Role = internal.Role(role)
	m.CreatedAt = fromMillis(created)
	m.AwaitingConfirmation = awaiting != 0

	var p messagePayload
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return m, fmt.Errorf("failed to decode message payload %s: %w", m.ID, err)
		}
	}
	m.Files, m.Tables, m.Charts = p.Files, p.Tables, p.Charts
	return m, nil
}

// InsertMessage appends m to its session, assigning the id and timestamp.
// It returns ErrNotFound when the session no longer exists.
func (s *Store) InsertMessage(ctx context.Context, m internal.RemoteMessage) (internal.RemoteMessage, error) {
	m.ID = uuid.NewString()
	m.CreatedAt = fromMillis(s.now().UnixMilli())
	payload, err := json.Marshal(messagePayload{Files: m.Files, Tables: m.Tables, Charts: m.Charts})
	if err != nil {
		return m, fmt.Errorf("failed to encode message payload: %w", err)
	}

	// the existence check and the insert are one statement so a concurrent
	// delete cannot leave an orphaned row
	const q = `
    INSERT INTO messages (id, session_id, role, content, created_at, payload, plan_id, awaiting, summary)
    SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
    WHERE EXISTS (SELECT 1 FROM sessions WHERE id = ?)`
	res, err := s.db.ExecContext(ctx, q,
		m.ID, m.SessionID, string(m.Role), m.Content, m.CreatedAt.UnixMilli(), string(payload),
		m.PlanID, boolToInt(m.AwaitingConfirmation), m.ConfirmationSummary, m.SessionID)
	if err != nil {
		return m, fmt.Errorf("failed to insert message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return m, ErrNotFound
	}
	return m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SaveFile stores an upload and returns its attachment descriptor
func (s *Store) SaveFile(ctx context.Context, sessionID, name, contentType string, data []byte) (internal.Attachment, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO files (id, session_id, name, content_type, data, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, sessionID, name, contentType, data, s.now().UnixMilli())
	if err != nil {
		return internal.Attachment{}, fmt.Errorf("failed to insert file: %w", err)
	}
	return internal.Attachment{
		Name:        name,
		Size:        int64(len(data)),
		Type:        contentType,
		DownloadURL: fileURL(id),
	}, nil
}

// GetFile loads an uploaded file
func (s *Store) GetFile(ctx context.Context, id string) (StoredFile, error) {
	var f StoredFile
	err := s.db.QueryRowContext(ctx,
		"SELECT id, session_id, name, content_type, data FROM files WHERE id = ?", id).
		Scan(&f.ID, &f.SessionID, &f.Name, &f.ContentType, &f.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return f, ErrNotFound
	}
	if err != nil {
		return f, fmt.Errorf("failed to query file: %w", err)
	}
	return f, nil
}

// CreatePlan records a plan that waits for confirmation
func (s *Store) CreatePlan(ctx context.Context, p Plan) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO plans (id, session_id, message_id, request, status) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.SessionID, p.MessageID, p.Request, PlanPending)
	if err != nil {
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	return nil
}

// GetPlan loads a plan by id
func (s *Store) GetPlan(ctx context.Context, id string) (Plan, error) {
	var p Plan
	err := s.db.QueryRowContext(ctx,
		"SELECT id, session_id, message_id, request, status FROM plans WHERE id = ?", id).
		Scan(&p.ID, &p.SessionID, &p.MessageID, &p.Request, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("failed to query plan: %w", err)
	}
	return p, nil
}

// ClaimPlan moves a pending plan to running. It reports false when another
// confirmation already claimed it.
func (s *Store) ClaimPlan(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE plans SET status = ? WHERE id = ? AND status = ?", PlanRunning, id, PlanPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleasePlan returns a running plan to pending after a failed execution
func (s *Store) ReleasePlan(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE plans SET status = ? WHERE id = ? AND status = ?", PlanPending, id, PlanRunning)
	if err != nil {
		return fmt.Errorf("failed to release plan: %w", err)
	}
	return nil
}

// ResolvePlan sets the final plan status and rewrites the plan message in
// place, clearing its awaiting flag
func (s *Store) ResolvePlan(ctx context.Context, p Plan, status, content string, tables []internal.Table) error {
	payload, err := json.Marshal(messagePayload{Tables: tables})
	if err != nil {
		return fmt.Errorf("failed to encode message payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE plans SET status = ? WHERE id = ?", status, p.ID); err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE messages SET content = ?, payload = ?, awaiting = 0 WHERE id = ? AND session_id = ?",
		content, string(payload), p.MessageID, p.SessionID)
	if err != nil {
		return fmt.Errorf("failed to update plan message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
