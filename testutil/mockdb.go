package testutil

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// CreateInMemoryDB opens an in-memory SQLite database that lives for the test.
// A single connection keeps every query on the same in-memory database.
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// InsertSession inserts a session row into a migrated dev server database
func InsertSession(t *testing.T, db *sql.DB, id, title string, createdAt time.Time) {
	t.Helper()
	const q = "INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)"
	if _, err := db.Exec(q, id, title, createdAt.UnixMilli()); err != nil {
		t.Fatalf("Failed to insert session: %v", err)
	}
}

// InsertMessage inserts a plain message row into a migrated dev server database
func InsertMessage(t *testing.T, db *sql.DB, id, sessionID, role, content string, createdAt time.Time) {
	t.Helper()
	const q = "INSERT INTO messages (id, session_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)"
	if _, err := db.Exec(q, id, sessionID, role, content, createdAt.UnixMilli()); err != nil {
		t.Fatalf("Failed to insert message: %v", err)
	}
}
