package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"focustimer/internal/core/model"
)

const (
	sessionSchemaVersion = 1

	// Fixed-width so that text order matches time order.
	sessionTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// SessionStore persists finished sessions in SQLite.
type SessionStore struct {
	DB *sql.DB
}

// OpenSessionStore opens or creates the session database at path.
func OpenSessionStore(path string) (*SessionStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping session database: %w", err)
	}

	store := &SessionStore{DB: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate session database: %w", err)
	}
	return store, nil
}

func (store *SessionStore) migrate() error {
	var currentVersion int
	if err := store.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= sessionSchemaVersion {
		return nil
	}

	tx, err := store.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		planned_ms INTEGER NOT NULL,
		tags TEXT NOT NULL,
		linked_task TEXT NOT NULL,
		notes TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_start ON sessions(start_at);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", sessionSchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendSession stores a finished session. Appending the same session twice
// keeps the first record.
func (store *SessionStore) AppendSession(ctx context.Context, session model.Session) error {
	if !session.Finished() {
		return fmt.Errorf("append session %s: session is not finished", session.ID)
	}

	tags, err := json.Marshal(nonNilTags(session.Tags))
	if err != nil {
		return fmt.Errorf("encode session tags: %w", err)
	}

	query := `
	INSERT INTO sessions (id, title, start_at, end_at, duration_ms, planned_ms, tags, linked_task, notes)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`
	_, err = store.DB.ExecContext(ctx, query,
		session.ID,
		session.Title,
		session.Start.UTC().Format(sessionTimeLayout),
		session.End.UTC().Format(sessionTimeLayout),
		session.Duration.Milliseconds(),
		session.Planned.Milliseconds(),
		string(tags),
		session.LinkedTask,
		session.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", session.ID, err)
	}
	return nil
}

// RecentSessions returns up to limit sessions, newest start first.
func (store *SessionStore) RecentSessions(ctx context.Context, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := store.DB.QueryContext(ctx, `
	SELECT id, title, start_at, end_at, duration_ms, planned_ms, tags, linked_task, notes
	FROM sessions
	ORDER BY start_at DESC
	LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []model.Session
	for rows.Next() {
		var session model.Session
		var startText, endText, tagsText string
		var durationMs, plannedMs int64
		if err := rows.Scan(&session.ID, &session.Title, &startText, &endText,
			&durationMs, &plannedMs, &tagsText, &session.LinkedTask, &session.Notes); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		if session.Start, err = time.Parse(time.RFC3339Nano, startText); err != nil {
			return nil, fmt.Errorf("parse start of session %s: %w", session.ID, err)
		}
		if session.End, err = time.Parse(time.RFC3339Nano, endText); err != nil {
			return nil, fmt.Errorf("parse end of session %s: %w", session.ID, err)
		}
		session.Duration = time.Duration(durationMs) * time.Millisecond
		session.Planned = time.Duration(plannedMs) * time.Millisecond

		var tags []string
		if err := json.Unmarshal([]byte(tagsText), &tags); err != nil {
			return nil, fmt.Errorf("decode tags of session %s: %w", session.ID, err)
		}
		if len(tags) > 0 {
			session.Tags = tags
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the database.
func (store *SessionStore) Close() error {
	return store.DB.Close()
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
