package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 200

	defaultChunkLimit = 500
	maxChunkLimit     = 2000
)

// SQLiteRepository implements Repository using SQLite.
//
// It stores sessions in transcript_sessions and captured bytes in
// transcript_chunks.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite transcript repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// StartSession inserts a new session row.
func (r *SQLiteRepository) StartSession(ctx context.Context, session Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if session.ConsoleName == "" {
		return fmt.Errorf("console name is required")
	}

	startedAt := session.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO transcript_sessions (id, console_name, node_id, started_at) VALUES (?, ?, ?, ?)",
		session.ID,
		session.ConsoleName,
		session.NodeID,
		startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	return nil
}

// EndSession stamps a session's end time.
func (r *SQLiteRepository) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE transcript_sessions SET ended_at = ? WHERE id = ?",
		endedAt.UTC().Format(time.RFC3339),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}

	return nil
}

// AppendChunk inserts one captured chunk.
func (r *SQLiteRepository) AppendChunk(ctx context.Context, chunk Chunk) error {
	if chunk.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if len(chunk.Data) == 0 {
		return nil
	}

	capturedAt := chunk.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO transcript_chunks (session_id, seq, captured_at, data) VALUES (?, ?, ?, ?)",
		chunk.SessionID,
		chunk.Seq,
		capturedAt.UTC().Format(time.RFC3339),
		chunk.Data,
	)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}

	return nil
}

// GetSession returns one session by id.
func (r *SQLiteRepository) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, fmt.Errorf("session id is required")
	}

	var s Session
	var startedAt string
	var endedAt sql.NullString

	err := r.db.QueryRowContext(ctx,
		"SELECT id, console_name, node_id, started_at, ended_at FROM transcript_sessions WHERE id = ?",
		sessionID,
	).Scan(&s.ID, &s.ConsoleName, &s.NodeID, &startedAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("querying session: %w", err)
	}

	s.StartedAt, err = parseTimestamp(startedAt)
	if err != nil {
		return Session{}, err
	}
	if endedAt.Valid {
		t, err := parseTimestamp(endedAt.String)
		if err != nil {
			return Session{}, err
		}
		s.EndedAt = &t
	}

	return s, nil
}

// GetSessions returns recent sessions for a console, newest first.
func (r *SQLiteRepository) GetSessions(ctx context.Context, consoleName string, limit int) ([]Session, error) {
	if consoleName == "" {
		return nil, fmt.Errorf("console name is required")
	}
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, console_name, node_id, started_at, ended_at
		 FROM transcript_sessions
		 WHERE console_name = ?
		 ORDER BY started_at DESC
		 LIMIT ?`,
		consoleName,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0, limit)
	for rows.Next() {
		var s Session
		var startedAt string
		var endedAt sql.NullString

		if err := rows.Scan(&s.ID, &s.ConsoleName, &s.NodeID, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}

		s.StartedAt, err = parseTimestamp(startedAt)
		if err != nil {
			return nil, err
		}
		if endedAt.Valid {
			t, err := parseTimestamp(endedAt.String)
			if err != nil {
				return nil, err
			}
			s.EndedAt = &t
		}

		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	return sessions, nil
}

// GetChunks returns a session's chunks in sequence order.
func (r *SQLiteRepository) GetChunks(ctx context.Context, sessionID string, limit int) ([]Chunk, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if limit <= 0 {
		limit = defaultChunkLimit
	}
	if limit > maxChunkLimit {
		limit = maxChunkLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, seq, captured_at, data
		 FROM transcript_chunks
		 WHERE session_id = ?
		 ORDER BY seq ASC
		 LIMIT ?`,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]Chunk, 0, limit)
	for rows.Next() {
		var c Chunk
		var capturedAt string

		if err := rows.Scan(&c.ID, &c.SessionID, &c.Seq, &capturedAt, &c.Data); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}

		c.CapturedAt, err = parseTimestamp(capturedAt)
		if err != nil {
			return nil, err
		}

		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// parseTimestamp parses the RFC3339 timestamps this package writes.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
