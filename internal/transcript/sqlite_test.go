package transcript

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/conmux/conmux/internal/infrastructure/database"
)

const testSchema = `
CREATE TABLE transcript_sessions (
    id TEXT PRIMARY KEY,
    console_name TEXT NOT NULL,
    node_id TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    ended_at TEXT
);

CREATE TABLE transcript_chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES transcript_sessions(id),
    seq INTEGER NOT NULL,
    captured_at TEXT NOT NULL,
    data BLOB NOT NULL,
    UNIQUE (session_id, seq)
);
`

// openTestRepo creates a temporary database with the transcript schema.
func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "transcript.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.ExecContext(context.Background(), testSchema); err != nil {
		t.Fatalf("creating test schema: %v", err)
	}

	return NewSQLiteRepository(db.DB)
}

func startTestSession(t *testing.T, repo *SQLiteRepository, consoleName string) Session {
	t.Helper()

	session := Session{
		ID:          uuid.New().String(),
		ConsoleName: consoleName,
		NodeID:      "node-test",
		StartedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := repo.StartSession(context.Background(), session); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	return session
}

func TestStartSession_Validation(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	if err := repo.StartSession(ctx, Session{ConsoleName: "guest0"}); err == nil {
		t.Error("StartSession() without id = nil error, want error")
	}
	if err := repo.StartSession(ctx, Session{ID: uuid.New().String()}); err == nil {
		t.Error("StartSession() without console name = nil error, want error")
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	session := startTestSession(t, repo, "guest0")

	sessions, err := repo.GetSessions(ctx, "guest0", 0)
	if err != nil {
		t.Fatalf("GetSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	if sessions[0].ID != session.ID {
		t.Errorf("session ID = %q, want %q", sessions[0].ID, session.ID)
	}
	if sessions[0].EndedAt != nil {
		t.Error("EndedAt set on live session, want nil")
	}

	ended := time.Now().UTC().Truncate(time.Second)
	if err := repo.EndSession(ctx, session.ID, ended); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	sessions, err = repo.GetSessions(ctx, "guest0", 0)
	if err != nil {
		t.Fatalf("GetSessions() error = %v", err)
	}
	if sessions[0].EndedAt == nil {
		t.Fatal("EndedAt nil after EndSession")
	}
	if !sessions[0].EndedAt.Equal(ended) {
		t.Errorf("EndedAt = %v, want %v", sessions[0].EndedAt, ended)
	}
}

func TestGetSession(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	session := startTestSession(t, repo, "guest0")

	got, err := repo.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.ID != session.ID {
		t.Errorf("session ID = %q, want %q", got.ID, session.ID)
	}
	if got.ConsoleName != "guest0" {
		t.Errorf("ConsoleName = %q, want %q", got.ConsoleName, "guest0")
	}
	if got.EndedAt != nil {
		t.Error("EndedAt set on live session, want nil")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	repo := openTestRepo(t)

	_, err := repo.GetSession(context.Background(), uuid.New().String())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestEndSession_NotFound(t *testing.T) {
	repo := openTestRepo(t)

	if err := repo.EndSession(context.Background(), uuid.New().String(), time.Now()); err == nil {
		t.Error("EndSession() on unknown session = nil error, want error")
	}
}

func TestGetSessions_NewestFirst(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	old := Session{
		ID:          uuid.New().String(),
		ConsoleName: "guest0",
		StartedAt:   time.Now().UTC().Add(-time.Hour),
	}
	recent := Session{
		ID:          uuid.New().String(),
		ConsoleName: "guest0",
		StartedAt:   time.Now().UTC(),
	}
	for _, s := range []Session{old, recent} {
		if err := repo.StartSession(ctx, s); err != nil {
			t.Fatalf("StartSession() error = %v", err)
		}
	}

	sessions, err := repo.GetSessions(ctx, "guest0", 0)
	if err != nil {
		t.Fatalf("GetSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len(sessions) = %d, want 2", len(sessions))
	}
	if sessions[0].ID != recent.ID {
		t.Errorf("first session = %q, want most recent %q", sessions[0].ID, recent.ID)
	}
}

func TestChunks_RoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	session := startTestSession(t, repo, "guest0")

	for seq, data := range [][]byte{[]byte("boot "), []byte("complete\n")} {
		err := repo.AppendChunk(ctx, Chunk{
			SessionID: session.ID,
			Seq:       int64(seq),
			Data:      data,
		})
		if err != nil {
			t.Fatalf("AppendChunk(seq %d) error = %v", seq, err)
		}
	}

	chunks, err := repo.GetChunks(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("GetChunks() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}

	var full []byte
	for _, c := range chunks {
		full = append(full, c.Data...)
	}
	if string(full) != "boot complete\n" {
		t.Errorf("reassembled transcript = %q, want \"boot complete\\n\"", full)
	}
}

func TestAppendChunk_EmptyDataIsNoop(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	session := startTestSession(t, repo, "guest0")

	if err := repo.AppendChunk(ctx, Chunk{SessionID: session.ID}); err != nil {
		t.Fatalf("AppendChunk(empty) error = %v", err)
	}

	chunks, err := repo.GetChunks(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("GetChunks() error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("len(chunks) = %d, want 0", len(chunks))
	}
}

func TestGetChunks_LimitClamped(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	session := startTestSession(t, repo, "guest0")
	for seq := 0; seq < 5; seq++ {
		err := repo.AppendChunk(ctx, Chunk{
			SessionID: session.ID,
			Seq:       int64(seq),
			Data:      []byte{byte('a' + seq)},
		})
		if err != nil {
			t.Fatalf("AppendChunk() error = %v", err)
		}
	}

	chunks, err := repo.GetChunks(ctx, session.ID, 3)
	if err != nil {
		t.Fatalf("GetChunks() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if chunks[0].Seq != 0 || chunks[2].Seq != 2 {
		t.Errorf("chunks out of order: %+v", chunks)
	}
}
