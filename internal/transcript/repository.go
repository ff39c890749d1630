package transcript

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("transcript: session not found")

// Session represents one capture run against one console.
type Session struct {
	// ID is the session UUID.
	ID string `json:"id"`

	// ConsoleName is the registered name of the captured console.
	ConsoleName string `json:"console_name"`

	// NodeID identifies the host the daemon ran on.
	NodeID string `json:"node_id"`

	// StartedAt is when capture began (UTC).
	StartedAt time.Time `json:"started_at"`

	// EndedAt is when capture stopped, nil while the session is live.
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// Chunk is one ordered run of captured console output.
type Chunk struct {
	// ID is the auto-incremented primary key for the chunk row.
	ID int64 `json:"id"`

	// SessionID is the owning session's UUID.
	SessionID string `json:"session_id"`

	// Seq orders chunks within a session, starting at 0.
	Seq int64 `json:"seq"`

	// CapturedAt is when the chunk was flushed (UTC).
	CapturedAt time.Time `json:"captured_at"`

	// Data holds the raw captured bytes.
	Data []byte `json:"data"`
}

// Repository stores and retrieves console transcripts.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// StartSession records the beginning of a capture run.
	StartSession(ctx context.Context, session Session) error

	// EndSession marks a session as finished at the given time.
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) error

	// AppendChunk persists one run of captured bytes.
	AppendChunk(ctx context.Context, chunk Chunk) error

	// GetSession returns one session by id, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (Session, error)

	// GetSessions returns recent sessions for a console, newest first.
	// A limit <= 0 selects the default; oversized limits are clamped.
	GetSessions(ctx context.Context, consoleName string, limit int) ([]Session, error)

	// GetChunks returns a session's chunks in sequence order.
	// A limit <= 0 selects the default; oversized limits are clamped.
	GetChunks(ctx context.Context, sessionID string, limit int) ([]Chunk, error)
}
