package transcript

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeRepo records repository calls in memory.
type fakeRepo struct {
	mu        sync.Mutex
	sessions  []Session
	ended     map[string]time.Time
	chunks    []Chunk
	appendErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{ended: make(map[string]time.Time)}
}

func (r *fakeRepo) StartSession(_ context.Context, session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, session)
	return nil
}

func (r *fakeRepo) EndSession(_ context.Context, sessionID string, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended[sessionID] = endedAt
	return nil
}

func (r *fakeRepo) AppendChunk(_ context.Context, chunk Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	chunk.Data = append([]byte(nil), chunk.Data...)
	r.chunks = append(r.chunks, chunk)
	return nil
}

func (r *fakeRepo) GetSession(_ context.Context, _ string) (Session, error) {
	return Session{}, errors.New("not implemented")
}

func (r *fakeRepo) GetSessions(_ context.Context, _ string, _ int) ([]Session, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRepo) GetChunks(_ context.Context, _ string, _ int) ([]Chunk, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeRepo) storedBytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []byte
	for _, c := range r.chunks {
		out = append(out, c.Data...)
	}
	return out
}

func TestNewSink_Validation(t *testing.T) {
	ctx := context.Background()

	if _, err := NewSink(ctx, nil, SinkConfig{ConsoleName: "guest0"}); err == nil {
		t.Error("NewSink(nil repo) = nil error, want error")
	}
	if _, err := NewSink(ctx, newFakeRepo(), SinkConfig{}); err == nil {
		t.Error("NewSink() without console name = nil error, want error")
	}
}

func TestSink_StartsSession(t *testing.T) {
	repo := newFakeRepo()
	sink, err := NewSink(context.Background(), repo, SinkConfig{
		ConsoleName: "guest0",
		NodeID:      "node-001",
	})
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	defer sink.Close(context.Background()) //nolint:errcheck // Test cleanup

	if len(repo.sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(repo.sessions))
	}
	s := repo.sessions[0]
	if s.ID != sink.SessionID() {
		t.Errorf("session ID = %q, want %q", s.ID, sink.SessionID())
	}
	if s.ConsoleName != "guest0" || s.NodeID != "node-001" {
		t.Errorf("session = %+v, want guest0 on node-001", s)
	}
}

func TestSink_FlushOnClose(t *testing.T) {
	repo := newFakeRepo()
	sink, err := NewSink(context.Background(), repo, SinkConfig{
		ConsoleName:   "guest0",
		FlushInterval: time.Hour, // only the Close flush should run
	})
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}

	if n, err := sink.Out([]byte("panic: oops\n")); n != 12 || err != nil {
		t.Fatalf("Out() = (%d, %v), want (12, nil)", n, err)
	}

	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := string(repo.storedBytes()); got != "panic: oops\n" {
		t.Errorf("stored transcript = %q, want \"panic: oops\\n\"", got)
	}
	if _, ok := repo.ended[sink.SessionID()]; !ok {
		t.Error("session was not ended on Close")
	}
}

func TestSink_PeriodicFlush(t *testing.T) {
	repo := newFakeRepo()
	sink, err := NewSink(context.Background(), repo, SinkConfig{
		ConsoleName:   "guest0",
		FlushInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	defer sink.Close(context.Background()) //nolint:errcheck // Test cleanup

	sink.Out([]byte("tick"))

	deadline := time.After(2 * time.Second)
	for {
		if string(repo.storedBytes()) == "tick" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("periodic flush never persisted output, stored %q", repo.storedBytes())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSink_ChunkSplitting(t *testing.T) {
	repo := newFakeRepo()
	sink, err := NewSink(context.Background(), repo, SinkConfig{
		ConsoleName:   "guest0",
		FlushInterval: time.Hour,
		MaxChunkSize:  4,
	})
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}

	sink.Out([]byte("abcdefghij"))

	if err := sink.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if len(repo.chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(repo.chunks))
	}
	for i, c := range repo.chunks {
		if c.Seq != int64(i) {
			t.Errorf("chunk %d Seq = %d, want %d", i, c.Seq, i)
		}
		if len(c.Data) > 4 {
			t.Errorf("chunk %d size = %d, want <= 4", i, len(c.Data))
		}
	}
	if got := string(repo.storedBytes()); got != "abcdefghij" {
		t.Errorf("reassembled = %q, want abcdefghij", got)
	}
}

func TestSink_InReportsNothing(t *testing.T) {
	repo := newFakeRepo()
	sink, err := NewSink(context.Background(), repo, SinkConfig{
		ConsoleName:   "guest0",
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	defer sink.Close(context.Background()) //nolint:errcheck // Test cleanup

	buf := make([]byte, 8)
	if n, err := sink.In(buf); n != 0 || err != nil {
		t.Errorf("In() = (%d, %v), want (0, nil)", n, err)
	}
}
