package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/conmux/conmux/internal/auth"
	"github.com/conmux/conmux/internal/transcript"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func doJSON(t *testing.T, router http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleListConsoles(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.buildRouter()

	rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Consoles []consoleView `json:"consoles"`
		Count    int           `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	got := resp.Consoles[0]
	if got.Name != "test0" {
		t.Errorf("name = %q, want test0", got.Name)
	}
	if !got.Stdin || !got.Stdout {
		t.Errorf("first flagless device should hold both standard roles, got stdin=%v stdout=%v", got.Stdin, got.Stdout)
	}
}

func TestHandleGetConsole(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.buildRouter()

	t.Run("found", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles/0", nil, "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles/99", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles/abc", nil, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestHandleBroadcastOut(t *testing.T) {
	srv, ops := newTestServer(t, "")
	router := srv.buildRouter()

	payload := map[string]string{"data": base64.StdEncoding.EncodeToString([]byte("hello\n"))}
	rec := doJSON(t, router, http.MethodPost, "/api/v1/consoles/out", payload, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Written int `json:"written"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Written != 6 {
		t.Errorf("written = %d, want 6", resp.Written)
	}
	if string(ops.written) != "hello\n" {
		t.Errorf("device received %q, want %q", ops.written, "hello\n")
	}
}

func TestHandleBroadcastOutValidation(t *testing.T) {
	srv, _ := newTestServer(t, "")
	router := srv.buildRouter()

	tests := []struct {
		name string
		body any
	}{
		{"empty data", map[string]string{"data": ""}},
		{"invalid base64", map[string]string{"data": "not base64!!!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/v1/consoles/out", tt.body, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/consoles/out", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}

func TestHandleAggregateIn(t *testing.T) {
	srv, ops := newTestServer(t, "")
	ops.pending = []byte("input bytes")
	router := srv.buildRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/consoles/in", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Data string `json:"data"`
		Read int    `json:"read"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if string(data) != "input bytes" {
		t.Errorf("data = %q, want %q", data, "input bytes")
	}
	if resp.Read != len("input bytes") {
		t.Errorf("read = %d, want %d", resp.Read, len("input bytes"))
	}
}

func TestHandleDirectIO(t *testing.T) {
	srv, ops := newTestServer(t, "")
	router := srv.buildRouter()

	payload := map[string]string{"data": base64.StdEncoding.EncodeToString([]byte("direct"))}
	rec := doJSON(t, router, http.MethodPost, "/api/v1/consoles/0/out", payload, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("direct out status = %d, want %d", rec.Code, http.StatusOK)
	}
	if string(ops.written) != "direct" {
		t.Errorf("device received %q, want %q", ops.written, "direct")
	}

	ops.pending = []byte("reply")
	rec = doJSON(t, router, http.MethodPost, "/api/v1/consoles/0/in?size=3", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("direct in status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Read int `json:"read"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Read != 3 {
		t.Errorf("read = %d, want 3 (size clamp)", resp.Read)
	}
}

func TestAuthEnforcement(t *testing.T) {
	srv, _ := newTestServer(t, testSecret)
	router := srv.buildRouter()

	t.Run("missing token", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles", nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles", nil, "not-a-jwt")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := auth.GenerateAccessToken("operator1", auth.RoleOperator, testSecret, 5)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error = %v", err)
		}
		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles", nil, token)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("viewer cannot write", func(t *testing.T) {
		token, err := auth.GenerateAccessToken("viewer1", auth.RoleViewer, testSecret, 5)
		if err != nil {
			t.Fatalf("GenerateAccessToken() error = %v", err)
		}
		payload := map[string]string{"data": base64.StdEncoding.EncodeToString([]byte("x"))}
		rec := doJSON(t, router, http.MethodPost, "/api/v1/consoles/out", payload, token)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("health stays public", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/health", nil, "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

// fakeTranscripts is an in-memory transcript.Repository for handler tests.
type fakeTranscripts struct {
	sessions []transcript.Session
	chunks   map[string][]transcript.Chunk
}

func (f *fakeTranscripts) StartSession(_ context.Context, s transcript.Session) error {
	f.sessions = append(f.sessions, s)
	return nil
}

func (f *fakeTranscripts) EndSession(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (f *fakeTranscripts) AppendChunk(_ context.Context, c transcript.Chunk) error {
	if f.chunks == nil {
		f.chunks = make(map[string][]transcript.Chunk)
	}
	f.chunks[c.SessionID] = append(f.chunks[c.SessionID], c)
	return nil
}

func (f *fakeTranscripts) GetSession(_ context.Context, sessionID string) (transcript.Session, error) {
	for _, s := range f.sessions {
		if s.ID == sessionID {
			return s, nil
		}
	}
	return transcript.Session{}, transcript.ErrSessionNotFound
}

func (f *fakeTranscripts) GetSessions(_ context.Context, consoleName string, _ int) ([]transcript.Session, error) {
	var out []transcript.Session
	for _, s := range f.sessions {
		if s.ConsoleName == consoleName {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeTranscripts) GetChunks(_ context.Context, sessionID string, _ int) ([]transcript.Chunk, error) {
	return f.chunks[sessionID], nil
}

func TestHandleTranscript(t *testing.T) {
	srv, _ := newTestServer(t, "")
	repo := &fakeTranscripts{}
	srv.transcripts = repo
	router := srv.buildRouter()

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		_ = repo.StartSession(context.Background(), transcript.Session{
			ID:          fmt.Sprintf("session-%d", i),
			ConsoleName: "test0",
			StartedAt:   now,
		})
	}
	_ = repo.AppendChunk(context.Background(), transcript.Chunk{
		SessionID:  "session-0",
		Seq:        1,
		CapturedAt: now,
		Data:       []byte("boot log"),
	})

	t.Run("lists sessions", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles/0/transcript", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if resp.Count != 2 {
			t.Errorf("count = %d, want 2", resp.Count)
		}
	})

	t.Run("returns chunks for session", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles/0/transcript?session=session-0", nil, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
		var resp struct {
			Chunks []transcript.Chunk `json:"chunks"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if len(resp.Chunks) != 1 {
			t.Fatalf("chunks = %d, want 1", len(resp.Chunks))
		}
		if string(resp.Chunks[0].Data) != "boot log" {
			t.Errorf("chunk data = %q, want %q", resp.Chunks[0].Data, "boot log")
		}
	})

	t.Run("rejects unknown session", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles/0/transcript?session=no-such-session", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("rejects session of another console", func(t *testing.T) {
		_ = repo.StartSession(context.Background(), transcript.Session{
			ID:          "foreign-session",
			ConsoleName: "other0",
			StartedAt:   now,
		})
		_ = repo.AppendChunk(context.Background(), transcript.Chunk{
			SessionID:  "foreign-session",
			Seq:        1,
			CapturedAt: now,
			Data:       []byte("secret"),
		})

		rec := doJSON(t, router, http.MethodGet, "/api/v1/consoles/0/transcript?session=foreign-session", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("disabled without repository", func(t *testing.T) {
		srv2, _ := newTestServer(t, "")
		rec := doJSON(t, srv2.buildRouter(), http.MethodGet, "/api/v1/consoles/0/transcript", nil, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}
