package transcript

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultFlushInterval is how often buffered output is persisted.
	DefaultFlushInterval = time.Second

	// DefaultMaxChunkSize bounds the bytes stored per chunk row.
	DefaultMaxChunkSize = 4096

	// maxBufferSize bounds buffered output while the database stalls.
	// Oldest bytes are dropped first; a transcript with a gap beats an
	// unbounded heap.
	maxBufferSize = 1 << 20

	// flushTimeout bounds each background flush.
	flushTimeout = 5 * time.Second
)

// Logger is the subset of logging the sink uses.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SinkConfig configures a transcript sink.
type SinkConfig struct {
	// ConsoleName names the console being captured.
	ConsoleName string

	// NodeID identifies the host, stored on the session row.
	NodeID string

	// FlushInterval is how often buffered bytes are written out.
	// Zero selects DefaultFlushInterval.
	FlushInterval time.Duration

	// MaxChunkSize bounds bytes per stored chunk.
	// Zero selects DefaultMaxChunkSize.
	MaxChunkSize int

	// Logger receives flush errors. nil discards them.
	Logger Logger
}

// Sink is a write-only console backend that captures broadcast output
// into a transcript session.
//
// Out buffers bytes and returns immediately; a background goroutine
// flushes the buffer to the repository. In always reports zero bytes,
// a transcript has no input to offer.
type Sink struct {
	repo     Repository
	session  Session
	maxChunk int
	logger   Logger

	mu      sync.Mutex
	buf     []byte
	dropped int
	seq     int64

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSink opens a new capture session and starts the background flush
// loop. Call Close to end the session.
func NewSink(ctx context.Context, repo Repository, cfg SinkConfig) (*Sink, error) {
	if repo == nil {
		return nil, errors.New("transcript: nil repository")
	}
	if cfg.ConsoleName == "" {
		return nil, errors.New("transcript: console name is required")
	}

	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	maxChunk := cfg.MaxChunkSize
	if maxChunk <= 0 {
		maxChunk = DefaultMaxChunkSize
	}

	session := Session{
		ID:          uuid.New().String(),
		ConsoleName: cfg.ConsoleName,
		NodeID:      cfg.NodeID,
		StartedAt:   time.Now().UTC(),
	}
	if err := repo.StartSession(ctx, session); err != nil {
		return nil, err
	}

	s := &Sink{
		repo:     repo,
		session:  session,
		maxChunk: maxChunk,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go s.flushLoop(interval)

	return s, nil
}

// SessionID returns the UUID of the capture session.
func (s *Sink) SessionID() string {
	return s.session.ID
}

// Out buffers p for the next flush. It never blocks on the database.
func (s *Sink) Out(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf)+len(p) > maxBufferSize {
		over := len(s.buf) + len(p) - maxBufferSize
		if over >= len(s.buf) {
			s.dropped += len(s.buf)
			s.buf = s.buf[:0]
		} else {
			s.dropped += over
			s.buf = s.buf[over:]
		}
	}
	if len(p) > maxBufferSize {
		s.dropped += len(p) - maxBufferSize
		p = p[len(p)-maxBufferSize:]
	}
	s.buf = append(s.buf, p...)

	return len(p), nil
}

// In reports no input; the sink is write-only.
func (s *Sink) In(p []byte) (int, error) {
	return 0, nil
}

// flushLoop periodically persists the buffer until Close.
func (s *Sink) flushLoop(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stop:
			return
		}
	}
}

// flush writes the buffered bytes out as chunks of at most maxChunk bytes.
func (s *Sink) flush() {
	s.mu.Lock()
	if len(s.buf) == 0 {
		s.mu.Unlock()
		return
	}
	data := s.buf
	s.buf = nil
	dropped := s.dropped
	s.dropped = 0
	s.mu.Unlock()

	if dropped > 0 && s.logger != nil {
		s.logger.Warn("transcript buffer overflow, output dropped",
			"session_id", s.session.ID,
			"dropped_bytes", dropped,
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for len(data) > 0 {
		n := len(data)
		if n > s.maxChunk {
			n = s.maxChunk
		}

		chunk := Chunk{
			SessionID:  s.session.ID,
			Seq:        s.seq,
			CapturedAt: time.Now().UTC(),
			Data:       data[:n],
		}
		if err := s.repo.AppendChunk(ctx, chunk); err != nil {
			if s.logger != nil {
				s.logger.Error("transcript flush failed",
					"session_id", s.session.ID,
					"error", err,
				)
			}
			// Requeue what we could not store.
			s.mu.Lock()
			s.buf = append(append([]byte(nil), data...), s.buf...)
			s.mu.Unlock()
			return
		}

		s.seq++
		data = data[n:]
	}
}

// Close flushes remaining output and ends the session.
func (s *Sink) Close(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done

	s.flush()

	return s.repo.EndSession(ctx, s.session.ID, time.Now().UTC())
}
