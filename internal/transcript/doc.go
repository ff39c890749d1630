// Package transcript persists console output to SQLite.
//
// A session represents one capture run against one console; the bytes
// the console emits are stored as ordered chunks within that session.
// Transcripts survive daemon restarts, so crash output from a guest can
// be read back after the fact.
//
// # Key Types
//
//   - Session: one capture run, identified by UUID
//   - Chunk: an ordered run of captured bytes
//   - Repository: storage interface, implemented by SQLiteRepository
//   - Sink: a write-only console backend that buffers output and flushes
//     it to the repository in the background
//
// # Usage
//
//	repo := transcript.NewSQLiteRepository(db.DB)
//	sink, err := transcript.NewSink(ctx, repo, transcript.SinkConfig{
//	    ConsoleName: "guest0",
//	    NodeID:      "node-001",
//	})
//	dev := console.NewDevice("transcript", sink, console.FlagStdout)
//	registry.Register(dev)
//
// The sink is registered as a STDOUT-only console, so every broadcast
// write lands in the transcript without the callers knowing about it.
package transcript
