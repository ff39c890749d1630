package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/conmux/conmux/internal/console"
	"github.com/conmux/conmux/internal/transcript"
)

// maxInReadSize caps a single aggregate or direct read request.
const maxInReadSize = 64 * 1024

// consoleView is the JSON representation of a registered console device.
type consoleView struct {
	ID     uint16   `json:"id"`
	Name   string   `json:"name"`
	Flags  []string `json:"flags"`
	Stdin  bool     `json:"stdin"`
	Stdout bool     `json:"stdout"`
}

func newConsoleView(dev *console.Device) consoleView {
	flags := []string{}
	stdin := dev.Flags()&console.FlagStdin != 0
	stdout := dev.Flags()&console.FlagStdout != 0
	if stdin {
		flags = append(flags, "stdin")
	}
	if stdout {
		flags = append(flags, "stdout")
	}
	return consoleView{
		ID:     dev.ID(),
		Name:   dev.Name(),
		Flags:  flags,
		Stdin:  stdin,
		Stdout: stdout,
	}
}

// writeRequest is the JSON body for output injection endpoints.
type writeRequest struct {
	Data string `json:"data"` // base64 encoded bytes
}

func (req *writeRequest) decode() ([]byte, error) {
	return base64.StdEncoding.DecodeString(req.Data)
}

// handleListConsoles returns every registered console device.
func (s *Server) handleListConsoles(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Devices()
	views := make([]consoleView, 0, len(devices))
	for _, dev := range devices {
		views = append(views, newConsoleView(dev))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consoles": views,
		"count":    len(views),
	})
}

// handleGetConsole returns a single console device by id.
func (s *Server) handleGetConsole(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.deviceFromURL(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newConsoleView(dev))
}

// handleBroadcastOut writes bytes to every stdout console.
func (s *Server) handleBroadcastOut(w http.ResponseWriter, r *http.Request) {
	if !canWrite(r.Context()) {
		writeForbidden(w, "role cannot write to consoles")
		return
	}

	data, ok := decodeWriteBody(w, r)
	if !ok {
		return
	}

	n, err := s.registry.Out(data)
	if err != nil {
		writeInternalError(w, "console write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"written": n})
}

// handleAggregateIn drains pending input from every stdin console.
func (s *Server) handleAggregateIn(w http.ResponseWriter, r *http.Request) {
	if !canWrite(r.Context()) {
		writeForbidden(w, "role cannot read console input")
		return
	}

	size, ok := readSizeFromQuery(w, r)
	if !ok {
		return
	}

	buf := make([]byte, size)
	n, err := s.registry.In(buf)
	if err != nil {
		writeInternalError(w, "console read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": base64.StdEncoding.EncodeToString(buf[:n]),
		"read": n,
	})
}

// handleDirectOut writes bytes to one console, bypassing stream roles.
func (s *Server) handleDirectOut(w http.ResponseWriter, r *http.Request) {
	if !canWrite(r.Context()) {
		writeForbidden(w, "role cannot write to consoles")
		return
	}

	dev, ok := s.deviceFromURL(w, r)
	if !ok {
		return
	}

	data, ok := decodeWriteBody(w, r)
	if !ok {
		return
	}

	n, err := s.registry.OutDirect(dev, data)
	if err != nil {
		writeInternalError(w, "console write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"written": n})
}

// handleDirectIn reads pending bytes from one console, bypassing stream roles.
func (s *Server) handleDirectIn(w http.ResponseWriter, r *http.Request) {
	if !canWrite(r.Context()) {
		writeForbidden(w, "role cannot read console input")
		return
	}

	dev, ok := s.deviceFromURL(w, r)
	if !ok {
		return
	}

	size, ok := readSizeFromQuery(w, r)
	if !ok {
		return
	}

	buf := make([]byte, size)
	n, err := s.registry.InDirect(dev, buf)
	if err != nil {
		writeInternalError(w, "console read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": base64.StdEncoding.EncodeToString(buf[:n]),
		"read": n,
	})
}

// handleTranscript lists recorded sessions for a console, or the chunks
// of one session when ?session=<uuid> is given.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		writeNotFound(w, "transcript recording is not enabled")
		return
	}

	dev, ok := s.deviceFromURL(w, r)
	if !ok {
		return
	}

	if sessionID := r.URL.Query().Get("session"); sessionID != "" {
		session, err := s.transcripts.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, transcript.ErrSessionNotFound) {
				writeNotFound(w, "session not found")
				return
			}
			writeInternalError(w, "transcript lookup failed")
			return
		}
		// A session id from another console must not leak its chunks.
		if session.ConsoleName != dev.Name() {
			writeNotFound(w, "session not found")
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeBadRequest(w, "limit must be a non-negative integer")
				return
			}
			limit = parsed
		}

		chunks, err := s.transcripts.GetChunks(r.Context(), sessionID, limit)
		if err != nil {
			writeInternalError(w, "transcript lookup failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session": sessionID,
			"chunks":  chunks,
			"count":   len(chunks),
		})
		return
	}

	sessions, err := s.transcripts.GetSessions(r.Context(), dev.Name(), 0)
	if err != nil {
		writeInternalError(w, "transcript lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"console":  dev.Name(),
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// deviceFromURL resolves the {id} URL parameter into a registered device,
// writing the error response itself on failure.
func (s *Server) deviceFromURL(w http.ResponseWriter, r *http.Request) (*console.Device, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		writeBadRequest(w, "console id must be an unsigned integer")
		return nil, false
	}

	dev, err := s.registry.Get(uint16(id))
	if err != nil {
		if errors.Is(err, console.ErrDeviceNotFound) {
			writeNotFound(w, "console not found")
			return nil, false
		}
		writeInternalError(w, "console lookup failed")
		return nil, false
	}
	return dev, true
}

// decodeWriteBody parses and base64-decodes a writeRequest body, writing
// the error response itself on failure.
func decodeWriteBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return nil, false
	}
	data, err := req.decode()
	if err != nil {
		writeBadRequest(w, "data must be base64 encoded")
		return nil, false
	}
	if len(data) == 0 {
		writeBadRequest(w, "data must not be empty")
		return nil, false
	}
	return data, true
}

// readSizeFromQuery parses the optional ?size= parameter, clamped to
// maxInReadSize and defaulting to 4096.
func readSizeFromQuery(w http.ResponseWriter, r *http.Request) (int, bool) {
	size := 4096
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "size must be a positive integer")
			return 0, false
		}
		size = parsed
	}
	if size > maxInReadSize {
		size = maxInReadSize
	}
	return size, true
}
