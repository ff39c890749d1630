package api

import (
	"encoding/json"
	"net/http"
)

// Error represents a structured API error response.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Standard error codes returned by the API.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeConflict         = "conflict"
	ErrCodeInternal         = "internal_error"
	ErrCodeValidation       = "validation_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent, nothing to do
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, apiErr Error) {
	writeJSON(w, apiErr.Status, map[string]any{
		"error": apiErr,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusBadRequest, Code: ErrCodeBadRequest, Message: message})
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusNotFound, Code: ErrCodeNotFound, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusUnauthorized, Code: ErrCodeUnauthorized, Message: message})
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusForbidden, Code: ErrCodeForbidden, Message: message})
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, Error{Status: http.StatusInternalServerError, Code: ErrCodeInternal, Message: message})
}
