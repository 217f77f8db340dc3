// internal/api/respond.go
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"leadcrm/internal/leads"
	"leadcrm/internal/storage"
)

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, apiError{Error: code, ErrorDescription: desc})
}

// readJSON decodes a request body, requiring a JSON content type and capping
// the body at 1MB.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if ct != "" && !strings.Contains(ct, "application/json") {
		writeError(w, http.StatusBadRequest, "invalid_json", "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return true
}

// serviceError maps domain errors onto the response taxonomy. Store internals
// are logged but never leaked to the caller.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, leads.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "lead not found")
	case errors.Is(err, storage.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "duplicate_email", "a lead with this email already exists")
	default:
		log.Printf("API: store error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong")
	}
}
