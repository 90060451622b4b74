package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"taskforge.org/internal/audit"
	"taskforge.org/internal/identity"
	"taskforge.org/internal/tracker"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeDomainError maps sentinel domain errors onto status codes. Denials
// surface the rule-level reason and are audit-logged; everything unmapped
// is a 500 with a generic body.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound), errors.Is(err, tracker.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, tracker.ErrForbidden):
		reason := denialReason(err)
		audit.Denied(r.Context(), r.Method, r.URL.Path, reason)
		writeError(w, r, http.StatusForbidden, reason)
	case errors.Is(err, identity.ErrInvalidInput), errors.Is(err, tracker.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrInactiveAccount):
		// Credential failures collapse so callers cannot probe accounts.
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// denialReason strips the sentinel prefix, leaving the rule's own words.
func denialReason(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, "forbidden: "); idx >= 0 {
		return msg[idx+len("forbidden: "):]
	}
	return "forbidden"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
