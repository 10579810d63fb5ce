package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ingestctl/ingestor/api/ingestion"
)

// writeError maps the ingestion error taxonomy (spec.md §7) onto HTTP
// status codes and writes a small JSON body describing the failure.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ingestion.ErrInvalidPayload):
		status = http.StatusBadRequest
	case errors.Is(err, ingestion.ErrUnsupportedSource):
		status = http.StatusBadRequest
	case errors.Is(err, ingestion.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, ingestion.ErrDisabled):
		status = http.StatusForbidden
	case errors.Is(err, ingestion.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ingestion.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ingestion.ErrUpstream):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, errBadRequest(err))
		return false
	}
	return true
}

func errBadRequest(err error) error {
	return &wrappedInvalidPayload{err: err}
}

type wrappedInvalidPayload struct{ err error }

func (w *wrappedInvalidPayload) Error() string { return "invalid payload: " + w.err.Error() }
func (w *wrappedInvalidPayload) Unwrap() error { return ingestion.ErrInvalidPayload }
