package httpapi

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// webhookIngress implements the HTTP edge of §4.6.3/§6.4: read the raw
// body (needed intact for HMAC verification, so no JSON decoding here),
// hand it to the manager, and translate the three-way result into a
// status code. A (nil, nil) from the manager means "processed, no
// interested subscription" and is still a 200.
func (s *Server) webhookIngress(w http.ResponseWriter, r *http.Request) {
	endpointID := chi.URLParam(r, "endpointId")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, errBadRequest(err))
		return
	}

	result, err := s.opts.Manager.TriggerWebhook(r.Context(), endpointID, body, r.Header)
	if err != nil {
		writeError(w, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
