package ingestion

import "errors"

// Error taxonomy (spec.md §7). Callers use errors.Is against these
// sentinels; HTTP layers map them to status codes (internal/httpapi).
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrDisabled       = errors.New("task is disabled")
	ErrUnsupportedSource = errors.New("unsupported source plugin type")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUpstream       = errors.New("upstream error")
	ErrInvalidPayload = errors.New("invalid payload")
)
