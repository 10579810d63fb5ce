package ingestion

import "context"

// Payload is the open map threaded through Source.Execute. Recognized
// keys (spec.md §6.1): taskDefinition, webhookPayload, externalResourceId,
// changeType, startPageToken, nextPageToken, otherCrawlerSpecificTokens.
// A source behaves as a full scan when "webhookPayload" is absent, and as
// a delta sync otherwise.
type Payload map[string]any

// Clone returns a shallow copy, safe for the orchestrator to augment
// (e.g. with fetchedAt) without mutating the caller's map.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// SourceData is the "data" field of a SourceResult. Data may be a single
// raw record, a list of raw records (under the nested Data field), or
// nil. The orchestrator's flattening rule (spec.md §4.5 step 3, §9) is
// lenient about which shape shows up.
type SourceData struct {
	// Data, when non-nil, is a list of raw records. Strict sources
	// SHOULD always populate this rather than the singular Scalar field.
	Data []any `json:"data,omitempty"`
	// Scalar holds a single raw record when the source did not wrap it
	// in a list. Only meaningful when Data is nil.
	Scalar any `json:"scalar,omitempty"`

	StartPageToken             string         `json:"startPageToken,omitempty"`
	NextPageToken              string         `json:"nextPageToken,omitempty"`
	OtherCrawlerSpecificTokens map[string]any `json:"otherCrawlerSpecificTokens,omitempty"`
}

// SourceResult is returned by Source.Execute.
type SourceResult struct {
	Success bool
	Code    int
	Message string
	Data    *SourceData
}

// Source is the uniform contract every concrete crawler (git-clone-and-walk,
// Drive-list-and-export, HTTP crawl) is reduced to. Concrete
// implementations are out of scope for this repository (spec.md §1);
// this interface is what the orchestrator consumes.
type Source interface {
	// Init prepares the source (e.g. opening a temp directory, an HTTP
	// client). Failure short-circuits the run with InitError.
	Init(ctx context.Context) error
	// Execute runs one full-scan or delta-sync pass, depending on
	// whether payload["webhookPayload"] is set.
	Execute(ctx context.Context, payload Payload) (SourceResult, error)
}

// SourceCloser is an optional extension a Source may implement to
// release resources (temp directories, HTTP clients) on every exit path
// of a run. The orchestrator calls Close in a defer immediately after a
// successful Init, mirroring spec.md §5's "released on all exit paths".
type SourceCloser interface {
	Close() error
}

// Transformer converts raw records plus the fetch-time-augmented payload
// into the uniform IngestionRecord stream. Must be total: per-item
// failures are encoded as records with a non-200 StatusCode, never as a
// returned error.
type Transformer func(raw []any, payload Payload) []IngestionRecord

// DestinationResult is returned by Destination.ProcessData.
type DestinationResult struct {
	Success bool
	Message string
}

// Destination is the uniform contract for a sink. Absent on a task,
// results are emitted as events only (no delivery).
type Destination interface {
	Init(ctx context.Context, config map[string]any) error
	ProcessData(ctx context.Context, records []IngestionRecord) (DestinationResult, error)
}

// SourceFactory constructs a per-run Source instance bound to a task's
// source config. Registered once per plugin type at boot time.
type SourceFactory func(config map[string]any) (Source, error)

// DestinationFactory constructs a per-run Destination instance.
type DestinationFactory func(config map[string]any) (Destination, error)
