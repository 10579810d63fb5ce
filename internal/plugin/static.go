package plugin

import (
	"context"
	"fmt"

	"github.com/ingestctl/ingestor/api/ingestion"
)

// StaticSource is a Source whose Execute result is supplied up front.
// Useful for tests exercising the orchestrator and manager without a
// real crawler, and as a reference implementation of the Source
// contract.
type StaticSource struct {
	Result      ingestion.SourceResult
	ResultErr   error
	InitErr     error
	Closed      bool
	ExecuteCall func(ctx context.Context, payload ingestion.Payload)
}

var _ ingestion.Source = (*StaticSource)(nil)
var _ ingestion.SourceCloser = (*StaticSource)(nil)

func (s *StaticSource) Init(ctx context.Context) error {
	return s.InitErr
}

func (s *StaticSource) Execute(ctx context.Context, payload ingestion.Payload) (ingestion.SourceResult, error) {
	if s.ExecuteCall != nil {
		s.ExecuteCall(ctx, payload)
	}
	return s.Result, s.ResultErr
}

func (s *StaticSource) Close() error {
	s.Closed = true
	return nil
}

// NoopDestination delivers records nowhere; it only appends each batch
// it receives to Records and reports success. The serve command
// registers NewNoopDestinationFactory under the "noop" plugin type.
type NoopDestination struct {
	Records []ingestion.IngestionRecord
}

var _ ingestion.Destination = (*NoopDestination)(nil)

func (d *NoopDestination) Init(ctx context.Context, config map[string]any) error {
	return nil
}

func (d *NoopDestination) ProcessData(ctx context.Context, records []ingestion.IngestionRecord) (ingestion.DestinationResult, error) {
	d.Records = append(d.Records, records...)
	return ingestion.DestinationResult{Success: true, Message: fmt.Sprintf("accepted %d records", len(records))}, nil
}

// NewNoopDestinationFactory returns a DestinationFactory producing a
// fresh NoopDestination per run.
func NewNoopDestinationFactory() ingestion.DestinationFactory {
	return func(config map[string]any) (ingestion.Destination, error) {
		return &NoopDestination{}, nil
	}
}
