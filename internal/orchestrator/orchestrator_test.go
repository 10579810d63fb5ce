package orchestrator

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"

	"github.com/ingestctl/ingestor/api/ingestion"
	"github.com/ingestctl/ingestor/internal/eventbus"
	"github.com/ingestctl/ingestor/internal/plugin"
)

func upperCaseTransform(raw []any, _ ingestion.Payload) []ingestion.IngestionRecord {
	out := make([]ingestion.IngestionRecord, 0, len(raw))
	for i, r := range raw {
		s, _ := r.(string)
		out = append(out, ingestion.IngestionRecord{ID: s, Content: s, StatusCode: 200, Metadata: map[string]any{"index": i}})
	}
	return out
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx  context.Context
		task *ingestion.Task
		bus  *eventbus.Bus
		dest *plugin.NoopDestination
	)

	BeforeEach(func() {
		ctx = context.Background()
		task = &ingestion.Task{ID: "t1", Name: "example"}
		bus = eventbus.New(logr.Discard())
		dest = &plugin.NoopDestination{}
	})

	It("runs a successful pipeline end to end", func() {
		var completedEvents []eventbus.Event
		bus.Subscribe(eventbus.EventTaskCompleted, func(e eventbus.Event) { completedEvents = append(completedEvents, e) })

		src := &plugin.StaticSource{
			Result: ingestion.SourceResult{
				Success: true,
				Data: &ingestion.SourceData{
					Data:          []any{"a", "b"},
					NextPageToken: "n1",
				},
			},
		}

		o := &Orchestrator{Task: task, Source: src, Destination: dest, Transform: upperCaseTransform, Bus: bus, Log: logr.Discard()}
		result := o.Run(ctx, ingestion.Payload{})

		Expect(result.Success).To(BeTrue())
		Expect(result.StatusCode).To(Equal(200))
		Expect(result.ItemsProcessed).To(Equal(2))
		Expect(result.Cursors).NotTo(BeNil())
		Expect(result.Cursors.NextPageToken).To(Equal("n1"))
		Expect(dest.Records).To(HaveLen(2))
		Expect(completedEvents).To(HaveLen(1))
		Expect(src.Closed).To(BeTrue())
	})

	It("fails with InitError when source Init fails", func() {
		src := &plugin.StaticSource{InitErr: errors.New("boom")}
		o := &Orchestrator{Task: task, Source: src, Destination: dest, Transform: upperCaseTransform, Bus: bus, Log: logr.Discard()}

		var failedEvents []eventbus.Event
		bus.Subscribe(eventbus.EventTaskFailed, func(e eventbus.Event) { failedEvents = append(failedEvents, e) })

		result := o.Run(ctx, ingestion.Payload{})

		Expect(result.Success).To(BeFalse())
		Expect(result.StatusCode).To(Equal(502))
		Expect(failedEvents).To(HaveLen(1))
	})

	It("recovers from a panicking source and reports TaskFailed", func() {
		src := &plugin.StaticSource{
			ExecuteCall: func(ctx context.Context, payload ingestion.Payload) { panic("unexpected") },
		}
		o := &Orchestrator{Task: task, Source: src, Destination: dest, Transform: upperCaseTransform, Bus: bus, Log: logr.Discard()}

		result := o.Run(ctx, ingestion.Payload{})

		Expect(result.Success).To(BeFalse())
		Expect(result.StatusCode).To(Equal(500))
	})

	It("treats a scalar SourceData.Data as a singleton list", func() {
		src := &plugin.StaticSource{
			Result: ingestion.SourceResult{
				Success: true,
				Data:    &ingestion.SourceData{Scalar: "only-one"},
			},
		}
		o := &Orchestrator{Task: task, Source: src, Destination: dest, Transform: upperCaseTransform, Bus: bus, Log: logr.Discard()}

		result := o.Run(ctx, ingestion.Payload{})

		Expect(result.Success).To(BeTrue())
		Expect(result.ItemsProcessed).To(Equal(1))
	})

	It("does not overwrite cursors when the run returns none", func() {
		src := &plugin.StaticSource{Result: ingestion.SourceResult{Success: true, Data: &ingestion.SourceData{Data: []any{"a"}}}}
		o := &Orchestrator{Task: task, Source: src, Destination: dest, Transform: upperCaseTransform, Bus: bus, Log: logr.Discard()}

		result := o.Run(ctx, ingestion.Payload{})

		Expect(result.Success).To(BeTrue())
		Expect(result.Cursors).To(BeNil())
	})

	It("reports DestinationError when the destination fails", func() {
		src := &plugin.StaticSource{Result: ingestion.SourceResult{Success: true, Data: &ingestion.SourceData{Data: []any{"a"}}}}
		o := &Orchestrator{
			Task:      task,
			Source:    src,
			Transform: upperCaseTransform,
			Bus:       bus,
			Log:       logr.Discard(),
			Destination: destinationFunc(func(ctx context.Context, records []ingestion.IngestionRecord) (ingestion.DestinationResult, error) {
				return ingestion.DestinationResult{}, errors.New("sink unavailable")
			}),
		}

		result := o.Run(ctx, ingestion.Payload{})

		Expect(result.Success).To(BeFalse())
		Expect(result.StatusCode).To(Equal(502))
	})
})

// destinationFunc adapts a ProcessData closure to ingestion.Destination for
// tests that only care about the ProcessData outcome.
type destinationFunc func(ctx context.Context, records []ingestion.IngestionRecord) (ingestion.DestinationResult, error)

func (f destinationFunc) Init(ctx context.Context, config map[string]any) error { return nil }
func (f destinationFunc) ProcessData(ctx context.Context, records []ingestion.IngestionRecord) (ingestion.DestinationResult, error) {
	return f(ctx, records)
}
