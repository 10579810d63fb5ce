// Copyright Contributors to the ingestctl project

// Package orchestrator implements the one-shot per-task pipeline: init
// a source, execute it, flatten and transform its output, hand the
// result to a destination, and emit lifecycle events at every stage.
// One Orchestrator value serves exactly one invocation; the manager
// constructs a fresh one per run and never retains it afterward.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/ingestctl/ingestor/api/ingestion"
	"github.com/ingestctl/ingestor/internal/eventbus"
)

// Orchestrator runs exactly one pipeline invocation for one task.
type Orchestrator struct {
	Task        *ingestion.Task
	Source      ingestion.Source
	Destination ingestion.Destination // nil when the task has no destination configured
	Transform   ingestion.Transformer
	Bus         *eventbus.Bus
	Log         logr.Logger
}

// Run executes the pipeline to completion, never returning an error:
// every failure mode is folded into the returned RunResult (Success
// false, a 4xx/5xx-style StatusCode, and a Message), mirroring the
// orchestrator's "catch everything, report via TaskFailed" contract.
func (o *Orchestrator) Run(ctx context.Context, payload ingestion.Payload) (result *ingestion.RunResult) {
	start := time.Now()
	result = &ingestion.RunResult{StartedAt: start}

	defer func() {
		if r := recover(); r != nil {
			o.fail(result, 500, fmt.Sprintf("panic: %v", r))
		}
		result.FinishedAt = time.Now()
	}()

	if err := o.Source.Init(ctx); err != nil {
		o.fail(result, 502, fmt.Sprintf("source init error: %v", err))
		return result
	}
	if closer, ok := o.Source.(ingestion.SourceCloser); ok {
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				o.Log.Error(cerr, "source close failed", "taskId", o.Task.ID)
			}
		}()
	}

	if err := ctx.Err(); err != nil {
		o.fail(result, 500, fmt.Sprintf("cancelled before execute: %v", err))
		return result
	}

	srcResult, err := o.Source.Execute(ctx, payload)
	if err != nil {
		o.fail(result, 502, fmt.Sprintf("source execute error: %v", err))
		return result
	}
	if !srcResult.Success {
		code := srcResult.Code
		if code == 0 {
			code = 502
		}
		o.fail(result, code, srcResult.Message)
		return result
	}

	o.publish(eventbus.EventDataFetched, srcResult)

	raw := flatten(srcResult.Data)
	if srcResult.Data == nil {
		o.Log.Info("source returned no data field", "taskId", o.Task.ID)
	}

	fetchedAt := time.Now()
	enriched := payload.Clone()
	enriched["fetchedAt"] = fetchedAt

	var records []ingestion.IngestionRecord
	if o.Transform != nil {
		records = o.Transform(raw, enriched)
	}
	o.publish(eventbus.EventDataTransformed, records)

	itemsProcessed := len(records)
	for _, rec := range records {
		if rec.StatusCode != 0 && rec.StatusCode != 200 {
			itemsProcessed--
		}
	}
	result.ItemsProcessed = itemsProcessed

	if o.Destination != nil {
		destConfig, _ := payload["destinationConfig"].(map[string]any)
		if err := o.Destination.Init(ctx, destConfig); err != nil {
			o.fail(result, 502, fmt.Sprintf("destination init error: %v", err))
			return result
		}
		destResult, err := o.Destination.ProcessData(ctx, records)
		if err != nil || !destResult.Success {
			msg := destResult.Message
			if err != nil {
				msg = err.Error()
			}
			o.fail(result, 502, fmt.Sprintf("destination error: %s", msg))
			return result
		}
	}
	o.publish(eventbus.EventDataProcessed, records)

	result.Success = true
	result.StatusCode = 200
	result.Cursors = cursorsFrom(srcResult.Data)

	o.publish(eventbus.EventTaskCompleted, result)
	return result
}

func (o *Orchestrator) fail(result *ingestion.RunResult, code int, message string) {
	result.Success = false
	result.StatusCode = code
	result.Message = message
	o.publish(eventbus.EventTaskFailed, result)
}

func (o *Orchestrator) publish(eventType eventbus.EventType, payload any) {
	if o.Bus == nil {
		return
	}
	taskID := ""
	if o.Task != nil {
		taskID = o.Task.ID
	}
	o.Bus.Publish(eventbus.Event{Type: eventType, TaskID: taskID, Payload: payload})
}

// flatten implements the lenient rule: SourceData.Data as a populated
// list wins; otherwise a Scalar is wrapped into a singleton list;
// absent data of either shape yields the empty list.
func flatten(data *ingestion.SourceData) []any {
	if data == nil {
		return nil
	}
	if data.Data != nil {
		return data.Data
	}
	if data.Scalar != nil {
		return []any{data.Scalar}
	}
	return nil
}

func cursorsFrom(data *ingestion.SourceData) *ingestion.Cursors {
	if data == nil {
		return nil
	}
	cursors := &ingestion.Cursors{
		StartPageToken:             data.StartPageToken,
		NextPageToken:              data.NextPageToken,
		OtherCrawlerSpecificTokens: data.OtherCrawlerSpecificTokens,
	}
	if cursors.IsEmpty() {
		return nil
	}
	return cursors
}
