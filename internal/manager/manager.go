// Copyright Contributors to the ingestctl project

// Package manager implements the LifecycleManager: the process-wide
// singleton that owns the store, the plugin registry, the webhook
// providers, and the event bus, and exposes task CRUD plus the three
// trigger entry points (manual, webhook, cron) that build an
// orchestrator and run it.
package manager

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ingestctl/ingestor/api/ingestion"
	"github.com/ingestctl/ingestor/internal/cronx"
	"github.com/ingestctl/ingestor/internal/eventbus"
	"github.com/ingestctl/ingestor/internal/metrics"
	"github.com/ingestctl/ingestor/internal/orchestrator"
	"github.com/ingestctl/ingestor/internal/plugin"
	"github.com/ingestctl/ingestor/internal/store"
	"github.com/ingestctl/ingestor/internal/webhookprovider"
	"github.com/ingestctl/ingestor/internal/webhookverify"
)

const defaultHistoryLimit = 20

// TaskPatch carries the fields UpdateTask should overwrite; a nil field
// leaves the existing value untouched.
type TaskPatch struct {
	Name        *string
	Enabled     *bool
	Source      *ingestion.PluginRef
	Destination *ingestion.PluginRef
	Trigger     *ingestion.Trigger
}

// Options configures a Manager. Store, Plugins, and Bus are required.
type Options struct {
	Store        store.Store
	Plugins      *plugin.Registry
	Bus          *eventbus.Bus
	Metrics      *metrics.Recorder
	Log          logr.Logger
	HistoryLimit int
}

// Manager is the LifecycleManager (spec §4.6, component C6). The zero
// value is not usable; construct with New.
type Manager struct {
	store   store.Store
	plugins *plugin.Registry
	bus     *eventbus.Bus
	metrics *metrics.Recorder
	log     logr.Logger

	providersMu sync.RWMutex
	providers   map[string]webhookprovider.WebhookProvider

	runningMu sync.Mutex
	running   map[string]bool

	historyMu    sync.Mutex
	history      map[string][]*ingestion.RunResult
	historyLimit int
}

// New constructs a Manager from opts.
func New(opts Options) *Manager {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &Manager{
		store:        opts.Store,
		plugins:      opts.Plugins,
		bus:          opts.Bus,
		metrics:      opts.Metrics,
		log:          opts.Log,
		providers:    make(map[string]webhookprovider.WebhookProvider),
		running:      make(map[string]bool),
		history:      make(map[string][]*ingestion.RunResult),
		historyLimit: limit,
	}
}

// RegisterWebhookProvider binds a WebhookProvider to the source plugin
// types it can serve (e.g. "git-crawler" -> GitHubProvider). Intended
// to be called at boot time only.
func (m *Manager) RegisterWebhookProvider(pluginType string, p webhookprovider.WebhookProvider) {
	m.providersMu.Lock()
	defer m.providersMu.Unlock()
	m.providers[pluginType] = p
}

func (m *Manager) providerFor(pluginType string) (webhookprovider.WebhookProvider, bool) {
	m.providersMu.RLock()
	defer m.providersMu.RUnlock()
	p, ok := m.providers[pluginType]
	return p, ok
}

// ScheduleTask assigns an id if absent, persists the task as Scheduled,
// and runs the webhook register flow (§4.6.1) for enabled webhook
// tasks. A duplicate id is a Conflict.
func (m *Manager) ScheduleTask(ctx context.Context, def *ingestion.Task) (*ingestion.Task, error) {
	task := def.Clone()
	if task.ID == "" {
		task.ID = uuid.NewString()
	} else {
		_, err := m.store.GetTask(ctx, task.ID)
		switch {
		case err == nil:
			return nil, fmt.Errorf("task %q: %w", task.ID, ingestion.ErrConflict)
		case !errors.Is(err, ingestion.ErrNotFound):
			return nil, err
		}
	}
	task.CurrentStatus = ingestion.TaskStatusScheduled

	if task.Enabled && task.Trigger.Type == ingestion.TriggerWebhook {
		if err := m.registerWebhookFlow(ctx, task); err != nil {
			task.CurrentStatus = ingestion.TaskStatusFailed
			_ = m.store.SaveTask(ctx, task)
			return nil, err
		}
	}
	if err := m.store.SaveTask(ctx, task); err != nil {
		return nil, err
	}
	m.publish(eventbus.EventTaskScheduled, task.ID, task)
	return task.Clone(), nil
}

// UpdateTask applies patch to the task identified by id, mirroring any
// trigger-type or sourceIdentifier change to the webhook registry.
func (m *Manager) UpdateTask(ctx context.Context, id string, patch TaskPatch) (*ingestion.Task, error) {
	existing, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	oldTriggerType := existing.Trigger.Type
	oldSourceIdentifier, _ := ingestion.SourceIdentifierFor(existing.Source)

	updated := existing.Clone()
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.Enabled != nil {
		updated.Enabled = *patch.Enabled
	}
	if patch.Source != nil {
		updated.Source = *patch.Source
	}
	if patch.Destination != nil {
		d := *patch.Destination
		updated.Destination = &d
	}
	if patch.Trigger != nil {
		updated.Trigger = *patch.Trigger
	}

	newTriggerType := updated.Trigger.Type
	newSourceIdentifier, _ := ingestion.SourceIdentifierFor(updated.Source)

	switch {
	case oldTriggerType == ingestion.TriggerWebhook && newTriggerType != ingestion.TriggerWebhook:
		if err := m.deregisterWebhookFlow(ctx, existing); err != nil {
			return nil, err
		}
	case newTriggerType == ingestion.TriggerWebhook && oldTriggerType != ingestion.TriggerWebhook:
		if updated.Enabled {
			if err := m.registerWebhookFlow(ctx, updated); err != nil {
				return nil, err
			}
		}
	case oldTriggerType == ingestion.TriggerWebhook && newTriggerType == ingestion.TriggerWebhook && oldSourceIdentifier != newSourceIdentifier:
		if err := m.deregisterWebhookFlow(ctx, existing); err != nil {
			return nil, err
		}
		if updated.Enabled {
			if err := m.registerWebhookFlow(ctx, updated); err != nil {
				return nil, err
			}
		}
	}

	saved, err := m.store.UpdateTask(ctx, updated.ID, func(*ingestion.Task) (*ingestion.Task, error) {
		return updated, nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(eventbus.EventTaskUpdated, saved.ID, saved)
	return saved, nil
}

// EnableTask is a no-op if the task is already enabled; otherwise it
// re-registers a webhook trigger (if any) and flips Enabled on.
func (m *Manager) EnableTask(ctx context.Context, id string) (*ingestion.Task, error) {
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Enabled {
		return task, nil
	}
	if task.Trigger.Type == ingestion.TriggerWebhook {
		if err := m.registerWebhookFlow(ctx, task); err != nil {
			return nil, err
		}
	}
	task.Enabled = true
	saved, err := m.store.UpdateTask(ctx, id, func(*ingestion.Task) (*ingestion.Task, error) {
		return task, nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(eventbus.EventTaskUpdated, saved.ID, saved)
	return saved, nil
}

// DisableTask is a no-op if the task is already disabled; otherwise it
// removes the task from its webhook registry entry (deregistering
// externally if the entry becomes empty) and flips Enabled off.
func (m *Manager) DisableTask(ctx context.Context, id string) (*ingestion.Task, error) {
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Enabled {
		return task, nil
	}
	if task.Trigger.Type == ingestion.TriggerWebhook {
		if err := m.deregisterWebhookFlow(ctx, task); err != nil {
			return nil, err
		}
	}
	task.Enabled = false
	saved, err := m.store.UpdateTask(ctx, id, func(*ingestion.Task) (*ingestion.Task, error) {
		return task, nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(eventbus.EventTaskUpdated, saved.ID, saved)
	return saved, nil
}

// DeleteTask runs the webhook deregister flow first (§4.6.2); if that
// fails, the task is retained and the error is surfaced.
func (m *Manager) DeleteTask(ctx context.Context, id string) error {
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task.Trigger.Type == ingestion.TriggerWebhook {
		if err := m.deregisterWebhookFlow(ctx, task); err != nil {
			return err
		}
	}
	if err := m.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	m.publish(eventbus.EventTaskDeleted, id, nil)
	return nil
}

// GetTask reads a single task from the store.
func (m *Manager) GetTask(ctx context.Context, id string) (*ingestion.Task, error) {
	return m.store.GetTask(ctx, id)
}

// ListTasks reads every task from the store.
func (m *Manager) ListTasks(ctx context.Context) ([]*ingestion.Task, error) {
	return m.store.ListTasks(ctx)
}

// ListTasksByTrigger filters ListTasks to a single trigger type.
func (m *Manager) ListTasksByTrigger(ctx context.Context, triggerType ingestion.TriggerType) ([]*ingestion.Task, error) {
	all, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*ingestion.Task, 0, len(all))
	for _, t := range all {
		if t.Trigger.Type == triggerType {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetTaskRunHistory returns up to limit most-recent run results for a
// task, oldest first. limit <= 0 returns the full retained history.
func (m *Manager) GetTaskRunHistory(id string, limit int) []*ingestion.RunResult {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	h := m.history[id]
	if limit <= 0 || limit > len(h) {
		limit = len(h)
	}
	out := make([]*ingestion.RunResult, limit)
	copy(out, h[len(h)-limit:])
	return out
}

// TriggerManual runs a task on demand. A disabled task is rejected with
// ErrDisabled (mapped to 403 by internal/httpapi per the resolved
// §9 open question).
func (m *Manager) TriggerManual(ctx context.Context, id string, payload ingestion.Payload) (*ingestion.RunResult, error) {
	task, err := m.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !task.Enabled {
		return nil, fmt.Errorf("task %q: %w", id, ingestion.ErrDisabled)
	}
	if payload == nil {
		payload = ingestion.Payload{}
	}
	payload["taskDefinition"] = task

	if sourceIdentifier, ok := ingestion.SourceIdentifierFor(task.Source); ok {
		entry, err := m.store.GetWebhookRegistration(ctx, sourceIdentifier)
		switch {
		case err == nil:
			enrichPayloadWithCursors(payload, entry)
		case !errors.Is(err, ingestion.ErrNotFound):
			return nil, err
		}
	}

	m.publish(eventbus.EventTaskTriggered, task.ID, task)
	return m.runOrchestrator(ctx, task, payload)
}

// TriggerWebhook implements the dispatch flow in §4.6.3. A nil error
// with a nil result means "processed, no interested subscription"
// (still a 200 at the HTTP layer); a nil error with a non-nil result
// is the first surviving task's run outcome.
func (m *Manager) TriggerWebhook(ctx context.Context, endpointID string, body []byte, headers http.Header) (*ingestion.RunResult, error) {
	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		m.observeWebhookOutcome(endpointID, "error")
		return nil, err
	}
	var matching []*ingestion.Task
	for _, t := range tasks {
		if t.Enabled && t.Trigger.Type == ingestion.TriggerWebhook && t.Trigger.EndpointID == endpointID {
			matching = append(matching, t)
		}
	}
	if len(matching) == 0 {
		m.observeWebhookOutcome(endpointID, "not-found")
		return nil, fmt.Errorf("endpoint %q: %w", endpointID, ingestion.ErrNotFound)
	}

	service, ok := serviceForPluginType(matching[0].Source.PluginType)
	if !ok {
		m.observeWebhookOutcome(endpointID, "unsupported-source")
		return nil, fmt.Errorf("endpoint %q: %w", endpointID, ingestion.ErrUnsupportedSource)
	}

	preliminary, err := webhookverify.Verify(service, headers, body, "")
	if err != nil {
		m.observeWebhookOutcome(endpointID, "invalid-payload")
		return nil, fmt.Errorf("%w: %v", ingestion.ErrInvalidPayload, err)
	}

	entry, err := m.store.GetWebhookRegistration(ctx, preliminary.ExternalResourceID)
	if errors.Is(err, ingestion.ErrNotFound) {
		m.observeWebhookOutcome(endpointID, "no-subscription")
		return nil, nil
	}
	if err != nil {
		m.observeWebhookOutcome(endpointID, "error")
		return nil, err
	}

	verified, err := webhookverify.Verify(service, headers, body, entry.Secret)
	if err != nil {
		m.observeWebhookOutcome(endpointID, "invalid-payload")
		return nil, fmt.Errorf("%w: %v", ingestion.ErrInvalidPayload, err)
	}
	if !verified.IsValid {
		m.observeWebhookOutcome(endpointID, "unauthorized")
		return nil, fmt.Errorf("endpoint %q: %w", endpointID, ingestion.ErrUnauthorized)
	}

	var surviving []*ingestion.Task
	for _, t := range matching {
		if entry.RegisteredTasks[t.ID] {
			surviving = append(surviving, t)
		}
	}
	if len(surviving) == 0 {
		m.observeWebhookOutcome(endpointID, "no-subscription")
		return nil, nil
	}

	results := make([]*ingestion.RunResult, len(surviving))
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for i, t := range surviving {
		i, t := i, t
		g.Go(func() error {
			payload := ingestion.Payload{
				"taskDefinition":     t,
				"webhookPayload":     verified.Payload,
				"externalResourceId": verified.ExternalResourceID,
				"changeType":         verified.ChangeType,
			}
			enrichPayloadWithCursors(payload, entry)
			m.publish(eventbus.EventTaskTriggered, t.ID, t)
			result, rerr := m.runOrchestrator(gctx, t, payload)
			if rerr != nil {
				m.log.Error(rerr, "webhook-triggered run did not start", "taskId", t.ID)
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	m.observeWebhookOutcome(endpointID, "processed")
	return results[0], nil
}

func (m *Manager) observeWebhookOutcome(endpointID, outcome string) {
	if m.metrics != nil {
		m.metrics.ObserveWebhookDispatch(endpointID, outcome)
	}
}

// TriggerAllEnabledCronTasks evaluates every enabled cron task against
// now and runs the due ones (§4.7). Invoked by an external tick
// source; this process owns no timer of its own.
func (m *Manager) TriggerAllEnabledCronTasks(ctx context.Context) ([]*ingestion.RunResult, error) {
	tasks, err := m.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	var due []*ingestion.Task
	for _, t := range tasks {
		if !t.Enabled || t.Trigger.Type != ingestion.TriggerCron {
			continue
		}
		evaluator, err := cronx.Parse(t.Trigger.CronExpression)
		if err != nil {
			m.log.Error(err, "invalid cron expression", "taskId", t.ID, "expression", t.Trigger.CronExpression)
			continue
		}
		var lastRun time.Time
		if t.LastRun != nil {
			lastRun = *t.LastRun
		}
		isDue := evaluator.IsDue(now, lastRun)
		if m.metrics != nil {
			m.metrics.ObserveCronDueCheck(t.ID, isDue)
		}
		if isDue {
			due = append(due, t)
		}
	}

	results := make([]*ingestion.RunResult, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, t := range due {
		i, t := i, t
		g.Go(func() error {
			payload := ingestion.Payload{"taskDefinition": t}
			if sourceIdentifier, ok := ingestion.SourceIdentifierFor(t.Source); ok {
				if entry, eerr := m.store.GetWebhookRegistration(gctx, sourceIdentifier); eerr == nil {
					enrichPayloadWithCursors(payload, entry)
				}
			}
			m.publish(eventbus.EventTaskTriggered, t.ID, t)
			result, rerr := m.runOrchestrator(gctx, t, payload)
			if rerr != nil {
				m.log.Error(rerr, "cron-triggered run did not start", "taskId", t.ID)
				return nil
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// runOrchestrator enforces the single-active-run-per-task lock, builds
// the per-run Source/Destination/Transformer, and executes one
// orchestrator pass.
func (m *Manager) runOrchestrator(ctx context.Context, task *ingestion.Task, payload ingestion.Payload) (*ingestion.RunResult, error) {
	if !m.tryBeginRun(task.ID) {
		return nil, fmt.Errorf("task %q: %w", task.ID, ingestion.ErrConflict)
	}
	defer m.endRun(task.ID)

	if _, err := m.store.UpdateTask(ctx, task.ID, func(t *ingestion.Task) (*ingestion.Task, error) {
		if t == nil {
			return nil, fmt.Errorf("task %q: %w", task.ID, ingestion.ErrNotFound)
		}
		t.CurrentStatus = ingestion.TaskStatusRunning
		return t, nil
	}); err != nil {
		return nil, err
	}

	src, err := m.plugins.NewSource(task.Source)
	if err != nil {
		result := failResult(400, fmt.Sprintf("building source: %v", err))
		m.finishRun(ctx, task, result)
		return result, nil
	}

	var dst ingestion.Destination
	if task.Destination != nil {
		dst, err = m.plugins.NewDestination(*task.Destination)
		if err != nil {
			result := failResult(400, fmt.Sprintf("building destination: %v", err))
			m.finishRun(ctx, task, result)
			return result, nil
		}
	}

	o := &orchestrator.Orchestrator{
		Task:        task,
		Source:      src,
		Destination: dst,
		Transform:   m.plugins.TransformerFor(task.Source.PluginType),
		Bus:         m.bus,
		Log:         m.log,
	}
	result := o.Run(ctx, payload)
	m.finishRun(ctx, task, result)
	return result, nil
}

func (m *Manager) finishRun(ctx context.Context, task *ingestion.Task, result *ingestion.RunResult) {
	status := ingestion.TaskStatusCompleted
	if !result.Success {
		status = ingestion.TaskStatusFailed
	}
	finishedAt := result.FinishedAt

	if _, err := m.store.UpdateTask(ctx, task.ID, func(t *ingestion.Task) (*ingestion.Task, error) {
		if t == nil {
			return nil, nil
		}
		t.CurrentStatus = status
		t.LastRun = &finishedAt
		t.LastRunStatus = result
		return t, nil
	}); err != nil {
		m.log.Error(err, "persisting run result failed", "taskId", task.ID)
	}

	m.recordHistory(task.ID, result)

	if m.metrics != nil {
		m.metrics.ObserveTaskRun(task.ID, string(status), result.FinishedAt.Sub(result.StartedAt).Seconds())
	}

	if result.Cursors != nil {
		if werr := m.writeBackCursors(ctx, task, result.Cursors); werr != nil {
			m.log.Error(werr, "cursor write-back failed", "taskId", task.ID)
		}
	}
}

func (m *Manager) recordHistory(taskID string, result *ingestion.RunResult) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	h := append(m.history[taskID], result)
	if len(h) > m.historyLimit {
		h = h[len(h)-m.historyLimit:]
	}
	m.history[taskID] = h
}

func (m *Manager) tryBeginRun(id string) bool {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	if m.running[id] {
		return false
	}
	m.running[id] = true
	return true
}

func (m *Manager) endRun(id string) {
	m.runningMu.Lock()
	defer m.runningMu.Unlock()
	delete(m.running, id)
}

func (m *Manager) publish(t eventbus.EventType, taskID string, payload any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: t, TaskID: taskID, Payload: payload})
}

// errSkipWriteBack signals writeBackCursors' UpdateWebhookRegistration
// callback to leave the store untouched instead of creating or
// deleting an entry.
var errSkipWriteBack = errors.New("manager: no webhook registry entry to write cursors back to")

// writeBackCursors implements §4.6.4: any run's cursors are merged into
// the matching WebhookRegistryEntry if one exists; if none exists and
// the task is webhook-triggered, a minimal entry is created to hold
// them; otherwise no write occurs.
func (m *Manager) writeBackCursors(ctx context.Context, task *ingestion.Task, cursors *ingestion.Cursors) error {
	if cursors.IsEmpty() {
		return nil
	}
	sourceIdentifier, ok := ingestion.SourceIdentifierFor(task.Source)
	if !ok {
		return nil
	}

	_, err := m.store.UpdateWebhookRegistration(ctx, sourceIdentifier, func(entry *ingestion.WebhookRegistryEntry) (*ingestion.WebhookRegistryEntry, error) {
		if entry == nil {
			if task.Trigger.Type != ingestion.TriggerWebhook {
				return nil, errSkipWriteBack
			}
			entry = &ingestion.WebhookRegistryEntry{
				SourceIdentifier: sourceIdentifier,
				EndpointID:       task.Trigger.EndpointID,
				RegisteredTasks:  map[string]bool{task.ID: true},
			}
		}
		mergeCursors(entry, cursors)
		return entry, nil
	})
	if errors.Is(err, errSkipWriteBack) {
		return nil
	}
	return err
}

func mergeCursors(entry *ingestion.WebhookRegistryEntry, cursors *ingestion.Cursors) {
	if cursors.StartPageToken != "" {
		entry.StartPageToken = cursors.StartPageToken
	}
	if cursors.NextPageToken != "" {
		entry.NextPageToken = cursors.NextPageToken
	}
	if len(cursors.OtherCrawlerSpecificTokens) > 0 {
		if entry.OtherCrawlerSpecificTokens == nil {
			entry.OtherCrawlerSpecificTokens = make(map[string]any, len(cursors.OtherCrawlerSpecificTokens))
		}
		for k, v := range cursors.OtherCrawlerSpecificTokens {
			entry.OtherCrawlerSpecificTokens[k] = v
		}
	}
}

// registerWebhookFlow implements §4.6.1.
func (m *Manager) registerWebhookFlow(ctx context.Context, task *ingestion.Task) error {
	sourceIdentifier, ok := ingestion.SourceIdentifierFor(task.Source)
	if !ok {
		return fmt.Errorf("task %q: %w", task.ID, ingestion.ErrUnsupportedSource)
	}

	_, err := m.store.GetWebhookRegistration(ctx, sourceIdentifier)
	switch {
	case err == nil:
		updated, uerr := m.store.UpdateWebhookRegistration(ctx, sourceIdentifier, func(e *ingestion.WebhookRegistryEntry) (*ingestion.WebhookRegistryEntry, error) {
			if e == nil {
				return nil, fmt.Errorf("webhook registration %q vanished: %w", sourceIdentifier, ingestion.ErrNotFound)
			}
			if e.RegisteredTasks == nil {
				e.RegisteredTasks = map[string]bool{}
			}
			e.RegisteredTasks[task.ID] = true
			return e, nil
		})
		if uerr != nil {
			return uerr
		}
		task.Trigger.ExternalWebhookID = updated.ExternalWebhookID
		task.Trigger.Secret = updated.Secret
		return nil

	case !errors.Is(err, ingestion.ErrNotFound):
		return err
	}

	provider, ok := m.providerFor(task.Source.PluginType)
	if !ok {
		return fmt.Errorf("task %q: %w", task.ID, ingestion.ErrUnsupportedSource)
	}

	secret := generateSecret()
	regCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	regResult, err := provider.Register(regCtx, webhookprovider.RegisterRequest{
		SourceIdentifier: sourceIdentifier,
		CallbackURL:      task.Trigger.CallbackURL,
		Secret:           secret,
		Credentials:      task.Trigger.Credentials,
	})
	if err != nil {
		return fmt.Errorf("registering webhook for %q: %v: %w", sourceIdentifier, err, ingestion.ErrUpstream)
	}

	newEntry := &ingestion.WebhookRegistryEntry{
		SourceIdentifier:  sourceIdentifier,
		EndpointID:        task.Trigger.EndpointID,
		Secret:            secret,
		ExternalWebhookID: regResult.ExternalWebhookID,
		RegisteredTasks:   map[string]bool{task.ID: true},
		WebhookFlag:       true,
	}
	if err := m.store.SaveWebhookRegistration(ctx, newEntry); err != nil {
		return err
	}
	task.Trigger.ExternalWebhookID = regResult.ExternalWebhookID
	task.Trigger.Secret = secret
	return nil
}

// deregisterWebhookFlow implements §4.6.2.
func (m *Manager) deregisterWebhookFlow(ctx context.Context, task *ingestion.Task) error {
	sourceIdentifier, ok := ingestion.SourceIdentifierFor(task.Source)
	if !ok {
		return nil
	}

	entry, err := m.store.GetWebhookRegistration(ctx, sourceIdentifier)
	if errors.Is(err, ingestion.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var becameEmpty bool
	if _, err := m.store.UpdateWebhookRegistration(ctx, sourceIdentifier, func(e *ingestion.WebhookRegistryEntry) (*ingestion.WebhookRegistryEntry, error) {
		if e == nil {
			return nil, nil
		}
		delete(e.RegisteredTasks, task.ID)
		becameEmpty = len(e.RegisteredTasks) == 0
		return e, nil
	}); err != nil {
		return err
	}
	if !becameEmpty {
		return nil
	}

	provider, ok := m.providerFor(task.Source.PluginType)
	if !ok {
		return m.store.DeleteWebhookRegistration(ctx, sourceIdentifier)
	}

	deregCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if derr := provider.Deregister(deregCtx, sourceIdentifier, entry.ExternalWebhookID, task.Trigger.Credentials); derr != nil {
		_, _ = m.store.UpdateWebhookRegistration(ctx, sourceIdentifier, func(e *ingestion.WebhookRegistryEntry) (*ingestion.WebhookRegistryEntry, error) {
			if e == nil {
				e = &ingestion.WebhookRegistryEntry{
					SourceIdentifier:  sourceIdentifier,
					EndpointID:        entry.EndpointID,
					Secret:            entry.Secret,
					ExternalWebhookID: entry.ExternalWebhookID,
					WebhookFlag:       entry.WebhookFlag,
				}
			}
			if e.RegisteredTasks == nil {
				e.RegisteredTasks = map[string]bool{}
			}
			e.RegisteredTasks[task.ID] = true
			return e, nil
		})
		return fmt.Errorf("deregistering webhook for %q: %v: %w", sourceIdentifier, derr, ingestion.ErrUpstream)
	}

	return m.store.DeleteWebhookRegistration(ctx, sourceIdentifier)
}

func enrichPayloadWithCursors(payload ingestion.Payload, entry *ingestion.WebhookRegistryEntry) {
	if entry.StartPageToken != "" {
		payload["startPageToken"] = entry.StartPageToken
	}
	if entry.NextPageToken != "" {
		payload["nextPageToken"] = entry.NextPageToken
	}
	if len(entry.OtherCrawlerSpecificTokens) > 0 {
		payload["otherCrawlerSpecificTokens"] = entry.OtherCrawlerSpecificTokens
	}
}

func serviceForPluginType(pluginType string) (webhookverify.Service, bool) {
	switch pluginType {
	case ingestion.PluginGitCrawler:
		return webhookverify.ServiceGit, true
	case ingestion.PluginGoogleDriveCrawler:
		return webhookverify.ServiceDrive, true
	default:
		return "", false
	}
}

func generateSecret() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on the standard reader only fails if the OS
		// entropy source itself is broken; there is no sane fallback.
		panic(fmt.Sprintf("manager: reading random secret: %v", err))
	}
	return hex.EncodeToString(buf)
}

func failResult(code int, message string) *ingestion.RunResult {
	now := time.Now()
	return &ingestion.RunResult{Success: false, StatusCode: code, Message: message, StartedAt: now, FinishedAt: now}
}
