// Copyright Contributors to the ingestctl project

// Package ingestion defines the data model shared by every component of
// the ingestion lifecycle manager: tasks, triggers, the webhook registry,
// and the record shape passed between transformers and destinations.
package ingestion

import "time"

// TaskStatus is the machine-owned lifecycle state of a Task.
// +kubebuilder:validation:Enum=Scheduled;Running;Completed;Failed
type TaskStatus string

const (
	// TaskStatusScheduled means the task is registered but not currently running.
	TaskStatusScheduled TaskStatus = "Scheduled"
	// TaskStatusRunning means an orchestrator is currently executing for this task.
	TaskStatusRunning TaskStatus = "Running"
	// TaskStatusCompleted means the most recent run finished without error.
	TaskStatusCompleted TaskStatus = "Completed"
	// TaskStatusFailed means the most recent run, or a registration step, failed.
	TaskStatusFailed TaskStatus = "Failed"
)

// ChangeType classifies the intent of a webhook event.
type ChangeType string

const (
	ChangeTypeUpsert  ChangeType = "Upsert"
	ChangeTypeDelete  ChangeType = "Delete"
	ChangeTypeUnknown ChangeType = "Unknown"
)

// TriggerType is the tag of the Trigger variant. Code must switch on this
// tag, never infer the trigger kind from which optional fields are set.
type TriggerType string

const (
	TriggerManual  TriggerType = "Manual"
	TriggerCron    TriggerType = "Cron"
	TriggerWebhook TriggerType = "Webhook"
)

// PluginRef names a source or destination plugin and carries its
// plugin-specific configuration as an open map. The only place in the
// core that inspects keys inside Config is SourceIdentifierFor (§3.4).
type PluginRef struct {
	PluginType string         `json:"pluginType"`
	Config     map[string]any `json:"config,omitempty"`
}

// Trigger is a tagged variant: Manual | Cron | Webhook. Exactly one of
// the type-specific fields is meaningful, selected by Type.
type Trigger struct {
	Type TriggerType `json:"type"`

	// Cron fields.
	CronExpression string `json:"cronExpression,omitempty"`

	// Webhook fields. ExternalWebhookID and Secret are populated by the
	// manager after first registration (§4.6.1); they are empty on a
	// freshly-submitted task definition.
	EndpointID        string `json:"endpointId,omitempty"`
	CallbackURL       string `json:"callbackUrl,omitempty"`
	Credentials       string `json:"credentials,omitempty"`
	ExternalWebhookID string `json:"externalWebhookId,omitempty"`
	Secret            string `json:"secret,omitempty"`
}

// RunResult is the outcome of one orchestrator invocation, embedded into
// Task.LastRunStatus for observability.
type RunResult struct {
	Success        bool       `json:"success"`
	StatusCode     int        `json:"statusCode"`
	Message        string     `json:"message,omitempty"`
	ItemsProcessed int        `json:"itemsProcessed"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     time.Time  `json:"finishedAt"`
	Cursors        *Cursors   `json:"cursors,omitempty"`
}

// Cursors carries the continuation tokens a source may return. A nil
// *Cursors, or one with every field empty, means "no cursor update" and
// must never erase previously stored cursors (cursor monotonicity,
// spec.md §8 property 3).
type Cursors struct {
	StartPageToken             string         `json:"startPageToken,omitempty"`
	NextPageToken              string         `json:"nextPageToken,omitempty"`
	OtherCrawlerSpecificTokens map[string]any `json:"otherCrawlerSpecificTokens,omitempty"`
}

// IsEmpty reports whether a Cursors carries no information worth merging.
func (c *Cursors) IsEmpty() bool {
	return c == nil || (c.StartPageToken == "" && c.NextPageToken == "" && len(c.OtherCrawlerSpecificTokens) == 0)
}

// Task represents one ingestion job definition plus its live status.
type Task struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Enabled        bool       `json:"enabled"`
	Source         PluginRef  `json:"source"`
	Destination    *PluginRef `json:"destination,omitempty"`
	Trigger        Trigger    `json:"trigger"`
	CurrentStatus  TaskStatus `json:"currentStatus"`
	LastRun        *time.Time `json:"lastRun,omitempty"`
	LastRunStatus  *RunResult `json:"lastRunStatus,omitempty"`
}

// Clone returns a deep-enough copy of t so that callers mutating the
// returned value never alias the store's internal state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Destination != nil {
		d := *t.Destination
		d.Config = cloneMap(t.Destination.Config)
		cp.Destination = &d
	}
	cp.Source.Config = cloneMap(t.Source.Config)
	if t.LastRun != nil {
		lr := *t.LastRun
		cp.LastRun = &lr
	}
	if t.LastRunStatus != nil {
		rr := *t.LastRunStatus
		if t.LastRunStatus.Cursors != nil {
			cur := *t.LastRunStatus.Cursors
			cur.OtherCrawlerSpecificTokens = cloneMap(t.LastRunStatus.Cursors.OtherCrawlerSpecificTokens)
			rr.Cursors = &cur
		}
		cp.LastRunStatus = &rr
	}
	return &cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WebhookRegistryEntry is the shared subscription record for a single
// external resource, fanning out to every task registered against it.
type WebhookRegistryEntry struct {
	SourceIdentifier           string          `json:"sourceIdentifier"`
	EndpointID                 string          `json:"endpointId"`
	Secret                     string          `json:"secret"`
	ExternalWebhookID          string          `json:"externalWebhookId"`
	RegisteredTasks            map[string]bool `json:"registeredTasks"`
	StartPageToken             string          `json:"startPageToken,omitempty"`
	NextPageToken              string          `json:"nextPageToken,omitempty"`
	OtherCrawlerSpecificTokens map[string]any  `json:"otherCrawlerSpecificTokens,omitempty"`
	WebhookFlag                bool            `json:"webhookFlag"`
}

// Clone returns a deep-enough copy for safe external mutation.
func (e *WebhookRegistryEntry) Clone() *WebhookRegistryEntry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.RegisteredTasks = make(map[string]bool, len(e.RegisteredTasks))
	for k, v := range e.RegisteredTasks {
		cp.RegisteredTasks[k] = v
	}
	cp.OtherCrawlerSpecificTokens = cloneMap(e.OtherCrawlerSpecificTokens)
	return &cp
}

// TaskCount returns len(RegisteredTasks) defensively against a nil map.
func (e *WebhookRegistryEntry) TaskCount() int {
	if e == nil {
		return 0
	}
	return len(e.RegisteredTasks)
}

// IngestionRecord is the transformer/destination interchange record.
type IngestionRecord struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	URL        string         `json:"url,omitempty"`
	StatusCode int            `json:"statusCode"`
	FetchedAt  time.Time      `json:"fetchedAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
