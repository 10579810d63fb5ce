// Copyright Contributors to the ingestctl project

// Package store owns the durable state of the ingestion lifecycle
// manager: Task definitions and the WebhookRegistryEntry fan-out table.
// Every method returns values safe to mutate (see ingestion.Task.Clone)
// and is safe for concurrent use.
package store

import (
	"context"

	"github.com/ingestctl/ingestor/api/ingestion"
)

// Store is the persistence contract the manager depends on. Two
// implementations are provided: an in-memory Store for tests and
// single-process ephemeral deployments, and a Bitcask-backed Store for
// durability across restarts.
type Store interface {
	GetTask(ctx context.Context, id string) (*ingestion.Task, error)
	// SaveTask creates a new task. It fails with ingestion.ErrConflict,
	// atomically with respect to concurrent callers, if a task with the
	// same id already exists; callers that intend to replace an
	// existing task's fields use UpdateTask instead.
	SaveTask(ctx context.Context, task *ingestion.Task) error
	// UpdateTask applies fn to the current stored value under the
	// per-key lock and persists the result, returning the updated task.
	// fn receives nil if the task does not exist.
	UpdateTask(ctx context.Context, id string, fn func(*ingestion.Task) (*ingestion.Task, error)) (*ingestion.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context) ([]*ingestion.Task, error)

	GetWebhookRegistration(ctx context.Context, sourceIdentifier string) (*ingestion.WebhookRegistryEntry, error)
	SaveWebhookRegistration(ctx context.Context, entry *ingestion.WebhookRegistryEntry) error
	UpdateWebhookRegistration(ctx context.Context, sourceIdentifier string, fn func(*ingestion.WebhookRegistryEntry) (*ingestion.WebhookRegistryEntry, error)) (*ingestion.WebhookRegistryEntry, error)
	DeleteWebhookRegistration(ctx context.Context, sourceIdentifier string) error
	ListWebhookRegistrations(ctx context.Context) ([]*ingestion.WebhookRegistryEntry, error)

	// Close releases any resources held by the backend (file handles,
	// background compaction goroutines). Safe to call on the in-memory
	// backend as a no-op.
	Close() error
}
