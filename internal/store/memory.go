package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ingestctl/ingestor/api/ingestion"
)

// memoryStore is a Store backed by plain maps guarded by a single
// RWMutex. Sufficient for tests and for deployments that accept losing
// task state across restarts.
type memoryStore struct {
	mu        sync.RWMutex
	tasks     map[string]*ingestion.Task
	webhooks  map[string]*ingestion.WebhookRegistryEntry
}

// NewMemory returns an empty in-memory Store.
func NewMemory() Store {
	return &memoryStore{
		tasks:    make(map[string]*ingestion.Task),
		webhooks: make(map[string]*ingestion.WebhookRegistryEntry),
	}
}

func (m *memoryStore) GetTask(_ context.Context, id string) (*ingestion.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %q: %w", id, ingestion.ErrNotFound)
	}
	return t.Clone(), nil
}

func (m *memoryStore) SaveTask(_ context.Context, task *ingestion.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return fmt.Errorf("task %q: %w", task.ID, ingestion.ErrConflict)
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

func (m *memoryStore) UpdateTask(_ context.Context, id string, fn func(*ingestion.Task) (*ingestion.Task, error)) (*ingestion.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current *ingestion.Task
	if existing, ok := m.tasks[id]; ok {
		current = existing.Clone()
	}
	updated, err := fn(current)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		delete(m.tasks, id)
		return nil, nil
	}
	m.tasks[id] = updated.Clone()
	return updated.Clone(), nil
}

func (m *memoryStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return fmt.Errorf("task %q: %w", id, ingestion.ErrNotFound)
	}
	delete(m.tasks, id)
	return nil
}

func (m *memoryStore) ListTasks(_ context.Context) ([]*ingestion.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ingestion.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (m *memoryStore) GetWebhookRegistration(_ context.Context, sourceIdentifier string) (*ingestion.WebhookRegistryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.webhooks[sourceIdentifier]
	if !ok {
		return nil, fmt.Errorf("webhook registration %q: %w", sourceIdentifier, ingestion.ErrNotFound)
	}
	return e.Clone(), nil
}

func (m *memoryStore) SaveWebhookRegistration(_ context.Context, entry *ingestion.WebhookRegistryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks[entry.SourceIdentifier] = entry.Clone()
	return nil
}

func (m *memoryStore) UpdateWebhookRegistration(_ context.Context, sourceIdentifier string, fn func(*ingestion.WebhookRegistryEntry) (*ingestion.WebhookRegistryEntry, error)) (*ingestion.WebhookRegistryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current *ingestion.WebhookRegistryEntry
	if existing, ok := m.webhooks[sourceIdentifier]; ok {
		current = existing.Clone()
	}
	updated, err := fn(current)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		delete(m.webhooks, sourceIdentifier)
		return nil, nil
	}
	m.webhooks[sourceIdentifier] = updated.Clone()
	return updated.Clone(), nil
}

func (m *memoryStore) DeleteWebhookRegistration(_ context.Context, sourceIdentifier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.webhooks[sourceIdentifier]; !ok {
		return fmt.Errorf("webhook registration %q: %w", sourceIdentifier, ingestion.ErrNotFound)
	}
	delete(m.webhooks, sourceIdentifier)
	return nil
}

func (m *memoryStore) ListWebhookRegistrations(_ context.Context) ([]*ingestion.WebhookRegistryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ingestion.WebhookRegistryEntry, 0, len(m.webhooks))
	for _, e := range m.webhooks {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }
