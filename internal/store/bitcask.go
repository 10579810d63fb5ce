package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mills.io/bitcask/v2"

	"github.com/ingestctl/ingestor/api/ingestion"
)

const (
	taskPrefix    = "task"
	webhookPrefix = "webhook"
)

// bitcaskStore is a Store backed by a single Bitcask database file,
// namespacing keys by a "<prefix>:<id>" convention so tasks and webhook
// registrations can share one backend.
type bitcaskStore struct {
	// beMu guards access to be so Close cannot race a concurrent
	// operation; individual gets/puts rely on bitcask's own internal
	// locking for key-level safety.
	beMu sync.RWMutex
	be   *bitcask.Bitcask

	// keyLocks serializes read-modify-write sequences (UpdateTask,
	// UpdateWebhookRegistration) on the same logical key, since bitcask
	// itself offers no per-key transaction. One *sync.Mutex per
	// "<prefix>:<id>", created lazily and never removed — acceptable
	// here because the key space is bounded by the number of live tasks
	// and registry entries.
	keyLocks sync.Map
}

// NewBitcask opens (creating if necessary) a Bitcask database rooted at
// dir/bitcask.db.
func NewBitcask(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("store: creating data directory %q: %w", dir, err)
	}
	be, err := bitcask.Open(filepath.Join(dir, "bitcask.db"))
	if err != nil {
		return nil, fmt.Errorf("store: opening bitcask database: %w", err)
	}
	return &bitcaskStore{be: be}, nil
}

func (s *bitcaskStore) lockKey(prefix, id string) func() {
	v, _ := s.keyLocks.LoadOrStore(prefix+":"+id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func keyFor(prefix, id string) bitcask.Key {
	return bitcask.Key(prefix + ":" + id)
}

func (s *bitcaskStore) get(prefix, id string, out any) error {
	s.beMu.RLock()
	defer s.beMu.RUnlock()
	data, err := s.be.Get(keyFor(prefix, id))
	if err != nil {
		if err == bitcask.ErrKeyNotFound {
			return ingestion.ErrNotFound
		}
		return fmt.Errorf("store: reading %s %q: %w", prefix, id, err)
	}
	return json.Unmarshal(data, out)
}

func (s *bitcaskStore) put(prefix, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encoding %s %q: %w", prefix, id, err)
	}
	s.beMu.RLock()
	defer s.beMu.RUnlock()
	return s.be.Put(keyFor(prefix, id), data)
}

func (s *bitcaskStore) del(prefix, id string) error {
	s.beMu.RLock()
	defer s.beMu.RUnlock()
	if !s.be.Has(keyFor(prefix, id)) {
		return ingestion.ErrNotFound
	}
	return s.be.Delete(keyFor(prefix, id))
}

func (s *bitcaskStore) scan(prefix string, each func(id string) error) error {
	s.beMu.RLock()
	defer s.beMu.RUnlock()
	return s.be.Scan(bitcask.Key(prefix+":"), func(k bitcask.Key) error {
		id := strings.SplitN(string(k), ":", 2)
		if len(id) != 2 {
			return nil
		}
		return each(id[1])
	})
}

func (s *bitcaskStore) GetTask(_ context.Context, id string) (*ingestion.Task, error) {
	var t ingestion.Task
	if err := s.get(taskPrefix, id, &t); err != nil {
		return nil, fmt.Errorf("task %q: %w", id, err)
	}
	return &t, nil
}

func (s *bitcaskStore) SaveTask(_ context.Context, task *ingestion.Task) error {
	defer s.lockKey(taskPrefix, task.ID)()
	s.beMu.RLock()
	exists := s.be.Has(keyFor(taskPrefix, task.ID))
	s.beMu.RUnlock()
	if exists {
		return fmt.Errorf("task %q: %w", task.ID, ingestion.ErrConflict)
	}
	return s.put(taskPrefix, task.ID, task)
}

func (s *bitcaskStore) UpdateTask(ctx context.Context, id string, fn func(*ingestion.Task) (*ingestion.Task, error)) (*ingestion.Task, error) {
	defer s.lockKey(taskPrefix, id)()

	current, err := s.GetTask(ctx, id)
	if err != nil && !errors.Is(err, ingestion.ErrNotFound) {
		return nil, err
	}
	updated, err := fn(current)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, s.del(taskPrefix, id)
	}
	if err := s.put(taskPrefix, id, updated); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

func (s *bitcaskStore) DeleteTask(_ context.Context, id string) error {
	return s.del(taskPrefix, id)
}

func (s *bitcaskStore) ListTasks(_ context.Context) ([]*ingestion.Task, error) {
	var out []*ingestion.Task
	err := s.scan(taskPrefix, func(id string) error {
		var t ingestion.Task
		if err := s.get(taskPrefix, id, &t); err != nil {
			return err
		}
		out = append(out, &t)
		return nil
	})
	return out, err
}

func (s *bitcaskStore) GetWebhookRegistration(_ context.Context, sourceIdentifier string) (*ingestion.WebhookRegistryEntry, error) {
	var e ingestion.WebhookRegistryEntry
	if err := s.get(webhookPrefix, sourceIdentifier, &e); err != nil {
		return nil, fmt.Errorf("webhook registration %q: %w", sourceIdentifier, err)
	}
	return &e, nil
}

func (s *bitcaskStore) SaveWebhookRegistration(_ context.Context, entry *ingestion.WebhookRegistryEntry) error {
	return s.put(webhookPrefix, entry.SourceIdentifier, entry)
}

func (s *bitcaskStore) UpdateWebhookRegistration(ctx context.Context, sourceIdentifier string, fn func(*ingestion.WebhookRegistryEntry) (*ingestion.WebhookRegistryEntry, error)) (*ingestion.WebhookRegistryEntry, error) {
	defer s.lockKey(webhookPrefix, sourceIdentifier)()

	current, err := s.GetWebhookRegistration(ctx, sourceIdentifier)
	if err != nil && !errors.Is(err, ingestion.ErrNotFound) {
		return nil, err
	}
	updated, err := fn(current)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, s.del(webhookPrefix, sourceIdentifier)
	}
	if err := s.put(webhookPrefix, sourceIdentifier, updated); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

func (s *bitcaskStore) DeleteWebhookRegistration(_ context.Context, sourceIdentifier string) error {
	return s.del(webhookPrefix, sourceIdentifier)
}

func (s *bitcaskStore) ListWebhookRegistrations(_ context.Context) ([]*ingestion.WebhookRegistryEntry, error) {
	var out []*ingestion.WebhookRegistryEntry
	err := s.scan(webhookPrefix, func(id string) error {
		var e ingestion.WebhookRegistryEntry
		if err := s.get(webhookPrefix, id, &e); err != nil {
			return err
		}
		out = append(out, &e)
		return nil
	})
	return out, err
}

func (s *bitcaskStore) Close() error {
	s.beMu.Lock()
	defer s.beMu.Unlock()
	return s.be.Close()
}
