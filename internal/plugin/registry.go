// Copyright Contributors to the ingestctl project

// Package plugin holds the source and destination plugin registry:
// the lookup table from a PluginRef's PluginType string to the factory
// that builds a per-run ingestion.Source or ingestion.Destination.
//
// Concrete crawler/destination implementations (git, Google Drive,
// HTTP, a vector-store sink) are out of scope for this repository; this
// package provides the registration surface plus a couple of
// StaticSource/NoopDestination stand-ins used by tests and by
// deployments that only need the control-plane behavior.
package plugin

import (
	"fmt"
	"sync"

	"github.com/ingestctl/ingestor/api/ingestion"
)

// Registry is the process-wide table of known plugin factories. The
// zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu           sync.RWMutex
	sources      map[string]ingestion.SourceFactory
	destinations map[string]ingestion.DestinationFactory
	transformers map[string]ingestion.Transformer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]ingestion.SourceFactory),
		destinations: make(map[string]ingestion.DestinationFactory),
		transformers: make(map[string]ingestion.Transformer),
	}
}

// RegisterTransformer binds a Transformer to the raw-record shape a
// given source plugin type produces. A source plugin type with no
// registered transformer falls back to DefaultTransformer.
func (r *Registry) RegisterTransformer(pluginType string, t ingestion.Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transformers[pluginType] = t
}

// TransformerFor returns the transformer registered for pluginType, or
// DefaultTransformer if none was registered.
func (r *Registry) TransformerFor(pluginType string) ingestion.Transformer {
	r.mu.RLock()
	t, ok := r.transformers[pluginType]
	r.mu.RUnlock()
	if !ok {
		return DefaultTransformer
	}
	return t
}

// RegisterSource adds a source factory under pluginType, overwriting
// any prior registration. Intended to be called at boot time only.
func (r *Registry) RegisterSource(pluginType string, factory ingestion.SourceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[pluginType] = factory
}

// RegisterDestination adds a destination factory under pluginType.
func (r *Registry) RegisterDestination(pluginType string, factory ingestion.DestinationFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[pluginType] = factory
}

// NewSource builds a Source for the given ref, or
// ingestion.ErrUnsupportedSource if no factory is registered.
func (r *Registry) NewSource(ref ingestion.PluginRef) (ingestion.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[ref.PluginType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin type %q: %w", ref.PluginType, ingestion.ErrUnsupportedSource)
	}
	return factory(ref.Config)
}

// NewDestination builds a Destination for the given ref, or
// ingestion.ErrUnsupportedSource if no factory is registered.
func (r *Registry) NewDestination(ref ingestion.PluginRef) (ingestion.Destination, error) {
	r.mu.RLock()
	factory, ok := r.destinations[ref.PluginType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("plugin type %q: %w", ref.PluginType, ingestion.ErrUnsupportedSource)
	}
	return factory(ref.Config)
}

// HasSource reports whether a source factory is registered for
// pluginType, without constructing one.
func (r *Registry) HasSource(pluginType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sources[pluginType]
	return ok
}
