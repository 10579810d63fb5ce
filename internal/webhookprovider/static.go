package webhookprovider

import (
	"context"
	"fmt"
	"sync"
)

// StaticProvider is an in-memory WebhookProvider used for tests and
// for source plugin types (e.g. a bring-your-own Drive channel) where
// subscription management happens out of band. Register assigns a
// deterministic, incrementing external ID so tests can assert on it.
type StaticProvider struct {
	mu            sync.Mutex
	next          int
	registered    map[string]string // externalWebhookID -> sourceIdentifier
	RegisterErr   error
	DeregisterErr error
	VerifyErr     error
}

var _ WebhookProvider = (*StaticProvider)(nil)

// NewStaticProvider returns a ready-to-use StaticProvider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{registered: make(map[string]string)}
}

func (p *StaticProvider) Register(_ context.Context, req RegisterRequest) (RegisterResult, error) {
	if p.RegisterErr != nil {
		return RegisterResult{}, p.RegisterErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := fmt.Sprintf("static-%d", p.next)
	p.registered[id] = req.SourceIdentifier
	return RegisterResult{ExternalWebhookID: id}, nil
}

func (p *StaticProvider) Deregister(_ context.Context, _, externalWebhookID, _ string) error {
	if p.DeregisterErr != nil {
		return p.DeregisterErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.registered, externalWebhookID)
	return nil
}

func (p *StaticProvider) VerifyCredentials(_ context.Context, _ string) error {
	return p.VerifyErr
}

// IsRegistered reports whether externalWebhookID is currently tracked,
// for test assertions.
func (p *StaticProvider) IsRegistered(externalWebhookID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.registered[externalWebhookID]
	return ok
}
