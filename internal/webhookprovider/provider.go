// Copyright Contributors to the ingestctl project

// Package webhookprovider implements the adapter contract through
// which the lifecycle manager registers and tears down subscriptions
// with an external service: a git forge's repository hooks API, or a
// file-storage push-notification channel. The manager depends only on
// the WebhookProvider interface; concrete providers are selected by
// ingestion.PluginRef.PluginType the same way sources and destinations
// are.
package webhookprovider

import (
	"context"
	"fmt"
)

// RegisterRequest carries everything a provider needs to create a
// subscription for one external resource.
type RegisterRequest struct {
	// SourceIdentifier is the external resource this subscription
	// targets (e.g. a repo URL or a Drive folder ID).
	SourceIdentifier string
	// CallbackURL is the publicly reachable endpoint the provider
	// should deliver events to.
	CallbackURL string
	// Secret is the value the provider should use to sign (git-style)
	// or echo back (drive-style) deliveries.
	Secret string
	// Credentials is an opaque, plugin-specific auth token or config
	// blob (e.g. a personal access token, or a service-account ref).
	Credentials string
}

// RegisterResult is returned on successful registration.
type RegisterResult struct {
	// ExternalWebhookID is the identifier the provider assigned the new
	// subscription, to be used on Deregister.
	ExternalWebhookID string
}

// WebhookProvider is the control-plane side of a webhook integration:
// creating and removing the external subscription that causes the
// provider to call back into this service's ingress endpoint.
type WebhookProvider interface {
	// Register creates a new subscription and returns its external ID.
	Register(ctx context.Context, req RegisterRequest) (RegisterResult, error)
	// Deregister removes a previously created subscription. Implementations
	// must treat "already gone" as success, not an error.
	Deregister(ctx context.Context, sourceIdentifier, externalWebhookID, credentials string) error
	// VerifyCredentials checks that the supplied credentials are usable
	// against the external service, without creating any subscription.
	// The manager does not call it when scheduling a task.
	VerifyCredentials(ctx context.Context, credentials string) error
}

// ErrNotImplemented is returned by provider methods that a given
// concrete provider intentionally does not support (for example, a
// polling-only source with no push-notification API).
var ErrNotImplemented = fmt.Errorf("webhookprovider: operation not implemented")
