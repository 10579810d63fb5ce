package webhookprovider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/go-logr/logr"
	"github.com/google/go-github/v71/github"
)

// GitHubAppCredentials are the values needed to mint installation
// tokens via ghinstallation.
type GitHubAppCredentials struct {
	AppID          int64
	InstallationID int64
	PrivateKeyPEM  []byte
}

// GitHubProvider registers repository webhooks through the GitHub REST
// API, authenticating as a GitHub App installation.
type GitHubProvider struct {
	log    logr.Logger
	client *github.Client
}

var _ WebhookProvider = (*GitHubProvider)(nil)

// NewGitHubProvider builds a GitHub App-authenticated client. The
// transport mirrors the dialer/timeout tuning used elsewhere in this
// codebase's corpus for resilience against a flaky github.com.
func NewGitHubProvider(log logr.Logger, creds GitHubAppCredentials) (*GitHubProvider, error) {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	itr, err := ghinstallation.New(tr, creds.AppID, creds.InstallationID, creds.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("webhookprovider: creating installation transport: %w", err)
	}
	return &GitHubProvider{
		log:    log,
		client: github.NewClient(&http.Client{Transport: itr}),
	}, nil
}

// ownerRepo splits a "https://github.com/owner/repo(.git)" or
// "owner/repo" identifier into its two path components.
func ownerRepo(sourceIdentifier string) (owner, repo string, err error) {
	s := strings.TrimSuffix(sourceIdentifier, ".git")
	s = strings.TrimPrefix(s, "https://github.com/")
	s = strings.TrimPrefix(s, "git@github.com:")
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("webhookprovider: %q is not a github owner/repo identifier", sourceIdentifier)
	}
	return parts[0], parts[1], nil
}

func (p *GitHubProvider) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	owner, repo, err := ownerRepo(req.SourceIdentifier)
	if err != nil {
		return RegisterResult{}, err
	}

	hook := &github.Hook{
		Events: []string{"push", "pull_request", "delete", "create"},
		Config: &github.HookConfig{
			URL:         &req.CallbackURL,
			ContentType: github.Ptr("json"),
			Secret:      &req.Secret,
		},
		Active: github.Ptr(true),
	}

	created, resp, err := p.client.Repositories.CreateHook(ctx, owner, repo, hook)
	if err := checkResponse(resp, err); err != nil {
		return RegisterResult{}, fmt.Errorf("webhookprovider: creating hook for %s/%s: %w", owner, repo, err)
	}

	p.log.Info("registered github webhook", "owner", owner, "repo", repo, "hookId", created.GetID())
	return RegisterResult{ExternalWebhookID: fmt.Sprintf("%d", created.GetID())}, nil
}

func (p *GitHubProvider) Deregister(ctx context.Context, sourceIdentifier, externalWebhookID, _ string) error {
	owner, repo, err := ownerRepo(sourceIdentifier)
	if err != nil {
		return err
	}
	var hookID int64
	if _, err := fmt.Sscanf(externalWebhookID, "%d", &hookID); err != nil {
		return fmt.Errorf("webhookprovider: invalid external webhook id %q: %w", externalWebhookID, err)
	}

	resp, err := p.client.Repositories.DeleteHook(ctx, owner, repo, hookID)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		// Already gone; deregistration is idempotent.
		return nil
	}
	if err := checkResponse(resp, err); err != nil {
		return fmt.Errorf("webhookprovider: deleting hook %d for %s/%s: %w", hookID, owner, repo, err)
	}
	return nil
}

func (p *GitHubProvider) VerifyCredentials(ctx context.Context, _ string) error {
	_, resp, err := p.client.Users.Get(ctx, "")
	return checkResponse(resp, err)
}

func checkResponse(resp *github.Response, err error) error {
	if err != nil {
		return err
	}
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
