package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-logr/logr"

	"github.com/ingestctl/ingestor/api/ingestion"
	"github.com/ingestctl/ingestor/internal/eventbus"
	"github.com/ingestctl/ingestor/internal/manager"
	"github.com/ingestctl/ingestor/internal/metrics"
	"github.com/ingestctl/ingestor/internal/plugin"
	"github.com/ingestctl/ingestor/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := store.NewMemory()
	reg := plugin.NewRegistry()
	reg.RegisterSource(ingestion.PluginGitCrawler, func(cfg map[string]any) (ingestion.Source, error) {
		return &plugin.StaticSource{Result: ingestion.SourceResult{Success: true}}, nil
	})
	mgr := manager.New(manager.Options{
		Store:   st,
		Plugins: reg,
		Bus:     eventbus.New(logr.Discard()),
		Metrics: metrics.New(),
		Log:     logr.Discard(),
	})
	return New(Options{Manager: mgr, Metrics: metrics.New(), Log: logr.Discard()})
}

func TestHealthzReturnsOK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}

func TestScheduleAndGetTaskRoundTrips(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(ingestion.Task{
		Name:    "daily-sync",
		Enabled: false,
		Source:  ingestion.PluginRef{PluginType: ingestion.PluginGitCrawler, Config: map[string]any{"repoUrl": "https://example.com/repo.git"}},
		Trigger: ingestion.Trigger{Type: ingestion.TriggerManual},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("schedule: got status %d, want 201, body=%s", rec.Code, rec.Body.String())
	}

	var created ingestion.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding created task: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected server-assigned id")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/"+created.ID+"/", nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get: got status %d, want 200", getRec.Code)
	}
}

func TestGetUnknownTaskReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/does-not-exist/", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}

func TestTriggerManualOnDisabledTaskReturnsForbidden(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	body, _ := json.Marshal(ingestion.Task{
		Name:    "disabled-task",
		Enabled: false,
		Source:  ingestion.PluginRef{PluginType: ingestion.PluginGitCrawler, Config: map[string]any{"repoUrl": "https://example.com/repo.git"}},
		Trigger: ingestion.Trigger{Type: ingestion.TriggerManual},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var created ingestion.Task
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	triggerReq := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/"+created.ID+"/trigger", nil)
	triggerRec := httptest.NewRecorder()
	router.ServeHTTP(triggerRec, triggerReq)
	if triggerRec.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403", triggerRec.Code)
	}
}

func TestWebhookIngressWithNoMatchingEndpointReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/unknown-endpoint/", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", rec.Code)
	}
}
