package manager

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/go-logr/logr"

	"github.com/ingestctl/ingestor/api/ingestion"
	"github.com/ingestctl/ingestor/internal/eventbus"
	"github.com/ingestctl/ingestor/internal/metrics"
	"github.com/ingestctl/ingestor/internal/plugin"
	"github.com/ingestctl/ingestor/internal/store"
	"github.com/ingestctl/ingestor/internal/webhookprovider"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func gitSourceFactory(result ingestion.SourceResult) ingestion.SourceFactory {
	return func(config map[string]any) (ingestion.Source, error) {
		return &plugin.StaticSource{Result: result}, nil
	}
}

var _ = Describe("LifecycleManager", func() {
	var (
		ctx      context.Context
		st       store.Store
		plugins  *plugin.Registry
		bus      *eventbus.Bus
		rec      *metrics.Recorder
		provider *webhookprovider.StaticProvider
		mgr      *Manager
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = store.NewMemory()
		plugins = plugin.NewRegistry()
		plugins.RegisterSource(ingestion.PluginGitCrawler, gitSourceFactory(ingestion.SourceResult{
			Success: true,
			Data:    &ingestion.SourceData{Data: []any{"a"}},
		}))
		bus = eventbus.New(logr.Discard())
		rec = metrics.New()
		provider = webhookprovider.NewStaticProvider()
		mgr = New(Options{Store: st, Plugins: plugins, Bus: bus, Metrics: rec, Log: logr.Discard()})
		mgr.RegisterWebhookProvider(ingestion.PluginGitCrawler, provider)
	})

	gitSource := func(id string) ingestion.PluginRef {
		return ingestion.PluginRef{PluginType: ingestion.PluginGitCrawler, Config: map[string]any{"repoUrl": id}}
	}

	It("round-trips a scheduled task (property 6)", func() {
		def := &ingestion.Task{
			Name:    "example",
			Enabled: false,
			Source:  gitSource("https://github.com/ex/r"),
			Trigger: ingestion.Trigger{Type: ingestion.TriggerManual},
		}
		saved, err := mgr.ScheduleTask(ctx, def)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.ID).NotTo(BeEmpty())
		Expect(saved.CurrentStatus).To(Equal(ingestion.TaskStatusScheduled))

		got, err := mgr.GetTask(ctx, saved.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Name).To(Equal("example"))
		Expect(got.Trigger.Type).To(Equal(ingestion.TriggerManual))
	})

	It("rejects scheduling a duplicate id with Conflict", func() {
		def := &ingestion.Task{ID: "dup", Source: gitSource("https://github.com/ex/r"), Trigger: ingestion.Trigger{Type: ingestion.TriggerManual}}
		_, err := mgr.ScheduleTask(ctx, def)
		Expect(err).NotTo(HaveOccurred())

		_, err = mgr.ScheduleTask(ctx, def)
		Expect(errors.Is(err, ingestion.ErrConflict)).To(BeTrue())
	})

	It("rejects TriggerManual on a disabled task with ErrDisabled", func() {
		def := &ingestion.Task{ID: "d1", Enabled: false, Source: gitSource("https://github.com/ex/r"), Trigger: ingestion.Trigger{Type: ingestion.TriggerManual}}
		_, err := mgr.ScheduleTask(ctx, def)
		Expect(err).NotTo(HaveOccurred())

		_, err = mgr.TriggerManual(ctx, "d1", nil)
		Expect(errors.Is(err, ingestion.ErrDisabled)).To(BeTrue())
	})

	It("runs an enabled manual task end to end", func() {
		def := &ingestion.Task{ID: "m1", Enabled: true, Source: gitSource("https://github.com/ex/r"), Trigger: ingestion.Trigger{Type: ingestion.TriggerManual}}
		_, err := mgr.ScheduleTask(ctx, def)
		Expect(err).NotTo(HaveOccurred())

		result, err := mgr.TriggerManual(ctx, "m1", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success).To(BeTrue())

		got, err := mgr.GetTask(ctx, "m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CurrentStatus).To(Equal(ingestion.TaskStatusCompleted))
		Expect(got.LastRun).NotTo(BeNil())

		history := mgr.GetTaskRunHistory("m1", 0)
		Expect(history).To(HaveLen(1))
	})

	It("trims run history to the configured limit", func() {
		mgr = New(Options{Store: st, Plugins: plugins, Bus: bus, Metrics: rec, Log: logr.Discard(), HistoryLimit: 2})
		def := &ingestion.Task{ID: "h1", Enabled: true, Source: gitSource("https://github.com/ex/r"), Trigger: ingestion.Trigger{Type: ingestion.TriggerManual}}
		_, err := mgr.ScheduleTask(ctx, def)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < 3; i++ {
			_, err := mgr.TriggerManual(ctx, "h1", nil)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(mgr.GetTaskRunHistory("h1", 0)).To(HaveLen(2))
	})

	It("returns NotFound when no enabled task matches the webhook endpoint", func() {
		_, err := mgr.TriggerWebhook(ctx, "/nowhere", []byte(`{}`), http.Header{})
		Expect(errors.Is(err, ingestion.ErrNotFound)).To(BeTrue())
	})

	It("rejects a webhook with a bad signature (S2)", func() {
		def := &ingestion.Task{ID: "g1", Enabled: true, Source: gitSource("https://github.com/ex/r"), Trigger: ingestion.Trigger{Type: ingestion.TriggerWebhook, EndpointID: "/gh"}}
		_, err := mgr.ScheduleTask(ctx, def)
		Expect(err).NotTo(HaveOccurred())

		body := []byte(`{"repository":{"full_name":"ex/r"}}`)
		headers := http.Header{}
		headers.Set("X-GitHub-Event", "push")
		headers.Set("X-Hub-Signature-256", sign("wrong-secret", body))

		_, err = mgr.TriggerWebhook(ctx, "/gh", body, headers)
		Expect(errors.Is(err, ingestion.ErrUnauthorized)).To(BeTrue())

		got, err := mgr.GetTask(ctx, "g1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CurrentStatus).To(Equal(ingestion.TaskStatusScheduled))
	})

	It("dispatches a valid GitHub push webhook to its task (S1)", func() {
		def := &ingestion.Task{ID: "g1", Enabled: true, Source: gitSource("https://github.com/ex/r"), Trigger: ingestion.Trigger{Type: ingestion.TriggerWebhook, EndpointID: "/gh"}}
		_, err := mgr.ScheduleTask(ctx, def)
		Expect(err).NotTo(HaveOccurred())

		entry, err := st.GetWebhookRegistration(ctx, "https://github.com/ex/r")
		Expect(err).NotTo(HaveOccurred())

		body := []byte(`{"repository":{"full_name":"ex/r"},"deleted":false}`)
		headers := http.Header{}
		headers.Set("X-GitHub-Event", "push")
		headers.Set("X-Hub-Signature-256", sign(entry.Secret, body))

		result, err := mgr.TriggerWebhook(ctx, "/gh", body, headers)
		Expect(err).NotTo(HaveOccurred())
		Expect(result).NotTo(BeNil())
		Expect(result.Success).To(BeTrue())

		got, err := mgr.GetTask(ctx, "g1")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.CurrentStatus).To(Equal(ingestion.TaskStatusCompleted))
	})

	Describe("shared subscription fan-out (S5)", func() {
		It("registers once, fans out to both tasks, and deregisters only when the set empties", func() {
			taskA := &ingestion.Task{ID: "a", Enabled: true, Source: gitSource("https://github.com/ex/r"), Trigger: ingestion.Trigger{Type: ingestion.TriggerWebhook, EndpointID: "/gh"}}
			taskB := &ingestion.Task{ID: "b", Enabled: true, Source: gitSource("https://github.com/ex/r"), Trigger: ingestion.Trigger{Type: ingestion.TriggerWebhook, EndpointID: "/gh"}}

			_, err := mgr.ScheduleTask(ctx, taskA)
			Expect(err).NotTo(HaveOccurred())
			Expect(provider.IsRegistered("static-1")).To(BeTrue())

			_, err = mgr.ScheduleTask(ctx, taskB)
			Expect(err).NotTo(HaveOccurred())

			entry, err := st.GetWebhookRegistration(ctx, "https://github.com/ex/r")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.RegisteredTasks).To(HaveLen(2))
			Expect(entry.ExternalWebhookID).To(Equal("static-1"))

			body := []byte(`{"repository":{"full_name":"ex/r"},"deleted":false}`)
			headers := http.Header{}
			headers.Set("X-GitHub-Event", "push")
			headers.Set("X-Hub-Signature-256", sign(entry.Secret, body))

			result, err := mgr.TriggerWebhook(ctx, "/gh", body, headers)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Success).To(BeTrue())

			gotA, err := mgr.GetTask(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			gotB, err := mgr.GetTask(ctx, "b")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotA.CurrentStatus).To(Equal(ingestion.TaskStatusCompleted))
			Expect(gotB.CurrentStatus).To(Equal(ingestion.TaskStatusCompleted))

			Expect(mgr.DeleteTask(ctx, "a")).To(Succeed())
			entry, err = st.GetWebhookRegistration(ctx, "https://github.com/ex/r")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.RegisteredTasks).To(HaveKey("b"))
			Expect(entry.RegisteredTasks).NotTo(HaveKey("a"))
			Expect(provider.IsRegistered("static-1")).To(BeTrue())

			Expect(mgr.DeleteTask(ctx, "b")).To(Succeed())
			_, err = st.GetWebhookRegistration(ctx, "https://github.com/ex/r")
			Expect(errors.Is(err, ingestion.ErrNotFound)).To(BeTrue())
			Expect(provider.IsRegistered("static-1")).To(BeFalse())
		})
	})

	It("writes cursors back to the registry and replays them on the next dispatch (S6)", func() {
		plugins.RegisterSource(ingestion.PluginGitCrawler, gitSourceFactory(ingestion.SourceResult{
			Success: true,
			Data:    &ingestion.SourceData{Data: []any{"a"}, NextPageToken: "n9"},
		}))

		def := &ingestion.Task{ID: "g2", Enabled: true, Source: gitSource("https://github.com/ex/r2"), Trigger: ingestion.Trigger{Type: ingestion.TriggerWebhook, EndpointID: "/gh2"}}
		_, err := mgr.ScheduleTask(ctx, def)
		Expect(err).NotTo(HaveOccurred())

		entry, err := st.GetWebhookRegistration(ctx, "https://github.com/ex/r2")
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.NextPageToken).To(BeEmpty())

		body := []byte(`{"repository":{"full_name":"ex/r2"}}`)
		headers := http.Header{}
		headers.Set("X-GitHub-Event", "push")
		headers.Set("X-Hub-Signature-256", sign(entry.Secret, body))

		_, err = mgr.TriggerWebhook(ctx, "/gh2", body, headers)
		Expect(err).NotTo(HaveOccurred())

		updated, err := st.GetWebhookRegistration(ctx, "https://github.com/ex/r2")
		Expect(err).NotTo(HaveOccurred())
		Expect(updated.NextPageToken).To(Equal("n9"))

		var replayed ingestion.Payload
		plugins.RegisterSource(ingestion.PluginGitCrawler, func(config map[string]any) (ingestion.Source, error) {
			return &plugin.StaticSource{
				Result:      ingestion.SourceResult{Success: true, Data: &ingestion.SourceData{Data: []any{"a"}}},
				ExecuteCall: func(_ context.Context, payload ingestion.Payload) { replayed = payload },
			}, nil
		})

		_, err = mgr.TriggerWebhook(ctx, "/gh2", body, headers)
		Expect(err).NotTo(HaveOccurred())
		Expect(replayed).To(HaveKeyWithValue("nextPageToken", "n9"))
	})

	It("runs a due cron task once and skips it on the immediately following check (S4-shaped)", func() {
		def := &ingestion.Task{ID: "c1", Enabled: true, Source: gitSource("https://github.com/ex/r"), Trigger: ingestion.Trigger{Type: ingestion.TriggerCron, CronExpression: "* * * * *"}}
		_, err := mgr.ScheduleTask(ctx, def)
		Expect(err).NotTo(HaveOccurred())

		results, err := mgr.TriggerAllEnabledCronTasks(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
		Expect(results[0].Success).To(BeTrue())

		results, err = mgr.TriggerAllEnabledCronTasks(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})
})
