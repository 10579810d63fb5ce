// Copyright Contributors to the ingestctl project

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/ingestctl/ingestor/internal/config"
	"github.com/ingestctl/ingestor/internal/eventbus"
	"github.com/ingestctl/ingestor/internal/httpapi"
	"github.com/ingestctl/ingestor/internal/logging"
	"github.com/ingestctl/ingestor/internal/manager"
	"github.com/ingestctl/ingestor/internal/metrics"
	"github.com/ingestctl/ingestor/internal/plugin"
	"github.com/ingestctl/ingestor/internal/store"
	"github.com/ingestctl/ingestor/internal/webhookprovider"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion lifecycle manager control-plane server",
	Long: `Start the control-plane server that exposes:
  - REST API for task scheduling, update, and manual trigger
  - Webhook ingress for push-triggered tasks
  - Health, readiness, and Prometheus metrics endpoints

Example:
  ingestctl serve --config=./ingestctl.yaml`,
	RunE: runServe,
}

var configPath string

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file (optional; defaults are used when omitted)")
}

// serveDeps is the wiring shared by the long-running serve command and
// the one-shot cron-tick command: config, store, plugin registry,
// manager, and logger. Each command's RunE builds one of these and
// closes the store when it's done with it.
type serveDeps struct {
	cfg *config.Config
	log logr.Logger
	st  store.Store
	mgr *manager.Manager
	rec *metrics.Recorder
}

func buildServeDeps(configPath string) (*serveDeps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(logging.Options{Development: cfg.LogDevelopment, Level: cfg.LogLevel})

	var st store.Store
	switch cfg.Store.Backend {
	case config.StoreBackendBitcask:
		st, err = store.NewBitcask(cfg.Store.Path)
	default:
		st = store.NewMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	registry := plugin.NewRegistry()
	registry.RegisterDestination("noop", plugin.NewNoopDestinationFactory())

	recorder := metrics.New()
	bus := eventbus.New(log)

	mgr := manager.New(manager.Options{
		Store:   st,
		Plugins: registry,
		Bus:     bus,
		Metrics: recorder,
		Log:     log,
	})

	if cfg.GitHubApp.AppID != 0 {
		pem, rerr := os.ReadFile(cfg.GitHubApp.PrivateKeyPath)
		if rerr != nil {
			_ = st.Close()
			return nil, fmt.Errorf("reading githubApp.privateKeyPath: %w", rerr)
		}
		ghProvider, perr := webhookprovider.NewGitHubProvider(log, webhookprovider.GitHubAppCredentials{
			AppID:          cfg.GitHubApp.AppID,
			InstallationID: cfg.GitHubApp.InstallationID,
			PrivateKeyPEM:  pem,
		})
		if perr != nil {
			_ = st.Close()
			return nil, fmt.Errorf("constructing github webhook provider: %w", perr)
		}
		mgr.RegisterWebhookProvider("git-crawler", ghProvider)
	}

	return &serveDeps{cfg: cfg, log: log, st: st, mgr: mgr, rec: recorder}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	deps, err := buildServeDeps(configPath)
	if err != nil {
		return err
	}
	cfg, log, mgr, recorder := deps.cfg, deps.log, deps.mgr, deps.rec
	log.Info("starting ingestctl", "address", cfg.Address, "storeBackend", cfg.Store.Backend)
	defer func() {
		if cerr := deps.st.Close(); cerr != nil {
			log.Error(cerr, "closing store")
		}
	}()

	httpServer := httpapi.New(httpapi.Options{Manager: mgr, Metrics: recorder, Log: log})

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           httpServer.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	errChan := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "address", cfg.Address)
		if lerr := srv.ListenAndServe(); lerr != nil && lerr != http.ErrServerClosed {
			errChan <- lerr
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	}
}
