package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ringbridge/internal/api"
	"ringbridge/internal/config"
	"ringbridge/internal/entry"
	"ringbridge/internal/ha"
	"ringbridge/internal/integration"
	"ringbridge/internal/monitor"
	"ringbridge/internal/mqtt"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// setupRetryInterval is how often entries in setup_retry are retried
const setupRetryInterval = time.Minute

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	settingsFile := pflag.String("config", "ringbridge.yaml", "YAML settings file")
	readOnly := pflag.Bool("read-only", false, "log dings instead of publishing them")
	debug := pflag.Bool("debug", false, "enable development logging")
	pflag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.NewLoader(*envFile, *settingsFile, logger).Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if *readOnly {
		cfg.ReadOnly = true
	}

	logger.Info("Starting Ring bridge",
		zap.String("entries_file", cfg.EntriesFile),
		zap.Bool("read_only", cfg.ReadOnly))

	store := entry.NewStore(cfg.EntriesFile)
	manager := entry.NewManager(store, logger)

	ringIntegration := integration.New(manager, &http.Client{Timeout: 30 * time.Second}, cfg.HardwareID(), logger)
	ringIntegration.SetEndpoints(cfg.Ring.Endpoints)
	ringIntegration.Register()

	if err := manager.Load(); err != nil {
		logger.Fatal("Failed to load config entries", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(manager.Entries(integration.Domain)) == 0 {
		if err := runConfigFlow(ctx, cfg, ringIntegration, manager, logger); err != nil {
			logger.Fatal("Failed to configure Ring account", zap.Error(err))
		}
	}

	sinks, closeSinks := buildSinks(cfg, logger)
	defer closeSinks()

	server := api.NewServer(ringIntegration, manager, logger, cfg.APIPort)
	b := &bridge{
		cfg:         cfg,
		manager:     manager,
		integration: ringIntegration,
		sinks:       sinks,
		server:      server,
		logger:      logger,
		monitors:    make(map[string]*monitor.Manager),
	}

	if err := manager.SetupAll(ctx); err != nil {
		logger.Warn("Not every config entry could be set up", zap.Error(err))
	}
	b.startMonitors()

	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.retrySetup(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Application running. Press Ctrl+C to exit.")
	<-sigChan

	logger.Info("Shutting down gracefully...")
	cancel()
	wg.Wait()

	b.stopMonitors()
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop API server", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, e := range manager.Entries(integration.Domain) {
		if err := manager.Unload(shutdownCtx, e.EntryID); err != nil {
			logger.Warn("Failed to unload config entry", zap.String("entry_id", e.EntryID), zap.Error(err))
		}
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runConfigFlow creates the first entry from RING_USERNAME/RING_PASSWORD
func runConfigFlow(ctx context.Context, cfg *config.Config, ringIntegration *integration.Integration, manager *entry.Manager, logger *zap.Logger) error {
	if cfg.Ring.Username == "" || cfg.Ring.Password == "" {
		return fmt.Errorf("no config entry exists: RING_USERNAME and RING_PASSWORD must be set")
	}

	flow := integration.NewConfigFlow(ringIntegration.NewAuth(nil), manager, logger)
	result, err := flow.Submit(ctx, cfg.Ring.Username, cfg.Ring.Password, cfg.Ring.OTP)
	if err != nil {
		return err
	}

	switch {
	case result.Created():
		logger.Info("Ring account configured", zap.String("entry_id", result.Entry.EntryID))
		return nil
	case result.Step == integration.Step2FA && len(result.Errors) == 0:
		return fmt.Errorf("two-factor code sent: set RING_OTP and restart")
	default:
		return fmt.Errorf("login failed: %s", result.Errors["base"])
	}
}

// buildSinks connects the configured sinks. A sink that cannot connect is
// skipped so that the others keep working.
func buildSinks(cfg *config.Config, logger *zap.Logger) ([]monitor.Sink, func()) {
	var sinks []monitor.Sink
	var closers []func()

	if cfg.HomeAssistant.URL != "" {
		client := ha.NewClient(cfg.HomeAssistant.URL, cfg.HomeAssistant.Token, logger)
		if err := client.Connect(); err != nil {
			logger.Error("Failed to connect to Home Assistant", zap.Error(err))
		} else {
			sinks = append(sinks, ha.NewDingSink(client, logger))
			closers = append(closers, func() { client.Disconnect() })
		}
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := mqtt.Connect(cfg.MQTT, logger)
		if err != nil {
			logger.Error("Failed to connect to MQTT broker", zap.Error(err))
		} else {
			sinks = append(sinks, publisher)
			closers = append(closers, func() { publisher.Close() })
		}
	}

	if len(sinks) == 0 {
		logger.Warn("No sinks configured, dings will only be logged")
	}

	return sinks, func() {
		for _, closeSink := range closers {
			closeSink()
		}
	}
}

// bridge runs one ding monitor per loaded Ring entry
type bridge struct {
	cfg         *config.Config
	manager     *entry.Manager
	integration *integration.Integration
	sinks       []monitor.Sink
	server      *api.Server
	logger      *zap.Logger

	mu       sync.Mutex
	monitors map[string]*monitor.Manager
}

func (b *bridge) startMonitors() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, runtime := range b.integration.Runtimes() {
		if _, ok := b.monitors[runtime.EntryID]; ok {
			continue
		}

		m := monitor.NewManager(runtime, b.sinks, b.logger.With(zap.String("entry_id", runtime.EntryID)), b.cfg.ReadOnly)
		m.SetInterval(b.cfg.PollInterval)
		if err := m.Start(); err != nil {
			b.logger.Error("Failed to start ding monitor", zap.Error(err))
			continue
		}
		b.monitors[runtime.EntryID] = m
		b.server.AddDingHistory(m)
	}
}

func (b *bridge) stopMonitors() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, m := range b.monitors {
		m.Stop()
		delete(b.monitors, id)
	}
}

// retrySetup retries entries left in setup_retry until ctx is done
func (b *bridge) retrySetup(ctx context.Context) {
	ticker := time.NewTicker(setupRetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, e := range b.manager.Entries(integration.Domain) {
			if e.State != entry.StateSetupRetry {
				continue
			}
			if err := b.manager.Setup(ctx, e.EntryID); err != nil {
				b.logger.Warn("Config entry still not ready", zap.String("entry_id", e.EntryID), zap.Error(err))
			}
		}
		b.startMonitors()
	}
}
