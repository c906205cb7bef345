// Package bootstrap wires the responder service together: config,
// logging, storage, notification channels, the event bus, the action
// registry, the executor and the playbook service.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"responder/config"
	"responder/events"
	"responder/notify"
	"responder/playbook"
	"responder/storage"
)

// App holds the assembled service components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	SQLite        *storage.SQLite
	Memory        *storage.MemoryStore
	IncidentStore playbook.IncidentStore
	Notifier      *notify.Router
	Bus           events.Bus
	Registry      *playbook.Registry
	Executor      *playbook.Executor
	Service       *playbook.Service

	metricsServer *http.Server
}

// NewApp builds every component from configuration. Nothing is started
// yet; call Start afterwards.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, sugar, err := InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Sugar:  sugar,
	}

	sugar.Info("Responder starting...")

	var (
		playbookStore  playbook.Store
		executionStore playbook.ExecutionStore
	)
	app.Memory = storage.NewMemoryStore()
	app.IncidentStore = app.Memory

	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := storage.NewSQLite(cfg.Storage.SQLitePath, sugar)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		app.SQLite = db

		playbookStore, err = storage.NewSQLitePlaybookStore(db, sugar)
		if err != nil {
			return nil, err
		}
		executionStore, err = storage.NewSQLiteExecutionStore(db, sugar)
		if err != nil {
			return nil, err
		}
	default:
		playbookStore = app.Memory
		executionStore = app.Memory
	}

	app.Notifier = notify.NewRouter(sugar)
	for _, ch := range cfg.Notifications.Channels {
		switch ch.Kind {
		case "slack":
			app.Notifier.AddChannel(notify.NewSlackSender(ch.Name, ch.URL, nil))
		default:
			app.Notifier.AddChannel(notify.NewWebhookSender(ch.Name, ch.URL, nil))
		}
	}

	app.Bus = events.NopBus{}
	if cfg.Events.Enabled {
		bus := events.NewRedisBus(cfg.Events.Addr, cfg.Events.Password, cfg.Events.DB, cfg.Events.Channel, sugar)
		if err := bus.Ping(ctx); err != nil {
			sugar.Warnf("Event bus unreachable at %s, events disabled: %v", cfg.Events.Addr, err)
			_ = bus.Close()
		} else {
			app.Bus = bus
			sugar.Infof("Event bus connected at %s", cfg.Events.Addr)
		}
	}

	app.Registry = playbook.NewRegistry(app.Notifier, app.IncidentStore, nil, sugar)
	app.Executor = playbook.NewExecutor(app.Registry, app.Bus, sugar)
	app.Service = playbook.NewService(playbookStore, executionStore, app.Executor, cfg.Playbooks.AutoExecute, sugar)

	return app, nil
}

// Start loads the playbook catalog from disk and starts the metrics
// endpoint.
func (a *App) Start(ctx context.Context) error {
	if a.Config.Playbooks.Dir != "" {
		if err := a.loadPlaybooks(ctx); err != nil {
			return err
		}
	}

	if a.Config.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metricsServer = &http.Server{
			Addr:              a.Config.Metrics.Addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.Sugar.Infof("Metrics endpoint listening on %s", a.Config.Metrics.Addr)
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.Sugar.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	a.Sugar.Info("Responder started")
	return nil
}

// loadPlaybooks imports the YAML catalog, skipping files already
// registered under the same name.
func (a *App) loadPlaybooks(ctx context.Context) error {
	playbooks, err := playbook.LoadDir(a.Config.Playbooks.Dir, a.Sugar)
	if err != nil {
		return fmt.Errorf("failed to load playbook directory: %w", err)
	}

	for _, pb := range playbooks {
		if err := a.Service.Register(ctx, pb); err != nil {
			if errors.Is(err, storage.ErrPlaybookNameExists) {
				a.Sugar.Debugf("Playbook %s already registered, skipping", pb.Name)
				continue
			}
			a.Sugar.Warnf("Failed to register playbook %s: %v", pb.Name, err)
		}
	}
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM arrives.
func (a *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	a.Sugar.Infof("Received signal %s", sig)
}

// Shutdown stops the metrics endpoint and closes storage and the bus.
func (a *App) Shutdown(ctx context.Context) {
	a.Sugar.Info("Responder shutting down...")

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			a.Sugar.Warnf("Metrics server shutdown: %v", err)
		}
	}

	if bus, ok := a.Bus.(*events.RedisBus); ok {
		if err := bus.Close(); err != nil {
			a.Sugar.Warnf("Event bus close: %v", err)
		}
	}

	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Sugar.Warnf("Storage close: %v", err)
		}
	}

	a.Sugar.Info("Responder stopped")
	_ = a.Logger.Sync()
}
