package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/conductor/internal/agentclient"
	"github.com/kandev/conductor/internal/api"
	"github.com/kandev/conductor/internal/broker"
	"github.com/kandev/conductor/internal/broker/sandbox"
	"github.com/kandev/conductor/internal/common/config"
	"github.com/kandev/conductor/internal/common/logger"
	"github.com/kandev/conductor/internal/deployment"
	"github.com/kandev/conductor/internal/design"
	"github.com/kandev/conductor/internal/eventlog"
	"github.com/kandev/conductor/internal/pattern"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.ToLoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting conductor orchestration engine...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newEventStore(ctx, cfg.Store)
	if err != nil {
		log.Fatal("failed to initialize event log store", zap.Error(err))
	}
	bus := eventlog.NewBus(store, log)
	hub := eventlog.NewHub(bus, log)
	log.Info("initialized event log", zap.String("driver", cfg.Store.Driver))

	credStore := &broker.EnvProfileStore{Prefix: "CONDUCTOR_"}
	credBroker := broker.NewCredentialBroker(credStore, cfg.Orchestrator.CredentialsPath, log)

	registry := agentclient.NewRegistry()
	// The vendor wire protocol is out of scope for this engine (spec
	// Non-goals); the stub backend exercises the full client/pattern/runner
	// stack without depending on a live vendor endpoint.
	backend := &agentclient.StubBackend{ChunkSize: 64}
	client := agentclient.NewClient(backend, registry, credBroker.Restore, cfg.Orchestrator.AgentTimeout(), log)
	client.SetMaxConcurrency(cfg.Orchestrator.MaxParallelAgents)

	workspaces, closeWorkspaces, err := newWorkspaceProvider(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize workspace provider", zap.Error(err))
	}
	if closeWorkspaces != nil {
		defer closeWorkspaces()
	}

	runtime := &pattern.Runtime{Client: client, CancelGrace: cfg.Orchestrator.CancelGrace()}
	runner := &design.Runner{
		Runtime:           runtime,
		Workspaces:        workspaces,
		MaxParallelBlocks: cfg.Orchestrator.MaxParallelBlocks,
		CancelGrace:       cfg.Orchestrator.CancelGrace(),
		Log:               log,
	}

	designs := design.NewStore()

	executor := deployment.NewExecutor(runner, store, bus, log)
	tracker := deployment.NewTracker()
	deployService := deployment.NewService(tracker, executor)

	scheduler := deployment.NewScheduler(deployService, tracker, cfg.Deployment.SkipIfActive, log)
	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start deployment scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(&api.Server{
		Executor:    executor,
		Designs:     designs,
		Deployments: deployService,
		Tracker:     tracker,
		Store:       store,
		Hub:         hub,
		Log:         log,
	})
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down conductor orchestration engine...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}

	log.Info("conductor orchestration engine stopped")
}

// newEventStore builds the configured eventlog.Store backend.
func newEventStore(ctx context.Context, cfg config.StoreConfig) (eventlog.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return eventlog.NewMemoryStore(0), nil
	case "sqlite":
		return eventlog.NewSQLiteStore(cfg.DSN)
	case "postgres":
		return eventlog.NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newWorkspaceProvider builds the configured design.WorkspaceProvider. The
// docker driver also returns a shutdown func stopping any tracked sandbox
// containers; the local driver has nothing to tear down at process exit.
func newWorkspaceProvider(cfg *config.Config, log *logger.Logger) (design.WorkspaceProvider, func(), error) {
	switch cfg.Orchestrator.WorkspaceDriver {
	case "", "local":
		return &broker.LocalWorkspaces{
			ProjectRoot: cfg.Orchestrator.ProjectRoot,
			Log:         log,
		}, nil, nil
	case "docker":
		mgr, err := sandbox.NewManager(cfg.Docker, cfg.Orchestrator.ProjectRoot, "", log)
		if err != nil {
			return nil, nil, err
		}
		return mgr, func() { mgr.Shutdown(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown workspace driver %q", cfg.Orchestrator.WorkspaceDriver)
	}
}
