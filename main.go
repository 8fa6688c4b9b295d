package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"asset-manager/config"
	"asset-manager/internal/api"
	"asset-manager/internal/database"
	"asset-manager/internal/events"
	"asset-manager/internal/execution"
	"asset-manager/internal/executor"
	"asset-manager/internal/logging"
	"asset-manager/internal/manager"
	"asset-manager/internal/policy"
)

func main() {
	configPath := flag.String("config", "config.json", "path to configuration file")
	genConfig := flag.Bool("gen-config", false, "write a sample configuration file and exit")
	flag.Parse()

	if *genConfig {
		if err := config.GenerateSampleConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("sample configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		Component:  "asset-manager",
		JSONFormat: cfg.Logging.JSONFormat,
	}))
	logger := logging.Default()
	logger.Info("starting asset manager")

	eventBus := events.NewEventBus()
	engine := policy.NewEngine()
	store := manager.NewActionStore()
	mgr := manager.NewManager(cfg.Manager, engine, store, eventBus)

	// Postgres audit log is optional; the core runs degraded without it.
	var auditRepo *database.ActionRepository
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.NewDB(cfg.Database)
		if err != nil {
			logger.Warn("audit database unavailable, continuing without it", "error", err)
		} else {
			defer db.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := db.RunMigrations(ctx); err != nil {
				cancel()
				logger.Fatal("database migrations failed", "error", err)
			}
			cancel()
			auditRepo = database.NewActionRepository(db)
		}
	}

	// Redis snapshot cache is optional as well.
	var snapshots *database.SnapshotRepository
	if cfg.Redis.Enabled {
		snapshots = database.NewSnapshotRepository(cfg.Redis)
		defer snapshots.Close()
		mgr.SetSnapshotSource(snapshots)
	}

	orderLog := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("component", "orders").
		Logger()

	execClient := execution.NewClient(cfg.Execution)
	exec := executor.New(execClient, store, engine, mgr, eventBus, auditWriter(auditRepo), orderLog)
	mgr.SetDispatcher(exec)

	if cfg.Manager.Enabled {
		if err := mgr.Start(); err != nil {
			logger.Fatal("failed to start manager", "error", err)
		}
	} else {
		logger.Info("automation disabled at startup, waiting for enable")
	}

	server := api.NewServer(cfg.Server, mgr, auditRepo, snapshotSaver(snapshots), eventBus)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received")

	mgr.Stop()

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("asset manager stopped")
}

// auditWriter converts a possibly nil repository into the executor's
// optional audit dependency without a typed-nil interface.
func auditWriter(repo *database.ActionRepository) executor.AuditWriter {
	if repo == nil {
		return nil
	}
	return repo
}

// snapshotSaver does the same for the API server's snapshot mirror.
func snapshotSaver(repo *database.SnapshotRepository) api.SnapshotSaver {
	if repo == nil {
		return nil
	}
	return repo
}
