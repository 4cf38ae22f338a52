// Package main is the entry point for the shelfwatch worker: the
// leader-elected process that checks tracked product pages, translates
// changes into notifications and delivers them. The end-user REST API
// lives in a separate service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/database"
	"github.com/shelfwatch/shelfwatch/internal/extract"
	"github.com/shelfwatch/shelfwatch/internal/fetch"
	"github.com/shelfwatch/shelfwatch/internal/locks"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/notify"
	"github.com/shelfwatch/shelfwatch/internal/repository"
	"github.com/shelfwatch/shelfwatch/internal/scheduler"
	"github.com/shelfwatch/shelfwatch/internal/service"
	"github.com/shelfwatch/shelfwatch/internal/version"
	"github.com/shelfwatch/shelfwatch/internal/worker"
)

func main() {
	logger := logging.SetDefault()

	v := version.Get()
	logger.Info("starting shelfwatch-worker",
		"version", v.Version,
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repos := repository.NewRepositories(db)

	// Checks left in flight by a previous run can never finish; close
	// them so the scheduler sees those products as due again.
	staleCount, err := repos.CheckRuns.MarkStaleFailed(context.Background(), 1*time.Hour)
	if err != nil {
		logger.Warn("failed to clean up stale check runs", "error", err)
	} else if staleCount > 0 {
		logger.Info("cleaned up stale check runs", "count", staleCount)
	}

	var renderer fetch.Renderer
	if !cfg.DisableRenderedFetch {
		renderer = fetch.NewRodRenderer(cfg.ChromePath, logger)
	} else {
		logger.Info("rendered fetch disabled")
	}
	fetcher := fetch.New(fetch.Options{
		Renderer:      renderer,
		DisableRender: cfg.DisableRenderedFetch,
		Logger:        logger,
	})
	extractor := extract.New(logger)

	lockManager := locks.NewManager(db, logger)
	ingester := service.NewIngestService(db, logger)
	checker := service.NewCheckService(service.CheckServiceOptions{
		Products:    repos.Products,
		CheckRuns:   repos.CheckRuns,
		Fetcher:     fetcher,
		Extractor:   extractor,
		Ingester:    ingester,
		Locker:      lockManager,
		MinInterval: cfg.MinCheckInterval,
		LockTimeout: cfg.CheckLockTimeout,
		Logger:      logger,
	})

	emailSender := notify.NewEmailService(cfg.EmailSinkURL, logger)
	delivery := service.NewDeliveryService(repos.Notifications, repos.Products, emailSender, cfg.DeliveryBatchSize, logger)
	retention := service.NewRetentionService(repos.CheckRuns, repos.SchedulerLogs, cfg.RetentionMaxAge, logger)

	sched := scheduler.New(scheduler.Options{
		Config:    cfg,
		Checker:   checker,
		Delivery:  delivery,
		Retention: retention,
		CheckRuns: repos.CheckRuns,
		Tracked:   repos.TrackedItems,
		Logs:      repos.SchedulerLogs,
		Locker:    lockManager,
		Logger:    logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.EnableScheduler {
		leader, err := sched.AcquireLeadership(ctx)
		if err != nil {
			logger.Error("leader election failed", "error", err)
			os.Exit(1)
		}
		if !leader {
			// At most one active scheduler per database. A replica that
			// loses the race has nothing to do; exit cleanly and let the
			// orchestrator decide whether to restart it.
			logger.Info("another worker holds the scheduler lock, exiting")
			return
		}
		sched.Start(ctx)
	} else {
		logger.Info("scheduler disabled by configuration")
	}

	controlServer := worker.NewServer(cfg.WorkerPort, db, sched, lockManager, logger)
	if err := controlServer.Start(); err != nil {
		logger.Error("failed to start control server", "error", err)
		sched.Stop()
		lockManager.ReleaseAll()
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String())

	// Fail the probes first so load balancers stop routing, then stop
	// scheduling new work and wait for in-flight checks to drain.
	controlServer.BeginShutdown()
	cancel()
	sched.Stop()
	lockManager.ReleaseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := controlServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("control server shutdown error", "error", err)
	}

	logger.Info("worker stopped")
}
