// Package scheduler owns leader election and the background sweep
// loops: product checks, notification delivery, tracking refresh and
// retention. Exactly one worker replica holds the scheduler lock and
// runs sweeps.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/locks"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/repository"
	"github.com/shelfwatch/shelfwatch/internal/service"
)

// ProductChecker runs one locked product check.
type ProductChecker interface {
	CheckProduct(ctx context.Context, productID string) (*service.CheckOutcome, error)
}

// Deliverer drains pending notifications.
type Deliverer interface {
	DeliverPending(ctx context.Context) (*service.DeliveryStats, error)
}

// Pruner deletes expired operational records.
type Pruner interface {
	Prune(ctx context.Context) error
}

// LockManager is the slice of the advisory lock manager the scheduler
// uses for leader election.
type LockManager interface {
	TryAcquire(ctx context.Context, key int64) (bool, error)
	Release(key int64)
}

// Status is a point-in-time snapshot for the control surface.
type Status struct {
	Leader          bool            `json:"leader"`
	Running         bool            `json:"running"`
	Loops           map[string]bool `json:"loops"`
	CheckSweeps     int64           `json:"check_sweeps"`
	ProductsChecked int64           `json:"products_checked"`
	ChecksSkipped   int64           `json:"checks_skipped"`
	ChecksFailed    int64           `json:"checks_failed"`
	ActiveChecks    int64           `json:"active_checks"`
	Delivered       int64           `json:"notifications_delivered"`
	DeliveryFailed  int64           `json:"delivery_failures"`
	TrackedProducts int64           `json:"tracked_products"`
}

// Scheduler drives the sweep loops while this replica is the leader.
type Scheduler struct {
	cfg       *config.Config
	checker   ProductChecker
	delivery  Deliverer
	retention Pruner
	checkRuns repository.CheckRunRepository
	tracked   repository.TrackedItemRepository
	logs      repository.SchedulerLogRepository
	locker    LockManager
	logger    *slog.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	leader  atomic.Bool
	running atomic.Bool

	checkSweeps     atomic.Int64
	productsChecked atomic.Int64
	checksSkipped   atomic.Int64
	checksFailed    atomic.Int64
	activeChecks    atomic.Int64
	delivered       atomic.Int64
	deliveryFailed  atomic.Int64
	trackedProducts atomic.Int64
}

// Options wires a Scheduler.
type Options struct {
	Config    *config.Config
	Checker   ProductChecker
	Delivery  Deliverer
	Retention Pruner
	CheckRuns repository.CheckRunRepository
	Tracked   repository.TrackedItemRepository
	Logs      repository.SchedulerLogRepository
	Locker    LockManager
	Logger    *slog.Logger
}

// New creates a Scheduler.
func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		cfg:       opts.Config,
		checker:   opts.Checker,
		delivery:  opts.Delivery,
		retention: opts.Retention,
		checkRuns: opts.CheckRuns,
		tracked:   opts.Tracked,
		logs:      opts.Logs,
		locker:    opts.Locker,
		logger:    logging.Component(opts.Logger, "scheduler"),
	}
}

// AcquireLeadership tries to take the singleton scheduler lock. A
// replica that loses the race should exit rather than run sweeps.
func (s *Scheduler) AcquireLeadership(ctx context.Context) (bool, error) {
	key := locks.Key(locks.NamespaceScheduler, locks.SchedulerLockID)
	acquired, err := s.locker.TryAcquire(ctx, key)
	if err != nil {
		return false, err
	}
	s.leader.Store(acquired)
	if acquired {
		s.logger.Info("acquired scheduler leadership")
	} else {
		s.logger.Info("scheduler lock held elsewhere")
	}
	return acquired, nil
}

// IsLeader reports whether this replica holds the scheduler lock.
func (s *Scheduler) IsLeader() bool {
	return s.leader.Load()
}

// Running reports whether the sweep loops have been started.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Start launches the enabled sweep loops. Each loop runs one sweep
// immediately, then on its ticker until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	if s.cfg.EnableCheckScheduler {
		s.startLoop(ctx, "check", s.cfg.CheckInterval, s.checkSweep)
	}
	if s.cfg.EnableEmailScheduler {
		s.startLoop(ctx, "delivery", s.cfg.EmailDeliveryInterval, s.deliverySweep)
	}
	if s.cfg.EnableTrackingScheduler {
		s.startLoop(ctx, "tracking", s.cfg.TrackingInterval, s.trackingSweep)
	}
	if s.cfg.EnableRetentionSweep {
		s.startLoop(ctx, "retention", s.cfg.RetentionInterval, s.retentionSweep)
	}
}

// Stop cancels the loops and waits for in-flight sweeps to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.running.Store(false)
}

func (s *Scheduler) startLoop(ctx context.Context, name string, interval time.Duration, sweep func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("sweep loop started", "loop", name, "interval", interval)

		sweep(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("sweep loop stopped", "loop", name)
				return
			case <-ticker.C:
				sweep(ctx)
			}
		}
	}()
}

// checkSweep selects due products and fans their checks out across a
// bounded worker set. The query over-fetches because lock contention
// and throttle skips do not consume the per-sweep budget.
func (s *Scheduler) checkSweep(ctx context.Context) {
	s.checkSweeps.Add(1)
	entry := &models.SchedulerLog{
		ID:           ulid.Make().String(),
		RunStartedAt: time.Now().UTC(),
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record sweep start", "error", err)
	}

	due, err := s.checkRuns.DueProducts(ctx, s.cfg.MinCheckInterval, s.cfg.MaxProductsPerRun*2)
	if err != nil {
		s.logger.Error("failed to select due products", "error", err)
		msg := err.Error()
		s.finishLog(ctx, entry.ID, 0, 0, false, &msg)
		return
	}
	if len(due) == 0 {
		s.finishLog(ctx, entry.ID, 0, 0, true, nil)
		return
	}

	sem := make(chan struct{}, s.cfg.TrackingConcurrency)
	var wg sync.WaitGroup
	var checked, skipped, failed atomic.Int64

	for _, productID := range due {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		if checked.Load() >= int64(s.cfg.MaxProductsPerRun) {
			<-sem
			break
		}
		wg.Add(1)
		go func(productID string) {
			defer wg.Done()
			defer func() { <-sem }()
			s.activeChecks.Add(1)
			defer s.activeChecks.Add(-1)

			outcome, err := s.checker.CheckProduct(ctx, productID)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Warn("product check failed", "product_id", productID, "error", err)
			case outcome.Skipped:
				skipped.Add(1)
			default:
				checked.Add(1)
			}
		}(productID)
	}
	wg.Wait()

	s.productsChecked.Add(checked.Load())
	s.checksSkipped.Add(skipped.Load())
	s.checksFailed.Add(failed.Load())

	s.finishLog(ctx, entry.ID, int(checked.Load()), len(due), failed.Load() == 0, nil)
	s.logger.Info("check sweep finished",
		"due", len(due),
		"checked", checked.Load(),
		"skipped", skipped.Load(),
		"failed", failed.Load())
}

func (s *Scheduler) finishLog(ctx context.Context, id string, productsChecked, itemsChecked int, success bool, errMsg *string) {
	if err := s.logs.Finish(ctx, id, productsChecked, itemsChecked, success, errMsg); err != nil {
		s.logger.Error("failed to record sweep finish", "error", err)
	}
}

func (s *Scheduler) deliverySweep(ctx context.Context) {
	stats, err := s.delivery.DeliverPending(ctx)
	if err != nil {
		s.logger.Error("delivery sweep failed", "error", err)
		return
	}
	s.delivered.Add(int64(stats.Delivered))
	s.deliveryFailed.Add(int64(stats.Failed))
}

// trackingSweep refreshes the tracked-product gauge surfaced on the
// control API.
func (s *Scheduler) trackingSweep(ctx context.Context) {
	ids, err := s.tracked.TrackedProductIDs(ctx)
	if err != nil {
		s.logger.Error("tracking sweep failed", "error", err)
		return
	}
	s.trackedProducts.Store(int64(len(ids)))
	s.logger.Debug("tracking sweep finished", "tracked_products", len(ids))
}

func (s *Scheduler) retentionSweep(ctx context.Context) {
	if err := s.retention.Prune(ctx); err != nil {
		s.logger.Error("retention sweep failed", "error", err)
	}
}

// Snapshot returns current counters for the control surface.
func (s *Scheduler) Snapshot() Status {
	return Status{
		Leader:  s.leader.Load(),
		Running: s.running.Load(),
		Loops: map[string]bool{
			"check":     s.cfg.EnableCheckScheduler,
			"delivery":  s.cfg.EnableEmailScheduler,
			"tracking":  s.cfg.EnableTrackingScheduler,
			"retention": s.cfg.EnableRetentionSweep,
		},
		CheckSweeps:     s.checkSweeps.Load(),
		ProductsChecked: s.productsChecked.Load(),
		ChecksSkipped:   s.checksSkipped.Load(),
		ChecksFailed:    s.checksFailed.Load(),
		ActiveChecks:    s.activeChecks.Load(),
		Delivered:       s.delivered.Load(),
		DeliveryFailed:  s.deliveryFailed.Load(),
		TrackedProducts: s.trackedProducts.Load(),
	}
}
