package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shelfwatch/shelfwatch/internal/extract"
	"github.com/shelfwatch/shelfwatch/internal/fetch"
	"github.com/shelfwatch/shelfwatch/internal/locks"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/repository"
)

// Fetcher is the page retrieval dependency of the check pipeline.
type Fetcher interface {
	Fetch(ctx context.Context, url string) *fetch.Result
}

// Extractor turns a fetch result into a snapshot.
type Extractor interface {
	Extract(res *fetch.Result) *extract.ProductSnapshot
}

// Ingester persists a snapshot.
type Ingester interface {
	Ingest(ctx context.Context, snap *extract.ProductSnapshot) (*IngestResult, error)
}

// Locker coordinates per-product checks across replicas.
type Locker interface {
	WithLock(ctx context.Context, namespace int64, id string, fn func(ctx context.Context) error) (bool, error)
}

// CheckOutcome summarizes one product check.
type CheckOutcome struct {
	Skipped       bool
	SkipReason    string
	Status        models.CheckRunStatus
	Variants      int
	Notifications int
}

// CheckService runs the locked fetch-extract-ingest pipeline for one
// product at a time.
type CheckService struct {
	products    repository.ProductRepository
	checkRuns   repository.CheckRunRepository
	fetcher     Fetcher
	extractor   Extractor
	ingester    Ingester
	locker      Locker
	minInterval time.Duration
	lockTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// CheckServiceOptions wires a CheckService.
type CheckServiceOptions struct {
	Products    repository.ProductRepository
	CheckRuns   repository.CheckRunRepository
	Fetcher     Fetcher
	Extractor   Extractor
	Ingester    Ingester
	Locker      Locker
	MinInterval time.Duration
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// NewCheckService creates a check service.
func NewCheckService(opts CheckServiceOptions) *CheckService {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &CheckService{
		products:    opts.Products,
		checkRuns:   opts.CheckRuns,
		fetcher:     opts.Fetcher,
		extractor:   opts.Extractor,
		ingester:    opts.Ingester,
		locker:      opts.Locker,
		minInterval: opts.MinInterval,
		lockTimeout: opts.LockTimeout,
		logger:      logging.Component(opts.Logger, "check"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CheckProduct checks one product under its advisory lock. Lock
// contention and throttle hits are skips, not errors.
func (s *CheckService) CheckProduct(ctx context.Context, productID string) (*CheckOutcome, error) {
	outcome := &CheckOutcome{}

	held, err := s.locker.WithLock(ctx, locks.NamespaceProduct, productID, func(ctx context.Context) error {
		// The lock timeout bounds how long a stuck check can starve
		// other replicas waiting on this product.
		lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
		return s.checkLocked(lockCtx, productID, outcome)
	})
	if err != nil {
		return outcome, err
	}
	if !held {
		outcome.Skipped = true
		outcome.SkipReason = "lock contended"
		s.logger.Debug("product check skipped, lock contended", "product_id", productID)
	}
	return outcome, nil
}

func (s *CheckService) checkLocked(ctx context.Context, productID string, outcome *CheckOutcome) error {
	// Another replica may have finished a check between the sweep query
	// and our lock acquisition.
	last, err := s.checkRuns.LastFinishedAt(ctx, productID)
	if err != nil {
		return err
	}
	if last != nil && s.now().Sub(*last) < s.minInterval {
		outcome.Skipped = true
		outcome.SkipReason = "recently checked"
		return nil
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if product == nil {
		outcome.Skipped = true
		outcome.SkipReason = "product deleted"
		return nil
	}

	run := &models.CheckRun{
		ID:        ulid.Make().String(),
		ProductID: productID,
		StartedAt: s.now(),
	}
	if err := s.checkRuns.Create(ctx, run); err != nil {
		return err
	}

	start := s.now()
	res := s.fetcher.Fetch(ctx, product.URL)
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "fetch failed"
		}
		outcome.Status = models.CheckRunFailed
		if finErr := s.checkRuns.Finish(ctx, run.ID, models.CheckRunFailed, &msg, models.Metadata{
			"duration_ms": s.now().Sub(start).Milliseconds(),
		}); finErr != nil {
			return finErr
		}
		return fmt.Errorf("fetch failed for %s: %s", product.URL, msg)
	}

	snap := s.extractor.Extract(res)
	ingestResult, err := s.ingester.Ingest(ctx, snap)
	if err != nil {
		msg := err.Error()
		outcome.Status = models.CheckRunFailed
		if finErr := s.checkRuns.Finish(ctx, run.ID, models.CheckRunFailed, &msg, models.Metadata{
			"duration_ms": s.now().Sub(start).Milliseconds(),
			"fetch_mode":  string(res.Mode),
		}); finErr != nil {
			return finErr
		}
		return fmt.Errorf("ingest failed for %s: %w", product.URL, err)
	}

	// A check that produced neither a price nor a stock signal ingested
	// structure only; record it as partial so operators can spot
	// extraction regressions.
	status := models.CheckRunSuccess
	if snap.Pricing == nil && snap.Stock == nil && !hasVariantSignal(snap) {
		status = models.CheckRunPartial
	}

	meta := models.Metadata{
		"duration_ms":   s.now().Sub(start).Milliseconds(),
		"fetch_mode":    string(res.Mode),
		"variants":      len(ingestResult.Variants),
		"notifications": len(ingestResult.Notifications),
	}
	if snap.Pricing != nil {
		meta["price_strategy"] = snap.Pricing.Strategy
	}
	if snap.Stock != nil {
		meta["stock_strategy"] = snap.Stock.Strategy
	}
	if len(snap.Notes) > 0 {
		meta["notes"] = snap.Notes
	}

	if err := s.checkRuns.Finish(ctx, run.ID, status, nil, meta); err != nil {
		return err
	}

	outcome.Status = status
	outcome.Variants = len(ingestResult.Variants)
	outcome.Notifications = len(ingestResult.Notifications)
	s.logger.Info("product checked",
		"product_id", productID,
		"status", status,
		"mode", res.Mode,
		"variants", outcome.Variants,
		"notifications", outcome.Notifications)
	return nil
}

func hasVariantSignal(snap *extract.ProductSnapshot) bool {
	for _, v := range snap.Variants {
		if v.Price != nil || v.StockStatus != "" || v.Available != nil {
			return true
		}
	}
	return false
}
