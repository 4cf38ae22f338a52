// Package repository provides Postgres data access for the monitoring
// pipeline. User accounts live in the external auth service; only the
// user id is stored here.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Repositories built over a transaction make a whole ingest atomic.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ProductRepository defines methods for product data access.
type ProductRepository interface {
	Create(ctx context.Context, p *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetByURL(ctx context.Context, url string) (*models.Product, error)
	GetByCanonicalURL(ctx context.Context, url string) (*models.Product, error)
	Update(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id string) error
}

// VariantRepository defines methods for variant data access. Variants
// are identified within a product by the natural key of their attribute
// set.
type VariantRepository interface {
	Create(ctx context.Context, v *models.Variant) error
	GetByID(ctx context.Context, id string) (*models.Variant, error)
	GetByProductID(ctx context.Context, productID string) ([]*models.Variant, error)
	GetByNaturalKey(ctx context.Context, productID, naturalKey string) (*models.Variant, error)
	Update(ctx context.Context, v *models.Variant) error
	CountByProductID(ctx context.Context, productID string) (int, error)
}

// PriceHistoryRepository appends and reads price observations.
type PriceHistoryRepository interface {
	Create(ctx context.Context, h *models.VariantPriceHistory) error
	GetByVariantID(ctx context.Context, variantID string, limit int) ([]*models.VariantPriceHistory, error)
	// Latest returns the most recent observation or nil when none exists.
	Latest(ctx context.Context, variantID string) (*models.VariantPriceHistory, error)
}

// StockHistoryRepository appends and reads stock observations.
type StockHistoryRepository interface {
	Create(ctx context.Context, h *models.VariantStockHistory) error
	GetByVariantID(ctx context.Context, variantID string, limit int) ([]*models.VariantStockHistory, error)
	Latest(ctx context.Context, variantID string) (*models.VariantStockHistory, error)
}

// CheckRunRepository tracks per-product check attempts and drives the
// scheduler's due-product selection.
type CheckRunRepository interface {
	Create(ctx context.Context, run *models.CheckRun) error
	GetByID(ctx context.Context, id string) (*models.CheckRun, error)
	Finish(ctx context.Context, id string, status models.CheckRunStatus, errorMessage *string, metadata models.Metadata) error
	// LastFinishedAt returns the most recent finished_at for a product,
	// or nil when the product was never checked.
	LastFinishedAt(ctx context.Context, productID string) (*time.Time, error)
	// DueProducts returns ids of tracked products whose last finished
	// check is older than minInterval (or that were never checked),
	// oldest first, up to limit.
	DueProducts(ctx context.Context, minInterval time.Duration, limit int) ([]string, error)
	// MarkStaleFailed finishes runs that started more than maxAge ago
	// and never finished. Returns the number of runs closed.
	MarkStaleFailed(ctx context.Context, maxAge time.Duration) (int64, error)
	// DeleteOlderThan removes finished runs older than before.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// TrackedItemRepository defines methods for tracking subscriptions.
type TrackedItemRepository interface {
	Create(ctx context.Context, item *models.TrackedItem) error
	Delete(ctx context.Context, id string) error
	GetByUserID(ctx context.Context, userID string) ([]*models.TrackedItem, error)
	// ForProduct returns every subscription matching the product,
	// including variant-scoped ones when variantID matches or the
	// subscription is product-wide.
	ForProduct(ctx context.Context, productID string) ([]*models.TrackedItem, error)
	// TrackedProductIDs returns the distinct product ids under tracking.
	TrackedProductIDs(ctx context.Context) ([]string, error)
}

// NotificationRepository defines methods for notification persistence
// and the delivery scan.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
	// GetUnsent returns undelivered notifications, oldest first.
	GetUnsent(ctx context.Context, limit int) ([]*models.Notification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkRead(ctx context.Context, id string) error
}

// NotificationSettingsRepository reads per-user notification thresholds.
type NotificationSettingsRepository interface {
	// Get returns the user's settings, falling back to
	// models.DefaultNotificationSettings when no row exists.
	Get(ctx context.Context, userID string) (models.NotificationSettings, error)
	Upsert(ctx context.Context, s models.NotificationSettings) error
}

// SchedulerLogRepository records sweep summaries.
type SchedulerLogRepository interface {
	Create(ctx context.Context, log *models.SchedulerLog) error
	Finish(ctx context.Context, id string, productsChecked, itemsChecked int, success bool, errMsg *string) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Repositories bundles every repository over one pool.
type Repositories struct {
	Products      ProductRepository
	Variants      VariantRepository
	PriceHistory  PriceHistoryRepository
	StockHistory  StockHistoryRepository
	CheckRuns     CheckRunRepository
	TrackedItems  TrackedItemRepository
	Notifications NotificationRepository
	Settings      NotificationSettingsRepository
	SchedulerLogs SchedulerLogRepository
}

// NewRepositories creates the Postgres implementations over a pool or
// an open transaction.
func NewRepositories(db DBTX) *Repositories {
	return &Repositories{
		Products:      NewPostgresProductRepository(db),
		Variants:      NewPostgresVariantRepository(db),
		PriceHistory:  NewPostgresPriceHistoryRepository(db),
		StockHistory:  NewPostgresStockHistoryRepository(db),
		CheckRuns:     NewPostgresCheckRunRepository(db),
		TrackedItems:  NewPostgresTrackedItemRepository(db),
		Notifications: NewPostgresNotificationRepository(db),
		Settings:      NewPostgresNotificationSettingsRepository(db),
		SchedulerLogs: NewPostgresSchedulerLogRepository(db),
	}
}
