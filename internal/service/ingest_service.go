// Package service implements the check pipeline behind the scheduler:
// ingestion of extracted snapshots, the locked per-product check,
// notification delivery and data retention.
package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/extract"
	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/repository"
)

// IngestResult is the outcome of persisting one snapshot.
type IngestResult struct {
	Product       *models.Product
	Variants      []*models.Variant
	Notifications []*models.Notification
	Created       bool // product was created by this ingest
}

// IngestService reconciles snapshots into the relational model inside a
// single transaction. Re-ingesting an identical snapshot writes no new
// history and raises no notifications.
type IngestService struct {
	runTx  func(ctx context.Context, fn func(repos *repository.Repositories) error) error
	logger *slog.Logger
	now    func() time.Time
}

// NewIngestService creates an ingest service over a pool.
func NewIngestService(db *sql.DB, logger *slog.Logger) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		runTx: func(ctx context.Context, fn func(*repository.Repositories) error) error {
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("failed to begin ingest transaction: %w", err)
			}
			defer tx.Rollback()
			if err := fn(repository.NewRepositories(tx)); err != nil {
				return err
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("failed to commit ingest: %w", err)
			}
			return nil
		},
		logger: logging.Component(logger, "ingest"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ingest persists a snapshot. Everything commits or nothing does.
func (s *IngestService) Ingest(ctx context.Context, snap *extract.ProductSnapshot) (*IngestResult, error) {
	var result *IngestResult
	err := s.runTx(ctx, func(repos *repository.Repositories) error {
		var ingestErr error
		result, ingestErr = s.ingest(ctx, repos, snap)
		return ingestErr
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("snapshot ingested",
		"product_id", result.Product.ID,
		"url", snap.URL,
		"variants", len(result.Variants),
		"notifications", len(result.Notifications),
		"created", result.Created)
	return result, nil
}

func (s *IngestService) ingest(ctx context.Context, repos *repository.Repositories, snap *extract.ProductSnapshot) (*IngestResult, error) {
	now := s.now()

	product, created, err := s.reconcileProduct(ctx, repos, snap, now)
	if err != nil {
		return nil, err
	}

	shells := snap.Variants
	if len(shells) > models.MaxVariants {
		shells = shells[:models.MaxVariants]
	}
	// A page without variant structure still carries one observable
	// price/stock stream; it lives on a single attribute-less variant.
	if len(shells) == 0 {
		shells = []extract.VariantShell{{}}
	}

	result := &IngestResult{Product: product, Created: created}

	for _, shell := range shells {
		variant, notifications, err := s.reconcileVariant(ctx, repos, product, snap, shell, now)
		if err != nil {
			return nil, err
		}
		result.Variants = append(result.Variants, variant)
		result.Notifications = append(result.Notifications, notifications...)
	}

	return result, nil
}

func (s *IngestService) reconcileProduct(ctx context.Context, repos *repository.Repositories, snap *extract.ProductSnapshot, now time.Time) (*models.Product, bool, error) {
	product, err := repos.Products.GetByURL(ctx, snap.URL)
	if err != nil {
		return nil, false, err
	}
	if product == nil && snap.FinalURL != "" && snap.FinalURL != snap.URL {
		product, err = repos.Products.GetByCanonicalURL(ctx, snap.FinalURL)
		if err != nil {
			return nil, false, err
		}
	}

	mainImage := ""
	if len(snap.Images) > 0 {
		mainImage = snap.Images[0]
	}
	meta := models.Metadata{}
	if snap.Metadata.IsLikelyDynamic {
		meta["is_likely_dynamic"] = true
	}
	if len(snap.Images) > 0 {
		meta["images"] = snap.Images
	}

	if product == nil {
		product = &models.Product{
			ID:           ulid.Make().String(),
			URL:          snap.URL,
			Name:         snap.Title,
			Description:  snap.Description,
			MainImageURL: mainImage,
			Metadata:     meta,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if snap.FinalURL != "" && snap.FinalURL != snap.URL {
			canonical := snap.FinalURL
			product.CanonicalURL = &canonical
		}
		if err := repos.Products.Create(ctx, product); err != nil {
			return nil, false, err
		}
		return product, true, nil
	}

	if snap.Title != "" {
		product.Name = snap.Title
	}
	if snap.Description != "" {
		product.Description = snap.Description
	}
	if mainImage != "" {
		product.MainImageURL = mainImage
	}
	if snap.FinalURL != "" && snap.FinalURL != snap.URL {
		canonical := snap.FinalURL
		product.CanonicalURL = &canonical
	}
	if product.Metadata == nil {
		product.Metadata = models.Metadata{}
	}
	for k, v := range meta {
		product.Metadata[k] = v
	}
	product.UpdatedAt = now
	if err := repos.Products.Update(ctx, product); err != nil {
		return nil, false, err
	}
	return product, false, nil
}

// shellObservation resolves the price and stock a shell contributes.
// Per-variant data wins; snapshot-level pricing and stock apply only to
// the attribute-less fallback variant so a product-level price can
// never clobber distinct variant prices.
func shellObservation(snap *extract.ProductSnapshot, shell extract.VariantShell) (price *decimal.Decimal, currency, priceRaw string, status models.StockStatus, stockRaw string) {
	price = shell.Price
	currency = shell.Currency
	status = shell.StockStatus

	productLevel := len(shell.Attributes) == 0 && shell.SKU == ""
	if price == nil && productLevel && snap.Pricing != nil {
		p := snap.Pricing.Amount
		price = &p
		currency = snap.Pricing.Currency
		priceRaw = snap.Pricing.Raw
	}
	if status == "" && productLevel && snap.Stock != nil {
		status = snap.Stock.Status
		stockRaw = snap.Stock.Raw
	}
	if status == "" {
		status = models.StockUnknown
	}
	return price, currency, priceRaw, status, stockRaw
}

func (s *IngestService) reconcileVariant(ctx context.Context, repos *repository.Repositories, product *models.Product, snap *extract.ProductSnapshot, shell extract.VariantShell, now time.Time) (*models.Variant, []*models.Notification, error) {
	price, currency, priceRaw, status, stockRaw := shellObservation(snap, shell)
	naturalKey := shell.Attributes.NaturalKey()

	existing, err := repos.Variants.GetByNaturalKey(ctx, product.ID, naturalKey)
	if err != nil {
		return nil, nil, err
	}

	available := status == models.StockInStock || status == models.StockLowStock ||
		status == models.StockBackorder || status == models.StockPreorder
	if shell.Available != nil {
		available = *shell.Available
	}

	if existing == nil {
		count, err := repos.Variants.CountByProductID(ctx, product.ID)
		if err != nil {
			return nil, nil, err
		}
		if count >= models.MaxVariants {
			return nil, nil, fmt.Errorf("product %s is at the variant cap", product.ID)
		}

		variant := &models.Variant{
			ID:                 ulid.Make().String(),
			ProductID:          product.ID,
			Attributes:         shell.Attributes,
			Currency:           currency,
			CurrentPrice:       price,
			CurrentStockStatus: status,
			IsAvailable:        available,
			LastCheckedAt:      &now,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if shell.SKU != "" {
			sku := shell.SKU
			variant.SKU = &sku
		}
		if err := repos.Variants.Create(ctx, variant); err != nil {
			return nil, nil, err
		}

		// Seed the time series; a first observation is not a diff, so
		// no notifications are raised.
		if price != nil {
			if err := s.appendPriceHistory(ctx, repos, variant.ID, *price, currency, priceRaw, now); err != nil {
				return nil, nil, err
			}
		}
		if status != models.StockUnknown {
			if err := s.appendStockHistory(ctx, repos, variant.ID, status, stockRaw, now); err != nil {
				return nil, nil, err
			}
		}
		return variant, nil, nil
	}

	priceChanged := price != nil && (existing.CurrentPrice == nil || !existing.CurrentPrice.Equal(*price))
	stockChanged := status != models.StockUnknown && status != existing.CurrentStockStatus

	oldPrice := existing.CurrentPrice
	oldStatus := existing.CurrentStockStatus

	if price != nil {
		existing.CurrentPrice = price
		if currency != "" {
			existing.Currency = currency
		}
	}
	if status != models.StockUnknown {
		existing.CurrentStockStatus = status
	}
	if shell.SKU != "" {
		sku := shell.SKU
		existing.SKU = &sku
	}
	// No stock signal means no opinion on availability; keep the last
	// observed value rather than flipping it to false.
	if status != models.StockUnknown || shell.Available != nil {
		existing.IsAvailable = available
	}
	existing.LastCheckedAt = &now
	existing.UpdatedAt = now
	if err := repos.Variants.Update(ctx, existing); err != nil {
		return nil, nil, err
	}

	if priceChanged {
		if err := s.appendPriceHistory(ctx, repos, existing.ID, *price, existing.Currency, priceRaw, now); err != nil {
			return nil, nil, err
		}
	}
	if stockChanged {
		if err := s.appendStockHistory(ctx, repos, existing.ID, status, stockRaw, now); err != nil {
			return nil, nil, err
		}
	}

	if !priceChanged && !stockChanged {
		return existing, nil, nil
	}

	notifications, err := s.translateDiffs(ctx, repos, product, existing, diff{
		priceChanged: priceChanged,
		stockChanged: stockChanged,
		oldPrice:     oldPrice,
		newPrice:     price,
		oldStatus:    oldStatus,
		newStatus:    status,
	}, now)
	if err != nil {
		return nil, nil, err
	}
	return existing, notifications, nil
}

func (s *IngestService) appendPriceHistory(ctx context.Context, repos *repository.Repositories, variantID string, price decimal.Decimal, currency, raw string, now time.Time) error {
	return repos.PriceHistory.Create(ctx, &models.VariantPriceHistory{
		ID:         ulid.Make().String(),
		VariantID:  variantID,
		RecordedAt: now,
		Price:      price,
		Currency:   currency,
		Raw:        raw,
	})
}

func (s *IngestService) appendStockHistory(ctx context.Context, repos *repository.Repositories, variantID string, status models.StockStatus, raw string, now time.Time) error {
	return repos.StockHistory.Create(ctx, &models.VariantStockHistory{
		ID:         ulid.Make().String(),
		VariantID:  variantID,
		RecordedAt: now,
		Status:     status,
		Raw:        raw,
	})
}

type diff struct {
	priceChanged bool
	stockChanged bool
	oldPrice     *decimal.Decimal
	newPrice     *decimal.Decimal
	oldStatus    models.StockStatus
	newStatus    models.StockStatus
}

// translateDiffs turns one variant's diffs into notifications for every
// user tracking the product (or this specific variant), honoring each
// user's settings.
func (s *IngestService) translateDiffs(ctx context.Context, repos *repository.Repositories, product *models.Product, variant *models.Variant, d diff, now time.Time) ([]*models.Notification, error) {
	items, err := repos.TrackedItems.ForProduct(ctx, product.ID)
	if err != nil {
		return nil, err
	}

	var out []*models.Notification
	settingsByUser := make(map[string]models.NotificationSettings)

	for _, item := range items {
		if item.VariantID != nil && *item.VariantID != variant.ID {
			continue
		}
		settings, ok := settingsByUser[item.UserID]
		if !ok {
			settings, err = repos.Settings.Get(ctx, item.UserID)
			if err != nil {
				return nil, err
			}
			settingsByUser[item.UserID] = settings
		}

		if d.stockChanged {
			if n := stockNotification(settings, product, variant, d, now); n != nil {
				out = append(out, n)
			}
		}
		if d.priceChanged {
			if n := priceNotification(settings, product, variant, d, now); n != nil {
				out = append(out, n)
			}
		}
	}

	for _, n := range out {
		if err := repos.Notifications.Create(ctx, n); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func stockNotification(settings models.NotificationSettings, product *models.Product, variant *models.Variant, d diff, now time.Time) *models.Notification {
	var typ models.NotificationType
	var message string
	switch {
	case d.oldStatus == models.StockOutOfStock &&
		(d.newStatus == models.StockInStock || d.newStatus == models.StockLowStock):
		if !settings.NotifyRestock {
			return nil
		}
		typ = models.NotificationRestock
		message = fmt.Sprintf("%s is back in stock", product.Name)
	default:
		if !settings.NotifyStock {
			return nil
		}
		typ = models.NotificationStock
		message = fmt.Sprintf("%s stock changed: %s -> %s", product.Name, d.oldStatus, d.newStatus)
	}

	oldStatus := d.oldStatus
	newStatus := d.newStatus
	return newNotification(settings.UserID, product.ID, variant.ID, typ, message, now, func(n *models.Notification) {
		n.OldStatus = &oldStatus
		n.NewStatus = &newStatus
	})
}

func priceNotification(settings models.NotificationSettings, product *models.Product, variant *models.Variant, d diff, now time.Time) *models.Notification {
	if d.newPrice == nil {
		return nil
	}

	rise := d.oldPrice == nil || d.newPrice.GreaterThan(*d.oldPrice)
	if rise {
		if !settings.NotifyOnPriceIncrease || d.oldPrice == nil {
			return nil
		}
		message := fmt.Sprintf("%s price rose from %s to %s", product.Name, d.oldPrice, d.newPrice)
		return newNotification(settings.UserID, product.ID, variant.ID, models.NotificationPrice, message, now, func(n *models.Notification) {
			n.OldPrice = d.oldPrice
			n.NewPrice = d.newPrice
		})
	}

	// Drop must cross the user's percentage threshold.
	if d.oldPrice == nil || d.oldPrice.IsZero() {
		return nil
	}
	dropPct := d.oldPrice.Sub(*d.newPrice).Div(*d.oldPrice).Mul(decimal.NewFromInt(100))
	if dropPct.LessThan(settings.ThresholdPercentage) {
		return nil
	}

	message := fmt.Sprintf("%s price dropped from %s to %s (%s%%)",
		product.Name, d.oldPrice, d.newPrice, dropPct.Round(1))
	return newNotification(settings.UserID, product.ID, variant.ID, models.NotificationPrice, message, now, func(n *models.Notification) {
		n.OldPrice = d.oldPrice
		n.NewPrice = d.newPrice
	})
}

func newNotification(userID, productID, variantID string, typ models.NotificationType, message string, now time.Time, fill func(*models.Notification)) *models.Notification {
	n := &models.Notification{
		ID:        ulid.Make().String(),
		UserID:    userID,
		ProductID: productID,
		VariantID: &variantID,
		Type:      typ,
		Message:   message,
		CreatedAt: now,
	}
	fill(n)
	return n
}
