package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
	"github.com/shelfwatch/shelfwatch/internal/repository"
)

// In-memory repository fakes. Each fake keeps its rows in a slice so
// tests can assert on exactly what was written.

type fakeProductRepo struct {
	products []*models.Product
}

func (f *fakeProductRepo) Create(_ context.Context, p *models.Product) error {
	cp := *p
	f.products = append(f.products, &cp)
	return nil
}

func (f *fakeProductRepo) GetByID(_ context.Context, id string) (*models.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeProductRepo) GetByURL(_ context.Context, url string) (*models.Product, error) {
	for _, p := range f.products {
		if p.URL == url {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeProductRepo) GetByCanonicalURL(_ context.Context, url string) (*models.Product, error) {
	for _, p := range f.products {
		if p.CanonicalURL != nil && *p.CanonicalURL == url {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeProductRepo) Update(_ context.Context, p *models.Product) error {
	for i, existing := range f.products {
		if existing.ID == p.ID {
			cp := *p
			f.products[i] = &cp
			return nil
		}
	}
	return nil
}

func (f *fakeProductRepo) Delete(_ context.Context, id string) error {
	for i, p := range f.products {
		if p.ID == id {
			f.products = append(f.products[:i], f.products[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeVariantRepo struct {
	variants []*models.Variant
}

func (f *fakeVariantRepo) Create(_ context.Context, v *models.Variant) error {
	cp := *v
	f.variants = append(f.variants, &cp)
	return nil
}

func (f *fakeVariantRepo) GetByID(_ context.Context, id string) (*models.Variant, error) {
	for _, v := range f.variants {
		if v.ID == id {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeVariantRepo) GetByProductID(_ context.Context, productID string) ([]*models.Variant, error) {
	var out []*models.Variant
	for _, v := range f.variants {
		if v.ProductID == productID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeVariantRepo) GetByNaturalKey(_ context.Context, productID, naturalKey string) (*models.Variant, error) {
	for _, v := range f.variants {
		if v.ProductID == productID && v.Attributes.NaturalKey() == naturalKey {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeVariantRepo) Update(_ context.Context, v *models.Variant) error {
	for i, existing := range f.variants {
		if existing.ID == v.ID {
			cp := *v
			f.variants[i] = &cp
			return nil
		}
	}
	return nil
}

func (f *fakeVariantRepo) CountByProductID(_ context.Context, productID string) (int, error) {
	count := 0
	for _, v := range f.variants {
		if v.ProductID == productID {
			count++
		}
	}
	return count, nil
}

type fakePriceHistoryRepo struct {
	rows []*models.VariantPriceHistory
}

func (f *fakePriceHistoryRepo) Create(_ context.Context, h *models.VariantPriceHistory) error {
	cp := *h
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakePriceHistoryRepo) GetByVariantID(_ context.Context, variantID string, limit int) ([]*models.VariantPriceHistory, error) {
	var out []*models.VariantPriceHistory
	for _, h := range f.rows {
		if h.VariantID == variantID {
			out = append(out, h)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePriceHistoryRepo) Latest(_ context.Context, variantID string) (*models.VariantPriceHistory, error) {
	var latest *models.VariantPriceHistory
	for _, h := range f.rows {
		if h.VariantID == variantID && (latest == nil || h.RecordedAt.After(latest.RecordedAt)) {
			latest = h
		}
	}
	return latest, nil
}

type fakeStockHistoryRepo struct {
	rows []*models.VariantStockHistory
}

func (f *fakeStockHistoryRepo) Create(_ context.Context, h *models.VariantStockHistory) error {
	cp := *h
	f.rows = append(f.rows, &cp)
	return nil
}

func (f *fakeStockHistoryRepo) GetByVariantID(_ context.Context, variantID string, limit int) ([]*models.VariantStockHistory, error) {
	var out []*models.VariantStockHistory
	for _, h := range f.rows {
		if h.VariantID == variantID {
			out = append(out, h)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStockHistoryRepo) Latest(_ context.Context, variantID string) (*models.VariantStockHistory, error) {
	var latest *models.VariantStockHistory
	for _, h := range f.rows {
		if h.VariantID == variantID && (latest == nil || h.RecordedAt.After(latest.RecordedAt)) {
			latest = h
		}
	}
	return latest, nil
}

type fakeCheckRunRepo struct {
	runs         []*models.CheckRun
	lastFinished map[string]time.Time
	deletedPrior *time.Time
}

func (f *fakeCheckRunRepo) Create(_ context.Context, run *models.CheckRun) error {
	cp := *run
	f.runs = append(f.runs, &cp)
	return nil
}

func (f *fakeCheckRunRepo) GetByID(_ context.Context, id string) (*models.CheckRun, error) {
	for _, run := range f.runs {
		if run.ID == id {
			return run, nil
		}
	}
	return nil, nil
}

func (f *fakeCheckRunRepo) Finish(_ context.Context, id string, status models.CheckRunStatus, errorMessage *string, metadata models.Metadata) error {
	for _, run := range f.runs {
		if run.ID == id {
			now := time.Now().UTC()
			run.FinishedAt = &now
			run.Status = status
			run.ErrorMessage = errorMessage
			run.Metadata = metadata
			return nil
		}
	}
	return nil
}

func (f *fakeCheckRunRepo) LastFinishedAt(_ context.Context, productID string) (*time.Time, error) {
	if t, ok := f.lastFinished[productID]; ok {
		return &t, nil
	}
	return nil, nil
}

func (f *fakeCheckRunRepo) DueProducts(_ context.Context, _ time.Duration, limit int) ([]string, error) {
	var ids []string
	seen := map[string]bool{}
	for _, run := range f.runs {
		if !seen[run.ProductID] {
			seen[run.ProductID] = true
			ids = append(ids, run.ProductID)
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeCheckRunRepo) MarkStaleFailed(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func (f *fakeCheckRunRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	f.deletedPrior = &before
	return 3, nil
}

type fakeTrackedItemRepo struct {
	items []*models.TrackedItem
}

func (f *fakeTrackedItemRepo) Create(_ context.Context, item *models.TrackedItem) error {
	cp := *item
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeTrackedItemRepo) Delete(_ context.Context, id string) error {
	for i, item := range f.items {
		if item.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeTrackedItemRepo) GetByUserID(_ context.Context, userID string) ([]*models.TrackedItem, error) {
	var out []*models.TrackedItem
	for _, item := range f.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeTrackedItemRepo) ForProduct(_ context.Context, productID string) ([]*models.TrackedItem, error) {
	var out []*models.TrackedItem
	for _, item := range f.items {
		if item.ProductID == productID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeTrackedItemRepo) TrackedProductIDs(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	for _, item := range f.items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			ids = append(ids, item.ProductID)
		}
	}
	return ids, nil
}

type fakeNotificationRepo struct {
	notifications []*models.Notification
	markSentErr   error
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *models.Notification) error {
	cp := *n
	f.notifications = append(f.notifications, &cp)
	return nil
}

func (f *fakeNotificationRepo) GetByUserID(_ context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) GetUnsent(_ context.Context, limit int) ([]*models.Notification, error) {
	var out []*models.Notification
	for _, n := range f.notifications {
		if !n.Sent {
			out = append(out, n)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	if f.markSentErr != nil {
		return f.markSentErr
	}
	for _, n := range f.notifications {
		if n.ID == id {
			n.Sent = true
			n.SentAt = &sentAt
			return nil
		}
	}
	return nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, id string) error {
	for _, n := range f.notifications {
		if n.ID == id {
			n.Read = true
			return nil
		}
	}
	return nil
}

type fakeSettingsRepo struct {
	byUser map[string]models.NotificationSettings
}

func (f *fakeSettingsRepo) Get(_ context.Context, userID string) (models.NotificationSettings, error) {
	if s, ok := f.byUser[userID]; ok {
		return s, nil
	}
	return models.DefaultNotificationSettings(userID), nil
}

func (f *fakeSettingsRepo) Upsert(_ context.Context, s models.NotificationSettings) error {
	if f.byUser == nil {
		f.byUser = map[string]models.NotificationSettings{}
	}
	f.byUser[s.UserID] = s
	return nil
}

type fakeSchedulerLogRepo struct {
	logs         []*models.SchedulerLog
	deletedPrior *time.Time
}

func (f *fakeSchedulerLogRepo) Create(_ context.Context, log *models.SchedulerLog) error {
	cp := *log
	f.logs = append(f.logs, &cp)
	return nil
}

func (f *fakeSchedulerLogRepo) Finish(_ context.Context, id string, productsChecked, itemsChecked int, success bool, errMsg *string) error {
	for _, log := range f.logs {
		if log.ID == id {
			now := time.Now().UTC()
			log.RunFinishedAt = &now
			log.ProductsChecked = productsChecked
			log.ItemsChecked = itemsChecked
			log.Success = success
			log.Error = errMsg
			return nil
		}
	}
	return nil
}

func (f *fakeSchedulerLogRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	f.deletedPrior = &before
	return 1, nil
}

func newFakeRepos() *repository.Repositories {
	return &repository.Repositories{
		Products:      &fakeProductRepo{},
		Variants:      &fakeVariantRepo{},
		PriceHistory:  &fakePriceHistoryRepo{},
		StockHistory:  &fakeStockHistoryRepo{},
		CheckRuns:     &fakeCheckRunRepo{lastFinished: map[string]time.Time{}},
		TrackedItems:  &fakeTrackedItemRepo{},
		Notifications: &fakeNotificationRepo{},
		Settings:      &fakeSettingsRepo{},
		SchedulerLogs: &fakeSchedulerLogRepo{},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
