package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// PostgresNotificationRepository implements NotificationRepository.
type PostgresNotificationRepository struct {
	db DBTX
}

// NewPostgresNotificationRepository creates a new notification repository.
func NewPostgresNotificationRepository(db DBTX) *PostgresNotificationRepository {
	return &PostgresNotificationRepository{db: db}
}

const notificationColumns = `id, user_id, product_id, variant_id, type, message,
	old_price, new_price, old_status, new_status, created_at, sent, sent_at, read, metadata`

func (r *PostgresNotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	var oldStatus, newStatus sql.NullString
	if n.OldStatus != nil {
		oldStatus = sql.NullString{String: string(*n.OldStatus), Valid: true}
	}
	if n.NewStatus != nil {
		newStatus = sql.NullString{String: string(*n.NewStatus), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		n.ID,
		n.UserID,
		n.ProductID,
		nullString(n.VariantID),
		n.Type,
		n.Message,
		nullDecimal(n.OldPrice),
		nullDecimal(n.NewPrice),
		oldStatus,
		newStatus,
		n.CreatedAt,
		n.Sent,
		nullTime(n.SentAt),
		n.Read,
		n.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryNotifications(ctx, query, userID, limit, offset)
}

func (r *PostgresNotificationRepository) GetUnsent(ctx context.Context, limit int) ([]*models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE sent = FALSE
		ORDER BY created_at
		LIMIT $1
	`
	return r.queryNotifications(ctx, query, limit)
}

func (r *PostgresNotificationRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	query := `UPDATE notifications SET sent = TRUE, sent_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, sentAt, id); err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) MarkRead(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (r *PostgresNotificationRepository) queryNotifications(ctx context.Context, query string, args ...any) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func scanNotification(s rowScanner) (*models.Notification, error) {
	var n models.Notification
	var variantID, oldStatus, newStatus sql.NullString
	var oldPrice, newPrice decimal.NullDecimal
	var sentAt sql.NullTime
	err := s.Scan(
		&n.ID,
		&n.UserID,
		&n.ProductID,
		&variantID,
		&n.Type,
		&n.Message,
		&oldPrice,
		&newPrice,
		&oldStatus,
		&newStatus,
		&n.CreatedAt,
		&n.Sent,
		&sentAt,
		&n.Read,
		&n.Metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan notification: %w", err)
	}
	n.VariantID = stringPtr(variantID)
	n.OldPrice = decimalPtr(oldPrice)
	n.NewPrice = decimalPtr(newPrice)
	n.OldStatus = statusPtr(oldStatus)
	n.NewStatus = statusPtr(newStatus)
	n.SentAt = timePtr(sentAt)
	return &n, nil
}

// PostgresNotificationSettingsRepository implements
// NotificationSettingsRepository.
type PostgresNotificationSettingsRepository struct {
	db DBTX
}

// NewPostgresNotificationSettingsRepository creates a new settings repository.
func NewPostgresNotificationSettingsRepository(db DBTX) *PostgresNotificationSettingsRepository {
	return &PostgresNotificationSettingsRepository{db: db}
}

func (r *PostgresNotificationSettingsRepository) Get(ctx context.Context, userID string) (models.NotificationSettings, error) {
	query := `
		SELECT user_id, threshold_percentage, notify_on_price_increase, notify_restock, notify_stock
		FROM notification_settings WHERE user_id = $1
	`
	var s models.NotificationSettings
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID,
		&s.ThresholdPercentage,
		&s.NotifyOnPriceIncrease,
		&s.NotifyRestock,
		&s.NotifyStock,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultNotificationSettings(userID), nil
	}
	if err != nil {
		return models.NotificationSettings{}, fmt.Errorf("failed to scan notification settings: %w", err)
	}
	return s, nil
}

func (r *PostgresNotificationSettingsRepository) Upsert(ctx context.Context, s models.NotificationSettings) error {
	query := `
		INSERT INTO notification_settings (user_id, threshold_percentage, notify_on_price_increase, notify_restock, notify_stock)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			threshold_percentage = EXCLUDED.threshold_percentage,
			notify_on_price_increase = EXCLUDED.notify_on_price_increase,
			notify_restock = EXCLUDED.notify_restock,
			notify_stock = EXCLUDED.notify_stock
	`
	_, err := r.db.ExecContext(ctx, query,
		s.UserID, s.ThresholdPercentage, s.NotifyOnPriceIncrease, s.NotifyRestock, s.NotifyStock)
	if err != nil {
		return fmt.Errorf("failed to upsert notification settings: %w", err)
	}
	return nil
}
