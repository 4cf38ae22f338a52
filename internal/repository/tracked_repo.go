package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// PostgresTrackedItemRepository implements TrackedItemRepository.
type PostgresTrackedItemRepository struct {
	db DBTX
}

// NewPostgresTrackedItemRepository creates a new tracked item repository.
func NewPostgresTrackedItemRepository(db DBTX) *PostgresTrackedItemRepository {
	return &PostgresTrackedItemRepository{db: db}
}

const trackedColumns = `id, user_id, product_id, variant_id, created_at`

func (r *PostgresTrackedItemRepository) Create(ctx context.Context, item *models.TrackedItem) error {
	query := `
		INSERT INTO tracked_items (` + trackedColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.UserID, item.ProductID, nullString(item.VariantID), item.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tracked item: %w", err)
	}
	return nil
}

func (r *PostgresTrackedItemRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tracked_items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete tracked item: %w", err)
	}
	return nil
}

func (r *PostgresTrackedItemRepository) GetByUserID(ctx context.Context, userID string) ([]*models.TrackedItem, error) {
	query := `SELECT ` + trackedColumns + ` FROM tracked_items WHERE user_id = $1 ORDER BY created_at`
	return r.queryItems(ctx, query, userID)
}

func (r *PostgresTrackedItemRepository) ForProduct(ctx context.Context, productID string) ([]*models.TrackedItem, error) {
	query := `SELECT ` + trackedColumns + ` FROM tracked_items WHERE product_id = $1`
	return r.queryItems(ctx, query, productID)
}

func (r *PostgresTrackedItemRepository) TrackedProductIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT product_id FROM tracked_items`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked products: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresTrackedItemRepository) queryItems(ctx context.Context, query string, args ...any) ([]*models.TrackedItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked items: %w", err)
	}
	defer rows.Close()

	var items []*models.TrackedItem
	for rows.Next() {
		var item models.TrackedItem
		var variantID sql.NullString
		if err := rows.Scan(&item.ID, &item.UserID, &item.ProductID, &variantID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracked item: %w", err)
		}
		item.VariantID = stringPtr(variantID)
		items = append(items, &item)
	}
	return items, rows.Err()
}
