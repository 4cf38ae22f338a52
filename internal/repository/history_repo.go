package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// PostgresPriceHistoryRepository implements PriceHistoryRepository.
type PostgresPriceHistoryRepository struct {
	db DBTX
}

// NewPostgresPriceHistoryRepository creates a new price history repository.
func NewPostgresPriceHistoryRepository(db DBTX) *PostgresPriceHistoryRepository {
	return &PostgresPriceHistoryRepository{db: db}
}

const priceHistoryColumns = `id, variant_id, recorded_at, price, currency, raw, metadata`

func (r *PostgresPriceHistoryRepository) Create(ctx context.Context, h *models.VariantPriceHistory) error {
	query := `
		INSERT INTO variant_price_history (` + priceHistoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.VariantID, h.RecordedAt, h.Price, h.Currency, h.Raw, h.Metadata)
	if err != nil {
		return fmt.Errorf("failed to create price history: %w", err)
	}
	return nil
}

func (r *PostgresPriceHistoryRepository) GetByVariantID(ctx context.Context, variantID string, limit int) ([]*models.VariantPriceHistory, error) {
	query := `
		SELECT ` + priceHistoryColumns + `
		FROM variant_price_history
		WHERE variant_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, variantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var out []*models.VariantPriceHistory
	for rows.Next() {
		var h models.VariantPriceHistory
		if err := rows.Scan(&h.ID, &h.VariantID, &h.RecordedAt, &h.Price, &h.Currency, &h.Raw, &h.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *PostgresPriceHistoryRepository) Latest(ctx context.Context, variantID string) (*models.VariantPriceHistory, error) {
	query := `
		SELECT ` + priceHistoryColumns + `
		FROM variant_price_history
		WHERE variant_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`
	var h models.VariantPriceHistory
	err := r.db.QueryRowContext(ctx, query, variantID).
		Scan(&h.ID, &h.VariantID, &h.RecordedAt, &h.Price, &h.Currency, &h.Raw, &h.Metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan price history: %w", err)
	}
	return &h, nil
}

// PostgresStockHistoryRepository implements StockHistoryRepository.
type PostgresStockHistoryRepository struct {
	db DBTX
}

// NewPostgresStockHistoryRepository creates a new stock history repository.
func NewPostgresStockHistoryRepository(db DBTX) *PostgresStockHistoryRepository {
	return &PostgresStockHistoryRepository{db: db}
}

const stockHistoryColumns = `id, variant_id, recorded_at, status, raw, metadata`

func (r *PostgresStockHistoryRepository) Create(ctx context.Context, h *models.VariantStockHistory) error {
	query := `
		INSERT INTO variant_stock_history (` + stockHistoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.VariantID, h.RecordedAt, h.Status, h.Raw, h.Metadata)
	if err != nil {
		return fmt.Errorf("failed to create stock history: %w", err)
	}
	return nil
}

func (r *PostgresStockHistoryRepository) GetByVariantID(ctx context.Context, variantID string, limit int) ([]*models.VariantStockHistory, error) {
	query := `
		SELECT ` + stockHistoryColumns + `
		FROM variant_stock_history
		WHERE variant_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, variantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock history: %w", err)
	}
	defer rows.Close()

	var out []*models.VariantStockHistory
	for rows.Next() {
		var h models.VariantStockHistory
		if err := rows.Scan(&h.ID, &h.VariantID, &h.RecordedAt, &h.Status, &h.Raw, &h.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan stock history: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *PostgresStockHistoryRepository) Latest(ctx context.Context, variantID string) (*models.VariantStockHistory, error) {
	query := `
		SELECT ` + stockHistoryColumns + `
		FROM variant_stock_history
		WHERE variant_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`
	var h models.VariantStockHistory
	err := r.db.QueryRowContext(ctx, query, variantID).
		Scan(&h.ID, &h.VariantID, &h.RecordedAt, &h.Status, &h.Raw, &h.Metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan stock history: %w", err)
	}
	return &h, nil
}
