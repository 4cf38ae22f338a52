package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// PostgresVariantRepository implements VariantRepository for Postgres.
type PostgresVariantRepository struct {
	db DBTX
}

// NewPostgresVariantRepository creates a new Postgres variant repository.
func NewPostgresVariantRepository(db DBTX) *PostgresVariantRepository {
	return &PostgresVariantRepository{db: db}
}

const variantColumns = `id, product_id, sku, attributes, natural_key, currency, current_price,
	current_stock_status, is_available, last_checked_at, metadata, created_at, updated_at`

func (r *PostgresVariantRepository) Create(ctx context.Context, v *models.Variant) error {
	query := `
		INSERT INTO variants (` + variantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		v.ID,
		v.ProductID,
		nullString(v.SKU),
		v.Attributes,
		v.Attributes.NaturalKey(),
		v.Currency,
		nullDecimal(v.CurrentPrice),
		v.CurrentStockStatus,
		v.IsAvailable,
		nullTime(v.LastCheckedAt),
		v.Metadata,
		v.CreatedAt,
		v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create variant: %w", err)
	}
	return nil
}

func (r *PostgresVariantRepository) GetByID(ctx context.Context, id string) (*models.Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE id = $1`
	return scanVariantRow(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresVariantRepository) GetByProductID(ctx context.Context, productID string) ([]*models.Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE product_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	var variants []*models.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func (r *PostgresVariantRepository) GetByNaturalKey(ctx context.Context, productID, naturalKey string) (*models.Variant, error) {
	query := `SELECT ` + variantColumns + ` FROM variants WHERE product_id = $1 AND natural_key = $2`
	return scanVariantRow(r.db.QueryRowContext(ctx, query, productID, naturalKey))
}

func (r *PostgresVariantRepository) Update(ctx context.Context, v *models.Variant) error {
	query := `
		UPDATE variants
		SET sku = $1, attributes = $2, natural_key = $3, currency = $4, current_price = $5,
			current_stock_status = $6, is_available = $7, last_checked_at = $8,
			metadata = $9, updated_at = NOW()
		WHERE id = $10
	`
	_, err := r.db.ExecContext(ctx, query,
		nullString(v.SKU),
		v.Attributes,
		v.Attributes.NaturalKey(),
		v.Currency,
		nullDecimal(v.CurrentPrice),
		v.CurrentStockStatus,
		v.IsAvailable,
		nullTime(v.LastCheckedAt),
		v.Metadata,
		v.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update variant: %w", err)
	}
	return nil
}

func (r *PostgresVariantRepository) CountByProductID(ctx context.Context, productID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM variants WHERE product_id = $1`, productID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count variants: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariantRow(row *sql.Row) (*models.Variant, error) {
	v, err := scanVariant(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func scanVariant(s rowScanner) (*models.Variant, error) {
	var v models.Variant
	var sku sql.NullString
	var naturalKey string
	var price decimal.NullDecimal
	var lastChecked sql.NullTime
	err := s.Scan(
		&v.ID,
		&v.ProductID,
		&sku,
		&v.Attributes,
		&naturalKey,
		&v.Currency,
		&price,
		&v.CurrentStockStatus,
		&v.IsAvailable,
		&lastChecked,
		&v.Metadata,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan variant: %w", err)
	}
	v.SKU = stringPtr(sku)
	v.CurrentPrice = decimalPtr(price)
	v.LastCheckedAt = timePtr(lastChecked)
	return &v, nil
}
