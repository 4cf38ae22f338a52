package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// PostgresProductRepository implements ProductRepository for Postgres.
type PostgresProductRepository struct {
	db DBTX
}

// NewPostgresProductRepository creates a new Postgres product repository.
func NewPostgresProductRepository(db DBTX) *PostgresProductRepository {
	return &PostgresProductRepository{db: db}
}

const productColumns = `id, url, canonical_url, name, description, vendor, main_image_url, metadata, created_at, updated_at`

func (r *PostgresProductRepository) Create(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.URL,
		nullString(p.CanonicalURL),
		p.Name,
		p.Description,
		p.Vendor,
		p.MainImageURL,
		p.Metadata,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return r.scanProduct(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresProductRepository) GetByURL(ctx context.Context, url string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE url = $1`
	return r.scanProduct(r.db.QueryRowContext(ctx, query, url))
}

func (r *PostgresProductRepository) GetByCanonicalURL(ctx context.Context, url string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE canonical_url = $1`
	return r.scanProduct(r.db.QueryRowContext(ctx, query, url))
}

func (r *PostgresProductRepository) Update(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET canonical_url = $1, name = $2, description = $3, vendor = $4,
			main_image_url = $5, metadata = $6, updated_at = NOW()
		WHERE id = $7
	`
	_, err := r.db.ExecContext(ctx, query,
		nullString(p.CanonicalURL),
		p.Name,
		p.Description,
		p.Vendor,
		p.MainImageURL,
		p.Metadata,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// Delete removes a product; variants, history, check runs and tracked
// items cascade at the schema level.
func (r *PostgresProductRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

func (r *PostgresProductRepository) scanProduct(row *sql.Row) (*models.Product, error) {
	var p models.Product
	var canonical sql.NullString
	err := row.Scan(
		&p.ID,
		&p.URL,
		&canonical,
		&p.Name,
		&p.Description,
		&p.Vendor,
		&p.MainImageURL,
		&p.Metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.CanonicalURL = stringPtr(canonical)
	return &p, nil
}
