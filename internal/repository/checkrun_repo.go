package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// PostgresCheckRunRepository implements CheckRunRepository.
type PostgresCheckRunRepository struct {
	db DBTX
}

// NewPostgresCheckRunRepository creates a new check run repository.
func NewPostgresCheckRunRepository(db DBTX) *PostgresCheckRunRepository {
	return &PostgresCheckRunRepository{db: db}
}

const checkRunColumns = `id, product_id, started_at, finished_at, status, error_message, metadata`

func (r *PostgresCheckRunRepository) Create(ctx context.Context, run *models.CheckRun) error {
	query := `
		INSERT INTO check_runs (` + checkRunColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.ProductID,
		run.StartedAt,
		nullTime(run.FinishedAt),
		run.Status,
		nullString(run.ErrorMessage),
		run.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create check run: %w", err)
	}
	return nil
}

func (r *PostgresCheckRunRepository) GetByID(ctx context.Context, id string) (*models.CheckRun, error) {
	query := `SELECT ` + checkRunColumns + ` FROM check_runs WHERE id = $1`
	var run models.CheckRun
	var finished sql.NullTime
	var errMsg sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.ProductID,
		&run.StartedAt,
		&finished,
		&run.Status,
		&errMsg,
		&run.Metadata,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan check run: %w", err)
	}
	run.FinishedAt = timePtr(finished)
	run.ErrorMessage = stringPtr(errMsg)
	return &run, nil
}

func (r *PostgresCheckRunRepository) Finish(ctx context.Context, id string, status models.CheckRunStatus, errorMessage *string, metadata models.Metadata) error {
	query := `
		UPDATE check_runs
		SET finished_at = NOW(), status = $1, error_message = $2, metadata = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, nullString(errorMessage), metadata, id)
	if err != nil {
		return fmt.Errorf("failed to finish check run: %w", err)
	}
	return nil
}

func (r *PostgresCheckRunRepository) LastFinishedAt(ctx context.Context, productID string) (*time.Time, error) {
	query := `
		SELECT finished_at FROM check_runs
		WHERE product_id = $1 AND finished_at IS NOT NULL
		ORDER BY finished_at DESC
		LIMIT 1
	`
	var finished time.Time
	err := r.db.QueryRowContext(ctx, query, productID).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last check: %w", err)
	}
	return &finished, nil
}

// DueProducts selects tracked products whose most recent finished check
// is older than minInterval, never-checked products first, then oldest
// checked.
func (r *PostgresCheckRunRepository) DueProducts(ctx context.Context, minInterval time.Duration, limit int) ([]string, error) {
	query := `
		SELECT t.product_id
		FROM (SELECT DISTINCT product_id FROM tracked_items) t
		LEFT JOIN (
			SELECT product_id, MAX(finished_at) AS last_finished
			FROM check_runs
			WHERE finished_at IS NOT NULL
			GROUP BY product_id
		) c ON c.product_id = t.product_id
		WHERE c.last_finished IS NULL OR c.last_finished < NOW() - $1::interval
		ORDER BY c.last_finished ASC NULLS FIRST
		LIMIT $2
	`
	interval := fmt.Sprintf("%d seconds", int(minInterval.Seconds()))
	rows, err := r.db.QueryContext(ctx, query, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due products: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan due product: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresCheckRunRepository) MarkStaleFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	query := `
		UPDATE check_runs
		SET finished_at = NOW(), status = $1, error_message = 'check run abandoned (worker restart)'
		WHERE finished_at IS NULL AND started_at < NOW() - $2::interval
	`
	interval := fmt.Sprintf("%d seconds", int(maxAge.Seconds()))
	res, err := r.db.ExecContext(ctx, query, models.CheckRunFailed, interval)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale check runs: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresCheckRunRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM check_runs WHERE finished_at IS NOT NULL AND finished_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old check runs: %w", err)
	}
	return res.RowsAffected()
}
