package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/models"
)

// PostgresSchedulerLogRepository implements SchedulerLogRepository.
type PostgresSchedulerLogRepository struct {
	db DBTX
}

// NewPostgresSchedulerLogRepository creates a new scheduler log repository.
func NewPostgresSchedulerLogRepository(db DBTX) *PostgresSchedulerLogRepository {
	return &PostgresSchedulerLogRepository{db: db}
}

func (r *PostgresSchedulerLogRepository) Create(ctx context.Context, log *models.SchedulerLog) error {
	query := `
		INSERT INTO scheduler_logs (id, run_started_at, run_finished_at, products_checked, items_checked, success, error, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.RunStartedAt,
		nullTime(log.RunFinishedAt),
		log.ProductsChecked,
		log.ItemsChecked,
		log.Success,
		nullString(log.Error),
		log.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler log: %w", err)
	}
	return nil
}

func (r *PostgresSchedulerLogRepository) Finish(ctx context.Context, id string, productsChecked, itemsChecked int, success bool, errMsg *string) error {
	query := `
		UPDATE scheduler_logs
		SET run_finished_at = NOW(), products_checked = $1, items_checked = $2, success = $3, error = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, productsChecked, itemsChecked, success, nullString(errMsg), id)
	if err != nil {
		return fmt.Errorf("failed to finish scheduler log: %w", err)
	}
	return nil
}

func (r *PostgresSchedulerLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduler_logs WHERE run_started_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old scheduler logs: %w", err)
	}
	return res.RowsAffected()
}
