package store

import (
	"context"
	"fmt"

	"shopify-feed-service/internal/models"
)

// AppendSyncRun appends a terminal run record to the append-only log.
func (s *Store) AppendSyncRun(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (
			sync_type, status, products_processed, products_added,
			products_updated, products_skipped, errors_count,
			start_time, end_time, duration_seconds, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, run, query,
		run.SyncType, run.Status, run.ProductsProcessed, run.ProductsAdded,
		run.ProductsUpdated, run.ProductsSkipped, run.ErrorsCount,
		run.StartTime, run.EndTime, run.DurationSeconds, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to append sync run: %w", err)
	}
	return nil
}

// SyncRuns returns a page of the run log, newest first.
func (s *Store) SyncRuns(ctx context.Context, page, limit int) ([]models.SyncRun, models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 100
	}
	offset := (page - 1) * limit

	var runs []models.SyncRun
	err := s.db.SelectContext(ctx, &runs,
		"SELECT * FROM sync_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to query sync runs: %w", err)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sync_runs"); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to count sync runs: %w", err)
	}

	return runs, models.Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// LastSyncRun returns the most recent run record, or nil when the log is
// empty.
func (s *Store) LastSyncRun(ctx context.Context) (*models.SyncRun, error) {
	var runs []models.SyncRun
	err := s.db.SelectContext(ctx, &runs,
		"SELECT * FROM sync_runs ORDER BY created_at DESC LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("failed to query last sync run: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// AppendExportRecord appends an entry to the export history.
func (s *Store) AppendExportRecord(ctx context.Context, rec *models.ExportRecord) error {
	query := `
		INSERT INTO export_history (filename, products_count, file_size, filters)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at`

	err := s.db.GetContext(ctx, rec, query,
		rec.Filename, rec.ProductsCount, rec.FileSize, rec.Filters)
	if err != nil {
		return fmt.Errorf("failed to append export record: %w", err)
	}
	return nil
}

// ExportRecords returns the most recent export history entries.
func (s *Store) ExportRecords(ctx context.Context, limit int) ([]models.ExportRecord, error) {
	if limit < 1 {
		limit = 10
	}
	var recs []models.ExportRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM export_history ORDER BY created_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query export history: %w", err)
	}
	return recs, nil
}
