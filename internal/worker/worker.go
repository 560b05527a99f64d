package worker

import (
	"context"
	"errors"
	"time"

	"shopify-feed-service/internal/service"
	"shopify-feed-service/internal/util"

	"go.uber.org/zap"
)

// MaintenanceWorker periodically runs the cleanup and validation passes and
// triggers incremental syncs for merchants with auto-sync enabled.
type MaintenanceWorker struct {
	syncService   *service.SyncService
	configService *service.ConfigService
	interval      time.Duration
	maxAgeDays    int
	logger        *zap.Logger
}

// NewMaintenanceWorker creates a new maintenance worker
func NewMaintenanceWorker(
	syncService *service.SyncService,
	configService *service.ConfigService,
	interval time.Duration,
	maxAgeDays int,
) *MaintenanceWorker {
	return &MaintenanceWorker{
		syncService:   syncService,
		configService: configService,
		interval:      interval,
		maxAgeDays:    maxAgeDays,
		logger:        util.GetLogger(),
	}
}

// Start runs the maintenance loop until the context is canceled.
func (w *MaintenanceWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting maintenance worker",
		zap.Duration("interval", w.interval),
		zap.Int("max_age_days", w.maxAgeDays))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Maintenance worker stopping")
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *MaintenanceWorker) runOnce(ctx context.Context) {
	w.autoSync(ctx)

	if _, err := w.syncService.Cleanup(ctx, w.maxAgeDays); err != nil {
		w.logger.Error("Scheduled cleanup failed", zap.Error(err))
	}

	report, err := w.syncService.Validate(ctx)
	if err != nil {
		w.logger.Error("Scheduled validation failed", zap.Error(err))
		return
	}
	if !report.Valid {
		for _, issue := range report.Issues {
			w.logger.Warn("Catalog consistency issue",
				zap.String("type", issue.Type),
				zap.Int("count", issue.Count))
		}
	}
}

// autoSync starts an incremental sync when the merchant opted in. An
// already-running sync is not an error here.
func (w *MaintenanceWorker) autoSync(ctx context.Context) {
	if w.configService == nil {
		return
	}

	cfg, err := w.configService.Get(ctx)
	if err != nil {
		w.logger.Warn("Failed to load merchant config for auto-sync", zap.Error(err))
		return
	}
	if !cfg.AutoSync {
		return
	}

	if _, err := w.syncService.RunIncremental(ctx); err != nil {
		if errors.Is(err, service.ErrSyncInProgress) {
			return
		}
		w.logger.Error("Auto-sync failed", zap.Error(err))
	}
}
