package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"shopify-feed-service/internal/models"
	"shopify-feed-service/internal/redisclient"
	"shopify-feed-service/internal/shopify"
	"shopify-feed-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSyncInProgress is returned when a sync start is attempted while another
// run is active. The active run is left untouched.
var ErrSyncInProgress = errors.New("a sync is already in progress")

// CatalogSource fetches catalog data from the remote platform.
type CatalogSource interface {
	Configured() bool
	ProductCount(ctx context.Context) int
	FetchAllSince(ctx context.Context, sinceID int64) ([]shopify.RemoteProduct, error)
	FetchUpdatedSince(ctx context.Context, since time.Time) ([]shopify.RemoteProduct, error)
}

// SyncStore is the persistence surface the coordinator writes through.
type SyncStore interface {
	UpsertProduct(ctx context.Context, p *models.Product) error
	UpsertVariant(ctx context.Context, v *models.Variant) error
	UpsertImage(ctx context.Context, img *models.Image) error
	ProductExists(ctx context.Context, shopifyID string) (bool, error)
	LastSyncTime(ctx context.Context) (*time.Time, error)
	AppendSyncRun(ctx context.Context, run *models.SyncRun) error
	SyncRuns(ctx context.Context, page, limit int) ([]models.SyncRun, models.Pagination, error)
	LastSyncRun(ctx context.Context) (*models.SyncRun, error)
	Statistics(ctx context.Context) (*models.CatalogStats, error)
	DeleteStaleProducts(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteOrphanVariants(ctx context.Context) (int64, error)
	DeleteOrphanImages(ctx context.Context) (int64, error)
	ProductsWithoutVariants(ctx context.Context) (int, []map[string]string, error)
	VariantsWithInvalidPrices(ctx context.Context) (int, []map[string]string, error)
	ProductsWithoutImages(ctx context.Context) (int, []map[string]string, error)
	DuplicateSKUs(ctx context.Context) (int, []map[string]string, error)
}

// EventSink publishes catalog lifecycle events. Publishing is best-effort;
// failures are logged and never abort the operation that raised them.
type EventSink interface {
	PublishSyncStarted(ctx context.Context, event *models.SyncStartedEvent) error
	PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error
	PublishSyncFailed(ctx context.Context, event *models.SyncFailedEvent) error
	PublishSyncCanceled(ctx context.Context, event *models.SyncCanceledEvent) error
	PublishFeedGenerated(ctx context.Context, event *models.FeedGeneratedEvent) error
}

// StatusCache caches serialized status/statistics payloads and backs the
// cross-replica sync lock.
type StatusCache interface {
	GetJSON(ctx context.Context, key string, out interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

const (
	statsCacheTTL = time.Minute

	// syncLockTTL bounds how long a crashed replica can hold the sync
	// lock before it expires on its own.
	syncLockTTL = 30 * time.Minute

	defaultCleanupMaxAgeDays = 30
)

// SyncService coordinates full and incremental catalog pulls. At most one
// run is active per process; the current run is guarded by the mutex.
type SyncService struct {
	source CatalogSource
	store  SyncStore
	cache  StatusCache
	events EventSink
	logger *zap.Logger

	mu              sync.Mutex
	current         *models.SyncRun
	cancelRequested bool
}

// NewSyncService creates a new sync service. cache and events may be nil.
func NewSyncService(source CatalogSource, store SyncStore, cache StatusCache, events EventSink) *SyncService {
	return &SyncService{
		source: source,
		store:  store,
		cache:  cache,
		events: events,
		logger: util.GetLogger(),
	}
}

// RunFull pulls the entire remote catalog and upserts every item.
func (s *SyncService) RunFull(ctx context.Context) (*models.SyncRun, error) {
	return s.run(ctx, models.SyncTypeFull)
}

// RunIncremental pulls only items updated since the stored watermark. With
// no watermark it behaves like a full pull.
func (s *SyncService) RunIncremental(ctx context.Context) (*models.SyncRun, error) {
	return s.run(ctx, models.SyncTypeIncremental)
}

func (s *SyncService) run(ctx context.Context, syncType string) (*models.SyncRun, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.Run")
	defer span.End()

	if !s.source.Configured() {
		return nil, shopify.ErrNotConfigured
	}

	run, err := s.begin(ctx, syncType)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Sync started", zap.String("sync_type", syncType))
	s.publishStarted(ctx, syncType)

	products, err := s.fetch(ctx, syncType)
	if err != nil {
		return s.finish(ctx, run, models.SyncStatusFailed, err)
	}

	if len(products) == 0 {
		s.logger.Info("No products to sync", zap.String("sync_type", syncType))
		return s.finish(ctx, run, models.SyncStatusCompleted, nil)
	}

	for _, remote := range products {
		if s.canceled() {
			s.logger.Warn("Sync canceled",
				zap.String("sync_type", syncType),
				zap.Int("products_processed", run.ProductsProcessed))
			return s.finish(ctx, run, models.SyncStatusCanceled, nil)
		}
		s.processProduct(ctx, run, remote)
	}

	return s.finish(ctx, run, models.SyncStatusCompleted, nil)
}

// begin claims the current-run slot, rejecting concurrent starts. The
// in-process mutex is the authority; the Redis lock extends the same
// exclusion across replicas and is best-effort when Redis is down.
func (s *SyncService) begin(ctx context.Context, syncType string) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return nil, ErrSyncInProgress
	}

	if s.cache != nil {
		acquired, err := s.cache.AcquireLock(ctx, redisclient.KeySyncLock, syncLockTTL)
		if err != nil {
			s.logger.Warn("Failed to acquire sync lock, proceeding without it", zap.Error(err))
		} else if !acquired {
			return nil, ErrSyncInProgress
		}
	}

	run := &models.SyncRun{
		SyncType:  syncType,
		Status:    models.SyncStatusRunning,
		StartTime: time.Now(),
	}
	s.current = run
	s.cancelRequested = false
	return run, nil
}

func (s *SyncService) fetch(ctx context.Context, syncType string) ([]shopify.RemoteProduct, error) {
	if syncType == models.SyncTypeFull {
		if count := s.source.ProductCount(ctx); count > 0 {
			s.logger.Info("Remote catalog size", zap.Int("product_count", count))
		}
		return s.source.FetchAllSince(ctx, 0)
	}

	watermark, err := s.store.LastSyncTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync watermark: %w", err)
	}
	if watermark == nil {
		s.logger.Info("No sync watermark, falling back to full fetch")
		if count := s.source.ProductCount(ctx); count > 0 {
			s.logger.Info("Remote catalog size", zap.Int("product_count", count))
		}
		return s.source.FetchAllSince(ctx, 0)
	}

	return s.source.FetchUpdatedSince(ctx, *watermark)
}

// processProduct upserts one remote product, its lowest positive-priced
// variant and its first image. Failures are counted and swallowed so the
// run continues.
func (s *SyncService) processProduct(ctx context.Context, run *models.SyncRun, remote shopify.RemoteProduct) {
	shopifyID := strconv.FormatInt(remote.ID, 10)

	exists, err := s.store.ProductExists(ctx, shopifyID)
	if err != nil {
		s.recordItemError(run, shopifyID, err)
		return
	}

	if err := s.store.UpsertProduct(ctx, mapRemoteProduct(remote)); err != nil {
		s.recordItemError(run, shopifyID, err)
		return
	}

	variant := lowestPricedVariant(remote.Variants)
	if variant == nil {
		s.mu.Lock()
		run.ProductsProcessed++
		run.ProductsSkipped++
		s.mu.Unlock()
		util.SyncProductsProcessedTotal.Inc()
		return
	}

	variant.ProductID = shopifyID
	if err := s.store.UpsertVariant(ctx, variant); err != nil {
		s.recordItemError(run, shopifyID, err)
		return
	}

	if len(remote.Images) > 0 {
		image := mapRemoteImage(remote.Images[0])
		image.ProductID = shopifyID
		if err := s.store.UpsertImage(ctx, image); err != nil {
			s.recordItemError(run, shopifyID, err)
			return
		}
	}

	s.mu.Lock()
	run.ProductsProcessed++
	if exists {
		run.ProductsUpdated++
	} else {
		run.ProductsAdded++
	}
	s.mu.Unlock()
	util.SyncProductsProcessedTotal.Inc()
}

func (s *SyncService) recordItemError(run *models.SyncRun, shopifyID string, err error) {
	s.mu.Lock()
	run.ErrorsCount++
	s.mu.Unlock()
	util.SyncProductErrorsTotal.Inc()
	s.logger.Warn("Failed to process product",
		zap.String("shopify_id", shopifyID),
		zap.Error(err))
}

// finish writes the terminal run record and releases the current-run slot.
func (s *SyncService) finish(ctx context.Context, run *models.SyncRun, status string, runErr error) (*models.SyncRun, error) {
	now := time.Now()

	s.mu.Lock()
	run.Status = status
	run.EndTime = sql.NullTime{Time: now, Valid: true}
	run.DurationSeconds = int(now.Sub(run.StartTime).Seconds())
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}
	s.current = nil
	s.cancelRequested = false
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.ReleaseLock(ctx, redisclient.KeySyncLock); err != nil {
			s.logger.Warn("Failed to release sync lock", zap.Error(err))
		}
	}

	if err := s.store.AppendSyncRun(ctx, run); err != nil {
		s.logger.Error("Failed to append sync run record", zap.Error(err))
	}

	util.SyncRunsTotal.WithLabelValues(run.SyncType, status).Inc()
	util.SyncDuration.WithLabelValues(run.SyncType).Observe(float64(run.DurationSeconds))

	s.invalidateCaches(ctx)
	s.publishTerminal(ctx, run, runErr)

	s.logger.Info("Sync finished",
		zap.String("sync_type", run.SyncType),
		zap.String("status", status),
		zap.Int("products_processed", run.ProductsProcessed),
		zap.Int("products_added", run.ProductsAdded),
		zap.Int("products_updated", run.ProductsUpdated),
		zap.Int("errors_count", run.ErrorsCount),
		zap.Int("duration_seconds", run.DurationSeconds))

	if runErr != nil {
		return run, runErr
	}
	return run, nil
}

// Cancel requests cooperative cancellation of the active run. It returns
// false when no run is active. An in-flight network call is not
// interrupted; the run stops before the next item.
func (s *SyncService) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return false
	}
	s.cancelRequested = true
	return true
}

func (s *SyncService) canceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested
}

// IsRunning reports whether a run is active.
func (s *SyncService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Status returns the control-surface view: the active run (if any), the
// last terminal run, cached catalog statistics and recent history.
func (s *SyncService) Status(ctx context.Context) (*models.SyncStatus, error) {
	status := &models.SyncStatus{RecentRuns: []models.SyncRun{}}

	s.mu.Lock()
	if s.current != nil {
		current := *s.current
		status.IsRunning = true
		status.CurrentRun = &current
	}
	s.mu.Unlock()

	lastRun, err := s.store.LastSyncRun(ctx)
	if err != nil {
		return nil, err
	}
	status.LastRun = lastRun

	stats, err := s.cachedStatistics(ctx)
	if err != nil {
		s.logger.Warn("Failed to load catalog statistics", zap.Error(err))
	} else {
		status.Stats = stats
	}

	recent, _, err := s.store.SyncRuns(ctx, 1, 5)
	if err != nil {
		s.logger.Warn("Failed to load recent sync runs", zap.Error(err))
	} else {
		status.RecentRuns = recent
	}

	return status, nil
}

func (s *SyncService) cachedStatistics(ctx context.Context) (*models.CatalogStats, error) {
	if s.cache != nil {
		var cached models.CatalogStats
		if ok, err := s.cache.GetJSON(ctx, redisclient.KeyCatalogStats, &cached); err == nil && ok {
			return &cached, nil
		}
	}

	stats, err := s.store.Statistics(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, redisclient.KeyCatalogStats, stats, statsCacheTTL); err != nil {
			s.logger.Warn("Failed to cache catalog statistics", zap.Error(err))
		}
	}
	return stats, nil
}

func (s *SyncService) invalidateCaches(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, redisclient.KeyCatalogStats); err != nil {
		s.logger.Warn("Failed to invalidate statistics cache", zap.Error(err))
	}
}

// CleanupResult summarizes one maintenance deletion pass.
type CleanupResult struct {
	Cutoff          time.Time `json:"cutoff"`
	ProductsRemoved int64     `json:"products_removed"`
	VariantsRemoved int64     `json:"variants_removed"`
	ImagesRemoved   int64     `json:"images_removed"`
}

// Cleanup deletes products whose local modification predates the cutoff and
// whose sync never completed, then removes orphaned variants and images.
func (s *SyncService) Cleanup(ctx context.Context, maxAgeDays int) (*CleanupResult, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.Cleanup")
	defer span.End()

	if maxAgeDays <= 0 {
		maxAgeDays = defaultCleanupMaxAgeDays
	}
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)

	products, err := s.store.DeleteStaleProducts(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	variants, err := s.store.DeleteOrphanVariants(ctx)
	if err != nil {
		return nil, err
	}
	images, err := s.store.DeleteOrphanImages(ctx)
	if err != nil {
		return nil, err
	}

	s.invalidateCaches(ctx)
	s.logger.Info("Cleanup finished",
		zap.Time("cutoff", cutoff),
		zap.Int64("products_removed", products),
		zap.Int64("variants_removed", variants),
		zap.Int64("images_removed", images))

	return &CleanupResult{
		Cutoff:          cutoff,
		ProductsRemoved: products,
		VariantsRemoved: variants,
		ImagesRemoved:   images,
	}, nil
}

// Validate runs the read-only consistency scan. It never mutates state.
func (s *SyncService) Validate(ctx context.Context) (*models.ValidationReport, error) {
	ctx, span := util.StartSpan(ctx, "SyncService.Validate")
	defer span.End()

	report := &models.ValidationReport{
		Issues:    []models.ValidationIssue{},
		Timestamp: time.Now(),
	}

	checks := []struct {
		issueType   string
		description string
		query       func(context.Context) (int, []map[string]string, error)
	}{
		{"products_without_variants", "Products with no stored variant", s.store.ProductsWithoutVariants},
		{"invalid_variant_prices", "Variants with a missing or non-positive price", s.store.VariantsWithInvalidPrices},
		{"products_without_images", "Products with no stored image", s.store.ProductsWithoutImages},
		{"duplicate_skus", "SKUs assigned to more than one variant", s.store.DuplicateSKUs},
	}

	for _, check := range checks {
		count, items, err := check.query(ctx)
		if err != nil {
			return nil, fmt.Errorf("validation check %s failed: %w", check.issueType, err)
		}
		if count == 0 {
			continue
		}
		report.Issues = append(report.Issues, models.ValidationIssue{
			Type:        check.issueType,
			Count:       count,
			Description: check.description,
			Items:       items,
		})
	}

	report.Valid = len(report.Issues) == 0
	return report, nil
}

func (s *SyncService) publishStarted(ctx context.Context, syncType string) {
	if s.events == nil {
		return
	}
	event := &models.SyncStartedEvent{
		BaseEvent: newBaseEvent(models.EventTypeSyncStarted),
		SyncType:  syncType,
	}
	if err := s.events.PublishSyncStarted(ctx, event); err != nil {
		s.logger.Warn("Failed to publish sync started event", zap.Error(err))
	}
}

func (s *SyncService) publishTerminal(ctx context.Context, run *models.SyncRun, runErr error) {
	if s.events == nil {
		return
	}

	var err error
	switch run.Status {
	case models.SyncStatusCompleted:
		err = s.events.PublishSyncCompleted(ctx, &models.SyncCompletedEvent{
			BaseEvent:         newBaseEvent(models.EventTypeSyncCompleted),
			SyncType:          run.SyncType,
			ProductsProcessed: run.ProductsProcessed,
			ProductsAdded:     run.ProductsAdded,
			ProductsUpdated:   run.ProductsUpdated,
			ErrorsCount:       run.ErrorsCount,
			DurationSeconds:   run.DurationSeconds,
		})
	case models.SyncStatusFailed:
		reason := ""
		if runErr != nil {
			reason = runErr.Error()
		}
		err = s.events.PublishSyncFailed(ctx, &models.SyncFailedEvent{
			BaseEvent: newBaseEvent(models.EventTypeSyncFailed),
			SyncType:  run.SyncType,
			Reason:    reason,
		})
	case models.SyncStatusCanceled:
		err = s.events.PublishSyncCanceled(ctx, &models.SyncCanceledEvent{
			BaseEvent:         newBaseEvent(models.EventTypeSyncCanceled),
			SyncType:          run.SyncType,
			ProductsProcessed: run.ProductsProcessed,
		})
	}

	if err != nil {
		s.logger.Warn("Failed to publish sync event",
			zap.String("status", run.Status),
			zap.Error(err))
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// lowestPricedVariant returns the variant with the minimum positive price,
// or nil when none qualifies. Prices arrive as decimal strings.
func lowestPricedVariant(variants []shopify.RemoteVariant) *models.Variant {
	var best *shopify.RemoteVariant
	bestPrice := 0.0

	for i := range variants {
		price, err := strconv.ParseFloat(variants[i].Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		if best == nil || price < bestPrice {
			best = &variants[i]
			bestPrice = price
		}
	}

	if best == nil {
		return nil
	}
	return mapRemoteVariant(*best, bestPrice)
}

func mapRemoteProduct(remote shopify.RemoteProduct) *models.Product {
	return &models.Product{
		ShopifyID:   strconv.FormatInt(remote.ID, 10),
		Title:       remote.Title,
		Handle:      remote.Handle,
		BodyHTML:    remote.BodyHTML,
		Vendor:      remote.Vendor,
		ProductType: remote.ProductType,
		CreatedAt:   parseRemoteTime(remote.CreatedAt),
		UpdatedAt:   parseRemoteTime(remote.UpdatedAt),
		PublishedAt: parseRemoteTime(remote.PublishedAt),
		Status:      remote.Status,
		Tags:        remote.Tags,
		Brand:       remote.Vendor,
	}
}

func mapRemoteVariant(remote shopify.RemoteVariant, price float64) *models.Variant {
	variant := &models.Variant{
		ShopifyID:         strconv.FormatInt(remote.ID, 10),
		ProductID:         strconv.FormatInt(remote.ProductID, 10),
		Title:             remote.Title,
		Price:             price,
		SKU:               remote.SKU,
		Position:          remote.Position,
		Option1:           remote.Option1,
		Option2:           remote.Option2,
		Option3:           remote.Option3,
		Barcode:           remote.Barcode,
		Grams:             remote.Grams,
		Weight:            remote.Weight,
		WeightUnit:        remote.WeightUnit,
		InventoryQuantity: remote.InventoryQuantity,
		RequiresShipping:  remote.RequiresShipping,
	}

	if compareAt, err := strconv.ParseFloat(remote.CompareAtPrice, 64); err == nil && compareAt > 0 {
		variant.CompareAtPrice = sql.NullFloat64{Float64: compareAt, Valid: true}
	}
	return variant
}

func mapRemoteImage(remote shopify.RemoteImage) *models.Image {
	return &models.Image{
		ShopifyID: strconv.FormatInt(remote.ID, 10),
		ProductID: strconv.FormatInt(remote.ProductID, 10),
		Position:  remote.Position,
		Src:       remote.Src,
		Width:     remote.Width,
		Height:    remote.Height,
		Alt:       remote.Alt,
	}
}

func parseRemoteTime(value string) sql.NullTime {
	if value == "" {
		return sql.NullTime{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
