package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"shopify-feed-service/internal/models"
	"shopify-feed-service/internal/shopify"
	"shopify-feed-service/internal/util"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// ErrShopNotConfigured is returned when feed generation is attempted before
// a shop domain has been saved.
var ErrShopNotConfigured = errors.New("shop domain not configured")

// ErrNoFeedRows is returned when no products match the requested filters.
// No partial file is written.
var ErrNoFeedRows = errors.New("no products match the requested filters")

const (
	feedSheetName        = "Feed"
	defaultFeedBatchSize = 100
)

// feedColumns is the fixed advertising-feed header. Order is part of the
// output contract.
var feedColumns = []string{
	"id", "title", "description", "link", "image_link", "additional_image_link",
	"availability", "price", "sale_price", "brand", "gtin", "mpn", "condition",
	"product_type", "google_product_category", "item_group_id",
	"color", "size", "material", "pattern", "age_group", "gender",
	"size_system", "size_type", "shipping", "shipping_weight", "shipping_label",
	"tax", "multipack", "is_bundle", "adult", "ads_redirect",
	"custom_label_0", "custom_label_1", "custom_label_2", "custom_label_3", "custom_label_4",
	"promotion_id", "sale_price_effective_date",
}

// FeedStore is the persistence surface the feed pipeline reads from.
type FeedStore interface {
	FeedRows(ctx context.Context, filters models.FeedFilters) ([]models.FeedRow, error)
	AppendExportRecord(ctx context.Context, rec *models.ExportRecord) error
	ExportRecords(ctx context.Context, limit int) ([]models.ExportRecord, error)
}

// ShopSource exposes the configured shop identity used to build product
// links.
type ShopSource interface {
	Configured() bool
	ShopDomain() string
}

// ConfigProvider supplies the merged merchant configuration.
type ConfigProvider interface {
	Get(ctx context.Context) (*models.MerchantConfig, error)
}

// FeedService turns stored catalog rows into an annotated spreadsheet
// export.
type FeedService struct {
	store     FeedStore
	shop      ShopSource
	config    ConfigProvider
	events    EventSink
	exportDir string
	logger    *zap.Logger
}

// NewFeedService creates a new feed service. config and events may be nil.
func NewFeedService(store FeedStore, shop ShopSource, config ConfigProvider, events EventSink, exportDir string) *FeedService {
	return &FeedService{
		store:     store,
		shop:      shop,
		config:    config,
		events:    events,
		exportDir: exportDir,
		logger:    util.GetLogger(),
	}
}

func validateFilters(filters models.FeedFilters) error {
	if filters.MinPrice < 0 || filters.MaxPrice < 0 {
		return errors.New("price filters must not be negative")
	}
	if filters.MinPrice > 0 && filters.MaxPrice > 0 && filters.MinPrice > filters.MaxPrice {
		return errors.New("min_price must not exceed max_price")
	}
	return nil
}

// Generate runs the whole pipeline: fetch, group, derive labels, render the
// spreadsheet, record the export. It aborts without writing anything when
// zero rows match or the shop is not configured.
func (s *FeedService) Generate(ctx context.Context, filters models.FeedFilters) (*models.FeedResult, error) {
	ctx, span := util.StartSpan(ctx, "FeedService.Generate")
	defer span.End()

	start := time.Now()

	if err := validateFilters(filters); err != nil {
		util.FeedGenerationFailed.WithLabelValues("invalid_filters").Inc()
		return nil, err
	}

	if !s.shop.Configured() || s.shop.ShopDomain() == "" {
		util.FeedGenerationFailed.WithLabelValues("not_configured").Inc()
		return nil, ErrShopNotConfigured
	}

	cfg := s.merchantConfig(ctx)

	rows, err := s.store.FeedRows(ctx, filters)
	if err != nil {
		util.FeedGenerationFailed.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("failed to load feed rows: %w", err)
	}
	if len(rows) == 0 {
		util.FeedGenerationFailed.WithLabelValues("no_rows").Inc()
		return nil, ErrNoFeedRows
	}

	labels := deriveLabels(rows, cfg.HigherVariantLabels)

	filename := fmt.Sprintf("google_merchant_feed_%s_%d_products.xlsx",
		time.Now().Format("2006-01-02"), len(rows))
	path := filepath.Join(s.exportDir, filename)

	if err := s.render(rows, labels, cfg.FeedBatchSize, path); err != nil {
		util.FeedGenerationFailed.WithLabelValues("render_error").Inc()
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat export file: %w", err)
	}
	sizeKB := info.Size() / 1024
	if sizeKB == 0 {
		sizeKB = 1
	}

	s.recordExport(ctx, filename, len(rows), info.Size(), filters)

	util.FeedsGeneratedTotal.Inc()
	util.FeedRowsTotal.Add(float64(len(rows)))
	util.FeedGenerationDuration.Observe(time.Since(start).Seconds())

	result := &models.FeedResult{
		Filename:    filename,
		Filepath:    path,
		RowCount:    len(rows),
		FileSizeKB:  sizeKB,
		DownloadURL: "/api/v1/feed/download/" + filename,
		LabelStats:  labelStats(labels),
	}

	s.publishFeedGenerated(ctx, result)
	s.logger.Info("Feed generated",
		zap.String("filename", filename),
		zap.Int("row_count", result.RowCount),
		zap.Int64("file_size_kb", result.FileSizeKB),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

func (s *FeedService) merchantConfig(ctx context.Context) *models.MerchantConfig {
	if s.config == nil {
		return &models.MerchantConfig{HigherVariantLabels: true, FeedBatchSize: defaultFeedBatchSize}
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		s.logger.Warn("Failed to load merchant config, using defaults", zap.Error(err))
		return &models.MerchantConfig{HigherVariantLabels: true, FeedBatchSize: defaultFeedBatchSize}
	}
	if cfg.FeedBatchSize <= 0 {
		cfg.FeedBatchSize = defaultFeedBatchSize
	}
	return cfg
}

// render writes the spreadsheet: bold header, alternating row fills,
// fixed-size processing batches.
func (s *FeedService) render(rows []models.FeedRow, labels []rowLabels, batchSize int, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", feedSheetName)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFE0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	altStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFF8F8F8"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create row style: %w", err)
	}

	header := make([]interface{}, len(feedColumns))
	for i, col := range feedColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(feedSheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(feedColumns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(feedSheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}

	domain := s.shop.ShopDomain()
	if batchSize <= 0 {
		batchSize = defaultFeedBatchSize
	}

	for batchStart := 0; batchStart < len(rows); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(rows) {
			batchEnd = len(rows)
		}

		for i := batchStart; i < batchEnd; i++ {
			rowNum := i + 2
			values := feedRowValues(rows[i], labels[i], domain)

			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(feedSheetName, cell, &values); err != nil {
				return fmt.Errorf("failed to write feed row %d: %w", rowNum, err)
			}
			if rowNum%2 == 0 {
				if err := f.SetCellStyle(feedSheetName,
					fmt.Sprintf("A%d", rowNum),
					fmt.Sprintf("%s%d", lastCol, rowNum), altStyle); err != nil {
					return err
				}
			}
		}
	}

	f.SetColWidth(feedSheetName, "A", lastCol, 16)
	f.SetColWidth(feedSheetName, "B", "C", 40)
	f.SetColWidth(feedSheetName, "D", "E", 32)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save export file: %w", err)
	}
	return nil
}

func feedRowValues(row models.FeedRow, labels rowLabels, domain string) []interface{} {
	price := row.Price
	salePrice := ""
	listPrice := fmt.Sprintf("%.2f USD", price)
	if row.CompareAtPrice.Valid && row.CompareAtPrice.Float64 > price {
		listPrice = fmt.Sprintf("%.2f USD", row.CompareAtPrice.Float64)
		salePrice = fmt.Sprintf("%.2f USD", price)
	}

	imageLink := ""
	if row.ImageSrc.Valid {
		imageLink = shopify.ImageURL(row.ImageSrc.String, "800x800")
	}

	return []interface{}{
		row.ShopifyID,
		truncate(row.Title, 150),
		truncate(cleanDescription(row.BodyHTML), 5000),
		shopify.ProductURL(domain, row.Handle),
		imageLink,
		"",
		availability(row.InventoryQuantity),
		listPrice,
		salePrice,
		row.Vendor,
		row.Barcode,
		row.SKU,
		"new",
		row.ProductType,
		"",
		row.Handle,
		extractColor(row),
		extractSize(row),
		extractMaterial(row),
		"", "", "", "", "", "",
		fmt.Sprintf("%.2f %s", row.Weight, weightUnit(row.WeightUnit)),
		"", "", "", "", "", "",
		labels.L0,
		labels.L1,
		labels.L2,
		labels.L3,
		labels.L4,
		"",
		"",
	}
}

func labelStats(labels []rowLabels) map[string]map[string]int {
	stats := map[string]map[string]int{
		"custom_label_0": {},
		"custom_label_1": {},
		"custom_label_2": {},
		"custom_label_3": {},
		"custom_label_4": {},
	}
	for _, l := range labels {
		for key, value := range map[string]string{
			"custom_label_0": l.L0,
			"custom_label_1": l.L1,
			"custom_label_2": l.L2,
			"custom_label_3": l.L3,
			"custom_label_4": l.L4,
		} {
			if value != "" {
				stats[key][value]++
			}
		}
	}
	return stats
}

func (s *FeedService) recordExport(ctx context.Context, filename string, rowCount int, fileSize int64, filters models.FeedFilters) {
	filterJSON, err := json.Marshal(filters)
	if err != nil {
		filterJSON = []byte("{}")
	}

	record := &models.ExportRecord{
		Filename:      filename,
		ProductsCount: rowCount,
		FileSize:      fileSize,
		Filters:       string(filterJSON),
	}
	if err := s.store.AppendExportRecord(ctx, record); err != nil {
		s.logger.Warn("Failed to record export", zap.Error(err))
	}
}

func (s *FeedService) publishFeedGenerated(ctx context.Context, result *models.FeedResult) {
	if s.events == nil {
		return
	}
	event := &models.FeedGeneratedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeFeedGenerated),
		Filename:   result.Filename,
		RowCount:   result.RowCount,
		FileSizeKB: result.FileSizeKB,
	}
	if err := s.events.PublishFeedGenerated(ctx, event); err != nil {
		s.logger.Warn("Failed to publish feed generated event", zap.Error(err))
	}
}

// ExportHistory returns the most recent export records.
func (s *FeedService) ExportHistory(ctx context.Context, limit int) ([]models.ExportRecord, error) {
	return s.store.ExportRecords(ctx, limit)
}

// ExportPath resolves a previously generated filename to its path inside
// the export directory. Names containing path separators are rejected.
func (s *FeedService) ExportPath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid export filename: %q", filename)
	}
	path := filepath.Join(s.exportDir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("export not found: %s", filename)
	}
	return path, nil
}

// DeleteExport removes a previously generated file from the export
// directory.
func (s *FeedService) DeleteExport(filename string) error {
	path, err := s.ExportPath(filename)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

var htmlTags = regexp.MustCompile(`<[^>]*>`)
var whitespace = regexp.MustCompile(`\s+`)

// cleanDescription strips markup and collapses whitespace.
func cleanDescription(html string) string {
	text := htmlTags.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// truncate caps s at max bytes, backing up so a multibyte rune is never
// split mid-sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func availability(quantity int) string {
	if quantity > 0 {
		return "in stock"
	}
	return "out of stock"
}

func weightUnit(unit string) string {
	if unit == "" {
		return "kg"
	}
	return unit
}

var knownColors = []string{
	"black", "white", "red", "blue", "green", "yellow", "orange", "purple",
	"pink", "brown", "grey", "gray", "navy", "beige", "gold", "silver",
}

var knownSizes = []string{"xxs", "xs", "s", "m", "l", "xl", "xxl", "xxxl"}

var knownMaterials = []string{
	"cotton", "leather", "wool", "silk", "polyester", "linen", "denim",
	"suede", "canvas", "nylon",
}

func rowOptions(row models.FeedRow) []string {
	return []string{row.Option1, row.Option2, row.Option3}
}

func extractColor(row models.FeedRow) string {
	for _, opt := range rowOptions(row) {
		lower := strings.ToLower(strings.TrimSpace(opt))
		for _, color := range knownColors {
			if lower == color {
				return strings.Title(color)
			}
		}
	}
	return ""
}

func extractSize(row models.FeedRow) string {
	for _, opt := range rowOptions(row) {
		lower := strings.ToLower(strings.TrimSpace(opt))
		for _, size := range knownSizes {
			if lower == size {
				return strings.ToUpper(size)
			}
		}
	}
	return ""
}

func extractMaterial(row models.FeedRow) string {
	text := strings.ToLower(row.Title + " " + row.Tags)
	for _, material := range knownMaterials {
		if strings.Contains(text, material) {
			return strings.Title(material)
		}
	}
	return ""
}
