package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"
	"unicode/utf8"

	"shopify-feed-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeFeedStore struct {
	rows    []models.FeedRow
	rowsErr error
	records []models.ExportRecord
}

func (f *fakeFeedStore) FeedRows(ctx context.Context, filters models.FeedFilters) ([]models.FeedRow, error) {
	return f.rows, f.rowsErr
}

func (f *fakeFeedStore) AppendExportRecord(ctx context.Context, rec *models.ExportRecord) error {
	rec.ID = int64(len(f.records) + 1)
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeFeedStore) ExportRecords(ctx context.Context, limit int) ([]models.ExportRecord, error) {
	return f.records, nil
}

type fakeShop struct {
	domain string
}

func (f *fakeShop) Configured() bool { return f.domain != "" }
func (f *fakeShop) ShopDomain() string { return f.domain }

type fakeConfig struct {
	cfg models.MerchantConfig
}

func (f *fakeConfig) Get(ctx context.Context) (*models.MerchantConfig, error) {
	cfg := f.cfg
	return &cfg, nil
}

func feedRow(title, vendor, productType string, price float64, quantity int, tags string) models.FeedRow {
	return models.FeedRow{
		ShopifyID:         fmt.Sprintf("%s-%s-%.0f", title, vendor, price),
		Title:             title,
		Handle:            "handle",
		Vendor:            vendor,
		ProductType:       productType,
		Tags:              tags,
		Price:             price,
		InventoryQuantity: quantity,
	}
}

func testRows() []models.FeedRow {
	return []models.FeedRow{
		feedRow("Classic Tee", "Acme", "Shirts", 10, 0, "cotton"),
		feedRow("Classic Tee", "Acme", "Shirts", 12, 20, ""),
		feedRow("Mug", "Zen", "Kitchen", 30, 8, "bestseller"),
	}
}

func TestDeriveLabelsEndToEnd(t *testing.T) {
	labels := deriveLabels(testRows(), true)
	require.Len(t, labels, 3)

	assert.Equal(t, rowLabels{
		L0: "Lowest_Variant",
		L1: "Below_Average",
		L2: "Out_of_Stock",
		L3: "Boutique_Brand",
		L4: "Standard",
	}, labels[0])

	assert.Equal(t, rowLabels{
		L0: "Higher_Variant_+20%",
		L1: "Market_Rate",
		L2: "High_Stock",
		L3: "Boutique_Brand",
		L4: "Standard",
	}, labels[1])

	assert.Equal(t, rowLabels{
		L0: "Single_Variant",
		L1: "Unique_Product",
		L2: "Medium_Stock",
		L3: "Boutique_Brand",
		L4: "Bestseller",
	}, labels[2])
}

func TestHigherVariantPolicyToggles(t *testing.T) {
	rows := []models.FeedRow{
		feedRow("Classic Tee", "Acme", "Shirts", 10, 10, ""),
		feedRow("Classic Tee", "Acme", "Shirts", 12, 10, ""),
	}

	labeled := deriveLabels(rows, true)
	assert.Equal(t, "Lowest_Variant", labeled[0].L0)
	assert.Equal(t, "Higher_Variant_+20%", labeled[1].L0)

	unlabeled := deriveLabels(rows, false)
	assert.Equal(t, "Lowest_Variant", unlabeled[0].L0)
	assert.Equal(t, "", unlabeled[1].L0)
}

func TestCompetitiveLabels(t *testing.T) {
	// Shirts cohort: prices 10, 19, 20, 30 → avg 19.75, min 10 < 0.9*avg,
	// so the whole cohort is price-leading. Hats cohort: prices 18, 19,
	// 20, 23 → avg 20, min 18 is not below 0.9*avg.
	rows := []models.FeedRow{
		feedRow("A", "Acme", "Shirts", 10, 10, ""),
		feedRow("B", "Acme", "Shirts", 19, 10, ""),
		feedRow("C", "Acme", "Shirts", 20, 10, ""),
		feedRow("D", "Acme", "Shirts", 30, 10, ""),
		feedRow("E", "Acme", "Hats", 18, 10, ""),
		feedRow("F", "Acme", "Hats", 19, 10, ""),
		feedRow("G", "Acme", "Hats", 20, 10, ""),
		feedRow("H", "Acme", "Hats", 23, 10, ""),
	}

	labels := deriveLabels(rows, true)
	for i := 0; i < 4; i++ {
		assert.Equal(t, "Price_Leader", labels[i].L1, "shirts row %d", i)
	}
	assert.Equal(t, "Below_Average", labels[4].L1)
	assert.Equal(t, "Below_Average", labels[5].L1)
	assert.Equal(t, "Market_Rate", labels[6].L1)
	assert.Equal(t, "Premium_Priced", labels[7].L1)
}

func TestPromotionalLabels(t *testing.T) {
	onSale := feedRow("Plain Shirt", "Acme", "Shirts", 15, 10, "")
	onSale.CompareAtPrice = sql.NullFloat64{Float64: 20, Valid: true}

	rows := []models.FeedRow{
		feedRow("Summer Dress", "Acme", "Dresses", 10, 10, ""),
		onSale,
		feedRow("Plain Hat", "Acme", "Hats", 12, 10, "new, accessories"),
		feedRow("Plain Watch", "Acme", "Watches", 500, 10, ""),
		feedRow("Plain Sock", "Acme", "Socks", 11, 10, ""),
	}

	labels := deriveLabels(rows, true)
	assert.Equal(t, "Summer_Season", labels[0].L4)
	assert.Equal(t, "On_Sale", labels[1].L4)
	assert.Equal(t, "New_Arrival", labels[2].L4)
	assert.Equal(t, "Luxury_Item", labels[3].L4)
	assert.Equal(t, "Standard", labels[4].L4)
}

func TestStockQuartileTiers(t *testing.T) {
	// Quantities sorted: 6, 8, 10, 50, 100 → Q1 = 8, Q3 = 50.
	rows := []models.FeedRow{
		feedRow("A", "Acme", "Shirts", 10, 6, ""),
		feedRow("B", "Acme", "Shirts", 10, 8, ""),
		feedRow("C", "Acme", "Shirts", 10, 10, ""),
		feedRow("D", "Acme", "Shirts", 10, 50, ""),
		feedRow("E", "Acme", "Shirts", 10, 100, ""),
	}

	labels := deriveLabels(rows, true)
	assert.Equal(t, "Low_Stock", labels[0].L2)
	assert.Equal(t, "Low_Stock", labels[1].L2)
	assert.Equal(t, "Medium_Stock", labels[2].L2)
	assert.Equal(t, "Medium_Stock", labels[3].L2)
	assert.Equal(t, "High_Stock", labels[4].L2)
}

func newTestFeedService(t *testing.T, store *fakeFeedStore, cfg models.MerchantConfig) *FeedService {
	t.Helper()
	return NewFeedService(store, &fakeShop{domain: "acme.myshopify.com"}, &fakeConfig{cfg: cfg}, nil, t.TempDir())
}

func TestGenerateWritesSpreadsheet(t *testing.T) {
	store := &fakeFeedStore{rows: testRows()}
	svc := newTestFeedService(t, store, models.MerchantConfig{HigherVariantLabels: true, FeedBatchSize: 2})

	result, err := svc.Generate(context.Background(), models.FeedFilters{})
	require.NoError(t, err)

	expectedName := fmt.Sprintf("google_merchant_feed_%s_3_products.xlsx", time.Now().Format("2006-01-02"))
	assert.Equal(t, expectedName, result.Filename)
	assert.Equal(t, 3, result.RowCount)
	assert.GreaterOrEqual(t, result.FileSizeKB, int64(1))
	assert.Equal(t, "/api/v1/feed/download/"+expectedName, result.DownloadURL)

	f, err := excelize.OpenFile(result.Filepath)
	require.NoError(t, err)
	defer f.Close()

	sheetRows, err := f.GetRows(feedSheetName)
	require.NoError(t, err)
	require.Len(t, sheetRows, 4) // header + 3 products

	assert.Equal(t, "id", sheetRows[0][0])
	assert.Equal(t, "custom_label_0", sheetRows[0][32])
	assert.Equal(t, "custom_label_4", sheetRows[0][36])

	// Row for the lowest-priced tee.
	assert.Equal(t, "Classic Tee", sheetRows[1][1])
	assert.Equal(t, "https://acme.myshopify.com/products/handle", sheetRows[1][3])
	assert.Equal(t, "out of stock", sheetRows[1][6])
	assert.Equal(t, "10.00 USD", sheetRows[1][7])
	assert.Equal(t, "Lowest_Variant", sheetRows[1][32])
	assert.Equal(t, "Below_Average", sheetRows[1][33])
	assert.Equal(t, "Out_of_Stock", sheetRows[1][34])
	assert.Equal(t, "Boutique_Brand", sheetRows[1][35])
	assert.Equal(t, "Standard", sheetRows[1][36])

	assert.Equal(t, "Higher_Variant_+20%", sheetRows[2][32])
	assert.Equal(t, "Single_Variant", sheetRows[3][32])
	assert.Equal(t, "Bestseller", sheetRows[3][36])

	// Export history records the artifact.
	require.Len(t, store.records, 1)
	assert.Equal(t, expectedName, store.records[0].Filename)
	assert.Equal(t, 3, store.records[0].ProductsCount)

	assert.Equal(t, 1, result.LabelStats["custom_label_0"]["Lowest_Variant"])
	assert.Equal(t, 1, result.LabelStats["custom_label_4"]["Bestseller"])
}

func TestGenerateWithoutRowsWritesNothing(t *testing.T) {
	store := &fakeFeedStore{}
	dir := t.TempDir()
	svc := NewFeedService(store, &fakeShop{domain: "acme.myshopify.com"}, nil, nil, dir)

	_, err := svc.Generate(context.Background(), models.FeedFilters{})
	assert.ErrorIs(t, err, ErrNoFeedRows)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
	assert.Empty(t, store.records)
}

func TestGenerateRequiresShopDomain(t *testing.T) {
	svc := NewFeedService(&fakeFeedStore{rows: testRows()}, &fakeShop{}, nil, nil, t.TempDir())

	_, err := svc.Generate(context.Background(), models.FeedFilters{})
	assert.ErrorIs(t, err, ErrShopNotConfigured)
}

func TestGenerateRejectsMalformedFilters(t *testing.T) {
	svc := NewFeedService(&fakeFeedStore{rows: testRows()}, &fakeShop{domain: "acme.myshopify.com"}, nil, nil, t.TempDir())

	_, err := svc.Generate(context.Background(), models.FeedFilters{MinPrice: 50, MaxPrice: 10})
	assert.Error(t, err)

	_, err = svc.Generate(context.Background(), models.FeedFilters{MinPrice: -1})
	assert.Error(t, err)
}

func TestExportPathRejectsTraversal(t *testing.T) {
	svc := NewFeedService(&fakeFeedStore{}, &fakeShop{domain: "acme.myshopify.com"}, nil, nil, t.TempDir())

	_, err := svc.ExportPath("../etc/passwd")
	assert.Error(t, err)

	_, err = svc.ExportPath("missing.xlsx")
	assert.Error(t, err)
}

func TestDeleteExport(t *testing.T) {
	store := &fakeFeedStore{rows: testRows()}
	svc := newTestFeedService(t, store, models.MerchantConfig{HigherVariantLabels: true})

	result, err := svc.Generate(context.Background(), models.FeedFilters{})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteExport(result.Filename))

	_, err = svc.ExportPath(result.Filename)
	assert.Error(t, err)
}

func TestCleanDescription(t *testing.T) {
	assert.Equal(t, "Soft cotton tee", cleanDescription("<p>Soft   <b>cotton</b>&nbsp;tee</p>"))
	assert.Equal(t, "", cleanDescription(""))
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcde", truncate("abcdef", 5))

	// "é" is two bytes; a byte cut at 4 would split it.
	assert.Equal(t, "caf", truncate("caféteria", 4))
	assert.True(t, utf8.ValidString(truncate("日本語のタイトル", 10)))
}
