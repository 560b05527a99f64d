package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"shopify-feed-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStoreWithDB(sqlx.NewDb(db, "sqlmock")), mock
}

func TestUpsertProductIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	product := &models.Product{
		ShopifyID:   "880714",
		Title:       "Classic Tee",
		Handle:      "classic-tee",
		Vendor:      "Acme",
		ProductType: "Shirts",
		Status:      "active",
		Tags:        "cotton, summer",
	}

	// Same statement twice: conflict resolution replaces the row instead of
	// duplicating it.
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO products").
			WithArgs(
				product.ShopifyID, product.Title, product.Handle, product.BodyHTML,
				product.Vendor, product.ProductType, product.CreatedAt, product.UpdatedAt,
				product.PublishedAt, product.Status, product.Tags,
				product.SEOTitle, product.SEODescription, product.Brand,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	require.NoError(t, store.UpsertProduct(ctx, product))
	require.NoError(t, store.UpsertProduct(ctx, product))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVariant(t *testing.T) {
	store, mock := newMockStore(t)

	variant := &models.Variant{
		ShopifyID:         "808950810",
		ProductID:         "880714",
		Title:             "Small",
		Price:             8,
		SKU:               "TEE-S",
		Position:          1,
		WeightUnit:        "kg",
		InventoryQuantity: 12,
		RequiresShipping:  true,
	}

	mock.ExpectExec("INSERT INTO variants").
		WithArgs(
			variant.ShopifyID, variant.ProductID, variant.Title, variant.Price,
			variant.CompareAtPrice, variant.SKU, variant.Position,
			variant.Option1, variant.Option2, variant.Option3, variant.Barcode,
			variant.Grams, variant.Weight, variant.WeightUnit,
			variant.InventoryQuantity, variant.RequiresShipping,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpsertVariant(context.Background(), variant))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductExists(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM products WHERE shopify_id = $1)")).
		WithArgs("880714").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.ProductExists(context.Background(), "880714")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func feedRowColumns() []string {
	return []string{
		"shopify_id", "title", "handle", "body_html", "vendor", "product_type", "tags",
		"variant_id", "price", "compare_at_price", "sku", "barcode",
		"option1", "option2", "option3", "weight", "weight_unit", "inventory_quantity",
		"image_src", "image_alt",
	}
}

func TestFeedRowsJoinsLowestPricedVariant(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(feedRowColumns()).
		AddRow("880714", "Classic Tee", "classic-tee", "<p>Soft</p>", "Acme", "Shirts", "cotton",
			"808950810", 8.0, nil, "TEE-S", "",
			"Small", "", "", 0.2, "kg", 12,
			"https://cdn.example.com/tee.jpg", "Classic Tee")

	mock.ExpectQuery("SELECT DISTINCT ON \\(product_id\\)").
		WillReturnRows(rows)

	got, err := store.FeedRows(context.Background(), models.FeedFilters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "880714", got[0].ShopifyID)
	assert.Equal(t, 8.0, got[0].Price)
	assert.Equal(t, "https://cdn.example.com/tee.jpg", got[0].ImageSrc.String)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFeedRowsAppliesFilters(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("p\\.vendor = \\$1").
		WithArgs("Acme", 5.0).
		WillReturnRows(sqlmock.NewRows(feedRowColumns()))

	_, err := store.FeedRows(context.Background(), models.FeedFilters{
		Vendor:   "Acme",
		MinPrice: 5,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendSyncRunReturnsGeneratedFields(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	run := &models.SyncRun{
		SyncType:          models.SyncTypeFull,
		Status:            models.SyncStatusCompleted,
		ProductsProcessed: 10,
		ProductsAdded:     7,
		ProductsUpdated:   3,
		StartTime:         now.Add(-time.Minute),
		DurationSeconds:   60,
	}

	mock.ExpectQuery("INSERT INTO sync_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(42, now))

	require.NoError(t, store.AppendSyncRun(context.Background(), run))
	assert.Equal(t, int64(42), run.ID)
	assert.Equal(t, now, run.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLastSyncRunEmptyLog(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM sync_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	run, err := store.LastSyncRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestDeleteStaleProducts(t *testing.T) {
	store, mock := newMockStore(t)

	cutoff := time.Now().AddDate(0, 0, -30)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM products WHERE updated_locally < $1 AND sync_status != 'synced'")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := store.DeleteStaleProducts(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetConfigValueMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM configuration WHERE key = $1")).
		WithArgs("merchant_config").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, ok, err := store.GetConfigValue(context.Background(), "merchant_config")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetConfigValueUpserts(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO configuration").
		WithArgs("merchant_config", `{"shop_url":"acme.myshopify.com"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SetConfigValue(context.Background(), "merchant_config", `{"shop_url":"acme.myshopify.com"}`)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDuplicateSKUSamples(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("HAVING COUNT\\(\\*\\) > 1").
		WillReturnRows(sqlmock.NewRows([]string{"sku", "count"}).
			AddRow("TEE-S", 2).
			AddRow("TEE-M", 3))

	count, samples, err := store.DuplicateSKUs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, samples, 2)
	assert.Equal(t, "TEE-S", samples[0]["sku"])
	assert.Equal(t, "2", samples[0]["count"])
}
