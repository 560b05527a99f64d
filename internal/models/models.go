package models

import (
	"database/sql"
	"time"
)

// Product is a locally mirrored Shopify product. Rows are created and
// updated only by sync processing; normal syncs never delete them.
type Product struct {
	ID             int64        `db:"id" json:"id"`
	ShopifyID      string       `db:"shopify_id" json:"shopify_id"`
	Title          string       `db:"title" json:"title"`
	Handle         string       `db:"handle" json:"handle"`
	BodyHTML       string       `db:"body_html" json:"body_html,omitempty"`
	Vendor         string       `db:"vendor" json:"vendor"`
	ProductType    string       `db:"product_type" json:"product_type"`
	CreatedAt      sql.NullTime `db:"created_at" json:"created_at,omitempty"`
	UpdatedAt      sql.NullTime `db:"updated_at" json:"updated_at,omitempty"`
	PublishedAt    sql.NullTime `db:"published_at" json:"published_at,omitempty"`
	Status         string       `db:"status" json:"status"`
	Tags           string       `db:"tags" json:"tags"`
	SEOTitle       string       `db:"seo_title" json:"seo_title,omitempty"`
	SEODescription string       `db:"seo_description" json:"seo_description,omitempty"`
	Brand          string       `db:"brand" json:"brand,omitempty"`
	SyncStatus     string       `db:"sync_status" json:"sync_status"`
	LastSynced     sql.NullTime `db:"last_synced" json:"last_synced,omitempty"`
	CreatedLocally time.Time    `db:"created_locally" json:"created_locally"`
	UpdatedLocally time.Time    `db:"updated_locally" json:"updated_locally"`
}

// Variant is the single persisted variant for a product: the one with the
// lowest positive price among the product's remote variants.
type Variant struct {
	ID                int64           `db:"id" json:"id"`
	ShopifyID         string          `db:"shopify_id" json:"shopify_id"`
	ProductID         string          `db:"product_id" json:"product_id"`
	Title             string          `db:"title" json:"title"`
	Price             float64         `db:"price" json:"price"`
	CompareAtPrice    sql.NullFloat64 `db:"compare_at_price" json:"compare_at_price,omitempty"`
	SKU               string          `db:"sku" json:"sku"`
	Position          int             `db:"position" json:"position"`
	Option1           string          `db:"option1" json:"option1,omitempty"`
	Option2           string          `db:"option2" json:"option2,omitempty"`
	Option3           string          `db:"option3" json:"option3,omitempty"`
	Barcode           string          `db:"barcode" json:"barcode,omitempty"`
	Grams             int             `db:"grams" json:"grams"`
	Weight            float64         `db:"weight" json:"weight"`
	WeightUnit        string          `db:"weight_unit" json:"weight_unit"`
	InventoryQuantity int             `db:"inventory_quantity" json:"inventory_quantity"`
	RequiresShipping  bool            `db:"requires_shipping" json:"requires_shipping"`
	UpdatedLocally    time.Time       `db:"updated_locally" json:"updated_locally"`
}

// Image is the first (primary) remote image of a product; later images are
// not mirrored.
type Image struct {
	ID             int64     `db:"id" json:"id"`
	ShopifyID      string    `db:"shopify_id" json:"shopify_id"`
	ProductID      string    `db:"product_id" json:"product_id"`
	Position       int       `db:"position" json:"position"`
	Src            string    `db:"src" json:"src"`
	Width          int       `db:"width" json:"width"`
	Height         int       `db:"height" json:"height"`
	Alt            string    `db:"alt" json:"alt,omitempty"`
	CreatedLocally time.Time `db:"created_locally" json:"created_locally"`
}

// Sync run types
const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
)

// Sync run statuses
const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
	SyncStatusCanceled  = "canceled"
)

// Product sync statuses
const (
	ProductSyncPending = "pending"
	ProductSyncSynced  = "synced"
)

// SyncRun is one full or incremental synchronization attempt. Terminal rows
// are immutable; at most one run is "running" process-wide at any instant.
type SyncRun struct {
	ID                int64        `db:"id" json:"id"`
	SyncType          string       `db:"sync_type" json:"sync_type"`
	Status            string       `db:"status" json:"status"`
	ProductsProcessed int          `db:"products_processed" json:"products_processed"`
	ProductsAdded     int          `db:"products_added" json:"products_added"`
	ProductsUpdated   int          `db:"products_updated" json:"products_updated"`
	ProductsSkipped   int          `db:"products_skipped" json:"products_skipped"`
	ErrorsCount       int          `db:"errors_count" json:"errors_count"`
	StartTime         time.Time    `db:"start_time" json:"start_time"`
	EndTime           sql.NullTime `db:"end_time" json:"end_time,omitempty"`
	DurationSeconds   int          `db:"duration_seconds" json:"duration_seconds"`
	ErrorMessage      string       `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
}

// ExportRecord is an append-only entry in the feed export history.
type ExportRecord struct {
	ID            int64     `db:"id" json:"id"`
	Filename      string    `db:"filename" json:"filename"`
	ProductsCount int       `db:"products_count" json:"products_count"`
	FileSize      int64     `db:"file_size" json:"file_size"`
	Filters       string    `db:"filters" json:"filters"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// FeedFilters narrows the rows included in a generated feed. Zero values
// mean no restriction; active status is always enforced by the store.
type FeedFilters struct {
	Vendor      string  `json:"vendor,omitempty"`
	ProductType string  `json:"product_type,omitempty"`
	MinPrice    float64 `json:"min_price,omitempty"`
	MaxPrice    float64 `json:"max_price,omitempty"`
}

// FeedRow is the flattened product + lowest-priced-variant + primary-image
// projection the analytics pipeline consumes. One row per product.
type FeedRow struct {
	ShopifyID         string          `db:"shopify_id" json:"shopify_id"`
	Title             string          `db:"title" json:"title"`
	Handle            string          `db:"handle" json:"handle"`
	BodyHTML          string          `db:"body_html" json:"body_html"`
	Vendor            string          `db:"vendor" json:"vendor"`
	ProductType       string          `db:"product_type" json:"product_type"`
	Tags              string          `db:"tags" json:"tags"`
	VariantID         string          `db:"variant_id" json:"variant_id"`
	Price             float64         `db:"price" json:"price"`
	CompareAtPrice    sql.NullFloat64 `db:"compare_at_price" json:"compare_at_price"`
	SKU               string          `db:"sku" json:"sku"`
	Barcode           string          `db:"barcode" json:"barcode"`
	Option1           string          `db:"option1" json:"option1"`
	Option2           string          `db:"option2" json:"option2"`
	Option3           string          `db:"option3" json:"option3"`
	Weight            float64         `db:"weight" json:"weight"`
	WeightUnit        string          `db:"weight_unit" json:"weight_unit"`
	InventoryQuantity int             `db:"inventory_quantity" json:"inventory_quantity"`
	ImageSrc          sql.NullString  `db:"image_src" json:"image_src"`
	ImageAlt          sql.NullString  `db:"image_alt" json:"image_alt"`
}

// ProductSummary is a catalog listing row with per-product aggregates.
type ProductSummary struct {
	Product
	VariantCount   int             `db:"variant_count" json:"variant_count"`
	MinPrice       sql.NullFloat64 `db:"min_price" json:"min_price"`
	MaxPrice       sql.NullFloat64 `db:"max_price" json:"max_price"`
	TotalInventory sql.NullInt64   `db:"total_inventory" json:"total_inventory"`
}

// Pagination describes a page of a larger result set.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// CatalogStats are the scalar aggregates shown on the dashboard.
type CatalogStats struct {
	TotalProducts     int        `json:"total_products"`
	TotalVariants     int        `json:"total_variants"`
	PublishedProducts int        `json:"published_products"`
	AvgPrice          float64    `json:"avg_price"`
	TotalInventory    int64      `json:"total_inventory"`
	LastSyncTime      *time.Time `json:"last_sync_time,omitempty"`
}

// ValidationIssue is one category of data inconsistency found by the
// consistency scan, with a capped sample of offending rows.
type ValidationIssue struct {
	Type        string              `json:"type"`
	Count       int                 `json:"count"`
	Description string              `json:"description"`
	Items       []map[string]string `json:"items"`
}

// ValidationReport is the result of a consistency scan. The scan never
// mutates state.
type ValidationReport struct {
	Valid     bool              `json:"valid"`
	Issues    []ValidationIssue `json:"issues"`
	Timestamp time.Time         `json:"timestamp"`
}

// SyncStatus is the control-surface view of the coordinator.
type SyncStatus struct {
	IsRunning  bool          `json:"is_running"`
	CurrentRun *SyncRun      `json:"current_run,omitempty"`
	LastRun    *SyncRun      `json:"last_run,omitempty"`
	Stats      *CatalogStats `json:"stats,omitempty"`
	RecentRuns []SyncRun     `json:"recent_runs"`
}

// FeedResult describes a generated feed artifact.
type FeedResult struct {
	Filename    string                    `json:"filename"`
	Filepath    string                    `json:"filepath"`
	RowCount    int                       `json:"row_count"`
	FileSizeKB  int64                     `json:"file_size_kb"`
	DownloadURL string                    `json:"download_url"`
	LabelStats  map[string]map[string]int `json:"label_stats"`
}

// MerchantConfig is the typed merchant configuration blob. It is stored as
// JSON in the configuration table and merged field-by-field over defaults.
type MerchantConfig struct {
	ShopURL             string `json:"shop_url"`
	AccessToken         string `json:"access_token"`
	AutoSync            bool   `json:"auto_sync"`
	SyncInterval        string `json:"sync_interval"`
	HigherVariantLabels bool   `json:"higher_variant_labels"`
	FeedBatchSize       int    `json:"feed_batch_size"`
}

// MerchantConfigPatch is a partial update: nil fields leave the stored
// value untouched.
type MerchantConfigPatch struct {
	ShopURL             *string `json:"shop_url,omitempty"`
	AccessToken         *string `json:"access_token,omitempty"`
	AutoSync            *bool   `json:"auto_sync,omitempty"`
	SyncInterval        *string `json:"sync_interval,omitempty"`
	HigherVariantLabels *bool   `json:"higher_variant_labels,omitempty"`
	FeedBatchSize       *int    `json:"feed_batch_size,omitempty"`
}
