package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing connection; used by tests.
func NewStoreWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		shopify_id TEXT UNIQUE NOT NULL,
		title TEXT NOT NULL,
		handle TEXT NOT NULL DEFAULT '',
		body_html TEXT NOT NULL DEFAULT '',
		vendor TEXT NOT NULL DEFAULT '',
		product_type TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ,
		published_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '',
		seo_title TEXT NOT NULL DEFAULT '',
		seo_description TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		sync_status TEXT NOT NULL DEFAULT 'pending',
		last_synced TIMESTAMPTZ,
		created_locally TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_locally TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS variants (
		id BIGSERIAL PRIMARY KEY,
		shopify_id TEXT UNIQUE NOT NULL,
		product_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		price NUMERIC(12,2) NOT NULL DEFAULT 0,
		compare_at_price NUMERIC(12,2),
		sku TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		option1 TEXT NOT NULL DEFAULT '',
		option2 TEXT NOT NULL DEFAULT '',
		option3 TEXT NOT NULL DEFAULT '',
		barcode TEXT NOT NULL DEFAULT '',
		grams INTEGER NOT NULL DEFAULT 0,
		weight NUMERIC(12,3) NOT NULL DEFAULT 0,
		weight_unit TEXT NOT NULL DEFAULT '',
		inventory_quantity INTEGER NOT NULL DEFAULT 0,
		requires_shipping BOOLEAN NOT NULL DEFAULT FALSE,
		updated_locally TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		id BIGSERIAL PRIMARY KEY,
		shopify_id TEXT UNIQUE NOT NULL,
		product_id TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		src TEXT NOT NULL DEFAULT '',
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		alt TEXT NOT NULL DEFAULT '',
		created_locally TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		id BIGSERIAL PRIMARY KEY,
		sync_type TEXT NOT NULL,
		status TEXT NOT NULL,
		products_processed INTEGER NOT NULL DEFAULT 0,
		products_added INTEGER NOT NULL DEFAULT 0,
		products_updated INTEGER NOT NULL DEFAULT 0,
		products_skipped INTEGER NOT NULL DEFAULT 0,
		errors_count INTEGER NOT NULL DEFAULT 0,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS export_history (
		id BIGSERIAL PRIMARY KEY,
		filename TEXT NOT NULL,
		products_count INTEGER NOT NULL DEFAULT 0,
		file_size BIGINT NOT NULL DEFAULT 0,
		filters TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'completed',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS configuration (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_updated_at ON products(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_products_vendor ON products(vendor)`,
	`CREATE INDEX IF NOT EXISTS idx_variants_product_id ON variants(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_variants_price ON variants(price)`,
	`CREATE INDEX IF NOT EXISTS idx_images_product_id ON images(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_runs_created_at ON sync_runs(created_at)`,
}

// EnsureSchema creates the catalog tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
