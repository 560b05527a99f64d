package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"shopify-feed-service/internal/models"
)

// UpsertProduct inserts or replaces a product keyed by its remote id,
// stamping updated_locally, sync_status and last_synced.
func (s *Store) UpsertProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (
			shopify_id, title, handle, body_html, vendor, product_type,
			created_at, updated_at, published_at, status, tags,
			seo_title, seo_description, brand, sync_status, last_synced, updated_locally
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'synced', NOW(), NOW())
		ON CONFLICT (shopify_id) DO UPDATE SET
			title = EXCLUDED.title,
			handle = EXCLUDED.handle,
			body_html = EXCLUDED.body_html,
			vendor = EXCLUDED.vendor,
			product_type = EXCLUDED.product_type,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			published_at = EXCLUDED.published_at,
			status = EXCLUDED.status,
			tags = EXCLUDED.tags,
			seo_title = EXCLUDED.seo_title,
			seo_description = EXCLUDED.seo_description,
			brand = EXCLUDED.brand,
			sync_status = 'synced',
			last_synced = NOW(),
			updated_locally = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		p.ShopifyID, p.Title, p.Handle, p.BodyHTML, p.Vendor, p.ProductType,
		p.CreatedAt, p.UpdatedAt, p.PublishedAt, p.Status, p.Tags,
		p.SEOTitle, p.SEODescription, p.Brand)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ShopifyID, err)
	}
	return nil
}

// UpsertVariant inserts or replaces a variant keyed by its remote id.
func (s *Store) UpsertVariant(ctx context.Context, v *models.Variant) error {
	query := `
		INSERT INTO variants (
			shopify_id, product_id, title, price, compare_at_price, sku,
			position, option1, option2, option3, barcode, grams, weight,
			weight_unit, inventory_quantity, requires_shipping, updated_locally
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW())
		ON CONFLICT (shopify_id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			compare_at_price = EXCLUDED.compare_at_price,
			sku = EXCLUDED.sku,
			position = EXCLUDED.position,
			option1 = EXCLUDED.option1,
			option2 = EXCLUDED.option2,
			option3 = EXCLUDED.option3,
			barcode = EXCLUDED.barcode,
			grams = EXCLUDED.grams,
			weight = EXCLUDED.weight,
			weight_unit = EXCLUDED.weight_unit,
			inventory_quantity = EXCLUDED.inventory_quantity,
			requires_shipping = EXCLUDED.requires_shipping,
			updated_locally = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		v.ShopifyID, v.ProductID, v.Title, v.Price, v.CompareAtPrice, v.SKU,
		v.Position, v.Option1, v.Option2, v.Option3, v.Barcode, v.Grams, v.Weight,
		v.WeightUnit, v.InventoryQuantity, v.RequiresShipping)
	if err != nil {
		return fmt.Errorf("failed to upsert variant %s: %w", v.ShopifyID, err)
	}
	return nil
}

// UpsertImage inserts or replaces an image keyed by its remote id.
func (s *Store) UpsertImage(ctx context.Context, img *models.Image) error {
	query := `
		INSERT INTO images (
			shopify_id, product_id, position, src, width, height, alt
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (shopify_id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			position = EXCLUDED.position,
			src = EXCLUDED.src,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			alt = EXCLUDED.alt`

	_, err := s.db.ExecContext(ctx, query,
		img.ShopifyID, img.ProductID, img.Position, img.Src, img.Width, img.Height, img.Alt)
	if err != nil {
		return fmt.Errorf("failed to upsert image %s: %w", img.ShopifyID, err)
	}
	return nil
}

// ProductExists reports whether a product with the remote id is stored.
func (s *Store) ProductExists(ctx context.Context, shopifyID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM products WHERE shopify_id = $1)", shopifyID)
	return exists, err
}

// FeedRows returns one row per active product, joined to its minimum
// positive-priced variant and left-joined to the position-1 image.
func (s *Store) FeedRows(ctx context.Context, filters models.FeedFilters) ([]models.FeedRow, error) {
	conditions := []string{"p.status = 'active'"}
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filters.Vendor != "" {
		conditions = append(conditions, "p.vendor = "+arg(filters.Vendor))
	}
	if filters.ProductType != "" {
		conditions = append(conditions, "p.product_type = "+arg(filters.ProductType))
	}
	if filters.MinPrice > 0 {
		conditions = append(conditions, "v.price >= "+arg(filters.MinPrice))
	}
	if filters.MaxPrice > 0 {
		conditions = append(conditions, "v.price <= "+arg(filters.MaxPrice))
	}

	query := `
		SELECT
			p.shopify_id, p.title, p.handle, p.body_html, p.vendor, p.product_type, p.tags,
			v.shopify_id AS variant_id, v.price, v.compare_at_price, v.sku, v.barcode,
			v.option1, v.option2, v.option3, v.weight, v.weight_unit, v.inventory_quantity,
			i.src AS image_src, i.alt AS image_alt
		FROM products p
		INNER JOIN (
			SELECT DISTINCT ON (product_id)
				product_id, shopify_id, price, compare_at_price, sku, barcode,
				option1, option2, option3, weight, weight_unit, inventory_quantity
			FROM variants
			WHERE price > 0
			ORDER BY product_id, price ASC
		) v ON p.shopify_id = v.product_id
		LEFT JOIN images i ON p.shopify_id = i.product_id AND i.position = 1
		WHERE ` + joinConditions(conditions) + `
		ORDER BY p.title`

	var rows []models.FeedRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query feed rows: %w", err)
	}
	return rows, nil
}

func joinConditions(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}

// Products returns a catalog page with per-product aggregates and a
// case-insensitive substring search over title, vendor and tags.
func (s *Store) Products(ctx context.Context, page, limit int, search string) ([]models.ProductSummary, models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	where := ""
	args := []interface{}{}
	if search != "" {
		where = "WHERE p.title ILIKE $1 OR p.vendor ILIKE $1 OR p.tags ILIKE $1"
		args = append(args, "%"+search+"%")
	}

	query := fmt.Sprintf(`
		SELECT
			p.*,
			COUNT(v.id) AS variant_count,
			MIN(v.price) AS min_price,
			MAX(v.price) AS max_price,
			SUM(v.inventory_quantity) AS total_inventory
		FROM products p
		LEFT JOIN variants v ON p.shopify_id = v.product_id
		%s
		GROUP BY p.id
		ORDER BY p.updated_locally DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	var summaries []models.ProductSummary
	if err := s.db.SelectContext(ctx, &summaries, query, append(args, limit, offset)...); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to query products: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products p %s", where)
	var total int
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to count products: %w", err)
	}

	return summaries, models.Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: (total + limit - 1) / limit,
	}, nil
}

// Statistics returns the catalog-wide scalar aggregates.
func (s *Store) Statistics(ctx context.Context) (*models.CatalogStats, error) {
	stats := &models.CatalogStats{}

	if err := s.db.GetContext(ctx, &stats.TotalProducts, "SELECT COUNT(*) FROM products"); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.TotalVariants, "SELECT COUNT(*) FROM variants"); err != nil {
		return nil, fmt.Errorf("failed to count variants: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.PublishedProducts,
		"SELECT COUNT(*) FROM products WHERE status = 'active'"); err != nil {
		return nil, fmt.Errorf("failed to count published products: %w", err)
	}

	var avgPrice sql.NullFloat64
	if err := s.db.GetContext(ctx, &avgPrice,
		"SELECT AVG(price) FROM variants WHERE price > 0"); err != nil {
		return nil, fmt.Errorf("failed to average prices: %w", err)
	}
	stats.AvgPrice = avgPrice.Float64

	var totalInv sql.NullInt64
	if err := s.db.GetContext(ctx, &totalInv,
		"SELECT SUM(inventory_quantity) FROM variants"); err != nil {
		return nil, fmt.Errorf("failed to sum inventory: %w", err)
	}
	stats.TotalInventory = totalInv.Int64

	var lastSync sql.NullTime
	if err := s.db.GetContext(ctx, &lastSync,
		"SELECT MAX(last_synced) FROM products WHERE last_synced IS NOT NULL"); err != nil {
		return nil, fmt.Errorf("failed to read last sync time: %w", err)
	}
	if lastSync.Valid {
		t := lastSync.Time
		stats.LastSyncTime = &t
	}

	return stats, nil
}

// LastSyncTime returns the incremental-sync watermark: the highest remote
// update timestamp among synced products, or nil when none exist.
func (s *Store) LastSyncTime(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	err := s.db.GetContext(ctx, &last,
		"SELECT MAX(updated_at) FROM products WHERE sync_status = 'synced'")
	if err != nil {
		return nil, fmt.Errorf("failed to read sync watermark: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}

// DeleteStaleProducts removes products whose local-modification timestamp
// predates the cutoff and whose sync never completed. Returns the number of
// rows removed.
func (s *Store) DeleteStaleProducts(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM products WHERE updated_locally < $1 AND sync_status != 'synced'", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale products: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOrphanVariants removes variants whose parent product no longer
// exists.
func (s *Store) DeleteOrphanVariants(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM variants WHERE product_id NOT IN (SELECT shopify_id FROM products)")
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan variants: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOrphanImages removes images whose parent product no longer exists.
func (s *Store) DeleteOrphanImages(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM images WHERE product_id NOT IN (SELECT shopify_id FROM products)")
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan images: %w", err)
	}
	return res.RowsAffected()
}

const validationSampleCap = 10

type validationRow struct {
	ShopifyID string `db:"shopify_id"`
	Title     string `db:"title"`
}

type duplicateSKURow struct {
	SKU   string `db:"sku"`
	Count int    `db:"count"`
}

// ProductsWithoutVariants samples products with no stored variant.
func (s *Store) ProductsWithoutVariants(ctx context.Context) (int, []map[string]string, error) {
	query := `
		SELECT p.shopify_id, p.title
		FROM products p
		LEFT JOIN variants v ON p.shopify_id = v.product_id
		WHERE v.id IS NULL`
	return s.sampleValidationRows(ctx, query)
}

// VariantsWithInvalidPrices samples variants whose price is missing or
// non-positive.
func (s *Store) VariantsWithInvalidPrices(ctx context.Context) (int, []map[string]string, error) {
	query := `
		SELECT v.shopify_id, p.title
		FROM variants v
		JOIN products p ON v.product_id = p.shopify_id
		WHERE v.price <= 0`
	return s.sampleValidationRows(ctx, query)
}

// ProductsWithoutImages samples products with no stored image.
func (s *Store) ProductsWithoutImages(ctx context.Context) (int, []map[string]string, error) {
	query := `
		SELECT p.shopify_id, p.title
		FROM products p
		LEFT JOIN images i ON p.shopify_id = i.product_id
		WHERE i.id IS NULL`
	return s.sampleValidationRows(ctx, query)
}

func (s *Store) sampleValidationRows(ctx context.Context, query string) (int, []map[string]string, error) {
	var rows []validationRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return 0, nil, fmt.Errorf("failed to run validation query: %w", err)
	}

	samples := make([]map[string]string, 0, validationSampleCap)
	for i, r := range rows {
		if i >= validationSampleCap {
			break
		}
		samples = append(samples, map[string]string{"shopify_id": r.ShopifyID, "title": r.Title})
	}
	return len(rows), samples, nil
}

// DuplicateSKUs samples SKUs assigned to more than one variant.
func (s *Store) DuplicateSKUs(ctx context.Context) (int, []map[string]string, error) {
	query := `
		SELECT sku, COUNT(*) AS count
		FROM variants
		WHERE sku IS NOT NULL AND sku != ''
		GROUP BY sku
		HAVING COUNT(*) > 1`

	var rows []duplicateSKURow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return 0, nil, fmt.Errorf("failed to query duplicate skus: %w", err)
	}

	samples := make([]map[string]string, 0, validationSampleCap)
	for i, r := range rows {
		if i >= validationSampleCap {
			break
		}
		samples = append(samples, map[string]string{"sku": r.SKU, "count": strconv.Itoa(r.Count)})
	}
	return len(rows), samples, nil
}
