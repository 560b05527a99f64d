package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"shopify-feed-service/internal/util"

	"go.uber.org/zap"
)

const (
	apiVersion      = "2023-10"
	defaultPageSize = 250

	// Inter-request floor: raised to the slow value while the shop reports
	// more than 80% of its call budget used.
	baseRequestDelay = 500 * time.Millisecond
	slowRequestDelay = 1000 * time.Millisecond

	rateLimitBackoff    = 2 * time.Second
	maxRateLimitRetries = 5

	productFields = "id,title,handle,body_html,vendor,product_type,created_at,updated_at,published_at,status,tags,variants,images"
)

// ErrNotConfigured is returned when a request is attempted without shop
// credentials.
var ErrNotConfigured = errors.New("shopify credentials not configured")

// ErrRateLimitExceeded is returned after the bounded 429 retry budget is
// exhausted.
var ErrRateLimitExceeded = errors.New("shopify rate limit retries exhausted")

// APIError is a non-2xx, non-429 response from the Admin API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shopify api error: status=%d body=%s", e.Status, e.Body)
}

// Client is a rate-limited Shopify Admin API client. All methods are safe
// for use from a single sync run; credential and limiter state is guarded
// for the config-save path which may reconfigure concurrently.
type Client struct {
	mu          sync.Mutex
	shopURL     string
	accessToken string

	httpClient  *http.Client
	delay       time.Duration
	lastRequest time.Time
	backoff     time.Duration
	pageSize    int
	logger      *zap.Logger
}

// NewClient creates an unconfigured client fetching pageSize products per
// request (non-positive values fall back to the API maximum). Credentials
// are supplied later via Configure once the merchant config is loaded.
func NewClient(pageSize int) *Client {
	if pageSize <= 0 || pageSize > defaultPageSize {
		pageSize = defaultPageSize
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		delay:      baseRequestDelay,
		backoff:    rateLimitBackoff,
		pageSize:   pageSize,
		logger:     util.GetLogger(),
	}
}

var schemePrefix = regexp.MustCompile(`^https?://`)

// Configure replaces the client credentials. No validation is performed;
// use TestConnection to probe a credential pair.
func (c *Client) Configure(shopURL, accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shopURL = strings.TrimSuffix(shopURL, "/")
	c.accessToken = accessToken
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shopURL != "" && c.accessToken != ""
}

// ShopDomain returns the configured shop domain without scheme.
func (c *Client) ShopDomain() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return schemePrefix.ReplaceAllString(c.shopURL, "")
}

// rateLimit sleeps until the adaptive inter-request floor has elapsed since
// the previous request.
func (c *Client) rateLimit(ctx context.Context) error {
	c.mu.Lock()
	wait := c.delay - time.Since(c.lastRequest)
	c.mu.Unlock()

	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	c.lastRequest = time.Now()
	c.mu.Unlock()
	return nil
}

// adjustDelay reads the used/limit call budget header and moves the
// inter-request floor between the fast and slow values.
func (c *Client) adjustDelay(header string) {
	if header == "" {
		return
	}
	parts := strings.SplitN(header, "/", 2)
	if len(parts) != 2 {
		return
	}
	used, err1 := strconv.ParseFloat(parts[0], 64)
	limit, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || limit <= 0 {
		return
	}

	c.mu.Lock()
	if used/limit > 0.8 {
		c.delay = slowRequestDelay
	} else {
		c.delay = baseRequestDelay
	}
	c.mu.Unlock()
}

func (c *Client) requestURL(endpoint string) (string, error) {
	c.mu.Lock()
	shopURL := c.shopURL
	c.mu.Unlock()

	if shopURL == "" {
		return "", ErrNotConfigured
	}
	if schemePrefix.MatchString(shopURL) {
		return fmt.Sprintf("%s/admin/api/%s/%s", shopURL, apiVersion, endpoint), nil
	}
	return fmt.Sprintf("https://%s/admin/api/%s/%s", shopURL, apiVersion, endpoint), nil
}

// Request issues a GET against the versioned Admin API path and decodes the
// JSON response into out. 429s are absorbed by a bounded fixed-interval
// retry; any other non-2xx status returns an *APIError.
func (c *Client) Request(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	for attempt := 0; attempt <= maxRateLimitRetries; attempt++ {
		if err := c.rateLimit(ctx); err != nil {
			return err
		}

		reqURL, err := c.requestURL(endpoint)
		if err != nil {
			return err
		}
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		c.mu.Lock()
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)
		c.mu.Unlock()
		req.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("shopify request failed: %w", err)
		}
		util.ShopifyRequestDuration.Observe(time.Since(start).Seconds())
		util.ShopifyRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("failed to read response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			util.ShopifyRateLimitWaits.Inc()
			c.logger.Warn("Rate limited by Shopify, backing off",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", c.backoff))
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		c.adjustDelay(resp.Header.Get("X-Shopify-Shop-Api-Call-Limit"))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{Status: resp.StatusCode, Body: string(body)}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode shopify response: %w", err)
		}
		return nil
	}

	return ErrRateLimitExceeded
}

// ProductCount returns the remote product count. Used for run diagnostics
// only; errors degrade to zero.
func (c *Client) ProductCount(ctx context.Context) int {
	var resp countResponse
	if err := c.Request(ctx, "products/count.json", nil, &resp); err != nil {
		c.logger.Warn("Failed to fetch product count", zap.Error(err))
		return 0
	}
	return resp.Count
}

// FetchAllSince pages through the whole catalog with a since_id cursor.
// The cursor advances to the highest id seen on each page; a page shorter
// than the page size terminates the walk.
func (c *Client) FetchAllSince(ctx context.Context, sinceID int64) ([]RemoteProduct, error) {
	var all []RemoteProduct
	cursor := sinceID

	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("fields", productFields)
		if cursor > 0 {
			params.Set("since_id", strconv.FormatInt(cursor, 10))
		}

		c.logger.Info("Fetching products page", zap.Int64("since_id", cursor))
		var resp productsResponse
		if err := c.Request(ctx, "products.json", params, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch products page: %w", err)
		}

		if len(resp.Products) == 0 {
			break
		}

		all = append(all, resp.Products...)
		cursor = resp.Products[len(resp.Products)-1].ID
		c.logger.Info("Fetched products page",
			zap.Int("page_items", len(resp.Products)),
			zap.Int("total", len(all)))

		if len(resp.Products) < c.pageSize {
			break
		}
	}

	return all, nil
}

// FetchUpdatedSince pages through products updated after the given
// timestamp using page-number pagination, with the same short-page
// termination rule as FetchAllSince.
func (c *Client) FetchUpdatedSince(ctx context.Context, since time.Time) ([]RemoteProduct, error) {
	var all []RemoteProduct
	page := 1

	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("updated_at_min", since.UTC().Format(time.RFC3339))
		params.Set("fields", productFields)
		params.Set("page", strconv.Itoa(page))

		c.logger.Info("Fetching updated products page",
			zap.Int("page", page),
			zap.Time("since", since))
		var resp productsResponse
		if err := c.Request(ctx, "products.json", params, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch updated products page: %w", err)
		}

		if len(resp.Products) == 0 {
			break
		}

		all = append(all, resp.Products...)
		page++

		if len(resp.Products) < c.pageSize {
			break
		}
	}

	return all, nil
}

// ShopInfo returns the remote shop profile.
func (c *Client) ShopInfo(ctx context.Context) (*Shop, error) {
	var resp shopResponse
	if err := c.Request(ctx, "shop.json", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Shop, nil
}

// TestConnection probes shop.json with the supplied credentials, restoring
// the previous credentials on every exit path.
func (c *Client) TestConnection(ctx context.Context, shopURL, accessToken string) ConnectionResult {
	c.mu.Lock()
	prevURL, prevToken := c.shopURL, c.accessToken
	c.mu.Unlock()

	defer c.Configure(prevURL, prevToken)

	c.Configure(schemePrefix.ReplaceAllString(shopURL, ""), accessToken)

	shop, err := c.ShopInfo(ctx)
	if err != nil {
		return ConnectionResult{Success: false, Error: err.Error()}
	}

	return ConnectionResult{
		Success: true,
		Shop:    shop,
		Message: fmt.Sprintf("Successfully connected to %s", shop.Name),
	}
}

// RetryBounded runs fn up to maxAttempts times with linear backoff
// (baseDelay × attempt number between tries).
func (c *Client) RetryBounded(ctx context.Context, fn func() error, maxAttempts int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		c.logger.Warn("Request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(lastErr))
		select {
		case <-time.After(baseDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Batched maps fn over items in fixed-size batches with a small pause
// between batches. A failing item yields a zero result and is skipped;
// the remaining batches still run.
func Batched[T, R any](ctx context.Context, items []T, size int, fn func(T) (R, error)) []R {
	results := make([]R, 0, len(items))
	logger := util.GetLogger()

	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}

		for _, item := range items[i:end] {
			r, err := fn(item)
			if err != nil {
				logger.Warn("Batch item failed", zap.Error(err))
				continue
			}
			results = append(results, r)
		}

		if end < len(items) {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-ctx.Done():
				return results
			}
		}
	}

	return results
}

// ProductURL builds the storefront URL for a product handle.
func ProductURL(domain, handle string) string {
	return fmt.Sprintf("https://%s/products/%s", domain, handle)
}

var imageSizeSuffix = regexp.MustCompile(`(?i)_\d+x\d*\.(jpg|jpeg|png|gif|webp)$`)
var imageExt = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp)$`)

// ImageURL rewrites a Shopify CDN image source to the requested size
// variant ("master" returns the original).
func ImageURL(src, size string) string {
	if src == "" {
		return ""
	}
	clean := imageSizeSuffix.ReplaceAllString(src, ".$1")
	if size == "master" || size == "" {
		return clean
	}
	return imageExt.ReplaceAllString(clean, "_"+size+".$1")
}
