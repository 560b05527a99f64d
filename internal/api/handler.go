package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"shopify-feed-service/internal/models"
	"shopify-feed-service/internal/service"
	"shopify-feed-service/internal/shopify"
	"shopify-feed-service/internal/store"
	"shopify-feed-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	syncService   *service.SyncService
	feedService   *service.FeedService
	configService *service.ConfigService
	store         *store.Store
	client        *shopify.Client
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	syncService *service.SyncService,
	feedService *service.FeedService,
	configService *service.ConfigService,
	store *store.Store,
	client *shopify.Client,
) *Handler {
	return &Handler{
		syncService:   syncService,
		feedService:   feedService,
		configService: configService,
		store:         store,
		client:        client,
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sync/full", h.triggerFullSync)
		v1.POST("/sync/incremental", h.triggerIncrementalSync)
		v1.POST("/sync/cancel", h.cancelSync)
		v1.GET("/sync/status", h.syncStatus)
		v1.POST("/sync/cleanup", h.cleanup)
		v1.GET("/sync/validate", h.validate)

		v1.POST("/feed/generate", h.generateFeed)
		v1.GET("/feed/download/:filename", h.downloadFeed)
		v1.GET("/feed/exports", h.exportHistory)
		v1.DELETE("/feed/exports/:filename", h.deleteExport)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/stats", h.catalogStats)
		v1.GET("/logs", h.syncLogs)

		v1.GET("/config", h.getConfig)
		v1.POST("/config", h.saveConfig)
		v1.POST("/test-connection", h.testConnection)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) triggerFullSync(c *gin.Context) {
	h.triggerSync(c, models.SyncTypeFull)
}

func (h *Handler) triggerIncrementalSync(c *gin.Context) {
	h.triggerSync(c, models.SyncTypeIncremental)
}

// triggerSync starts the requested sync in the background and returns
// immediately. The coordinator itself rejects overlapping runs.
func (h *Handler) triggerSync(c *gin.Context, syncType string) {
	if h.syncService.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{
			"error": "A sync is already in progress",
		})
		return
	}

	go func() {
		run := func(ctx context.Context) (*models.SyncRun, error) {
			if syncType == models.SyncTypeIncremental {
				return h.syncService.RunIncremental(ctx)
			}
			return h.syncService.RunFull(ctx)
		}

		if _, err := run(context.Background()); err != nil {
			if errors.Is(err, service.ErrSyncInProgress) {
				return
			}
			h.logger.Error("Background sync failed",
				zap.String("sync_type", syncType),
				zap.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "started",
		"sync_type": syncType,
	})
}

func (h *Handler) cancelSync(c *gin.Context) {
	if !h.syncService.Cancel() {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No sync in progress",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "cancel requested",
	})
}

func (h *Handler) syncStatus(c *gin.Context) {
	status, err := h.syncService.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to read sync status",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) cleanup(c *gin.Context) {
	maxAgeDays, _ := strconv.Atoi(c.DefaultQuery("max_age_days", "30"))

	result, err := h.syncService.Cleanup(c.Request.Context(), maxAgeDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Cleanup failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) validate(c *gin.Context) {
	report, err := h.syncService.Validate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Validation failed",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) generateFeed(c *gin.Context) {
	var filters models.FeedFilters
	if err := c.ShouldBindJSON(&filters); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid filter payload",
			"details": err.Error(),
		})
		return
	}

	result, err := h.feedService.Generate(c.Request.Context(), filters)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrShopNotConfigured):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrNoFeedRows):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Feed generation failed",
				"details": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) downloadFeed(c *gin.Context) {
	filename := c.Param("filename")

	path, err := h.feedService.ExportPath(filename)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.FileAttachment(path, filename)
}

func (h *Handler) exportHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	records, err := h.feedService.ExportHistory(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load export history",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"exports": records})
}

func (h *Handler) deleteExport(c *gin.Context) {
	filename := c.Param("filename")

	if err := h.feedService.DeleteExport(filename); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": filename})
}

func (h *Handler) listProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	search := c.Query("search")

	products, pagination, err := h.store.Products(c.Request.Context(), page, limit, search)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load products",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products":   products,
		"pagination": pagination,
	})
}

func (h *Handler) catalogStats(c *gin.Context) {
	stats, err := h.store.Statistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load catalog statistics",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) syncLogs(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	runs, pagination, err := h.store.SyncRuns(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load sync logs",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":       runs,
		"pagination": pagination,
	})
}

func (h *Handler) getConfig(c *gin.Context) {
	cfg, err := h.configService.Get(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load configuration",
			"details": err.Error(),
		})
		return
	}

	// Never echo the stored token back.
	if cfg.AccessToken != "" {
		cfg.AccessToken = "********"
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) saveConfig(c *gin.Context) {
	var patch models.MerchantConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid configuration payload",
			"details": err.Error(),
		})
		return
	}

	cfg, err := h.configService.Save(c.Request.Context(), patch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to save configuration",
			"details": err.Error(),
		})
		return
	}

	if cfg.AccessToken != "" {
		cfg.AccessToken = "********"
	}
	c.JSON(http.StatusOK, cfg)
}

type testConnectionRequest struct {
	ShopURL     string `json:"shop_url" binding:"required"`
	AccessToken string `json:"access_token" binding:"required"`
}

func (h *Handler) testConnection(c *gin.Context) {
	var req testConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result := h.client.TestConnection(c.Request.Context(), req.ShopURL, req.AccessToken)
	if !result.Success {
		c.JSON(http.StatusBadGateway, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
