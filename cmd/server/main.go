package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopify-feed-service/config"
	"shopify-feed-service/internal/api"
	"shopify-feed-service/internal/broker"
	"shopify-feed-service/internal/redisclient"
	"shopify-feed-service/internal/service"
	"shopify-feed-service/internal/shopify"
	"shopify-feed-service/internal/store"
	"shopify-feed-service/internal/util"
	"shopify-feed-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting shopify feed service")

	tp, err := util.InitTracer("shopify-feed-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	if err := db.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSync)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	shopifyClient := shopify.NewClient(cfg.Sync.PageSize)

	configService := service.NewConfigService(db, shopifyClient)
	if err := configService.ApplyToClient(context.Background()); err != nil {
		log.Printf("Failed to apply stored shop credentials: %v", err)
	}

	syncService := service.NewSyncService(shopifyClient, db, redisClient, eventPublisher)
	feedService := service.NewFeedService(db, shopifyClient, configService, eventPublisher, cfg.Export.Dir)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	maintenanceWorker := worker.NewMaintenanceWorker(
		syncService,
		configService,
		time.Duration(cfg.Sync.MaintenanceIntervalMin)*time.Minute,
		cfg.Sync.CleanupMaxAgeDays,
	)
	go func() {
		if err := maintenanceWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Maintenance worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(syncService, feedService, configService, db, shopifyClient)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()

	log.Println("Server exited")
}
