package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"asset-ledger-backend/config"
	"asset-ledger-backend/internal/api"
	"asset-ledger-backend/internal/blob"
	"asset-ledger-backend/internal/db"
	"asset-ledger-backend/internal/mirror"
	"asset-ledger-backend/internal/model"
	"asset-ledger-backend/internal/notification"
	"asset-ledger-backend/internal/store"
	"asset-ledger-backend/internal/sync"
	"asset-ledger-backend/internal/workflow"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "asset-ledger ", log.LstdFlags)

	// Secrets (object store keys, DSN passwords) may come from a .env file.
	if err := godotenv.Load(); err != nil {
		logger.Println("no .env file found, relying on the process environment")
	}

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Remote store is optional: an empty DSN runs the service cache-only.
	var remoteDB *gorm.DB
	if cfg.RemoteDB.Enabled() {
		remoteDB, err = db.Init(&cfg.RemoteDB, cfg.Sync.Channel)
		if err != nil {
			logger.Fatalf("failed to initialize remote store: %v", err)
		}
		logger.Println("remote store initialized successfully")
	} else {
		logger.Println("no remote store configured; running in cache-only mode")
	}

	assetMirror, err := mirror.Open(cfg.Mirror.Path, cfg.Mirror.Namespace)
	if err != nil {
		logger.Fatalf("failed to open local mirror: %v", err)
	}

	repo := store.NewRepository(remoteDB, assetMirror)
	flow := workflow.NewMachine(repo)
	logger.Println("data store initialized")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var blobStore *blob.Storage
	if cfg.Blob.Enabled() {
		blobStore, err = blob.New(&cfg.Blob)
		if err != nil {
			logger.Fatalf("failed to initialize attachment store: %v", err)
		}
		if err := blobStore.EnsureBucket(ctx); err != nil {
			logger.Fatalf("failed to prepare attachment bucket: %v", err)
		}
		logger.Println("attachment store initialized")
	} else {
		logger.Println("no attachment store configured; attachment endpoints disabled")
	}

	var pool *notification.WorkerPool
	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}
	if remoteDB != nil && cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, remoteDB, webpushOptions)
		pool.Start(ctx)
		logger.Println("notification worker pool started")
	} else {
		logger.Println("push notifications disabled (no VAPID keys or no remote store)")
	}

	// Response cache, flushed by the synchronization loop on every effective
	// change so viewers never see a stale cached set longer than one refresh.
	cacheStore := cache.New(time.Duration(cfg.Server.CacheTTLSeconds)*time.Second, 10*time.Minute)

	var feed sync.Feed
	if cfg.RemoteDB.Enabled() {
		feed = sync.NewPgFeed(cfg.RemoteDB.DSN, cfg.Sync.Channel)
	}
	loop := sync.NewLoop(repo, feed, cfg.Sync.Interval, func(assets []model.Asset) {
		logger.Printf("record set changed (%d assets), flushing response cache", len(assets))
		cacheStore.Flush()
	})
	go loop.Run(ctx)

	// Initialize router
	handler := api.NewHandler(repo, flow, blobStore, pool, webpushOptions)
	router := api.NewRouter(handler, cacheStore, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
