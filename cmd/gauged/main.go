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

	"gauge-tracking-backend/config"
	"gauge-tracking-backend/internal/api"
	"gauge-tracking-backend/internal/calibration"
	"gauge-tracking-backend/internal/db"
	"gauge-tracking-backend/internal/ident"
	"gauge-tracking-backend/internal/model"
	"gauge-tracking-backend/internal/notification"
	"gauge-tracking-backend/internal/service"
	"gauge-tracking-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "gauged ", log.LstdFlags)

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

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	allocator := ident.NewDBAllocator(gormDB)

	priority := make([]model.GaugeStatus, 0, len(cfg.Pairing.StatusPriority))
	for _, s := range cfg.Pairing.StatusPriority {
		priority = append(priority, model.GaugeStatus(s))
	}
	if len(priority) == 0 {
		priority = nil
	}

	// Push notifications are optional; without VAPID keys the cascade
	// service simply runs without a notifier.
	var webpushOptions *webpush.Options
	var notifier service.Notifier
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		notifier = pool
		logger.Printf("notification worker pool started with %d workers", cfg.WorkerPool.Size)
	} else {
		logger.Println("VAPID keys not configured, push notifications disabled")
	}

	pairing := service.NewPairingService(appStore, allocator, priority)
	cascade := service.NewCascadeService(appStore, notifier)

	// Background sweep that flags overdue-calibration gauges
	if cfg.Calibration.Enabled {
		sweeper := calibration.NewSweeper(appStore, cfg.Calibration.Interval)
		go sweeper.Run(ctx)
		logger.Printf("calibration sweeper running every %s", cfg.Calibration.Interval)
	}

	// Initialize router
	router := api.NewRouter(appStore, pairing, cascade, webpushOptions, api.RouterConfig{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
		StatusPriority:  priority,
	})
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
