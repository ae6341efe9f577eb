package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/mpr/internal/api"
	"github.com/your-org/mpr/internal/api/handlers"
	"github.com/your-org/mpr/internal/api/ws"
	"github.com/your-org/mpr/internal/config"
	"github.com/your-org/mpr/internal/matching"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/observability"
	"github.com/your-org/mpr/internal/queue"
	"github.com/your-org/mpr/internal/review"
	"github.com/your-org/mpr/internal/scan"
	"github.com/your-org/mpr/internal/storage"
	"github.com/your-org/mpr/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting MPR API service", "port", cfg.Server.Port, "scorer", cfg.Matching.Scorer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBuckets(ctx); err != nil {
		slog.Warn("ensure minio buckets", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Relay scan and review events to WebSocket subscribers
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, ev models.Event) error {
		hub.BroadcastEvent(&dto.WSEvent{
			Type:        ev.Type,
			CaseID:      ev.MissingPersonID,
			Data:        ev.Data,
			PublishedAt: ev.PublishedAt.UTC().Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Matching
	scorer, closeScorer, err := matching.NewScorerFromConfig(cfg.Matching)
	if err != nil {
		slog.Error("init scorer", "error", err)
		os.Exit(1)
	}
	defer closeScorer()

	orchestrator := scan.NewOrchestrator(
		storage.NewImageResolver(minioStore, cfg.MinIO.Buckets.Reports),
		minioStore,
		db,
		producer,
		matching.NewRanker(scorer, cfg.Matching.Concurrency),
		scan.OptionsFromConfig(cfg),
	)
	workflow := review.NewWorkflow(db, producer, producer)

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:      cfg.Server.APIKey,
		ScanTimeout: cfg.Server.ScanTimeout,
		Scanner:     orchestrator,
		Reviewer:    workflow,
		Cases:       db,
		Publisher:   producer,
		Hub:         hub,
		DBCheck:     db,
		MinIOCheck:  minioStore,
		NATSCheck:   handlers.PingFunc(func(context.Context) error { return producer.Ping() }),
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.ScanTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
