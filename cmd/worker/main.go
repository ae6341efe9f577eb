package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/mpr/internal/config"
	"github.com/your-org/mpr/internal/matching"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/observability"
	"github.com/your-org/mpr/internal/queue"
	"github.com/your-org/mpr/internal/scan"
	"github.com/your-org/mpr/internal/storage"
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

	slog.Info("starting MPR scan worker",
		"workers", cfg.Matching.WorkerCount,
		"concurrency", cfg.Matching.Concurrency,
		"cpu_cores", runtime.NumCPU(),
	)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

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

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeScans(ctx, "scan-workers", func(ctx context.Context, task models.ScanTask) error {
		scanCtx, scanCancel := context.WithTimeout(ctx, cfg.Server.ScanTimeout)
		defer scanCancel()

		res, err := orchestrator.Run(scanCtx, scan.Request{
			MissingPersonID: task.MissingPersonID,
			ImageRef:        task.ImageRef,
			Initiator:       models.System(),
			Trigger:         task.Trigger,
		})
		if err != nil {
			return fmt.Errorf("scan task %s: %w", task.TaskID, err)
		}

		slog.Info("scan task done",
			"task_id", task.TaskID,
			"case_id", task.MissingPersonID,
			"matches", len(res.Matches),
			"scanned", res.TotalImagesScanned,
		)
		return nil
	}, cfg.Matching.WorkerCount)
	if err != nil {
		slog.Error("start scan consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
