package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/report/internal/config"
	"example.com/report/internal/persistence/postgres"
	"example.com/report/internal/queue"
	"example.com/report/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	jobQueue, err := buildQueue(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialise queue client: %v", err)
	}

	repo := postgres.NewRepository(pool)

	w := worker.New(jobQueue, repo, repo, worker.Config{
		BatchSize:     cfg.QueueBatchSize,
		WaitTime:      cfg.QueueWaitTime,
		IdleDelay:     cfg.WorkerIdleDelay,
		MaxDeliveries: cfg.WorkerMaxDeliveries,
	})

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		log.Printf("worker metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Println("report worker started")
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("worker stopped with error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("worker shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	<-done
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.EqualFold(cfg.QueueBackend, "memory") {
		log.Println("using in-memory queue backend")
		return queue.NewMemoryQueue(cfg.QueueLeaseTime), nil
	}
	return queue.DialSQS(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
}
