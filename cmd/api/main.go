package main

import (
	"context"
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

	"example.com/report/internal/api"
	"example.com/report/internal/auth"
	"example.com/report/internal/config"
	"example.com/report/internal/domain"
	"example.com/report/internal/outbox"
	"example.com/report/internal/persistence/postgres"
	"example.com/report/internal/queue"
	httptransport "example.com/report/internal/transport/http"
)

func main() {
	// .env is optional; real deployments set the environment directly.
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
	relay := outbox.NewRelay(pool, jobQueue, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go relay.Start(ctx)

	service := domain.NewService(repo)

	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("report-service listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	relay.Wait()
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.EqualFold(cfg.QueueBackend, "memory") {
		log.Println("using in-memory queue backend")
		return queue.NewMemoryQueue(cfg.QueueLeaseTime), nil
	}
	return queue.DialSQS(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
}
