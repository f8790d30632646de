package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/socialstream/platform/internal/app/post"
	"github.com/socialstream/platform/internal/cache"
	"github.com/socialstream/platform/internal/metrics"
	"github.com/socialstream/platform/internal/platform/dbpool"
	"github.com/socialstream/platform/internal/platform/env"
	"github.com/socialstream/platform/internal/platform/natsutil"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("service", "post").Logger()

	addr := env.String("POST_API_ADDR", env.DefaultPostAddr)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	redisAddr := env.String("REDIS_ADDR", env.DefaultRedisAddr)
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	metrics.Register()

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open postgres pool")
	}
	defer pool.Close()

	repo := post.NewPostgresRepository(pool)
	if err := waitForSchema(runCtx, pool, repo.EnsureSchema, 30*time.Second, &logger); err != nil {
		logger.Fatal().Err(err).Msg("postgres never became ready")
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()
	store := cache.NewStore(rdb)
	invalidator := cache.NewInvalidator(store, &logger)

	client, err := natsutil.ConnectWithRetry(natsURL, 20*time.Second, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect event bus")
	}
	defer client.Close()

	publisher := natsutil.BusPublisher{JS: client.JS}
	service := post.NewService(repo, store, invalidator, publisher.Publish, &logger)
	service.PageTTL = env.Duration("POST_PAGE_CACHE_TTL", service.PageTTL)
	service.LikesTTL = env.Duration("POST_LIKES_CACHE_TTL", service.LikesTTL)
	handler := post.NewHandler(service)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), pool, rdb, client.Conn); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info().Str("addr", addr).Msg("post service listening")
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		logger.Fatal().Err(err).Msg("http server failed")
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func waitForSchema(ctx context.Context, pool *pgxpool.Pool, ensure func(context.Context) error, timeout time.Duration, logger *zerolog.Logger) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		if lastErr == nil {
			lastErr = ensure(attemptCtx)
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		logger.Warn().Err(lastErr).Msg("waiting for postgres readiness")
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client, conn *nats.Conn) error {
	if conn == nil || conn.Status() != nats.CONNECTED {
		return errors.New("event bus is not connected")
	}
	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	if err := rdb.Ping(checkCtx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
