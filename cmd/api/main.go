// Command api starts the calculator HTTP service.
//
// The service accepts calculations via POST /api/v1/calculator/calculate,
// publishes them on the request topic, consumes responses from the response
// topic into an in-memory result store, and serves them under
// GET /api/v1/results/{id} and GET /api/v1/results/{id}/wait.
//
// Usage:
//
//	go run ./cmd/api [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	apihandler "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/idempotency"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/router"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/results"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting calculator api",
		"port", cfg.Server.Port,
		"brokers", cfg.Kafka.BootstrapServers,
		"request_topic", cfg.Kafka.RequestTopic,
		"response_topic", cfg.Kafka.ResponseTopic,
	)

	if err := run(cfg); err != nil {
		slog.Error("calculator api failed", "error", err)
		os.Exit(1)
	}
	slog.Info("calculator api stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	checker := health.NewChecker()
	checker.Register("kafka", health.PingCheck(func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.BootstrapServers)
	}))

	producer := kafka.NewProducer(cfg.Kafka, m)
	defer producer.Close()

	breaker := resilience.NewCircuitBreaker("kafka-publish", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			m.SetCircuitState(name, int(to))
		},
	})

	var opts []apihandler.Option
	if cfg.Redis.Enabled {
		rdb, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
		opts = append(opts, apihandler.WithIdempotency(idempotency.New(rdb, cfg.Redis.IdempotencyTTL)))
		checker.Register("redis", health.DegradedCheck(rdb.Ping))
	}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		l := ledger.New(db)
		if err := l.EnsureSchema(ctx); err != nil {
			return err
		}
		slog.Info("connected to postgres", "database", cfg.Postgres.Database)
		opts = append(opts, apihandler.WithLedger(l))
		checker.Register("postgres", health.DegradedCheck(db.Ping))
	}

	store := results.New(cfg.Results, m)
	responses := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.ResponseTopic, cfg.Kafka.ResponseGroupID(), m)

	h := apihandler.New(apihandler.Config{
		RequestTopic: cfg.Kafka.RequestTopic,
		SendTimeout:  cfg.Server.SubmitTimeout,
	}, producer, breaker, store, opts...)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(router.Deps{
			Handler:       h,
			Checker:       checker,
			Limiter:       limiter,
			Metrics:       m,
			SubmitTimeout: cfg.Server.SubmitTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return responses.Start(gctx, kafka.JSONHandler[calculator.CalculationResponse](store))
	})
	g.Go(func() error {
		slog.Info("calculator api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		return nil
	})
	return g.Wait()
}
