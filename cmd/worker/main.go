// Command worker consumes calculation requests, evaluates them and publishes
// the responses.
//
// Usage:
//
//	go run ./cmd/worker [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/worker"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/postgres"
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
	slog.Info("starting calculator worker",
		"brokers", cfg.Kafka.BootstrapServers,
		"request_topic", cfg.Kafka.RequestTopic,
		"group", cfg.Kafka.GroupID,
	)

	if err := run(cfg); err != nil {
		slog.Error("calculator worker failed", "error", err)
		os.Exit(1)
	}
	slog.Info("calculator worker stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, m)
	defer producer.Close()

	opts := []worker.Option{worker.WithMetrics(m)}
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
		opts = append(opts, worker.WithLedger(l))
	}

	processor := worker.New(producer, cfg.Kafka.ResponseTopic, opts...)
	requests := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.RequestTopic, cfg.Kafka.GroupID, m)

	return requests.Start(ctx, kafka.JSONHandler[calculator.CalculationRequest](processor))
}
