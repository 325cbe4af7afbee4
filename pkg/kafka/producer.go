package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/resilience"
)

// Event is the unit of data published to Kafka. Key is used for partition
// hashing and Value is JSON-serialised.
type Event struct {
	Topic string
	Key   string
	Value any
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes JSON-encoded events. Every write must be acknowledged by
// all in-sync replicas; failed writes are retried with a fixed delay.
type Producer struct {
	writer     messageWriter
	retries    int
	retryDelay time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewProducer creates a Producer for the configured brokers. The topic is
// chosen per event.
func NewProducer(cfg config.KafkaConfig, m *metrics.Metrics) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.BootstrapServers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            1,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return newProducer(w, cfg, m)
}

func newProducer(w messageWriter, cfg config.KafkaConfig, m *metrics.Metrics) *Producer {
	return &Producer{
		writer:     w,
		retries:    cfg.RetryCount,
		retryDelay: cfg.RetryDelay(),
		metrics:    m,
		logger:     slog.Default().With("component", "kafka-producer"),
	}
}

// Send publishes value to topic under key. It is shorthand for Publish.
func (p *Producer) Send(ctx context.Context, topic, key string, value any) error {
	return p.Publish(ctx, Event{Topic: topic, Key: key, Value: value})
}

// Publish serialises a single event and writes it synchronously. When every
// attempt fails the returned error wraps errors.ErrSendFailed.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return fmt.Errorf("marshaling event value: %w", err)
	}
	msg := kafka.Message{
		Topic: event.Topic,
		Key:   []byte(event.Key),
		Value: value,
	}

	retryCfg := resilience.FixedDelay(p.retries, p.retryDelay)
	retryCfg.Retryable = isTransient
	retryCfg.OnRetry = func(attempt int, err error) {
		p.metrics.PublishRetried(event.Topic)
	}

	start := time.Now()
	err = resilience.Retry(ctx, "publish "+event.Topic, retryCfg, func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		p.metrics.Published(event.Topic, "failed", elapsed)
		p.logger.Error("failed to publish message",
			"topic", event.Topic,
			"key", event.Key,
			"error", err,
		)
		return fmt.Errorf("%w: publishing to %s: %w", apperrors.ErrSendFailed, event.Topic, err)
	}
	p.metrics.Published(event.Topic, "success", elapsed)
	p.logger.Debug("message published",
		"topic", event.Topic,
		"key", event.Key,
		"value_size", len(value),
	)
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// isTransient reports whether a failed write is worth retrying. Kafka
// protocol errors know whether they are temporary; anything else (network
// errors, leader elections in progress) is retried, except cancellation.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) {
		for _, e := range werrs {
			if e != nil && !isTransient(e) {
				return false
			}
		}
		return true
	}
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}
	return true
}
