// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. The producer serialises events as JSON with
// acknowledgement from all replicas and bounded retries; the consumer commits
// each message only after its Handler has succeeded, giving at-least-once
// delivery.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/metrics"
)

const (
	outcomeCommitted    = "committed"
	outcomeMalformed    = "malformed"
	outcomeHandlerError = "handler_error"
	outcomeCommitError  = "commit_error"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from one topic under one consumer group and
// dispatches them to a Handler, one at a time.
type Consumer struct {
	reader        messageReader
	topic         string
	group         string
	fetchBackoff  time.Duration
	commitTimeout time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewConsumer creates a Consumer for topic under groupID. Offsets are
// committed explicitly and a group with no committed offset starts from the
// earliest message.
func NewConsumer(cfg config.KafkaConfig, topic, groupID string, m *metrics.Metrics) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.BootstrapServers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
	return newConsumer(r, cfg, topic, groupID, m)
}

func newConsumer(r messageReader, cfg config.KafkaConfig, topic, groupID string, m *metrics.Metrics) *Consumer {
	fetchBackoff := cfg.FetchErrorBackoff
	if fetchBackoff <= 0 {
		fetchBackoff = time.Second
	}
	commitTimeout := cfg.CommitTimeout
	if commitTimeout <= 0 {
		commitTimeout = 10 * time.Second
	}
	return &Consumer{
		reader:        r,
		topic:         topic,
		group:         groupID,
		fetchBackoff:  fetchBackoff,
		commitTimeout: commitTimeout,
		metrics:       m,
		logger:        slog.Default().With("component", "kafka-consumer", "topic", topic, "group", groupID),
	}
}

// Start enters the consume loop and blocks until ctx is cancelled, returning
// nil on a clean shutdown. A message that is being handled when ctx is
// cancelled is allowed to finish. The reader is closed when Start returns.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("kafka consumer: nil handler")
	}
	defer func() {
		if err := c.Close(); err != nil {
			c.logger.Error("failed to close reader", "error", err)
		}
	}()

	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			if errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopping", "reason", "reader closed")
				return nil
			}
			c.metrics.FetchError(c.topic, c.group)
			c.logger.Error("failed to fetch message", "error", err, "backoff", c.fetchBackoff)
			if !sleep(ctx, c.fetchBackoff) {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			continue
		}
		c.process(ctx, handler, msg)
	}
}

// process handles one message and commits it on success. The handler and the
// commit run on a context detached from ctx's cancellation so shutdown never
// aborts a message half way.
func (c *Consumer) process(ctx context.Context, handler Handler, msg kafka.Message) {
	log := c.logger.With(
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
	)
	log.Debug("message received", "value_size", len(msg.Value))

	err := c.invoke(context.WithoutCancel(ctx), handler, msg)
	switch {
	case errors.Is(err, ErrMalformedMessage):
		c.metrics.MessageConsumed(c.topic, c.group, outcomeMalformed)
		log.Warn("skipping malformed message without commit", "error", err)
		return
	case err != nil:
		c.metrics.MessageConsumed(c.topic, c.group, outcomeHandlerError)
		log.Error("failed to process message, leaving uncommitted", "error", err)
		return
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.commitTimeout)
	defer cancel()
	if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
		c.metrics.MessageConsumed(c.topic, c.group, outcomeCommitError)
		log.Error("failed to commit message", "error", err)
		return
	}
	c.metrics.MessageConsumed(c.topic, c.group, outcomeCommitted)
	log.Debug("message committed")
}

// invoke calls the handler, turning a panic into an error so one bad
// message cannot stop the loop.
func (c *Consumer) invoke(ctx context.Context, handler Handler, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.HandleMessage(ctx, Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Time:      msg.Time,
	})
}

// Close closes the underlying Kafka reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.reader.Close()
	})
	return c.closeErr
}

// Topic returns the topic the consumer reads from.
func (c *Consumer) Topic() string { return c.topic }

// Group returns the consumer group the consumer commits under.
func (c *Consumer) Group() string { return c.group }

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
