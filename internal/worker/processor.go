// Package worker turns calculation requests read from Kafka into responses
// published back to Kafka.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/tracing"
)

// Publisher sends a value to a topic under a key.
type Publisher interface {
	Send(ctx context.Context, topic, key string, value any) error
}

// StatusRecorder persists the final outcome of a request. It is optional.
type StatusRecorder interface {
	Complete(ctx context.Context, resp calculator.CalculationResponse) error
}

// Processor computes a response for each request and publishes it on the
// response topic.
type Processor struct {
	publisher     Publisher
	responseTopic string
	ledger        StatusRecorder
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithLedger records each response's outcome after it is published.
func WithLedger(l StatusRecorder) Option {
	return func(p *Processor) { p.ledger = l }
}

// WithMetrics sets the collectors the processor reports to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithClock overrides the time source used for ProcessedTime.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New creates a Processor that publishes responses on responseTopic.
func New(publisher Publisher, responseTopic string, opts ...Option) *Processor {
	p := &Processor{
		publisher:     publisher,
		responseTopic: responseTopic,
		logger:        slog.Default().With("component", "processor"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle evaluates req and publishes the response. Compute errors end up in
// the response and never fail the call. A publish failure is returned so the
// request is left uncommitted.
func (p *Processor) Handle(ctx context.Context, req calculator.CalculationRequest) error {
	ctx, span := tracing.Start(ctx, "process_request", req.ID.String())
	span.SetAttr("operation", req.Operation)
	defer func() {
		span.End()
		span.Log(ctx, p.logger)
	}()

	_, compute := tracing.StartChild(ctx, "compute")
	resp := calculator.Calculate(req, p.now())
	compute.SetAttr("success", resp.IsSuccess)
	compute.End()

	status := "success"
	if !resp.IsSuccess {
		status = "compute_error"
	}
	p.metrics.Calculated(metricOperation(req.Operation), status)

	log := p.logger.With("request_id", req.ID, "operation", req.Operation)
	if resp.IsSuccess {
		log.Debug("calculation completed", "result", resp.Result)
	} else {
		log.Info("calculation failed", "reason", resp.ErrorMessage)
	}

	pubCtx, publish := tracing.StartChild(ctx, "publish")
	err := p.publisher.Send(pubCtx, p.responseTopic, resp.Key(), resp)
	if err != nil {
		publish.SetAttr("error", err.Error())
	}
	publish.End()
	if err != nil {
		return fmt.Errorf("publishing response %s: %w", req.ID, err)
	}

	if p.ledger != nil {
		ledgerCtx, record := tracing.StartChild(ctx, "ledger")
		if err := p.ledger.Complete(ledgerCtx, resp); err != nil {
			log.Warn("failed to record request outcome", "error", err)
		}
		record.End()
	}
	return nil
}

// metricOperation bounds the label cardinality to the known operations.
func metricOperation(op string) string {
	parsed, err := calculator.ParseOperation(op)
	if err != nil {
		return "unsupported"
	}
	return parsed.String()
}
