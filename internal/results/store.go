// Package results holds calculation responses read from the response topic
// so HTTP clients can fetch them by request identifier.
package results

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultWaitTimeout    = 30 * time.Second
	defaultMaxWaitTimeout = 60 * time.Second
)

// Store is an in-memory, insert-once map from request ID to response. Entries
// live as long as the process.
type Store struct {
	entries sync.Map
	count   atomic.Int64

	pollInterval   time.Duration
	waitTimeout    time.Duration
	maxWaitTimeout time.Duration

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an empty Store. Zero durations in cfg fall back to 1s poll,
// 30s default wait and 60s maximum wait.
func New(cfg config.ResultsConfig, m *metrics.Metrics) *Store {
	s := &Store{
		pollInterval:   cfg.PollInterval,
		waitTimeout:    cfg.WaitTimeout,
		maxWaitTimeout: cfg.MaxWaitTimeout,
		metrics:        m,
		logger:         slog.Default().With("component", "result-store"),
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.waitTimeout <= 0 {
		s.waitTimeout = defaultWaitTimeout
	}
	if s.maxWaitTimeout <= 0 {
		s.maxWaitTimeout = defaultMaxWaitTimeout
	}
	if s.waitTimeout > s.maxWaitTimeout {
		s.waitTimeout = s.maxWaitTimeout
	}
	return s
}

// Put stores resp unless a response with the same ID is already present. The
// first write wins; later ones are dropped and Put reports false.
func (s *Store) Put(resp calculator.CalculationResponse) bool {
	if _, loaded := s.entries.LoadOrStore(resp.ID, resp); loaded {
		s.logger.Debug("duplicate response ignored", "request_id", resp.ID)
		return false
	}
	n := s.count.Add(1)
	s.metrics.SetResultStoreEntries(n)
	return true
}

// Get returns the response for id if one has arrived.
func (s *Store) Get(id uuid.UUID) (calculator.CalculationResponse, bool) {
	v, ok := s.entries.Load(id)
	if !ok {
		return calculator.CalculationResponse{}, false
	}
	return v.(calculator.CalculationResponse), true
}

// WaitFor returns the response for id, polling until it arrives, timeout
// elapses or ctx is done. A non-positive timeout uses the configured default
// and no wait exceeds the configured maximum.
func (s *Store) WaitFor(ctx context.Context, id uuid.UUID, timeout time.Duration) (calculator.CalculationResponse, bool) {
	if resp, ok := s.Get(id); ok {
		s.metrics.ResultWait("ready")
		return resp, true
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.clampTimeout(timeout))
	defer cancel()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if resp, ok := s.Get(id); ok {
				s.metrics.ResultWait("ready")
				return resp, true
			}
		case <-waitCtx.Done():
			// A response may land between the last tick and the deadline.
			if resp, ok := s.Get(id); ok {
				s.metrics.ResultWait("ready")
				return resp, true
			}
			if ctx.Err() != nil {
				s.metrics.ResultWait("cancelled")
			} else {
				s.metrics.ResultWait("not_ready")
			}
			return calculator.CalculationResponse{}, false
		}
	}
}

func (s *Store) clampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return s.waitTimeout
	}
	if timeout > s.maxWaitTimeout {
		return s.maxWaitTimeout
	}
	return timeout
}

// Handle stores a response read from the response topic. Duplicates are not
// an error.
func (s *Store) Handle(_ context.Context, resp calculator.CalculationResponse) error {
	if s.Put(resp) {
		s.logger.Debug("response stored", "request_id", resp.ID, "is_success", resp.IsSuccess)
	}
	return nil
}

// Len returns the number of stored responses.
func (s *Store) Len() int64 {
	return s.count.Load()
}

// DefaultWaitTimeout is the wait applied when a caller gives none.
func (s *Store) DefaultWaitTimeout() time.Duration {
	return s.waitTimeout
}
