// Package handler implements the calculator HTTP API: submitting
// calculations to Kafka and reading their results back.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/idempotency"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/resilience"
)

const (
	// IdempotencyKeyHeader lets a client retry a submission safely.
	IdempotencyKeyHeader = "Idempotency-Key"

	maxBodyBytes = 1 << 16

	// statusClientClosedRequest answers a client that went away mid-submit.
	statusClientClosedRequest = 499

	msgSubmitted = "Calculation request submitted for processing"
	msgDuplicate = "Calculation request already submitted"
	msgNotFound  = "Result not ready yet or request not found"
	msgNotReady  = "Result not ready yet, please try again"
)

// Publisher sends a value to a topic under a key.
type Publisher interface {
	Send(ctx context.Context, topic, key string, value any) error
}

// Results looks up responses by request ID.
type Results interface {
	Get(id uuid.UUID) (calculator.CalculationResponse, bool)
	WaitFor(ctx context.Context, id uuid.UUID, timeout time.Duration) (calculator.CalculationResponse, bool)
}

// Idempotency reserves client supplied idempotency keys.
type Idempotency interface {
	Reserve(ctx context.Context, key string, entry idempotency.Entry) (idempotency.Entry, bool, error)
	Release(ctx context.Context, key string) error
}

// Recorder stores accepted requests.
type Recorder interface {
	Record(ctx context.Context, req calculator.CalculationRequest) error
}

// Config holds the handler's settings.
type Config struct {
	RequestTopic string
	// SendTimeout bounds a single submission including publisher retries.
	SendTimeout time.Duration
}

// Handler serves the calculator routes. Publishing goes through the circuit
// breaker when one is set.
type Handler struct {
	cfg       Config
	publisher Publisher
	breaker   *resilience.CircuitBreaker
	results   Results
	idem      Idempotency
	ledger    Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures optional collaborators.
type Option func(*Handler)

// WithIdempotency enables the Idempotency-Key header.
func WithIdempotency(idem Idempotency) Option {
	return func(h *Handler) { h.idem = idem }
}

// WithLedger records every accepted request before it is published.
func WithLedger(l Recorder) Option {
	return func(h *Handler) { h.ledger = l }
}

// New creates a Handler that publishes submissions with pub and reads
// responses from results. breaker may be nil.
func New(cfg Config, pub Publisher, breaker *resilience.CircuitBreaker, results Results, opts ...Option) *Handler {
	h := &Handler{
		cfg:       cfg,
		publisher: pub,
		breaker:   breaker,
		results:   results,
		logger:    slog.Default().With("component", "api-handler"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Calculate validates a submission, publishes it on the request topic and
// answers 202 with the request ID the client polls results with.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var body calculator.SubmitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	op, err := validator.ValidateSubmitRequest(&body)
	if err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"message": "validation failed",
				"errors":  validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := calculator.NewCalculationRequest(*body.FirstNumber, *body.SecondNumber, op)

	idemKey := r.Header.Get(IdempotencyKeyHeader)
	if idemKey != "" && h.idem != nil {
		if len(idemKey) > idempotency.MaxKeyLength {
			h.writeError(w, http.StatusBadRequest, "Idempotency-Key header is too long")
			return
		}
		entry, fresh, err := h.idem.Reserve(ctx, idemKey, idempotency.Entry{
			RequestID:   req.ID,
			Fingerprint: idempotency.Fingerprint(req.FirstNumber, req.SecondNumber, op),
		})
		if err != nil {
			status := apperrors.HTTPStatusCode(err)
			log.Warn("idempotency check failed", "error", err, "status_code", status)
			h.writeError(w, status, idempotencyMessage(err))
			return
		}
		if !fresh {
			h.writeJSON(w, http.StatusAccepted, calculator.SubmitResponse{
				RequestID: entry.RequestID,
				Message:   msgDuplicate,
			})
			return
		}
	}

	if h.ledger != nil {
		if err := h.ledger.Record(ctx, req); err != nil {
			log.Warn("failed to record request in ledger", "request_id", req.ID, "error", err)
		}
	}

	if err := h.publish(ctx, req); err != nil {
		if idemKey != "" && h.idem != nil {
			if relErr := h.idem.Release(context.WithoutCancel(ctx), idemKey); relErr != nil {
				log.Warn("failed to release idempotency key", "error", relErr)
			}
		}
		if ctx.Err() != nil {
			log.Info("client cancelled calculation submit", "request_id", req.ID, "error", err)
			h.writeError(w, statusClientClosedRequest, "request cancelled")
			return
		}
		status := publishStatus(err)
		log.Error("failed to submit calculation",
			"request_id", req.ID,
			"error", err,
			"status_code", status,
		)
		h.writeError(w, status, "failed to submit calculation request")
		return
	}

	log.Info("calculation request submitted",
		"request_id", req.ID,
		"operation", req.Operation,
	)
	h.writeJSON(w, http.StatusAccepted, calculator.SubmitResponse{
		RequestID: req.ID,
		Message:   msgSubmitted,
	})
}

func (h *Handler) publish(ctx context.Context, req calculator.CalculationRequest) error {
	send := func() error {
		return resilience.WithTimeout(ctx, h.cfg.SendTimeout, "publish calculation request", func(ctx context.Context) error {
			return h.publisher.Send(ctx, h.cfg.RequestTopic, req.Key(), req)
		})
	}
	if h.breaker == nil {
		return send()
	}
	return h.breaker.ExecuteContext(ctx, send)
}

func publishStatus(err error) int {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return http.StatusServiceUnavailable
	}
	return apperrors.HTTPStatusCode(err)
}

func idempotencyMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "idempotency check unavailable"
}

// Health reports that the API process is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "Healthy",
		"timestamp": h.now().UTC(),
	})
}

// GetResult returns the stored response for {id} or 404.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	resp, found := h.results.Get(id)
	if !found {
		h.writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// WaitForResult long-polls for the response to {id}. The optional timeout
// query parameter is a Go duration ("10s") or a whole number of seconds. When
// no response arrives in time it answers 202 so the client can retry.
func (h *Handler) WaitForResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	timeout, err := parseTimeout(r.URL.Query().Get("timeout"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, found := h.results.WaitFor(r.Context(), id, timeout)
	if !found {
		h.writeError(w, http.StatusAccepted, msgNotReady)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"message": message})
}
