package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/idempotency"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/calculator"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/results"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/resilience"
)

type fakePublisher struct {
	mu   sync.Mutex
	reqs []calculator.CalculationRequest
	keys []string
	err  error
}

func (p *fakePublisher) Send(_ context.Context, topic, key string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.reqs = append(p.reqs, value.(calculator.CalculationRequest))
	p.keys = append(p.keys, key)
	return nil
}

type fakeIdem struct {
	entries  map[string]idempotency.Entry
	released []string
	err      error
}

func (f *fakeIdem) Reserve(_ context.Context, key string, e idempotency.Entry) (idempotency.Entry, bool, error) {
	if f.err != nil {
		return idempotency.Entry{}, false, f.err
	}
	if existing, ok := f.entries[key]; ok {
		if existing.Fingerprint != e.Fingerprint {
			return idempotency.Entry{}, false, apperrors.New(apperrors.ErrIdempotencyConflict, 409, "idempotency key already used for a different calculation")
		}
		return existing, false, nil
	}
	f.entries[key] = e
	return e, true, nil
}

func (f *fakeIdem) Release(_ context.Context, key string) error {
	delete(f.entries, key)
	f.released = append(f.released, key)
	return nil
}

type fakeLedger struct {
	recorded []uuid.UUID
}

func (l *fakeLedger) Record(_ context.Context, req calculator.CalculationRequest) error {
	l.recorded = append(l.recorded, req.ID)
	return nil
}

func newTestHandler(pub Publisher, opts ...Option) (*Handler, *results.Store) {
	store := results.New(config.ResultsConfig{
		PollInterval:   10 * time.Millisecond,
		WaitTimeout:    100 * time.Millisecond,
		MaxWaitTimeout: time.Second,
	}, nil)
	breaker := resilience.NewCircuitBreaker("test", resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	return New(Config{RequestTopic: "calculation-requests", SendTimeout: time.Second}, pub, breaker, store, opts...), store
}

func postCalculate(h *Handler, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/calculator/calculate", strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.Calculate(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCalculateAccepted(t *testing.T) {
	pub := &fakePublisher{}
	h, _ := newTestHandler(pub)

	rec := postCalculate(h, `{"firstNumber":10,"secondNumber":5,"operation":"Add"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decode[calculator.SubmitResponse](t, rec)
	assert.Equal(t, msgSubmitted, resp.Message)
	require.Len(t, pub.reqs, 1)

	published := pub.reqs[0]
	assert.Equal(t, resp.RequestID, published.ID)
	assert.Equal(t, resp.RequestID.String(), pub.keys[0])
	assert.Equal(t, "add", published.Operation)
	assert.Equal(t, 10.0, published.FirstNumber)
	assert.Equal(t, 5.0, published.SecondNumber)
	assert.False(t, published.RequestTime.IsZero())
}

func TestCalculateRejectsBadInput(t *testing.T) {
	pub := &fakePublisher{}
	h, _ := newTestHandler(pub)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed json", `{"firstNumber":`, ""},
		{"missing operand", `{"firstNumber":1,"operation":"add"}`, "secondNumber"},
		{"unknown operation", `{"firstNumber":1,"secondNumber":2,"operation":"modulo"}`, "operation"},
		{"divide by zero", `{"firstNumber":1,"secondNumber":0,"operation":"divide"}`, "secondNumber"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postCalculate(h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			if tt.field != "" {
				body := decode[map[string]any](t, rec)
				fields, ok := body["errors"].(map[string]any)
				require.True(t, ok)
				assert.Contains(t, fields, tt.field)
			}
		})
	}
	assert.Empty(t, pub.reqs, "invalid submissions are never published")
}

func TestCalculateSendFailure(t *testing.T) {
	pub := &fakePublisher{err: apperrors.ErrSendFailed}
	idem := &fakeIdem{entries: map[string]idempotency.Entry{}}
	h, _ := newTestHandler(pub, WithIdempotency(idem))

	rec := postCalculate(h, `{"firstNumber":1,"secondNumber":2,"operation":"add"}`, IdempotencyKeyHeader, "k1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, []string{"k1"}, idem.released, "key is released so the client can retry")
}

func TestCalculateCircuitOpens(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	h, _ := newTestHandler(pub)

	for i := 0; i < 2; i++ {
		postCalculate(h, `{"firstNumber":1,"secondNumber":2,"operation":"add"}`)
	}
	pub.err = nil
	rec := postCalculate(h, `{"firstNumber":1,"secondNumber":2,"operation":"add"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, pub.reqs, "open circuit short-circuits publishing")
}

func TestCalculateIdempotentRetry(t *testing.T) {
	pub := &fakePublisher{}
	idem := &fakeIdem{entries: map[string]idempotency.Entry{}}
	ledger := &fakeLedger{}
	h, _ := newTestHandler(pub, WithIdempotency(idem), WithLedger(ledger))

	body := `{"firstNumber":2,"secondNumber":3,"operation":"multiply"}`
	first := decode[calculator.SubmitResponse](t, postCalculate(h, body, IdempotencyKeyHeader, "abc"))

	rec := postCalculate(h, body, IdempotencyKeyHeader, "abc")
	require.Equal(t, http.StatusAccepted, rec.Code)
	second := decode[calculator.SubmitResponse](t, rec)
	assert.Equal(t, first.RequestID, second.RequestID)
	assert.Equal(t, msgDuplicate, second.Message)
	assert.Len(t, pub.reqs, 1)
	assert.Equal(t, []uuid.UUID{first.RequestID}, ledger.recorded)

	rec = postCalculate(h, `{"firstNumber":2,"secondNumber":3,"operation":"add"}`, IdempotencyKeyHeader, "abc")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCalculateIdempotencyUnavailable(t *testing.T) {
	idem := &fakeIdem{err: apperrors.ErrUnavailable}
	h, _ := newTestHandler(&fakePublisher{}, WithIdempotency(idem))

	rec := postCalculate(h, `{"firstNumber":2,"secondNumber":3,"operation":"add"}`, IdempotencyKeyHeader, "abc")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(&fakePublisher{})
	h.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calculator/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"Healthy","timestamp":"2024-05-01T12:00:00Z"}`, rec.Body.String())
}

func serveResult(h *Handler, path string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/results/{id}", h.GetResult)
	mux.HandleFunc("GET /api/v1/results/{id}/wait", h.WaitForResult)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetResult(t *testing.T) {
	h, store := newTestHandler(&fakePublisher{})
	id := uuid.New()

	rec := serveResult(h, "/api/v1/results/"+id.String())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgNotFound, decode[map[string]string](t, rec)["message"])

	store.Put(calculator.CalculationResponse{ID: id, Result: 50, Operation: "multiply", IsSuccess: true})
	rec = serveResult(h, "/api/v1/results/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[calculator.CalculationResponse](t, rec)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, 50.0, got.Result)

	rec = serveResult(h, "/api/v1/results/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWaitForResultNotReady(t *testing.T) {
	h, _ := newTestHandler(&fakePublisher{})

	rec := serveResult(h, "/api/v1/results/"+uuid.NewString()+"/wait?timeout=50ms")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, msgNotReady, decode[map[string]string](t, rec)["message"])
}

func TestWaitForResultArrives(t *testing.T) {
	h, store := newTestHandler(&fakePublisher{})
	id := uuid.New()
	go func() {
		time.Sleep(30 * time.Millisecond)
		store.Put(calculator.CalculationResponse{ID: id, Operation: "divide", ErrorMessage: "attempted to divide by zero"})
	}()

	rec := serveResult(h, "/api/v1/results/"+id.String()+"/wait?timeout=1")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[calculator.CalculationResponse](t, rec)
	assert.False(t, got.IsSuccess)
	assert.Equal(t, "attempted to divide by zero", got.ErrorMessage)
}

func TestWaitForResultBadTimeout(t *testing.T) {
	h, _ := newTestHandler(&fakePublisher{})
	rec := serveResult(h, "/api/v1/results/"+uuid.NewString()+"/wait?timeout=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseTimeout(t *testing.T) {
	d, err := parseTimeout("")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = parseTimeout("15")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, d)

	d, err = parseTimeout("250ms")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = parseTimeout("-1")
	assert.Error(t, err)
	_, err = parseTimeout("-2s")
	assert.Error(t, err)
}

func TestParseTimeoutHugeSecondsSaturates(t *testing.T) {
	for _, raw := range []string{"9223372037", "18446744074"} {
		d, err := parseTimeout(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, time.Duration(math.MaxInt64), d, raw)
	}

	d, err := parseTimeout("9223372036")
	require.NoError(t, err)
	assert.Equal(t, 9223372036*time.Second, d)
}

// ctxPublisher fails with the context error once ctx is done and otherwise
// accepts the request, like the Kafka producer.
type ctxPublisher struct {
	mu    sync.Mutex
	sent  int
	block bool
	ended int
}

func (p *ctxPublisher) Send(ctx context.Context, _, _ string, _ any) error {
	if p.block {
		<-ctx.Done()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		p.ended++
		return err
	}
	p.sent++
	return nil
}

func TestCalculateCancelledClientsDoNotOpenCircuit(t *testing.T) {
	pub := &ctxPublisher{}
	h, _ := newTestHandler(pub)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/calculator/calculate",
			strings.NewReader(`{"firstNumber":1,"secondNumber":2,"operation":"add"}`)).WithContext(ctx)
		rec := httptest.NewRecorder()
		h.Calculate(rec, req)
		assert.Equal(t, statusClientClosedRequest, rec.Code)
	}
	assert.Equal(t, resilience.StateClosed, h.breaker.GetState())

	rec := postCalculate(h, `{"firstNumber":1,"secondNumber":2,"operation":"add"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, pub.sent)
}

func TestCalculateSendTimeoutStopsPublish(t *testing.T) {
	pub := &ctxPublisher{block: true}
	idem := &fakeIdem{entries: map[string]idempotency.Entry{}}
	store := results.New(config.ResultsConfig{}, nil)
	h := New(Config{RequestTopic: "calculation-requests", SendTimeout: 20 * time.Millisecond},
		pub, nil, store, WithIdempotency(idem))

	body := `{"firstNumber":1,"secondNumber":2,"operation":"add"}`
	for i := 0; i < 2; i++ {
		rec := postCalculate(h, body, IdempotencyKeyHeader, "k1")
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		pub.mu.Lock()
		assert.Equal(t, i+1, pub.ended, "publish has finished before the response is written")
		pub.mu.Unlock()
	}
	assert.Zero(t, pub.sent)
	assert.Equal(t, []string{"k1", "k1"}, idem.released)
}
