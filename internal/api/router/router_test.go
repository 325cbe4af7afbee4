package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihandler "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/results"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/middleware"
)

type nopPublisher struct{}

func (nopPublisher) Send(context.Context, string, string, any) error { return nil }

func newRouter(t *testing.T, limiter *ratelimit.Limiter) (http.Handler, *metrics.Metrics) {
	t.Helper()
	store := results.New(config.ResultsConfig{PollInterval: 10 * time.Millisecond, WaitTimeout: 50 * time.Millisecond}, nil)
	h := apihandler.New(apihandler.Config{RequestTopic: "calculation-requests"}, nopPublisher{}, nil, store)
	m := metrics.New(prometheus.NewRegistry())
	checker := health.NewChecker()
	checker.Register("kafka", health.PingCheck(func(context.Context) error { return nil }))
	return New(Deps{
		Handler:       h,
		Checker:       checker,
		Limiter:       limiter,
		Metrics:       m,
		SubmitTimeout: time.Second,
	}), m
}

func TestRoutes(t *testing.T) {
	r, m := newRouter(t, nil)
	id := uuid.NewString()

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/v1/calculator/calculate", `{"firstNumber":1,"secondNumber":2,"operation":"add"}`, http.StatusAccepted},
		{http.MethodGet, "/api/v1/calculator/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/results/" + id, "", http.StatusNotFound},
		{http.MethodGet, "/api/v1/results/" + id + "/wait", "", http.StatusAccepted},
		{http.MethodGet, "/health/live", "", http.StatusOK},
		{http.MethodGet, "/health/ready", "", http.StatusOK},
		{http.MethodGet, "/api/v1/calculator/calculate", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(pkgmw.RequestIDHeader))
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/results/{id}", "404")))
}

func TestRateLimitedRoutes(t *testing.T) {
	r, _ := newRouter(t, ratelimit.New(0.001, 1, time.Minute))

	do := func(path string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}
	id := uuid.NewString()
	require.Equal(t, http.StatusNotFound, do("/api/v1/results/"+id))
	assert.Equal(t, http.StatusTooManyRequests, do("/api/v1/results/"+id))
	assert.Equal(t, http.StatusOK, do("/health/live"))
}
