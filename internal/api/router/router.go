// Package router wires up the calculator API routes and applies the
// middleware chain (RequestID → Metrics → CORS → RateLimit).
package router

import (
	"net/http"
	"time"

	apihandler "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/handler"
	apimw "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/middleware"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/internal/api/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/metrics"
	pkgmw "github.com/Adithya-Monish-Kumar-K/Kafka-Calculator-Pipeline/pkg/middleware"
)

// Deps are the components the routes are served by. Limiter, Checker and
// Metrics may be nil.
type Deps struct {
	Handler       *apihandler.Handler
	Checker       *health.Checker
	Limiter       *ratelimit.Limiter
	Metrics       *metrics.Metrics
	SubmitTimeout time.Duration
}

// New builds the API's HTTP handler.
//
// Route table:
//
//	POST   /api/v1/calculator/calculate   → submit a calculation
//	GET    /api/v1/calculator/health      → API liveness
//	GET    /api/v1/results/{id}           → stored result or 404
//	GET    /api/v1/results/{id}/wait      → long-poll for a result, 202 on timeout
//	GET    /health/live                   → liveness probe
//	GET    /health/ready                  → readiness probe
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → CORS → RateLimit → handler
func New(d Deps) http.Handler {
	h := d.Handler
	mux := http.NewServeMux()

	var calculate http.Handler = http.HandlerFunc(h.Calculate)
	if d.SubmitTimeout > 0 {
		calculate = pkgmw.Timeout(d.SubmitTimeout)(calculate)
	}
	mux.Handle("POST /api/v1/calculator/calculate", calculate)
	mux.HandleFunc("GET /api/v1/calculator/health", h.Health)

	mux.HandleFunc("GET /api/v1/results/{id}", h.GetResult)
	mux.HandleFunc("GET /api/v1/results/{id}/wait", h.WaitForResult)

	checker := d.Checker
	if checker == nil {
		checker = health.NewChecker()
	}
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = apimw.RateLimit(d.Limiter)(chain)
	chain = apimw.CORS(apimw.DefaultCORSConfig())(chain)
	chain = pkgmw.Metrics(d.Metrics)(chain)
	chain = pkgmw.RequestID(chain)

	return chain
}
