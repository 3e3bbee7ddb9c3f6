// Package httpapi is the HTTP transport: the rate-limited payload
// endpoints, the admin surface and the Prometheus exposition.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SanketBaviskar/rate-limiter/internal/config"
	"github.com/SanketBaviskar/rate-limiter/internal/identity"
	"github.com/SanketBaviskar/rate-limiter/internal/limiter"
	"github.com/SanketBaviskar/rate-limiter/internal/metrics"
	"github.com/SanketBaviskar/rate-limiter/internal/store"
	"github.com/SanketBaviskar/rate-limiter/internal/weather"
)

// rejectionBody is the 429 response payload.
const rejectionBody = "Rate limit exceeded. Try again later."

// Server wires the admission core to HTTP handlers.
type Server struct {
	store    store.Store
	registry *config.Registry
	limiter  *limiter.Service
	drainer  *limiter.Drainer
	recorder *metrics.Recorder
	weather  *weather.Client
	gatherer prometheus.Gatherer
	log      *slog.Logger
}

// New creates the HTTP server facade.
func New(
	st store.Store,
	reg *config.Registry,
	svc *limiter.Service,
	dr *limiter.Drainer,
	rec *metrics.Recorder,
	wc *weather.Client,
	gatherer prometheus.Gatherer,
	log *slog.Logger,
) *Server {
	return &Server{
		store:    st,
		registry: reg,
		limiter:  svc,
		drainer:  dr,
		recorder: rec,
		weather:  wc,
		gatherer: gatherer,
		log:      log.With("component", "http"),
	}
}

// Handler builds the route table with logging and CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/monitor", s.handleMonitor)
	mux.HandleFunc("POST /api/config", s.handleConfig)
	mux.HandleFunc("POST /api/reset", s.handleReset)

	mux.HandleFunc("GET /api/image/{width}/{height}", s.limited(s.handleImage))
	mux.HandleFunc("GET /api/weather/forecast", s.limited(s.handleForecast))
	mux.HandleFunc("GET /api/weather/current/{stationID}", s.limited(s.handleCurrent))

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return s.withLogging(withCORS(mux))
}

// limited applies the admission check before the protected handler runs.
func (s *Server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := identity.FromRequest(r)
		decision := s.limiter.Check(r.Context(), id, r.URL.Query().Get("algo"))
		if !decision.Allowed {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": rejectionBody})
			return
		}
		next(w, r)
	}
}

// withCORS allows the monitoring dashboard to call the API from any origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
