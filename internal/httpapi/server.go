package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/homesense/energy-insights/internal/analytics"
	"github.com/homesense/energy-insights/internal/metrics"
	"github.com/homesense/energy-insights/internal/rollup"
)

const defaultTopWindow = 24 * time.Hour

// AnalyticsService is the read service surface the handlers consume.
type AnalyticsService interface {
	EnergyByScope(ctx context.Context, scope rollup.Scope, scopeID string, start, end time.Time, step time.Duration) (analytics.EnergySeries, error)
	TopDevices(ctx context.Context, householdID string, window time.Duration, limit int) ([]analytics.DeviceEnergy, error)
}

// Server serves the dashboard read API.
type Server struct {
	service AnalyticsService
	logger  *log.Logger
}

// New creates the read API server.
func New(service AnalyticsService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{service: service, logger: logger}
}

// Routes returns the API handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/energy", s.instrument("/api/v1/energy", s.handleEnergy))
	mux.HandleFunc("/api/v1/devices/top", s.instrument("/api/v1/devices/top", s.handleTopDevices))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// statusRecorder captures the response code for the latency histogram.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.HTTPDuration.
			WithLabelValues(path, strconv.Itoa(rec.status)).
			Observe(time.Since(started).Seconds())
	}
}

// handleEnergy serves
// GET /api/v1/energy?household_id=...&start=...&end=...&step=5m
// (device_id instead of household_id selects device scope).
func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()

	scope := rollup.ScopeHousehold
	scopeID := q.Get("household_id")
	if deviceID := q.Get("device_id"); deviceID != "" {
		scope = rollup.ScopeDevice
		scopeID = deviceID
	}
	if scopeID == "" {
		http.Error(w, "household_id or device_id is required", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		http.Error(w, "start must be RFC3339", http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		http.Error(w, "end must be RFC3339", http.StatusBadRequest)
		return
	}
	if !end.After(start) {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}

	stepStr := q.Get("step")
	if stepStr == "" {
		stepStr = "5m"
	}
	step, err := time.ParseDuration(stepStr)
	if err != nil || step <= 0 {
		http.Error(w, "step must be a positive duration", http.StatusBadRequest)
		return
	}

	series, err := s.service.EnergyByScope(r.Context(), scope, scopeID, start, end, step)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.writeJSON(w, series)
}

// handleTopDevices serves
// GET /api/v1/devices/top?household_id=...&window=24h&limit=5
func (s *Server) handleTopDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()

	householdID := q.Get("household_id")
	if householdID == "" {
		http.Error(w, "household_id is required", http.StatusBadRequest)
		return
	}

	window := defaultTopWindow
	if windowStr := q.Get("window"); windowStr != "" {
		parsed, err := time.ParseDuration(windowStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "window must be a positive duration", http.StatusBadRequest)
			return
		}
		window = parsed
	}

	limit := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	ranking, err := s.service.TopDevices(r.Context(), householdID, window, limit)
	if err != nil {
		s.respondServiceError(w, err)
		return
	}

	s.writeJSON(w, ranking)
}

func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, rollup.ErrStorageUnavailable) {
		// No stale-cache fallback: an unreachable store fails the
		// request rather than silently serving expired data.
		s.logger.Printf("rollup store unavailable: %v", err)
		http.Error(w, "aggregate store unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("failed to encode response: %v", err)
	}
}
