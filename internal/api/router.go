package api

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/sensorbridge/internal/device"
	"github.com/nerrad567/sensorbridge/internal/presenter"
)

// healthCheckTimeout bounds each dependency check in GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Post("/event", s.handleEvent)
	r.Post("/refresh", s.handleRefresh)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/devices", func(r chi.Router) {
		r.Get("/", s.handleListDevices)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetDevice)
			r.Get("/history", s.handleDeviceHistory)
		})
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

// handleHealth reports process liveness and the state of each dependency.
// Any failing check turns the response into 503 "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	checks := make(map[string]string, len(s.checks))
	for name, checker := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, code, map[string]any{
		"status":            status,
		"version":           s.version,
		"entries":           s.entries.Len(),
		"inventory_trusted": s.entries.Trusted(),
		"websocket_clients": s.hub.ClientCount(),
		"uptime_seconds":    int64(time.Since(s.startTime).Seconds()),
		"checks":            checks,
	})
}

// handleRefresh asks the poller for an immediate inventory cycle.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.refresher == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "inventory refresh not available")
		return
	}
	s.refresher.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleListDevices returns every entry snapshot sorted by ID.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	typeFilter := r.URL.Query().Get("type")

	entries := s.entries.All()
	snapshots := make([]presenter.Snapshot, 0, len(entries))
	for _, e := range entries {
		if typeFilter != "" && e.Type != typeFilter {
			continue
		}
		snapshots = append(snapshots, presenter.NewSnapshot(e))
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].ID < snapshots[j].ID })

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": snapshots,
		"count":   len(snapshots),
	})
}

// handleGetDevice returns one entry snapshot.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupEntry(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, presenter.NewSnapshot(e))
}

// handleDeviceHistory returns applied events for an entry, newest first.
// History outlives entries, so an unknown serial is looked up as given.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	id := pathID(chi.URLParam(r, "id"))
	if e, ok := s.lookupEntry(id); ok {
		id = e.ID
	}

	records, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("history query failed", "device_id", id, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	if records == nil {
		records = []device.HistoryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"history":   records,
		"count":     len(records),
	})
}

// lookupEntry resolves a path parameter holding either a URL-escaped
// resource name or a serial number.
func (s *Server) lookupEntry(param string) (device.Entry, bool) {
	id := pathID(param)
	if e, ok := s.entries.Get(id); ok {
		return e, true
	}
	for _, e := range s.entries.All() {
		if e.SerialNumber == id || device.SerialNumber(e.ID) == id {
			return e, true
		}
	}
	return device.Entry{}, false
}

// pathID unescapes a path parameter, returning it unchanged when invalid.
func pathID(param string) string {
	if id, err := url.PathUnescape(param); err == nil {
		return id
	}
	return param
}
