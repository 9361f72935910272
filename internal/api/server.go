package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/sensorbridge/internal/device"
	"github.com/nerrad567/sensorbridge/internal/events"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/config"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// EntryReader exposes registry reads. *device.Registry implements it.
type EntryReader interface {
	Get(id string) (device.Entry, bool)
	All() []device.Entry
	Len() int
	Trusted() bool
}

// EventHandler applies webhook bodies. *events.Router implements it.
type EventHandler interface {
	Handle(ctx context.Context, raw []byte) (events.HandleResult, error)
}

// HistoryReader reads applied-event history.
type HistoryReader interface {
	GetHistory(ctx context.Context, deviceID string, limit int) ([]device.HistoryRecord, error)
}

// Refresher triggers an out-of-band inventory refresh. *inventory.Poller implements it.
type Refresher interface {
	Refresh()
}

// HealthChecker is implemented by the database, MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config    config.APIConfig
	Webhook   config.WebhookConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Entries   EntryReader
	Events    EventHandler
	History   HistoryReader            // optional
	Refresher Refresher                // optional
	Checks    map[string]HealthChecker // optional, reported by GET /health
	Gatherer  prometheus.Gatherer      // optional, defaults to prometheus.DefaultGatherer
	Hub       *Hub                     // optional; the server creates one if nil
	Version   string
}

// Server is the HTTP API server.
type Server struct {
	cfg         config.APIConfig
	webhookCfg  config.WebhookConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	entries     EntryReader
	events      EventHandler
	history     HistoryReader
	refresher   Refresher
	checks      map[string]HealthChecker
	gatherer    prometheus.Gatherer
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New validates deps and creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Entries == nil {
		return nil, fmt.Errorf("entry reader is required")
	}
	if deps.Events == nil {
		return nil, fmt.Errorf("event handler is required")
	}

	s := &Server{
		cfg:        deps.Config,
		webhookCfg: deps.Webhook,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		entries:    deps.Entries,
		events:     deps.Events,
		history:    deps.History,
		refresher:  deps.Refresher,
		checks:     deps.Checks,
		gatherer:   deps.Gatherer,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub used by the server.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start builds the router and begins listening in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close waits up to gracefulShutdownTimeout for in-flight requests, then
// closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
