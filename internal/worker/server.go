// Package worker serves the control HTTP surface of the worker
// process: liveness and readiness probes, a status snapshot and flat
// numeric metrics. It carries no end-user API; that lives in the
// external REST service.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/shelfwatch/shelfwatch/internal/logging"
	"github.com/shelfwatch/shelfwatch/internal/scheduler"
	"github.com/shelfwatch/shelfwatch/internal/version"
)

// SchedulerStatus is the view of the scheduler the control surface
// exposes.
type SchedulerStatus interface {
	Snapshot() scheduler.Status
	IsLeader() bool
	Running() bool
}

// LockInspector exposes the held advisory lock keys.
type LockInspector interface {
	HeldKeys() []int64
}

// Pinger checks database connectivity for the readiness probe.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server is the control HTTP server.
type Server struct {
	port      int
	db        Pinger
	sched     SchedulerStatus
	locks     LockInspector
	logger    *slog.Logger
	startedAt time.Time

	shuttingDown atomic.Bool
	httpServer   *http.Server
	boundPort    int
}

// NewServer creates the control server. It does not bind until Start.
func NewServer(port int, db Pinger, sched SchedulerStatus, locks LockInspector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		port:      port,
		db:        db,
		sched:     sched,
		locks:     locks,
		logger:    logging.Component(logger, "worker-http"),
		startedAt: time.Now().UTC(),
	}
}

// Handler builds the chi router with the probe API mounted.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "X-Request-ID"},
		MaxAge:         300,
	}))
	router.Use(httprate.LimitByIP(120, time.Minute))

	// Probe API: no docs, no OpenAPI paths.
	hiddenConfig := huma.DefaultConfig("shelfwatch-worker", version.Version)
	hiddenConfig.DocsPath = ""
	hiddenConfig.OpenAPIPath = ""
	hiddenConfig.SchemasPath = ""
	api := humachi.New(router, hiddenConfig)

	huma.Get(api, "/healthz", s.livez)
	huma.Get(api, "/readyz", s.readyz)
	huma.Get(api, "/status", s.status)
	huma.Get(api, "/metrics", s.metrics)

	return router
}

// Start binds the listener and serves in the background. When the
// configured port is taken it falls back to the next port once.
func (s *Server) Start() error {
	listener, port, err := s.listen()
	if err != nil {
		return err
	}
	s.boundPort = port

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control server error", "error", err)
		}
	}()
	s.logger.Info("control server listening", "port", port)
	return nil
}

func (s *Server) listen() (net.Listener, int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err == nil {
		return listener, s.port, nil
	}
	s.logger.Warn("control port unavailable, trying fallback", "port", s.port, "error", err)

	fallback := s.port + 1
	listener, ferr := net.Listen("tcp", fmt.Sprintf(":%d", fallback))
	if ferr != nil {
		return nil, 0, fmt.Errorf("failed to bind control port %d and fallback %d: %w", s.port, fallback, ferr)
	}
	return listener, fallback, nil
}

// Port returns the bound port, useful once the fallback kicked in.
func (s *Server) Port() int {
	return s.boundPort
}

// BeginShutdown flips the probes to failing so load balancers drain
// before the listener closes.
func (s *Server) BeginShutdown() {
	s.shuttingDown.Store(true)
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type probeOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

func okProbe() *probeOutput {
	out := &probeOutput{}
	out.Body.Status = "ok"
	return out
}

func (s *Server) livez(_ context.Context, _ *struct{}) (*probeOutput, error) {
	if s.shuttingDown.Load() {
		return nil, huma.Error503ServiceUnavailable("shutting down")
	}
	return okProbe(), nil
}

func (s *Server) readyz(ctx context.Context, _ *struct{}) (*probeOutput, error) {
	if s.shuttingDown.Load() {
		return nil, huma.Error503ServiceUnavailable("shutting down")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return nil, huma.Error503ServiceUnavailable("database unavailable")
	}
	if !s.sched.IsLeader() {
		return nil, huma.Error503ServiceUnavailable("not the scheduler leader")
	}
	if !s.sched.Running() {
		return nil, huma.Error503ServiceUnavailable("scheduler not running")
	}
	return okProbe(), nil
}

// StatusOutput is the /status response.
type StatusOutput struct {
	Body struct {
		Version       string           `json:"version"`
		Commit        string           `json:"commit"`
		StartedAt     time.Time        `json:"started_at"`
		UptimeSeconds int64            `json:"uptime_seconds"`
		ShuttingDown  bool             `json:"shutting_down"`
		Scheduler     scheduler.Status `json:"scheduler"`
		HeldLocks     []int64          `json:"held_locks"`
	}
}

func (s *Server) status(_ context.Context, _ *struct{}) (*StatusOutput, error) {
	out := &StatusOutput{}
	out.Body.Version = version.Version
	out.Body.Commit = version.Commit
	out.Body.StartedAt = s.startedAt
	out.Body.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	out.Body.ShuttingDown = s.shuttingDown.Load()
	out.Body.Scheduler = s.sched.Snapshot()
	out.Body.HeldLocks = s.locks.HeldKeys()
	if out.Body.HeldLocks == nil {
		out.Body.HeldLocks = []int64{}
	}
	return out, nil
}

// MetricsOutput is the /metrics response: flat numeric counters only,
// scrape-friendly for the ops dashboards.
type MetricsOutput struct {
	Body struct {
		UptimeSeconds          int64 `json:"uptime_seconds"`
		Leader                 int64 `json:"leader"`
		SchedulersRunning      int64 `json:"schedulers_running"`
		ShuttingDown           int64 `json:"shutting_down"`
		CheckSweeps            int64 `json:"check_sweeps"`
		ProductsChecked        int64 `json:"products_checked"`
		ChecksSkipped          int64 `json:"checks_skipped"`
		ChecksFailed           int64 `json:"checks_failed"`
		ActiveChecks           int64 `json:"active_checks"`
		NotificationsDelivered int64 `json:"notifications_delivered"`
		DeliveryFailures       int64 `json:"delivery_failures"`
		TrackedProducts        int64 `json:"tracked_products"`
		HeldLocks              int64 `json:"held_locks"`
	}
}

func (s *Server) metrics(_ context.Context, _ *struct{}) (*MetricsOutput, error) {
	snap := s.sched.Snapshot()
	out := &MetricsOutput{}
	out.Body.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	if snap.Leader {
		out.Body.Leader = 1
	}
	if snap.Running {
		out.Body.SchedulersRunning = 1
	}
	if s.shuttingDown.Load() {
		out.Body.ShuttingDown = 1
	}
	out.Body.CheckSweeps = snap.CheckSweeps
	out.Body.ProductsChecked = snap.ProductsChecked
	out.Body.ChecksSkipped = snap.ChecksSkipped
	out.Body.ChecksFailed = snap.ChecksFailed
	out.Body.ActiveChecks = snap.ActiveChecks
	out.Body.NotificationsDelivered = snap.Delivered
	out.Body.DeliveryFailures = snap.DeliveryFailed
	out.Body.TrackedProducts = snap.TrackedProducts
	out.Body.HeldLocks = int64(len(s.locks.HeldKeys()))
	return out, nil
}
