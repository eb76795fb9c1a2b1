package api

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/syncbridge/internal/api/middleware"
	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/migration"
	"github.com/tphakala/syncbridge/internal/observability"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server is the admin HTTP server. It owns the Echo instance and routes
// requests to the migration runner of each configured domain.
type Server struct {
	echo    *echo.Echo
	config  *Config
	log     logger.Logger
	version string

	runners map[string]migration.Runner
	history migration.HistoryStore
	metrics *observability.Metrics
	health  HealthChecker

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics exposes m on the metrics path when metrics are enabled.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealthCheck adds a dependency to the /health report.
func WithHealthCheck(h HealthChecker) ServerOption {
	return func(s *Server) {
		s.health = h
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

// New creates the admin server for runners, one per domain.
func New(settings *conf.Settings, runners []migration.Runner, history migration.HistoryStore, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if history == nil {
		return nil, errors.Newf("api server requires a history store").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:    config,
		runners:   make(map[string]migration.Runner, len(runners)),
		history:   history,
		startTime: time.Now(),
	}
	for _, r := range runners {
		if _, dup := s.runners[r.DomainType()]; dup {
			return nil, errors.Newf("domain %q registered twice", r.DomainType()).
				Component("api").
				Category(errors.CategoryConfiguration).
				Build()
		}
		s.runners[r.DomainType()] = r
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewSlogLogger(nil, logger.LogLevelInfo, time.UTC)
	}
	s.log = s.log.Module("api")

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Logger = logger.NewEchoLoggerAdapter(s.log.Module("echo"))
	s.echo.HTTPErrorHandler = s.httpErrorHandler
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("admin API initialized",
		logger.String("address", config.Listen),
		logger.Int("domains", len(s.runners)),
		logger.Bool("metrics", s.metricsEnabled()))

	return s, nil
}

func (s *Server) metricsEnabled() bool {
	return s.config.MetricsEnabled && s.metrics != nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, mw.SkipPaths("/health", s.config.MetricsPath)))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

// setupRoutes registers all endpoints.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metricsEnabled() {
		s.echo.GET(s.config.MetricsPath, echo.WrapHandler(s.metrics.Handler()))
	}

	g := s.echo.Group("/api/v1/migrations")
	g.GET("/history", s.listHistory)
	g.GET("/history/:id", s.getHistory)
	g.POST("/:id/cancel", s.cancelMigration)
	g.POST("/:domain/start", s.startMigration)
	g.POST("/:domain/repair/:key", s.repairEntity)
	g.GET("/:domain/dead-letters", s.listDeadLetters)
	g.POST("/:domain/dead-letters/redrive", s.redriveDeadLetters)

	sys := s.echo.Group("/api/v1/system")
	sys.GET("/info", s.getSystemInfo)
	sys.GET("/resources", s.getResourceInfo)
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Domains lists the served domains in sorted order.
func (s *Server) Domains() []string {
	domains := make([]string, 0, len(s.runners))
	for d := range s.runners {
		domains = append(domains, d)
	}
	slices.Sort(domains)
	return domains
}

// healthCheck reports uptime, served domains and database reachability. An
// unreachable database turns the response into a 503.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	resp := map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"domains":        s.Domains(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	code := http.StatusOK
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			resp["status"] = "degraded"
			resp["database_status"] = "disconnected"
			resp["database_error"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			resp["database_status"] = "connected"
		}
	}
	return c.JSON(code, resp)
}

// Run serves requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting admin API", logger.String("address", s.config.Listen))
		errCh <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(fmt.Errorf("admin API server error: %w", err)).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("address", s.config.Listen).
			Build()
	case <-ctx.Done():
	}

	return s.shutdown(context.WithoutCancel(ctx))
}

func (s *Server) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("shutting down admin API")
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin API shutdown: %w", err)
	}
	return nil
}
