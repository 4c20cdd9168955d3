package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	mw "github.com/tphakala/occupancy-go/internal/api/middleware"
	v2 "github.com/tphakala/occupancy-go/internal/api/v2"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/datastore"
	"github.com/tphakala/occupancy-go/internal/logger"
	"github.com/tphakala/occupancy-go/internal/observability"
)

// Server is the HTTP server for the occupancy query API.
type Server struct {
	echo     *echo.Echo
	config   *Config
	settings *conf.Settings
	log      logger.Logger

	dataStore datastore.Interface
	engine    v2.EngineControl
	metrics   *observability.Metrics

	apiController *v2.Controller
	startTime     time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithDataStore sets the datastore for the server.
func WithDataStore(ds datastore.Interface) ServerOption {
	return func(s *Server) {
		s.dataStore = ds
	}
}

// WithEngine exposes the running counting engine through /status and /zones/reload.
func WithEngine(engine v2.EngineControl) ServerOption {
	return func(s *Server) {
		s.engine = engine
	}
}

// WithMetrics serves the Prometheus registry on /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a new HTTP server with the given settings and options.
func New(settings *conf.Settings, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	s := &Server{
		config:    config,
		settings:  settings,
		log:       GetLogger(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("failed to setup routes: %w", err)
	}

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("debug", config.Debug),
		logger.Bool("metrics", s.metrics != nil))

	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	securityConfig := mw.SecurityConfig{AllowedOrigins: s.config.AllowedOrigins}

	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestID())
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/metrics"
	}))
	s.echo.Use(mw.NewCORS(securityConfig))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(echomw.Gzip())
	s.echo.Use(mw.NewSecureHeaders(securityConfig))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() error {
	s.echo.GET("/health", s.healthCheck)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	var opts []v2.Option
	if s.engine != nil {
		opts = append(opts, v2.WithEngine(s.engine))
	}
	apiController, err := v2.New(s.echo, s.dataStore, s.settings, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize API v2: %w", err)
	}
	s.apiController = apiController
	return nil
}

// healthCheck handles the server liveness endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        s.settings.Version,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Run serves HTTP requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		addr := s.config.Address()
		s.log.Info("Starting HTTP server", logger.String("address", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := s.Shutdown(); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if s.apiController != nil {
		s.apiController.Shutdown()
	}

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("Error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}

	s.log.Info("Server shutdown complete")
	return nil
}

// APIController returns the v2 API controller.
func (s *Server) APIController() *v2.Controller {
	return s.apiController
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
