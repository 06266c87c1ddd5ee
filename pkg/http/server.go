package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"TradeDeck/pkg/http/middleware"
	"TradeDeck/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler defines HTTP route registration interface.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORS            bool
}

// WithPort sets the listen port.
func WithPort(port int) ServerOption {
	return func(cfg *ServerConfig) {
		if port > 0 {
			cfg.Port = port
		}
	}
}

// WithTimeouts sets read, write, and shutdown timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(cfg *ServerConfig) {
		cfg.ReadTimeout = read
		cfg.WriteTimeout = write
		cfg.ShutdownTimeout = shutdown
	}
}

// Server wraps Echo HTTP server.
type Server struct {
	echo   *echo.Echo
	log    *logger.Logger
	config *ServerConfig
}

// NewServer creates a new HTTP server with Echo.
func NewServer(log *logger.Logger, handler Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORS:            true,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover(log))
	e.Use(middleware.RequestLogging(log))
	if cfg.CORS {
		e.Use(middleware.CORS([]string{"*"}))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}

	// Prometheus scrape endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{echo: e, log: log, config: cfg}
}

// Start starts the HTTP server without blocking.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	go func() {
		s.log.Info("http server listening", logger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", logger.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
