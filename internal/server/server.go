// Package server exposes the template service over HTTP.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/service"
)

// Server serves the template API
type Server struct {
	httpServer *http.Server
	config     *Config
	listener   net.Listener
	logger     *zap.Logger
}

// Config holds server configuration
type Config struct {
	// Address is the server address (e.g., ":8080")
	Address string

	// OutputDir receives generated bundles
	OutputDir string

	// Project is injected into every generation as the PROJECT parameter
	Project string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum time to wait for the next request
	IdleTimeout time.Duration

	// ReadHeaderTimeout is the amount of time allowed to read request headers
	ReadHeaderTimeout time.Duration

	// MaxHeaderBytes controls the maximum number of bytes the server will read
	MaxHeaderBytes int

	// MaxBodyBytes limits request bodies (archives included)
	MaxBodyBytes int64

	// Auth protects every route but /health when enabled
	Auth AuthConfig
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Address:           ":8080",
		OutputDir:         "generated",
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
		MaxBodyBytes:      32 << 20,
	}
}

// New creates a server for svc. A nil logger disables logging.
func New(svc *service.Service, config *Config, logger *zap.Logger) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := NewHandler(svc, config, logger)
	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           handler.Routes(),
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		MaxHeaderBytes:    config.MaxHeaderBytes,
	}

	return &Server{
		httpServer: httpServer,
		config:     config,
		logger:     logger,
	}, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured address and serves until shutdown
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	s.listener = listener

	s.logger.Info("server listening", zap.String("address", listener.Addr().String()))
	if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server's network address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address
}
