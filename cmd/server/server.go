package main

import (
	"net/http"

	"github.com/kirill555101/paperclip/internal/config"
	"github.com/kirill555101/paperclip/internal/infrastructure"
	"github.com/kirill555101/paperclip/internal/server"
	"github.com/kirill555101/paperclip/pkg/routes"
)

// Server coordinates the lifecycle of all subsystems.
type Server struct {
	infra   *infrastructure.Infrastructure
	handler http.Handler
	http    server.System
}

// NewServer creates and initializes the service with all subsystems.
func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	router := routes.New(infra.Logger)
	if err := registerRoutes(router, infra, cfg); err != nil {
		return nil, err
	}
	handler := buildMiddleware(infra, cfg).Apply(router.Build())

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
		"backend", cfg.Storage.Backend,
		"records", cfg.Records.Store,
		"classes", infra.Registry.Classes(),
	)

	return &Server{
		infra:   infra,
		handler: handler,
		http:    server.New(&cfg.Server, handler, infra.Logger),
	}, nil
}

// Start begins all subsystems and returns once the listener is bound.
func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	if err := s.infra.StartWorkers(); err != nil {
		return err
	}

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

// Shutdown gracefully stops all subsystems within the configured timeout.
func (s *Server) Shutdown() error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Shutdown()
}
