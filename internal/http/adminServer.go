package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"parley/internal/api"
	"parley/internal/logging"
)

type AdminServer struct {
	server *http.Server
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewAdminServer(adminHandler *api.AdminHandler, addr string, logger *slog.Logger) *AdminServer {
	mux := http.NewServeMux()
	adminHandler.Routes(mux)

	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:     addr,
			Handler:  mux,
			ErrorLog: logging.StdLogger(logger),
		},
		logger: logger,
	}
}

func (s *AdminServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *AdminServer) Start() error {
	s.logger.Info("Admin API started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
