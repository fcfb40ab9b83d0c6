package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"parley/internal/api"
	"parley/internal/logging"
	"parley/internal/ws"
)

type APIServer struct {
	server *http.Server
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, wsServer *ws.Server, addr string, logger *slog.Logger) *APIServer {
	mux := http.NewServeMux()
	apiHandlers.Routes(mux)

	// WebSocket endpoint
	mux.HandleFunc("GET /api/ws", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:     addr,
			Handler:  mux,
			ErrorLog: logging.StdLogger(logger),
		},
		logger: logger,
	}
}

func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *APIServer) Start() error {
	s.logger.Info("API server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
