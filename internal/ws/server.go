package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// TokenValidator resolves a session token to a user id.
type TokenValidator interface {
	GetUserID(token string) (string, error)
}

type Server struct {
	auth     TokenValidator
	hub      *Hub
	handler  Handler
	logger   *slog.Logger
	upgrader *websocket.Upgrader
}

func NewServer(auth TokenValidator, hub *Hub, handler Handler, logger *slog.Logger) *Server {
	return &Server{
		auth:    auth,
		hub:     hub,
		handler: handler,
		logger:  logger.With("component", "ws"),
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Browsers cannot set headers on the upgrade request.
	token := r.Header.Get("token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}

	userID, err := s.auth.GetUserID(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrading to websocket", "user_id", userID, "error", err)
		return
	}

	c := NewConnection(s.hub, s.handler, conn, userID)
	if err := c.Handle(r.Context()); err != nil {
		s.logger.Debug("connection closed", "user_id", userID, "error", err)
	}
}
