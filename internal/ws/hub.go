package ws

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"parley/internal/models"
)

const (
	defaultBufferSize    = 100
	defaultLookupTimeout = 2 * time.Second
)

// MemberLister resolves the current members of a group topic.
type MemberLister func(ctx context.Context, groupID string) ([]string, error)

type Config struct {
	Members       MemberLister
	BufferSize    int
	LookupTimeout time.Duration
	Logger        *slog.Logger
}

// Hub fans events out to live sessions. It keeps one session per user; a new
// Join replaces the previous one. Sends never block: when a session's buffer
// is full the event is dropped and the client catches up from history.
type Hub struct {
	members       MemberLister
	bufferSize    int
	lookupTimeout time.Duration
	logger        *slog.Logger

	// Map of userID -> Connection channel
	connectedUsers map[string]chan models.ServerMessage

	mu sync.RWMutex
}

func NewHub(cfg Config) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Hub{
		members:        cfg.Members,
		bufferSize:     cfg.BufferSize,
		lookupTimeout:  cfg.LookupTimeout,
		logger:         cfg.Logger.With("component", "hub"),
		connectedUsers: make(map[string]chan models.ServerMessage),
	}
}

func (h *Hub) Join(userID string) chan models.ServerMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.connectedUsers[userID]; ok {
		close(old)
	}
	ch := make(chan models.ServerMessage, h.bufferSize)
	h.connectedUsers[userID] = ch
	return ch
}

// Leave ends the session if ch is still the user's active one and reports
// whether it was.
func (h *Hub) Leave(userID string, ch chan models.ServerMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.connectedUsers[userID]
	if !ok || current != ch {
		return false
	}
	close(current)
	delete(h.connectedUsers, userID)
	return true
}

// Disconnect closes the user's session, if any.
func (h *Hub) Disconnect(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.connectedUsers[userID]; ok {
		close(ch)
		delete(h.connectedUsers, userID)
	}
}

func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connectedUsers[userID]
	return ok
}

// OnlineUsers returns the ids of connected users, sorted.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.connectedUsers))
	for id := range h.connectedUsers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) NotifyDirect(userID string, msg models.ServerMessage) {
	// The read lock is held across the send so Leave cannot close the channel
	// under it.
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, online := h.connectedUsers[userID]
	if !online {
		return
	}

	select {
	case ch <- msg:
	default:
		h.logger.Warn("session buffer full, dropping event", "user_id", userID, "type", msg.Type)
	}
}

// NotifyTopic sends msg to every current member of the group.
func (h *Hub) NotifyTopic(groupID string, msg models.ServerMessage) {
	if h.members == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.lookupTimeout)
	defer cancel()

	ids, err := h.members(ctx, groupID)
	if err != nil {
		h.logger.Error("failed to resolve group members", "group_id", groupID, "error", err)
		return
	}
	for _, id := range ids {
		h.NotifyDirect(id, msg)
	}
}
