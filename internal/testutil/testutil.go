// Package testutil holds fixtures shared by service tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/models"
	"parley/internal/notify"
	"parley/internal/storage"
)

var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

func NewStore(t *testing.T) *storage.BboltStorage {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// CreateUser stores a user whose id, username and email derive from name.
func CreateUser(t *testing.T, store *storage.BboltStorage, name string) models.User {
	t.Helper()
	u := models.User{
		ID:          name,
		UserName:    name,
		Email:       name + "@example.com",
		DisplayName: name,
	}
	err := store.Update(context.Background(), func(tx *storage.Tx) error {
		return tx.PutUser(u)
	})
	require.NoError(t, err)
	return u
}

// Befriend stores an accepted request between a and b.
func Befriend(t *testing.T, store *storage.BboltStorage, a, b string) {
	t.Helper()
	err := store.Update(context.Background(), func(tx *storage.Tx) error {
		return tx.PutFriendRequest(models.FriendRequest{
			ID:         a + "-" + b,
			SenderID:   a,
			ReceiverID: b,
			Status:     models.FriendRequestAccepted,
		})
	})
	require.NoError(t, err)
}

type Event struct {
	To  string
	Msg models.ServerMessage
}

// Publisher records events instead of delivering them.
type Publisher struct {
	mu           sync.Mutex
	Direct       []Event
	Topic        []Event
	Disconnected []string
	OnlineUsers  map[string]bool
}

func (p *Publisher) NotifyDirect(userID string, msg models.ServerMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Direct = append(p.Direct, Event{To: userID, Msg: msg})
}

func (p *Publisher) NotifyTopic(groupID string, msg models.ServerMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Topic = append(p.Topic, Event{To: groupID, Msg: msg})
}

func (p *Publisher) Online(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.OnlineUsers[userID]
}

func (p *Publisher) Disconnect(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Disconnected = append(p.Disconnected, userID)
}

// DirectTo returns the event types delivered to userID in order.
func (p *Publisher) DirectTo(userID string) []models.ServerMessageType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []models.ServerMessageType
	for _, e := range p.Direct {
		if e.To == userID {
			types = append(types, e.Msg.Type)
		}
	}
	return types
}

func (p *Publisher) TopicTypes(groupID string) []models.ServerMessageType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var types []models.ServerMessageType
	for _, e := range p.Topic {
		if e.To == groupID {
			types = append(types, e.Msg.Type)
		}
	}
	return types
}

// Notifier records enqueued tasks.
type Notifier struct {
	mu    sync.Mutex
	Tasks []notify.Task
}

func (n *Notifier) Enqueue(task notify.Task) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Tasks = append(n.Tasks, task)
	return true
}

func (n *Notifier) Count(kind notify.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, t := range n.Tasks {
		if t.Kind == kind {
			c++
		}
	}
	return c
}
