package notify

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/require"

	"parley/internal/storage"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingSender struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(_ context.Context, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return r.err
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func TestQueue(t *testing.T) {
	failing := &recordingSender{err: errors.New("smtp down")}
	rec := &recordingSender{}
	q := NewQueue(4, discard, failing, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx, 2) }()

	for i := 0; i < 3; i++ {
		require.True(t, q.Enqueue(Task{Kind: KindMessage, UserID: "u1"}))
	}

	// A failing sender does not stop delivery to the others.
	require.Eventually(t, func() bool { return rec.count() == 3 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 3, failing.count())

	cancel()
	require.NoError(t, <-done)
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(1, discard)
	require.True(t, q.Enqueue(Task{Kind: KindWelcome, UserID: "u1"}))
	require.False(t, q.Enqueue(Task{Kind: KindWelcome, UserID: "u2"}))
}

type fakeSubscriptions struct {
	mu      sync.Mutex
	subs    []storage.PushSubscription
	removed []string
}

func (f *fakeSubscriptions) PushSubscriptions(_ context.Context, userID string) ([]storage.PushSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.PushSubscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubscriptions) RemovePushSubscription(_ context.Context, _ string, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, endpoint)
	return nil
}

func TestWebPushSender(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	clientKey, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	authSecret := make([]byte, 16)
	_, err = rand.Read(authSecret)
	require.NoError(t, err)

	sub := func(endpoint string) storage.PushSubscription {
		return storage.PushSubscription{
			UserID:   "u1",
			Endpoint: srv.URL + endpoint,
			Auth:     base64.RawURLEncoding.EncodeToString(authSecret),
			P256dh:   base64.RawURLEncoding.EncodeToString(clientKey.PublicKey().Bytes()),
		}
	}
	store := &fakeSubscriptions{subs: []storage.PushSubscription{sub("/live"), sub("/gone")}}

	sender := NewWebPushSender(WebPushConfig{
		PublicKey:  pub,
		PrivateKey: priv,
		Subject:    "mailto:admin@example.com",
	}, store, discard)

	err = sender.Send(context.Background(), Task{Kind: KindMessage, UserID: "u1", Title: "New message"})
	require.NoError(t, err)

	require.Equal(t, 2, hits)
	require.Equal(t, []string{srv.URL + "/gone"}, store.removed)

	// No subscriptions is not an error.
	require.NoError(t, sender.Send(context.Background(), Task{Kind: KindMessage, UserID: "u2"}))
}
