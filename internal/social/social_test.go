package social

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/models"
	"parley/internal/notify"
	"parley/internal/storage"
	"parley/internal/testutil"
)

type fixture struct {
	store     *storage.BboltStorage
	publisher *testutil.Publisher
	notifier  *testutil.Notifier
	svc       *Service
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	f := &fixture{
		store:     testutil.NewStore(t),
		publisher: &testutil.Publisher{},
		notifier:  &testutil.Notifier{},
	}
	for _, u := range users {
		testutil.CreateUser(t, f.store, u)
	}
	f.svc = NewService(f.store, f.publisher, f.notifier, testutil.Logger)
	return f
}

func TestSendFriendRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate in either direction conflicts", func(t *testing.T) {
		f := newFixture(t, "alice", "bob")

		req, err := f.svc.SendFriendRequest(ctx, "alice", "bob")
		require.NoError(t, err)
		require.Equal(t, models.FriendRequestPending, req.Status)

		_, err = f.svc.SendFriendRequest(ctx, "alice", "bob")
		require.ErrorIs(t, err, models.ErrConflict)
		_, err = f.svc.SendFriendRequest(ctx, "bob", "alice")
		require.ErrorIs(t, err, models.ErrConflict)

		require.Equal(t, []models.ServerMessageType{models.ServerMessageTypeFriendRequest}, f.publisher.DirectTo("bob"))
		require.Equal(t, 1, f.notifier.Count(notify.KindFriendRequest))
	})

	t.Run("self request", func(t *testing.T) {
		f := newFixture(t, "alice")
		_, err := f.svc.SendFriendRequest(ctx, "alice", "alice")
		require.ErrorIs(t, err, models.ErrInvalidOperation)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t, "alice")
		_, err := f.svc.SendFriendRequest(ctx, "alice", "ghost")
		require.ErrorIs(t, err, models.ErrNotFound)
		require.Empty(t, f.publisher.Direct)
	})

	t.Run("concurrent requests for one pair", func(t *testing.T) {
		f := newFixture(t, "alice", "bob")

		var wg sync.WaitGroup
		errs := make([]error, 10)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				from, to := "alice", "bob"
				if i%2 == 1 {
					from, to = to, from
				}
				_, errs[i] = f.svc.SendFriendRequest(ctx, from, to)
			}(i)
		}
		wg.Wait()

		ok := 0
		for _, err := range errs {
			if err == nil {
				ok++
			} else {
				require.ErrorIs(t, err, models.ErrConflict)
			}
		}
		require.Equal(t, 1, ok)
	})
}

func TestResolveFriendRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("accept makes friends both ways", func(t *testing.T) {
		f := newFixture(t, "alice", "bob")
		req, err := f.svc.SendFriendRequest(ctx, "alice", "bob")
		require.NoError(t, err)

		friends, err := f.svc.AreFriends(ctx, "alice", "bob")
		require.NoError(t, err)
		require.False(t, friends)

		accepted, err := f.svc.AcceptFriendRequest(ctx, req.ID)
		require.NoError(t, err)
		require.Equal(t, models.FriendRequestAccepted, accepted.Status)

		ab, err := f.svc.AreFriends(ctx, "alice", "bob")
		require.NoError(t, err)
		ba, err := f.svc.AreFriends(ctx, "bob", "alice")
		require.NoError(t, err)
		require.True(t, ab)
		require.Equal(t, ab, ba)

		require.Contains(t, f.publisher.DirectTo("alice"), models.ServerMessageTypeFriendRequestUpdated)
		require.Contains(t, f.publisher.DirectTo("bob"), models.ServerMessageTypeFriendRequestUpdated)
	})

	t.Run("terminal requests cannot be resolved again", func(t *testing.T) {
		f := newFixture(t, "alice", "bob")
		req, err := f.svc.SendFriendRequest(ctx, "alice", "bob")
		require.NoError(t, err)

		_, err = f.svc.RejectFriendRequest(ctx, req.ID)
		require.NoError(t, err)

		_, err = f.svc.RejectFriendRequest(ctx, req.ID)
		require.ErrorIs(t, err, models.ErrConflict)
		_, err = f.svc.AcceptFriendRequest(ctx, req.ID)
		require.ErrorIs(t, err, models.ErrConflict)

		friends, err := f.svc.AreFriends(ctx, "bob", "alice")
		require.NoError(t, err)
		require.False(t, friends)
	})

	t.Run("unknown request", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.AcceptFriendRequest(ctx, "nope")
		require.ErrorIs(t, err, models.ErrNotFound)
		_, err = f.svc.RejectFriendRequest(ctx, "nope")
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestRemoveFriend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol")

	req, err := f.svc.SendFriendRequest(ctx, "alice", "bob")
	require.NoError(t, err)

	// Pending is not a friendship.
	require.ErrorIs(t, f.svc.RemoveFriend(ctx, "bob", "alice"), models.ErrForbidden)

	_, err = f.svc.AcceptFriendRequest(ctx, req.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.RemoveFriend(ctx, "bob", "bob"), models.ErrInvalidOperation)
	require.ErrorIs(t, f.svc.RemoveFriend(ctx, "bob", "ghost"), models.ErrNotFound)
	require.ErrorIs(t, f.svc.RemoveFriend(ctx, "bob", "carol"), models.ErrForbidden)

	// The receiver can remove a friendship the sender started.
	require.NoError(t, f.svc.RemoveFriend(ctx, "bob", "alice"))

	friends, err := f.svc.AreFriends(ctx, "alice", "bob")
	require.NoError(t, err)
	require.False(t, friends)
	require.Contains(t, f.publisher.DirectTo("alice"), models.ServerMessageTypeFriendRemoved)

	// The pair is free again.
	_, err = f.svc.SendFriendRequest(ctx, "bob", "alice")
	require.NoError(t, err)
}

func TestProjections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", "bob", "carol", "dave")

	r1, err := f.svc.SendFriendRequest(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.SendFriendRequest(ctx, "carol", "alice")
	require.NoError(t, err)
	_, err = f.svc.SendFriendRequest(ctx, "alice", "dave")
	require.NoError(t, err)
	_, err = f.svc.AcceptFriendRequest(ctx, r1.ID)
	require.NoError(t, err)

	pending, err := f.svc.PendingRequests(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "carol", pending[0].SenderID)

	sent, err := f.svc.SentRequests(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, "dave", sent[0].ReceiverID)

	friends, err := f.svc.Friends(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, friends, 1)
	require.Equal(t, "alice", friends[0].ID)

	accepted, err := f.svc.AcceptedRequests(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, accepted, 1)

	_, err = f.svc.PendingRequests(ctx, "ghost")
	require.ErrorIs(t, err, models.ErrNotFound)
}
