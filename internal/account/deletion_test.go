package account

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/conversation"
	"parley/internal/group"
	"parley/internal/models"
	"parley/internal/social"
	"parley/internal/storage"
	"parley/internal/testutil"
)

type world struct {
	*fixture
	social *social.Service
	conv   *conversation.Service
	groups *group.Registry
}

func newWorld(t *testing.T, users ...string) *world {
	f := newFixture(t, users...)
	return &world{
		fixture: f,
		social:  social.NewService(f.store, f.publisher, f.notifier, testutil.Logger),
		conv:    conversation.NewService(f.store, fakeBlobs{}, f.publisher, f.notifier, testutil.Logger),
		groups:  group.NewRegistry(f.store, fakeBlobs{}, f.publisher, f.notifier, testutil.Logger),
	}
}

func (w *world) befriend(t *testing.T, a, b string) {
	t.Helper()
	req, err := w.social.SendFriendRequest(context.Background(), a, b)
	require.NoError(t, err)
	_, err = w.social.AcceptFriendRequest(context.Background(), req.ID)
	require.NoError(t, err)
}

func (w *world) createGroup(t *testing.T, creator string, members ...string) models.Group {
	t.Helper()
	ctx := context.Background()
	g, err := w.groups.CreateGroup(ctx, group.NewGroup{Name: "group of " + creator, CreatorID: creator})
	require.NoError(t, err)
	for _, m := range members {
		_, err := w.groups.AddMember(ctx, g.ID, m)
		require.NoError(t, err)
	}
	return g
}

func (w *world) say(t *testing.T, groupID, sender, text string) {
	t.Helper()
	_, err := w.groups.SendGroupMessage(context.Background(), groupID, sender, text, models.MessageTypeText)
	require.NoError(t, err)
}

func TestDeleteUserTransfersOwnership(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, "u1", "u2")
	g := w.createGroup(t, "u1", "u2")
	w.say(t, g.ID, "u1", "from u1")
	w.say(t, g.ID, "u2", "from u2")

	report, err := w.svc.DeleteUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, report.GroupMessages)
	require.Len(t, report.Groups, 1)
	require.Equal(t, group.Promoted, report.Groups[0].Outcome)

	details, err := w.groups.GroupDetails(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, "u2", details.Group.CreatedBy)
	require.Len(t, details.Members, 1)
	require.Equal(t, models.RoleAdmin, details.Members[0].Role)

	msgs, err := w.groups.GroupMessages(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "from u2", msgs[0].Content)

	require.Contains(t, w.publisher.TopicTypes(g.ID), models.ServerMessageTypeGroupUpdated)
}

func TestDeleteUserDissolvesSoloGroup(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, "u1")
	g := w.createGroup(t, "u1")
	w.say(t, g.ID, "u1", "echo")

	report, err := w.svc.DeleteUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, group.Dissolved, report.Groups[0].Outcome)

	_, err = w.groups.GroupDetails(ctx, g.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = w.groups.GroupMessages(ctx, g.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, w.store.View(ctx, func(tx *storage.Tx) error {
		ms, err := tx.MembershipsByGroup(g.ID)
		require.Empty(t, ms)
		return err
	}))
}

func TestDeleteUserPrefersExistingAdmin(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, "u1", "u2", "u3")
	g := w.createGroup(t, "u1", "u2", "u3")
	require.NoError(t, w.store.Update(ctx, func(tx *storage.Tx) error {
		m, err := tx.GetMembership(g.ID, "u3")
		if err != nil {
			return err
		}
		m.Role = models.RoleAdmin
		return tx.PutMembership(m)
	}))

	report, err := w.svc.DeleteUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, group.Transferred, report.Groups[0].Outcome)

	details, err := w.groups.GroupDetails(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, "u3", details.Group.CreatedBy)
	for _, m := range details.Members {
		if m.UserID == "u2" {
			require.Equal(t, models.RoleMember, m.Role)
		}
	}
}

func TestDeleteUserKeepsAdminInForeignGroup(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, "u1", "u2", "u3")

	// u2 created the group, but u1 is its only admin.
	g := w.createGroup(t, "u2", "u1", "u3")
	require.NoError(t, w.store.Update(ctx, func(tx *storage.Tx) error {
		for user, role := range map[string]models.Role{"u1": models.RoleAdmin, "u2": models.RoleMember} {
			m, err := tx.GetMembership(g.ID, user)
			if err != nil {
				return err
			}
			m.Role = role
			if err := tx.PutMembership(m); err != nil {
				return err
			}
		}
		return nil
	}))

	report, err := w.svc.DeleteUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, report.Groups, 1)
	require.Equal(t, group.Promoted, report.Groups[0].Outcome)
	require.Equal(t, "u2", report.Groups[0].UserID)

	details, err := w.groups.GroupDetails(ctx, g.ID)
	require.NoError(t, err)
	require.Len(t, details.Members, 2)
	require.Equal(t, "u2", details.Members[0].UserID)
	require.Equal(t, models.RoleAdmin, details.Members[0].Role)
}

func TestDeleteUserCascade(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, "u1", "u2", "u3", "u4")
	w.befriend(t, "u1", "u2")
	w.befriend(t, "u3", "u1")
	_, err := w.social.SendFriendRequest(ctx, "u4", "u1")
	require.NoError(t, err)
	w.befriend(t, "u2", "u3")

	_, err = w.conv.SendMessage(ctx, "u1", "u2", "hi", models.MessageTypeText)
	require.NoError(t, err)
	_, err = w.conv.SendMessage(ctx, "u3", "u1", "yo", models.MessageTypeText)
	require.NoError(t, err)
	_, err = w.conv.SendMessage(ctx, "u2", "u3", "untouched", models.MessageTypeText)
	require.NoError(t, err)

	other := w.createGroup(t, "u2", "u1")
	w.say(t, other.ID, "u1", "bye")
	w.say(t, other.ID, "u2", "stay")

	require.NoError(t, w.svc.AddPushSubscription(ctx, "u1", storage.PushSubscription{Endpoint: "https://push.example.com/u1", Auth: "a", P256dh: "p"}))

	report, err := w.svc.DeleteUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, report.DirectMessages)
	require.Equal(t, 3, report.FriendRequests)
	require.Equal(t, 1, report.GroupMessages)

	_, err = w.svc.ResolveUser(ctx, "u1")
	require.ErrorIs(t, err, models.ErrNotFound)
	taken, err := w.svc.ExistsByUsername(ctx, "u1")
	require.NoError(t, err)
	require.False(t, taken)

	msgs, err := w.conv.Conversation(ctx, "u2", "u3")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	pending, err := w.social.SentRequests(ctx, "u4")
	require.NoError(t, err)
	require.Empty(t, pending)
	friends, err := w.social.AreFriends(ctx, "u2", "u3")
	require.NoError(t, err)
	require.True(t, friends)

	gm, err := w.groups.GroupMessages(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, gm, 1)
	ids, err := w.groups.MemberIDs(ctx, other.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"u2"}, ids)

	subs, err := w.store.PushSubscriptions(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, subs)

	// Side effects only after commit.
	require.Equal(t, []string{"u1"}, w.sessions.revoked)
	require.Equal(t, []string{"u1"}, w.publisher.Disconnected)
	require.Contains(t, w.publisher.DirectTo("u2"), models.ServerMessageTypeOffline)
	require.Contains(t, w.publisher.DirectTo("u3"), models.ServerMessageTypeOffline)
	require.NotContains(t, w.publisher.DirectTo("u4"), models.ServerMessageTypeOffline)
	require.Contains(t, w.publisher.DirectTo("u1"), models.ServerMessageTypeAccountDeleted)
	require.Contains(t, w.publisher.TopicTypes(other.ID), models.ServerMessageTypeMemberLeft)

	_, err = w.svc.DeleteUser(ctx, "u1")
	require.ErrorIs(t, err, models.ErrNotFound)
	require.False(t, errors.Is(err, models.ErrInternal))
}

// snapshot captures what a failed deletion must leave untouched.
type snapshot struct {
	user    models.User
	dms     []models.DirectMessage
	friends bool
	group   models.Group
	members []models.GroupMembership
	gms     []models.GroupMessage
}

func takeSnapshot(t *testing.T, store *storage.BboltStorage, groupID string) snapshot {
	t.Helper()
	var s snapshot
	require.NoError(t, store.View(context.Background(), func(tx *storage.Tx) error {
		var err error
		if s.user, err = tx.GetUser("u1"); err != nil {
			return err
		}
		if s.dms, err = tx.Conversation("u1", "u2"); err != nil {
			return err
		}
		if s.friends, err = social.AreFriendsTx(tx, "u1", "u2"); err != nil {
			return err
		}
		if s.group, err = tx.GetGroup(groupID); err != nil {
			return err
		}
		if s.members, err = tx.MembershipsByGroup(groupID); err != nil {
			return err
		}
		s.gms, err = tx.GroupMessages(groupID)
		return err
	}))
	return s
}

func TestDeleteUserRollback(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*world, models.Group) {
		w := newWorld(t, "u1", "u2")
		w.befriend(t, "u1", "u2")
		_, err := w.conv.SendMessage(ctx, "u1", "u2", "hi", models.MessageTypeText)
		require.NoError(t, err)
		g := w.createGroup(t, "u1", "u2")
		w.say(t, g.ID, "u1", "hello group")
		return w, g
	}

	failAfter := func(n int, name string) []step {
		steps := append([]step{}, deletionSteps[:n]...)
		return append(steps, step{name, func(*deletion) error { return errors.New("disk on fire") }})
	}

	tests := []struct {
		name  string
		steps []step
		want  string
	}{
		{"fails after messages", failAfter(1, "explode"), "explode"},
		{"fails after group disposal", failAfter(4, "explode"), "explode"},
		{"fails on last step", failAfter(6, "explode"), "explode"},
		{
			name: "verify catches admin-less group",
			steps: func() []step {
				sabotage := step{"sabotage", func(d *deletion) error {
					for _, groupID := range d.touched {
						ms, err := d.tx.MembershipsByGroup(groupID)
						if err != nil {
							return err
						}
						for _, m := range ms {
							m.Role = models.RoleMember
							if err := d.tx.PutMembership(m); err != nil {
								return err
							}
						}
					}
					return nil
				}}
				steps := append([]step{}, deletionSteps[:6]...)
				return append(steps, sabotage, deletionSteps[6])
			}(),
			want: "verify",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, g := setup(t)
			before := takeSnapshot(t, w.store, g.ID)
			w.svc.steps = tt.steps

			_, err := w.svc.DeleteUser(ctx, "u1")
			require.ErrorIs(t, err, models.ErrInternal)
			require.Contains(t, err.Error(), tt.want)

			require.Equal(t, before, takeSnapshot(t, w.store, g.ID))
			require.Empty(t, w.sessions.revoked)
			require.Empty(t, w.publisher.Disconnected)
			require.NotContains(t, w.publisher.DirectTo("u1"), models.ServerMessageTypeAccountDeleted)
		})
	}
}
