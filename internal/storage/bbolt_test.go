package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"parley/internal/models"
)

func newTestStorage(t *testing.T) *BboltStorage {
	t.Helper()
	store, err := NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStorage(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	t.Run("Users", func(t *testing.T) {
		err := store.Update(ctx, func(tx *Tx) error {
			if err := tx.PutUser(models.User{ID: "u1", UserName: "Alice", Email: "alice@example.com"}); err != nil {
				return err
			}
			return tx.SetPasswordHash("u1", "hash")
		})
		if err != nil {
			t.Fatalf("PutUser failed: %v", err)
		}

		err = store.View(ctx, func(tx *Tx) error {
			if !tx.UsernameTaken("alice") {
				t.Error("expected username index to be case-insensitive")
			}
			if !tx.EmailTaken("ALICE@example.com") {
				t.Error("expected email index to be case-insensitive")
			}
			id, err := tx.UserIDByUsername("ALICE")
			if err != nil {
				return err
			}
			if id != "u1" {
				t.Errorf("expected u1, got %s", id)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		// Renaming moves the index and keeps the password hash.
		err = store.Update(ctx, func(tx *Tx) error {
			return tx.PutUser(models.User{ID: "u1", UserName: "alice2", Email: "alice@example.com"})
		})
		if err != nil {
			t.Fatalf("rename failed: %v", err)
		}
		err = store.View(ctx, func(tx *Tx) error {
			if tx.UsernameTaken("alice") {
				t.Error("old username should be released")
			}
			hash, err := tx.PasswordHash("u1")
			if err != nil {
				return err
			}
			if hash != "hash" {
				t.Errorf("expected password hash to survive update, got %q", hash)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		err = store.Update(ctx, func(tx *Tx) error {
			return tx.PutUser(models.User{ID: "u2", UserName: "ALICE2"})
		})
		if !errors.Is(err, models.ErrConflict) {
			t.Errorf("expected ErrConflict for taken username, got %v", err)
		}
	})

	t.Run("FriendPairs", func(t *testing.T) {
		err := store.Update(ctx, func(tx *Tx) error {
			return tx.PutFriendRequest(models.FriendRequest{ID: "r1", SenderID: "u1", ReceiverID: "u2", Status: models.FriendRequestPending})
		})
		if err != nil {
			t.Fatalf("PutFriendRequest failed: %v", err)
		}

		err = store.Update(ctx, func(tx *Tx) error {
			return tx.PutFriendRequest(models.FriendRequest{ID: "r2", SenderID: "u2", ReceiverID: "u1", Status: models.FriendRequestPending})
		})
		if !errors.Is(err, models.ErrConflict) {
			t.Errorf("expected ErrConflict for reversed pair, got %v", err)
		}

		err = store.View(ctx, func(tx *Tx) error {
			r, ok, err := tx.FriendRequestByPair("u2", "u1")
			if err != nil {
				return err
			}
			if !ok || r.ID != "r1" {
				t.Errorf("expected r1 by reversed pair, got %+v (found=%v)", r, ok)
			}
			received, err := tx.FriendRequestsByReceiver("u2", models.FriendRequestPending)
			if err != nil {
				return err
			}
			if len(received) != 1 {
				t.Errorf("expected 1 received request, got %d", len(received))
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		err = store.Update(ctx, func(tx *Tx) error {
			return tx.DeleteFriendRequest("r1")
		})
		if err != nil {
			t.Fatalf("DeleteFriendRequest failed: %v", err)
		}
		_ = store.View(ctx, func(tx *Tx) error {
			if _, ok, _ := tx.FriendRequestByPair("u1", "u2"); ok {
				t.Error("pair index should be released")
			}
			return nil
		})
	})

	t.Run("Conversation", func(t *testing.T) {
		timestamps := []int64{100, 90, 110}
		err := store.Update(ctx, func(tx *Tx) error {
			for i, ts := range timestamps {
				sender, receiver := "u1", "u2"
				if i%2 == 1 {
					sender, receiver = receiver, sender
				}
				m := &models.DirectMessage{
					ID:         string(rune('a' + i)),
					SenderID:   sender,
					ReceiverID: receiver,
					Content:    "msg",
					Type:       models.MessageTypeText,
					Timestamp:  ts,
				}
				if err := tx.AppendDirectMessage(m); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("AppendDirectMessage failed: %v", err)
		}

		var msgs []models.DirectMessage
		err = store.View(ctx, func(tx *Tx) error {
			var err error
			msgs, err = tx.Conversation("u2", "u1")
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(msgs))
		}
		for i := 1; i < len(msgs); i++ {
			if msgs[i].Seq <= msgs[i-1].Seq {
				t.Errorf("seq not increasing at %d", i)
			}
			if msgs[i].Timestamp < msgs[i-1].Timestamp {
				t.Errorf("timestamp decreased at %d: %d < %d", i, msgs[i].Timestamp, msgs[i-1].Timestamp)
			}
		}

		err = store.Update(ctx, func(tx *Tx) error {
			m, err := tx.GetDirectMessage("b")
			if err != nil {
				return err
			}
			m.Read = true
			return tx.UpdateDirectMessage(m)
		})
		if err != nil {
			t.Fatalf("UpdateDirectMessage failed: %v", err)
		}

		var deleted int
		err = store.Update(ctx, func(tx *Tx) error {
			var err error
			deleted, err = tx.DeleteDirectMessagesOf("u2")
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		if deleted != 3 {
			t.Errorf("expected 3 deleted, got %d", deleted)
		}
		_ = store.View(ctx, func(tx *Tx) error {
			if _, err := tx.GetDirectMessage("a"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("expected message ref to be removed, got %v", err)
			}
			return nil
		})
	})

	t.Run("Groups", func(t *testing.T) {
		err := store.Update(ctx, func(tx *Tx) error {
			if err := tx.PutGroup(models.Group{ID: "g1", Name: "General", CreatedBy: "u1"}); err != nil {
				return err
			}
			if err := tx.PutMembership(models.GroupMembership{ID: "m1", GroupID: "g1", UserID: "u1", Role: models.RoleAdmin, JoinedAt: 1}); err != nil {
				return err
			}
			if err := tx.PutMembership(models.GroupMembership{ID: "m2", GroupID: "g1", UserID: "u2", Role: models.RoleMember, JoinedAt: 2}); err != nil {
				return err
			}
			if err := tx.AppendGroupMessage(&models.GroupMessage{ID: "gm1", GroupID: "g1", SenderID: "u2", Content: "hi"}); err != nil {
				return err
			}
			return tx.AppendGroupMessage(&models.GroupMessage{ID: "gm2", GroupID: "g1", SenderID: "u1", Content: "hello"})
		})
		if err != nil {
			t.Fatalf("group setup failed: %v", err)
		}

		ids, err := store.GroupMemberIDs(ctx, "g1")
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 2 || ids[0] != "u1" || ids[1] != "u2" {
			t.Errorf("expected [u1 u2] in join order, got %v", ids)
		}

		err = store.Update(ctx, func(tx *Tx) error {
			n, err := tx.DeleteGroupMessagesBySender("u2")
			if err != nil {
				return err
			}
			if n != 1 {
				t.Errorf("expected 1 deleted group message, got %d", n)
			}
			return tx.DeleteGroup("g1")
		})
		if err != nil {
			t.Fatalf("DeleteGroup failed: %v", err)
		}

		_ = store.View(ctx, func(tx *Tx) error {
			if _, err := tx.GetGroup("g1"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("expected group to be gone, got %v", err)
			}
			ms, _ := tx.MembershipsByUser("u2")
			if len(ms) != 0 {
				t.Errorf("expected user index to be cleared, got %d", len(ms))
			}
			msgs, _ := tx.GroupMessages("g1")
			if len(msgs) != 0 {
				t.Errorf("expected group messages to be gone, got %d", len(msgs))
			}
			return nil
		})
	})

	t.Run("Rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.Update(ctx, func(tx *Tx) error {
			if err := tx.PutGroup(models.Group{ID: "g2", Name: "Temp"}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		_ = store.View(ctx, func(tx *Tx) error {
			if _, err := tx.GetGroup("g2"); !errors.Is(err, models.ErrNotFound) {
				t.Errorf("expected rolled back group to be absent, got %v", err)
			}
			return nil
		})
	})

	t.Run("Files", func(t *testing.T) {
		meta := FileMetadata{ID: "f1", Hash: "abc", MimeType: "image/png", Name: "a.png", Size: 3}
		if err := store.UpsertFileMetadata(ctx, meta); err != nil {
			t.Fatalf("UpsertFileMetadata failed: %v", err)
		}
		got, err := store.GetFileMetadata(ctx, "f1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "a.png" {
			t.Errorf("expected a.png, got %s", got.Name)
		}
		if _, err := store.GetFileMetadata(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
