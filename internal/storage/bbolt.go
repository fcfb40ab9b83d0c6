package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"parley/internal/models"
)

var (
	bucketUsers             = []byte("users")
	bucketUsernames         = []byte("usernames")
	bucketEmails            = []byte("emails")
	bucketFriendRequests    = []byte("friend_requests")
	bucketFriendPairs       = []byte("friend_pairs")
	bucketConversations     = []byte("conversations")
	bucketMessageRefs       = []byte("message_refs")
	bucketGroups            = []byte("groups")
	bucketGroupMembers      = []byte("group_members")
	bucketUserGroups        = []byte("user_groups")
	bucketGroupMessages     = []byte("group_messages")
	bucketFiles             = []byte("files")
	bucketPushSubscriptions = []byte("push_subscriptions")
)

var allBuckets = [][]byte{
	bucketUsers,
	bucketUsernames,
	bucketEmails,
	bucketFriendRequests,
	bucketFriendPairs,
	bucketConversations,
	bucketMessageRefs,
	bucketGroups,
	bucketGroupMembers,
	bucketUserGroups,
	bucketGroupMessages,
	bucketFiles,
	bucketPushSubscriptions,
}

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// Tx exposes the typed query surface over a single bbolt transaction.
// A Tx must not be used after the function it was passed to returns.
type Tx struct {
	tx *bbolt.Tx
}

// View runs fn in a read-only transaction.
func (s *BboltStorage) View(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// Update runs fn in a read-write transaction. Any error returned by fn rolls
// back every write made through the Tx.
func (s *BboltStorage) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// GroupMemberIDs lists user ids of the current members of a group.
func (s *BboltStorage) GroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	err := s.View(ctx, func(tx *Tx) error {
		members, err := tx.MembershipsByGroup(groupID)
		if err != nil {
			return err
		}
		for _, m := range members {
			ids = append(ids, m.UserID)
		}
		return nil
	})
	return ids, err
}

func put(b *bbolt.Bucket, s Storeable) error {
	data, err := s.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", s, err)
	}
	return b.Put(s.Key(), data)
}

func get(b *bbolt.Bucket, key []byte, s Storeable) (bool, error) {
	if b == nil {
		return false, nil
	}
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := s.UnmarshalBinary(data); err != nil {
		return false, fmt.Errorf("failed to unmarshal %T: %w", s, err)
	}
	return true, nil
}

// pairKey is direction agnostic: pairKey(a, b) == pairKey(b, a).
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func pairHas(pair, userID string) bool {
	a, b, ok := strings.Cut(pair, ":")
	return ok && (a == userID || b == userID)
}

func indexKey(s string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(s)))
}

// GetUser returns the user or models.ErrNotFound.
func (t *Tx) GetUser(id string) (models.User, error) {
	var u DBUser
	ok, err := get(t.tx.Bucket(bucketUsers), []byte(id), &u)
	if err != nil {
		return models.User{}, err
	}
	if !ok {
		return models.User{}, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	return u.model(), nil
}

// UserExists reports whether a user record exists.
func (t *Tx) UserExists(id string) bool {
	return t.tx.Bucket(bucketUsers).Get([]byte(id)) != nil
}

// UserIDByUsername resolves a username case-insensitively.
func (t *Tx) UserIDByUsername(username string) (string, error) {
	id := t.tx.Bucket(bucketUsernames).Get(indexKey(username))
	if id == nil {
		return "", fmt.Errorf("%w: username %q", models.ErrNotFound, username)
	}
	return string(id), nil
}

func (t *Tx) UsernameTaken(username string) bool {
	return t.tx.Bucket(bucketUsernames).Get(indexKey(username)) != nil
}

func (t *Tx) EmailTaken(email string) bool {
	return t.tx.Bucket(bucketEmails).Get(indexKey(email)) != nil
}

// PutUser creates or updates a user and keeps the username and email indexes
// in sync. The stored password hash is preserved.
func (t *Tx) PutUser(user models.User) error {
	users := t.tx.Bucket(bucketUsers)
	usernames := t.tx.Bucket(bucketUsernames)
	emails := t.tx.Bucket(bucketEmails)

	var existing DBUser
	found, err := get(users, []byte(user.ID), &existing)
	if err != nil {
		return err
	}

	if owner := usernames.Get(indexKey(user.UserName)); owner != nil && string(owner) != user.ID {
		return fmt.Errorf("%w: username %q is taken", models.ErrConflict, user.UserName)
	}
	if user.Email != "" {
		if owner := emails.Get(indexKey(user.Email)); owner != nil && string(owner) != user.ID {
			return fmt.Errorf("%w: email %q is taken", models.ErrConflict, user.Email)
		}
	}

	if found {
		if err := usernames.Delete(indexKey(existing.UserName)); err != nil {
			return err
		}
		if existing.Email != "" {
			if err := emails.Delete(indexKey(existing.Email)); err != nil {
				return err
			}
		}
	}

	dbUser := &DBUser{
		ID:           user.ID,
		UserName:     user.UserName,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		Online:       user.Presence.Online,
		LastSeen:     user.Presence.LastSeen,
		Status:       user.Profile.Status,
		Theme:        user.Profile.Theme,
		Phone:        user.Profile.Phone,
		AvatarFileID: user.Profile.AvatarFileID,
		PasswordHash: existing.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if err := put(users, dbUser); err != nil {
		return err
	}
	if err := usernames.Put(indexKey(user.UserName), []byte(user.ID)); err != nil {
		return err
	}
	if user.Email != "" {
		return emails.Put(indexKey(user.Email), []byte(user.ID))
	}
	return nil
}

func (t *Tx) SetPasswordHash(userID, hash string) error {
	users := t.tx.Bucket(bucketUsers)
	var u DBUser
	ok, err := get(users, []byte(userID), &u)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}
	u.PasswordHash = hash
	return put(users, &u)
}

func (t *Tx) PasswordHash(userID string) (string, error) {
	var u DBUser
	ok, err := get(t.tx.Bucket(bucketUsers), []byte(userID), &u)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}
	return u.PasswordHash, nil
}

// DeleteUser removes the user record and its index entries.
func (t *Tx) DeleteUser(id string) error {
	users := t.tx.Bucket(bucketUsers)
	var u DBUser
	ok, err := get(users, []byte(id), &u)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, id)
	}
	if err := t.tx.Bucket(bucketUsernames).Delete(indexKey(u.UserName)); err != nil {
		return err
	}
	if u.Email != "" {
		if err := t.tx.Bucket(bucketEmails).Delete(indexKey(u.Email)); err != nil {
			return err
		}
	}
	return users.Delete([]byte(id))
}

// ListUsers returns all users ordered by username.
func (t *Tx) ListUsers() ([]models.User, error) {
	var users []models.User
	err := t.tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
		var u DBUser
		if err := u.UnmarshalBinary(v); err != nil {
			return err
		}
		users = append(users, u.model())
		return nil
	})
	sort.Slice(users, func(i, j int) bool {
		return users[i].UserName < users[j].UserName
	})
	return users, err
}

// Credentials resolves a login name to the user id and password hash.
func (s *BboltStorage) Credentials(ctx context.Context, username string) (string, string, error) {
	var userID, hash string
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		if userID, err = tx.UserIDByUsername(username); err != nil {
			return err
		}
		hash, err = tx.PasswordHash(userID)
		return err
	})
	return userID, hash, err
}
