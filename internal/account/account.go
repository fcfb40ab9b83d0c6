package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"parley/internal/auth"
	"parley/internal/content"
	"parley/internal/media"
	"parley/internal/models"
	"parley/internal/notify"
	"parley/internal/social"
	"parley/internal/storage"
)

type Store interface {
	View(ctx context.Context, fn func(tx *storage.Tx) error) error
	Update(ctx context.Context, fn func(tx *storage.Tx) error) error
}

type Publisher interface {
	NotifyDirect(userID string, msg models.ServerMessage)
	NotifyTopic(groupID string, msg models.ServerMessage)
	Disconnect(userID string)
}

type Notifier interface {
	Enqueue(task notify.Task) bool
}

// Sessions is the part of the auth service that outlives a deleted account.
type Sessions interface {
	RevokeUser(userID string)
}

// Service is the user directory and owns the account lifecycle.
type Service struct {
	store     Store
	blobs     media.Blobs
	publisher Publisher
	notifier  Notifier
	sessions  Sessions
	logger    *slog.Logger
	now       func() time.Time
	steps     []step
}

func NewService(store Store, blobs media.Blobs, publisher Publisher, notifier Notifier, sessions Sessions, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		notifier:  notifier,
		sessions:  sessions,
		logger:    logger.With("component", "account"),
		now:       time.Now,
		steps:     deletionSteps,
	}
}

type Registration struct {
	UserName    string `json:"userName"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
}

func (s *Service) Register(ctx context.Context, reg Registration) (models.User, error) {
	if err := content.ValidateUsername(reg.UserName); err != nil {
		return models.User{}, fmt.Errorf("%w: %v", models.ErrInvalidOperation, err)
	}
	if err := content.ValidateEmail(reg.Email); err != nil {
		return models.User{}, fmt.Errorf("%w: %v", models.ErrInvalidOperation, err)
	}
	if len(reg.Password) < 8 {
		return models.User{}, fmt.Errorf("%w: password must be at least 8 characters", models.ErrInvalidOperation)
	}
	hash, err := auth.HashPassword(reg.Password)
	if err != nil {
		return models.User{}, err
	}

	displayName := content.StripTags(reg.DisplayName)
	if displayName == "" {
		displayName = reg.UserName
	}
	user := models.User{
		ID:          uuid.NewString(),
		UserName:    reg.UserName,
		Email:       reg.Email,
		DisplayName: displayName,
		Profile:     models.Profile{Phone: content.StripTags(reg.Phone)},
		CreatedAt:   s.now().UnixMilli(),
	}

	err = s.store.Update(ctx, func(tx *storage.Tx) error {
		if tx.UsernameTaken(user.UserName) {
			return fmt.Errorf("%w: username %q is taken", models.ErrConflict, user.UserName)
		}
		if tx.EmailTaken(user.Email) {
			return fmt.Errorf("%w: email %q is already registered", models.ErrConflict, user.Email)
		}
		if err := tx.PutUser(user); err != nil {
			return err
		}
		return tx.SetPasswordHash(user.ID, hash)
	})
	if err != nil {
		return models.User{}, err
	}

	s.notifier.Enqueue(notify.Task{
		Kind:   notify.KindWelcome,
		UserID: user.ID,
		Title:  "Welcome to parley",
		Body:   "Hi " + user.DisplayName + ", your account is ready.",
	})
	s.logger.Info("user registered", "user_id", user.ID, "username", user.UserName)

	return user, nil
}

func (s *Service) ResolveUser(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		u, err = tx.GetUser(userID)
		return err
	})
	return u, err
}

func (s *Service) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var taken bool
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		taken = tx.UsernameTaken(username)
		return nil
	})
	return taken, err
}

func (s *Service) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var taken bool
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		taken = tx.EmailTaken(email)
		return nil
	})
	return taken, err
}

// Search matches the query against usernames and display names, ignoring
// case. An empty query lists everyone.
func (s *Service) Search(ctx context.Context, query string) ([]models.User, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []models.User
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		users, err := tx.ListUsers()
		if err != nil {
			return err
		}
		for _, u := range users {
			if query == "" ||
				strings.Contains(strings.ToLower(u.UserName), query) ||
				strings.Contains(strings.ToLower(u.DisplayName), query) {
				out = append(out, u)
			}
		}
		return nil
	})
	return out, err
}

// ProfileUpdate changes only the fields that are set.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName"`
	Status      *string `json:"status"`
	Theme       *string `json:"theme"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (models.User, error) {
	if upd.Email != nil {
		if err := content.ValidateEmail(*upd.Email); err != nil {
			return models.User{}, fmt.Errorf("%w: %v", models.ErrInvalidOperation, err)
		}
	}

	var u models.User
	err := s.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		if u, err = tx.GetUser(userID); err != nil {
			return err
		}
		if upd.DisplayName != nil {
			if name := content.StripTags(*upd.DisplayName); name != "" {
				u.DisplayName = name
			}
		}
		if upd.Status != nil {
			u.Profile.Status = content.StripTags(*upd.Status)
		}
		if upd.Theme != nil {
			u.Profile.Theme = content.StripTags(*upd.Theme)
		}
		if upd.Phone != nil {
			u.Profile.Phone = content.StripTags(*upd.Phone)
		}
		if upd.Email != nil {
			u.Email = *upd.Email
		}
		// PutUser refuses an email owned by someone else.
		return tx.PutUser(u)
	})
	return u, err
}

func (s *Service) SetAvatar(ctx context.Context, userID string, upload media.Upload) (models.User, error) {
	if _, err := s.ResolveUser(ctx, userID); err != nil {
		return models.User{}, err
	}
	att, err := s.blobs.Save(ctx, userID, upload)
	if err != nil {
		return models.User{}, err
	}

	var u models.User
	err = s.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		if u, err = tx.GetUser(userID); err != nil {
			return err
		}
		u.Profile.AvatarFileID = att.FileID
		return tx.PutUser(u)
	})
	return u, err
}

// SetPresence records the online flag and tells the user's friends.
func (s *Service) SetPresence(ctx context.Context, userID string, online bool) error {
	var friends []string
	err := s.store.Update(ctx, func(tx *storage.Tx) error {
		u, err := tx.GetUser(userID)
		if err != nil {
			return err
		}
		u.Presence = models.Presence{Online: online, LastSeen: s.now().UnixMilli()}
		if err := tx.PutUser(u); err != nil {
			return err
		}
		friends, err = social.FriendIDsTx(tx, userID)
		return err
	})
	if err != nil {
		return err
	}

	typ := models.ServerMessageTypeOffline
	if online {
		typ = models.ServerMessageTypeOnline
	}
	for _, id := range friends {
		s.publisher.NotifyDirect(id, models.ServerMessage{Type: typ, UserID: userID, Online: online})
	}
	return nil
}

// AddPushSubscription registers a browser push endpoint for the user.
func (s *Service) AddPushSubscription(ctx context.Context, userID string, sub storage.PushSubscription) error {
	if sub.Endpoint == "" || sub.Auth == "" || sub.P256dh == "" {
		return fmt.Errorf("%w: incomplete push subscription", models.ErrInvalidOperation)
	}
	sub.UserID = userID
	return s.store.Update(ctx, func(tx *storage.Tx) error {
		if !tx.UserExists(userID) {
			return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
		}
		return tx.PutPushSubscription(sub)
	})
}
