package social

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"parley/internal/models"
	"parley/internal/notify"
	"parley/internal/storage"
)

type Store interface {
	View(ctx context.Context, fn func(tx *storage.Tx) error) error
	Update(ctx context.Context, fn func(tx *storage.Tx) error) error
}

type Publisher interface {
	NotifyDirect(userID string, msg models.ServerMessage)
}

type Notifier interface {
	Enqueue(task notify.Task) bool
}

// Service owns the friend request lifecycle. Friendship is an ACCEPTED
// request between two users, whichever of them sent it.
type Service struct {
	store     Store
	publisher Publisher
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, publisher Publisher, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With("component", "social"),
		now:       time.Now,
	}
}

// AreFriendsTx checks friendship inside an existing transaction.
func AreFriendsTx(tx *storage.Tx, a, b string) (bool, error) {
	r, ok, err := tx.FriendRequestByPair(a, b)
	if err != nil {
		return false, err
	}
	return ok && r.Status == models.FriendRequestAccepted, nil
}

func requireUsers(tx *storage.Tx, ids ...string) error {
	for _, id := range ids {
		if !tx.UserExists(id) {
			return fmt.Errorf("%w: user %s", models.ErrNotFound, id)
		}
	}
	return nil
}

func (s *Service) SendFriendRequest(ctx context.Context, senderID, receiverID string) (models.FriendRequest, error) {
	if senderID == receiverID {
		return models.FriendRequest{}, fmt.Errorf("%w: cannot send a friend request to yourself", models.ErrInvalidOperation)
	}

	var (
		req    models.FriendRequest
		sender models.User
	)
	err := s.store.Update(ctx, func(tx *storage.Tx) error {
		if err := requireUsers(tx, senderID, receiverID); err != nil {
			return err
		}
		if _, ok, err := tx.FriendRequestByPair(senderID, receiverID); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("%w: friend request already exists", models.ErrConflict)
		}

		var err error
		if sender, err = tx.GetUser(senderID); err != nil {
			return err
		}

		req = models.FriendRequest{
			ID:         uuid.NewString(),
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     models.FriendRequestPending,
			CreatedAt:  s.now().UnixMilli(),
		}
		return tx.PutFriendRequest(req)
	})
	if err != nil {
		return models.FriendRequest{}, err
	}

	s.publisher.NotifyDirect(receiverID, models.ServerMessage{
		Type:          models.ServerMessageTypeFriendRequest,
		UserID:        senderID,
		FriendRequest: &req,
	})
	s.notifier.Enqueue(notify.Task{
		Kind:   notify.KindFriendRequest,
		UserID: receiverID,
		Title:  "New friend request",
		Body:   sender.UserName + " wants to be your friend",
	})

	return req, nil
}

func (s *Service) AcceptFriendRequest(ctx context.Context, requestID string) (models.FriendRequest, error) {
	return s.resolve(ctx, requestID, models.FriendRequestAccepted)
}

func (s *Service) RejectFriendRequest(ctx context.Context, requestID string) (models.FriendRequest, error) {
	return s.resolve(ctx, requestID, models.FriendRequestRejected)
}

// resolve moves a PENDING request to a terminal status. Terminal requests
// cannot be resolved again.
func (s *Service) resolve(ctx context.Context, requestID string, status models.FriendRequestStatus) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := s.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		if req, err = tx.GetFriendRequest(requestID); err != nil {
			return err
		}
		if req.Status != models.FriendRequestPending {
			return fmt.Errorf("%w: friend request is already %s", models.ErrConflict, req.Status)
		}
		req.Status = status
		return tx.PutFriendRequest(req)
	})
	if err != nil {
		return models.FriendRequest{}, err
	}

	for _, userID := range []string{req.SenderID, req.ReceiverID} {
		s.publisher.NotifyDirect(userID, models.ServerMessage{
			Type:          models.ServerMessageTypeFriendRequestUpdated,
			UserID:        req.Counterparty(userID),
			FriendRequest: &req,
		})
	}
	s.logger.Debug("friend request resolved", "request_id", req.ID, "status", req.Status)

	return req, nil
}

func (s *Service) Request(ctx context.Context, requestID string) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		req, err = tx.GetFriendRequest(requestID)
		return err
	})
	return req, err
}

func (s *Service) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var friends bool
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		friends, err = AreFriendsTx(tx, a, b)
		return err
	})
	return friends, err
}

func (s *Service) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if userID == friendID {
		return fmt.Errorf("%w: cannot unfriend yourself", models.ErrInvalidOperation)
	}

	err := s.store.Update(ctx, func(tx *storage.Tx) error {
		if err := requireUsers(tx, userID, friendID); err != nil {
			return err
		}
		req, ok, err := tx.FriendRequestByPair(userID, friendID)
		if err != nil {
			return err
		}
		if !ok || req.Status != models.FriendRequestAccepted {
			return fmt.Errorf("%w: not friends", models.ErrForbidden)
		}
		return tx.DeleteFriendRequest(req.ID)
	})
	if err != nil {
		return err
	}

	s.publisher.NotifyDirect(userID, models.ServerMessage{Type: models.ServerMessageTypeFriendRemoved, UserID: friendID})
	s.publisher.NotifyDirect(friendID, models.ServerMessage{Type: models.ServerMessageTypeFriendRemoved, UserID: userID})
	return nil
}

// PendingRequests lists requests waiting for the user's answer.
func (s *Service) PendingRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	return s.requests(ctx, userID, func(tx *storage.Tx) ([]models.FriendRequest, error) {
		return tx.FriendRequestsByReceiver(userID, models.FriendRequestPending)
	})
}

// SentRequests lists the user's own requests that are still pending.
func (s *Service) SentRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	return s.requests(ctx, userID, func(tx *storage.Tx) ([]models.FriendRequest, error) {
		return tx.FriendRequestsBySender(userID, models.FriendRequestPending)
	})
}

// AcceptedRequests lists the user's friendships in both directions.
func (s *Service) AcceptedRequests(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	return s.requests(ctx, userID, acceptedTx(userID))
}

func acceptedTx(userID string) func(tx *storage.Tx) ([]models.FriendRequest, error) {
	return func(tx *storage.Tx) ([]models.FriendRequest, error) {
		sent, err := tx.FriendRequestsBySender(userID, models.FriendRequestAccepted)
		if err != nil {
			return nil, err
		}
		received, err := tx.FriendRequestsByReceiver(userID, models.FriendRequestAccepted)
		if err != nil {
			return nil, err
		}
		all := append(sent, received...)
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].CreatedAt < all[j].CreatedAt
		})
		return all, nil
	}
}

func (s *Service) requests(ctx context.Context, userID string, query func(tx *storage.Tx) ([]models.FriendRequest, error)) ([]models.FriendRequest, error) {
	var out []models.FriendRequest
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		if err := requireUsers(tx, userID); err != nil {
			return err
		}
		var err error
		out, err = query(tx)
		return err
	})
	return out, err
}

// FriendIDsTx returns the counterparties of the user's accepted requests.
func FriendIDsTx(tx *storage.Tx, userID string) ([]string, error) {
	accepted, err := acceptedTx(userID)(tx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(accepted))
	for _, r := range accepted {
		ids = append(ids, r.Counterparty(userID))
	}
	return ids, nil
}

// Friends returns the user records of the user's friends.
func (s *Service) Friends(ctx context.Context, userID string) ([]models.User, error) {
	var friends []models.User
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		if err := requireUsers(tx, userID); err != nil {
			return err
		}
		ids, err := FriendIDsTx(tx, userID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			u, err := tx.GetUser(id)
			if err != nil {
				return err
			}
			friends = append(friends, u)
		}
		return nil
	})
	return friends, err
}
