package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

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
	Online(userID string) bool
}

type Notifier interface {
	Enqueue(task notify.Task) bool
}

// Service stores direct messages between friends and tracks their read state.
type Service struct {
	store     Store
	blobs     media.Blobs
	publisher Publisher
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, blobs media.Blobs, publisher Publisher, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With("component", "conversation"),
		now:       time.Now,
	}
}

// checkSend validates both parties and the friendship gate.
func checkSend(tx *storage.Tx, senderID, receiverID string) error {
	for _, id := range []string{senderID, receiverID} {
		if !tx.UserExists(id) {
			return fmt.Errorf("%w: user %s", models.ErrNotFound, id)
		}
	}
	friends, err := social.AreFriendsTx(tx, senderID, receiverID)
	if err != nil {
		return err
	}
	if !friends {
		return fmt.Errorf("%w: users are not friends", models.ErrForbidden)
	}
	return nil
}

func (s *Service) SendMessage(ctx context.Context, senderID, receiverID, text string, typ models.MessageType) (models.DirectMessage, error) {
	if typ == "" {
		typ = models.MessageTypeText
	}
	if !typ.Valid() {
		return models.DirectMessage{}, fmt.Errorf("%w: unknown message type %q", models.ErrInvalidOperation, typ)
	}
	if strings.TrimSpace(text) == "" {
		return models.DirectMessage{}, fmt.Errorf("%w: empty message", models.ErrInvalidOperation)
	}

	return s.send(ctx, models.DirectMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    text,
		Type:       typ,
	})
}

// SendMedia stores the upload and sends a message that references it. The
// message content is the file name.
func (s *Service) SendMedia(ctx context.Context, senderID, receiverID string, upload media.Upload, typ models.MessageType) (models.DirectMessage, error) {
	if typ != models.MessageTypeImage && typ != models.MessageTypeFile {
		return models.DirectMessage{}, fmt.Errorf("%w: media message must be IMAGE or FILE", models.ErrInvalidOperation)
	}

	// Fail before writing the blob when the message would be refused anyway.
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		return checkSend(tx, senderID, receiverID)
	})
	if err != nil {
		return models.DirectMessage{}, err
	}

	att, err := s.blobs.Save(ctx, senderID, upload)
	if err != nil {
		return models.DirectMessage{}, err
	}

	return s.send(ctx, models.DirectMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    att.Name,
		Type:       typ,
		Media:      &att,
	})
}

func (s *Service) send(ctx context.Context, msg models.DirectMessage) (models.DirectMessage, error) {
	var sender models.User
	err := s.store.Update(ctx, func(tx *storage.Tx) error {
		if err := checkSend(tx, msg.SenderID, msg.ReceiverID); err != nil {
			return err
		}
		var err error
		if sender, err = tx.GetUser(msg.SenderID); err != nil {
			return err
		}
		msg.ID = uuid.NewString()
		msg.Read = false
		msg.Timestamp = s.now().UnixMilli()
		return tx.AppendDirectMessage(&msg)
	})
	if err != nil {
		return models.DirectMessage{}, err
	}

	event := models.ServerMessage{
		Type:    models.ServerMessageTypeMessage,
		UserID:  msg.SenderID,
		Message: &msg,
	}
	s.publisher.NotifyDirect(msg.ReceiverID, event)
	s.publisher.NotifyDirect(msg.SenderID, event)

	if !s.publisher.Online(msg.ReceiverID) {
		s.notifier.Enqueue(notify.Task{
			Kind:   notify.KindMessage,
			UserID: msg.ReceiverID,
			Title:  "New message from " + sender.UserName,
			Body:   content.Preview(msg.Content, msg.Type),
		})
	}

	return msg, nil
}

// Conversation returns the messages between a and b in send order.
func (s *Service) Conversation(ctx context.Context, a, b string) ([]models.DirectMessage, error) {
	var msgs []models.DirectMessage
	err := s.store.View(ctx, func(tx *storage.Tx) error {
		for _, id := range []string{a, b} {
			if !tx.UserExists(id) {
				return fmt.Errorf("%w: user %s", models.ErrNotFound, id)
			}
		}
		var err error
		msgs, err = tx.Conversation(a, b)
		return err
	})
	return msgs, err
}

// MarkConversationAsRead marks every unread message otherID sent to readerID
// as read and returns how many changed.
func (s *Service) MarkConversationAsRead(ctx context.Context, readerID, otherID string) (int, error) {
	flipped := 0
	err := s.store.Update(ctx, func(tx *storage.Tx) error {
		for _, id := range []string{readerID, otherID} {
			if !tx.UserExists(id) {
				return fmt.Errorf("%w: user %s", models.ErrNotFound, id)
			}
		}
		msgs, err := tx.Conversation(readerID, otherID)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if m.ReceiverID != readerID || m.Read {
				continue
			}
			m.Read = true
			if err := tx.UpdateDirectMessage(m); err != nil {
				return err
			}
			flipped++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if flipped > 0 {
		s.publisher.NotifyDirect(otherID, models.ServerMessage{
			Type:   models.ServerMessageTypeRead,
			UserID: readerID,
		})
	}
	return flipped, nil
}

// MarkAsRead marks a single message as read by its receiver.
func (s *Service) MarkAsRead(ctx context.Context, messageID, readerID string) (models.DirectMessage, error) {
	var (
		msg     models.DirectMessage
		changed bool
	)
	err := s.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		if msg, err = tx.GetDirectMessage(messageID); err != nil {
			return err
		}
		if msg.ReceiverID != readerID {
			return fmt.Errorf("%w: only the receiver can mark a message as read", models.ErrForbidden)
		}
		if msg.Read {
			return nil
		}
		msg.Read = true
		changed = true
		return tx.UpdateDirectMessage(msg)
	})
	if err != nil {
		return models.DirectMessage{}, err
	}

	if changed {
		s.publisher.NotifyDirect(msg.SenderID, models.ServerMessage{
			Type:    models.ServerMessageTypeRead,
			UserID:  readerID,
			Message: &msg,
		})
	}
	return msg, nil
}
