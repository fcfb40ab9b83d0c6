package group

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"parley/internal/content"
	"parley/internal/media"
	"parley/internal/models"
	"parley/internal/notify"
	"parley/internal/storage"
)

func checkMember(tx *storage.Tx, groupID, senderID string) (models.Group, error) {
	g, err := tx.GetGroup(groupID)
	if err != nil {
		return models.Group{}, err
	}
	if err := requireUser(tx, senderID); err != nil {
		return models.Group{}, err
	}
	if !tx.MembershipExists(groupID, senderID) {
		return models.Group{}, fmt.Errorf("%w: not a member of the group", models.ErrForbidden)
	}
	return g, nil
}

func (r *Registry) SendGroupMessage(ctx context.Context, groupID, senderID, text string, typ models.MessageType) (models.GroupMessage, error) {
	if typ == "" {
		typ = models.MessageTypeText
	}
	if !typ.Valid() {
		return models.GroupMessage{}, fmt.Errorf("%w: unknown message type %q", models.ErrInvalidOperation, typ)
	}
	if strings.TrimSpace(text) == "" {
		return models.GroupMessage{}, fmt.Errorf("%w: empty message", models.ErrInvalidOperation)
	}

	return r.sendGroup(ctx, models.GroupMessage{
		GroupID:  groupID,
		SenderID: senderID,
		Content:  text,
		Type:     typ,
	})
}

func (r *Registry) SendGroupMedia(ctx context.Context, groupID, senderID string, upload media.Upload, typ models.MessageType) (models.GroupMessage, error) {
	if typ != models.MessageTypeImage && typ != models.MessageTypeFile {
		return models.GroupMessage{}, fmt.Errorf("%w: media message must be IMAGE or FILE", models.ErrInvalidOperation)
	}

	err := r.store.View(ctx, func(tx *storage.Tx) error {
		_, err := checkMember(tx, groupID, senderID)
		return err
	})
	if err != nil {
		return models.GroupMessage{}, err
	}

	att, err := r.blobs.Save(ctx, senderID, upload)
	if err != nil {
		return models.GroupMessage{}, err
	}

	return r.sendGroup(ctx, models.GroupMessage{
		GroupID:  groupID,
		SenderID: senderID,
		Content:  att.Name,
		Type:     typ,
		Media:    &att,
	})
}

func (r *Registry) sendGroup(ctx context.Context, msg models.GroupMessage) (models.GroupMessage, error) {
	var (
		g       models.Group
		members []models.GroupMembership
	)
	err := r.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		if g, err = checkMember(tx, msg.GroupID, msg.SenderID); err != nil {
			return err
		}
		if members, err = tx.MembershipsByGroup(msg.GroupID); err != nil {
			return err
		}
		msg.ID = uuid.NewString()
		msg.Timestamp = r.now().UnixMilli()
		return tx.AppendGroupMessage(&msg)
	})
	if err != nil {
		return models.GroupMessage{}, err
	}

	r.publisher.NotifyTopic(msg.GroupID, models.ServerMessage{
		Type:         models.ServerMessageTypeGroupMessage,
		GroupID:      msg.GroupID,
		UserID:       msg.SenderID,
		GroupMessage: &msg,
	})

	for _, m := range members {
		if m.UserID == msg.SenderID || r.publisher.Online(m.UserID) {
			continue
		}
		r.notifier.Enqueue(notify.Task{
			Kind:   notify.KindGroupMessage,
			UserID: m.UserID,
			Title:  "New message in " + g.Name,
			Body:   content.Preview(msg.Content, msg.Type),
		})
	}

	return msg, nil
}

// GroupMessages returns the group's messages in send order.
func (r *Registry) GroupMessages(ctx context.Context, groupID string) ([]models.GroupMessage, error) {
	var msgs []models.GroupMessage
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GetGroup(groupID); err != nil {
			return err
		}
		var err error
		msgs, err = tx.GroupMessages(groupID)
		return err
	})
	return msgs, err
}
