package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"parley/internal/account"
	"parley/internal/conversation"
	"parley/internal/group"
	"parley/internal/models"
	"parley/internal/social"
)

type relay interface {
	NotifyDirect(userID string, msg models.ServerMessage)
}

// Gateway routes client messages arriving over a WebSocket to the core
// services. Results reach clients as hub events; only failures are replied
// to the sender directly.
type Gateway struct {
	accounts      *account.Service
	social        *social.Service
	conversations *conversation.Service
	groups        *group.Registry
	relay         relay
	logger        *slog.Logger
}

func NewGateway(
	accounts *account.Service,
	social *social.Service,
	conversations *conversation.Service,
	groups *group.Registry,
	relay relay,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		accounts:      accounts,
		social:        social,
		conversations: conversations,
		groups:        groups,
		relay:         relay,
		logger:        logger.With("component", "gateway"),
	}
}

func (g *Gateway) Connected(ctx context.Context, userID string) {
	if err := g.accounts.SetPresence(ctx, userID, true); err != nil {
		g.logger.Warn("marking user online", "user_id", userID, "error", err)
	}
}

func (g *Gateway) Disconnected(ctx context.Context, userID string) {
	if err := g.accounts.SetPresence(ctx, userID, false); err != nil && !errors.Is(err, models.ErrNotFound) {
		g.logger.Warn("marking user offline", "user_id", userID, "error", err)
	}
}

func (g *Gateway) Handle(ctx context.Context, userID string, msg models.ClientMessage) *models.ServerMessage {
	var err error
	switch msg.Type {
	case models.ClientMessageTypeSend:
		_, err = g.conversations.SendMessage(ctx, userID, msg.ReceiverID, msg.Content, models.MessageTypeText)
	case models.ClientMessageTypeSendGroup:
		_, err = g.groups.SendGroupMessage(ctx, msg.GroupID, userID, msg.Content, models.MessageTypeText)
	case models.ClientMessageTypeRead:
		_, err = g.conversations.MarkConversationAsRead(ctx, userID, msg.ReceiverID)
	case models.ClientMessageTypeTyping:
		err = g.typing(ctx, userID, msg)
	default:
		return &models.ServerMessage{Type: models.ServerMessageTypeError, Error: "unknown message type"}
	}
	if err == nil {
		return nil
	}

	reply := &models.ServerMessage{Type: models.ServerMessageTypeError, Error: err.Error()}
	if statusFor(err) == http.StatusInternalServerError {
		g.logger.Error("handling client message", "user_id", userID, "type", msg.Type, "error", err)
		reply.Error = "internal error"
	}
	return reply
}

// typing is relayed to a friend or to a group the user belongs to. It is
// never stored.
func (g *Gateway) typing(ctx context.Context, userID string, msg models.ClientMessage) error {
	event := models.ServerMessage{
		Type:    models.ServerMessageTypeTyping,
		UserID:  userID,
		GroupID: msg.GroupID,
		Typing:  msg.Typing,
	}

	if msg.GroupID != "" {
		members, err := g.groups.MemberIDs(ctx, msg.GroupID)
		if err != nil {
			return err
		}
		var member bool
		for _, id := range members {
			if id == userID {
				member = true
				break
			}
		}
		if !member {
			return errNotGroupMember
		}
		for _, id := range members {
			if id != userID {
				g.relay.NotifyDirect(id, event)
			}
		}
		return nil
	}

	friends, err := g.social.AreFriends(ctx, userID, msg.ReceiverID)
	if err != nil {
		return err
	}
	if !friends {
		return errNotFriends
	}
	g.relay.NotifyDirect(msg.ReceiverID, event)
	return nil
}
