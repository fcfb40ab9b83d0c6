package group

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
	"parley/internal/storage"
)

type Store interface {
	View(ctx context.Context, fn func(tx *storage.Tx) error) error
	Update(ctx context.Context, fn func(tx *storage.Tx) error) error
}

type Publisher interface {
	NotifyDirect(userID string, msg models.ServerMessage)
	NotifyTopic(groupID string, msg models.ServerMessage)
	Online(userID string) bool
}

type Notifier interface {
	Enqueue(task notify.Task) bool
}

// Registry owns groups, their memberships and their messages.
type Registry struct {
	store     Store
	blobs     media.Blobs
	publisher Publisher
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewRegistry(store Store, blobs media.Blobs, publisher Publisher, notifier Notifier, logger *slog.Logger) *Registry {
	return &Registry{
		store:     store,
		blobs:     blobs,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With("component", "group"),
		now:       time.Now,
	}
}

type NewGroup struct {
	Name        string
	Description string
	CreatorID   string
	Image       *media.Upload
}

// MemberView is a membership joined with the member's public identity.
type MemberView struct {
	UserID      string      `json:"userId"`
	UserName    string      `json:"userName"`
	DisplayName string      `json:"displayName"`
	Role        models.Role `json:"role"`
	JoinedAt    int64       `json:"joinedAt"`
}

type Details struct {
	Group   models.Group `json:"group"`
	Members []MemberView `json:"members"`
}

func requireUser(tx *storage.Tx, userID string) error {
	if !tx.UserExists(userID) {
		return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}
	return nil
}

// CreateGroup stores the group and the creator's ADMIN membership together.
func (r *Registry) CreateGroup(ctx context.Context, req NewGroup) (models.Group, error) {
	name := content.StripTags(req.Name)
	if name == "" {
		return models.Group{}, fmt.Errorf("%w: group name is required", models.ErrInvalidOperation)
	}

	err := r.store.View(ctx, func(tx *storage.Tx) error {
		return requireUser(tx, req.CreatorID)
	})
	if err != nil {
		return models.Group{}, err
	}

	g := models.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   req.CreatorID,
	}
	if req.Image != nil {
		att, err := r.blobs.Save(ctx, req.CreatorID, *req.Image)
		if err != nil {
			return models.Group{}, err
		}
		g.Image = &att
	}

	err = r.store.Update(ctx, func(tx *storage.Tx) error {
		if err := requireUser(tx, req.CreatorID); err != nil {
			return err
		}
		now := r.now().UnixMilli()
		g.CreatedAt = now
		if err := tx.PutGroup(g); err != nil {
			return err
		}
		return tx.PutMembership(models.GroupMembership{
			ID:       uuid.NewString(),
			GroupID:  g.ID,
			UserID:   req.CreatorID,
			Role:     models.RoleAdmin,
			JoinedAt: now,
		})
	})
	if err != nil {
		return models.Group{}, err
	}

	r.publisher.NotifyTopic(g.ID, models.ServerMessage{
		Type:    models.ServerMessageTypeGroupUpdated,
		GroupID: g.ID,
		Group:   &g,
	})
	r.logger.Info("group created", "group_id", g.ID, "user_id", req.CreatorID)

	return g, nil
}

func (r *Registry) AddMember(ctx context.Context, groupID, userID string) (models.GroupMembership, error) {
	var (
		g models.Group
		m models.GroupMembership
	)
	err := r.store.Update(ctx, func(tx *storage.Tx) error {
		var err error
		if g, err = tx.GetGroup(groupID); err != nil {
			return err
		}
		if err := requireUser(tx, userID); err != nil {
			return err
		}
		if tx.MembershipExists(groupID, userID) {
			return fmt.Errorf("%w: user %s is already a member", models.ErrConflict, userID)
		}
		m = models.GroupMembership{
			ID:       uuid.NewString(),
			GroupID:  groupID,
			UserID:   userID,
			Role:     models.RoleMember,
			JoinedAt: r.now().UnixMilli(),
		}
		return tx.PutMembership(m)
	})
	if err != nil {
		return models.GroupMembership{}, err
	}

	r.publisher.NotifyTopic(groupID, models.ServerMessage{
		Type:    models.ServerMessageTypeMemberJoined,
		GroupID: groupID,
		UserID:  userID,
		Group:   &g,
	})
	return m, nil
}

// RemoveMember deletes a membership. A group is never left without an
// admin: when the creator leaves, ownership moves to another member, and
// when the last admin leaves, the earliest joined member is promoted. A group
// whose last member leaves is dissolved.
func (r *Registry) RemoveMember(ctx context.Context, groupID, userID string) (Disposition, error) {
	var disp Disposition
	err := r.store.Update(ctx, func(tx *storage.Tx) error {
		g, err := tx.GetGroup(groupID)
		if err != nil {
			return err
		}
		if err := requireUser(tx, userID); err != nil {
			return err
		}
		if _, err := tx.GetMembership(groupID, userID); err != nil {
			return err
		}

		if g.CreatedBy == userID {
			disp, err = DisposeOwnership(tx, g, userID)
		} else {
			disp, err = EnsureAdmin(tx, groupID, userID)
		}
		if err != nil {
			return err
		}
		if disp.Outcome == Dissolved {
			return nil
		}
		return tx.DeleteMembership(groupID, userID)
	})
	if err != nil {
		return Disposition{}, err
	}

	left := models.ServerMessage{
		Type:    models.ServerMessageTypeMemberLeft,
		GroupID: groupID,
		UserID:  userID,
	}
	r.publisher.NotifyDirect(userID, left)

	switch disp.Outcome {
	case Dissolved:
		r.logger.Info("group dissolved", "group_id", groupID, "user_id", userID)
	case Transferred, Promoted:
		r.publisher.NotifyTopic(groupID, left)
		r.publisher.NotifyTopic(groupID, models.ServerMessage{
			Type:    models.ServerMessageTypeGroupUpdated,
			GroupID: groupID,
			UserID:  disp.UserID,
			Group:   &disp.Group,
		})
	default:
		r.publisher.NotifyTopic(groupID, left)
	}

	return disp, nil
}

// Role returns the user's role in the group or models.ErrNotFound.
func (r *Registry) Role(ctx context.Context, groupID, userID string) (models.Role, error) {
	var role models.Role
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GetGroup(groupID); err != nil {
			return err
		}
		m, err := tx.GetMembership(groupID, userID)
		if err != nil {
			return err
		}
		role = m.Role
		return nil
	})
	return role, err
}

// UserGroups lists the groups the user is a member of.
func (r *Registry) UserGroups(ctx context.Context, userID string) ([]models.Group, error) {
	var groups []models.Group
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		if err := requireUser(tx, userID); err != nil {
			return err
		}
		memberships, err := tx.MembershipsByUser(userID)
		if err != nil {
			return err
		}
		for _, m := range memberships {
			g, err := tx.GetGroup(m.GroupID)
			if err != nil {
				return err
			}
			groups = append(groups, g)
		}
		return nil
	})
	return groups, err
}

func (r *Registry) GroupDetails(ctx context.Context, groupID string) (Details, error) {
	var d Details
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		var err error
		if d.Group, err = tx.GetGroup(groupID); err != nil {
			return err
		}
		members, err := tx.MembershipsByGroup(groupID)
		if err != nil {
			return err
		}
		d.Members = make([]MemberView, 0, len(members))
		for _, m := range members {
			u, err := tx.GetUser(m.UserID)
			if err != nil {
				return err
			}
			d.Members = append(d.Members, MemberView{
				UserID:      u.ID,
				UserName:    u.UserName,
				DisplayName: u.DisplayName,
				Role:        m.Role,
				JoinedAt:    m.JoinedAt,
			})
		}
		return nil
	})
	return d, err
}

func (r *Registry) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GetGroup(groupID); err != nil {
			return err
		}
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
