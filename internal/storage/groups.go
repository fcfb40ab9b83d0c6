package storage

import (
	"errors"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"parley/internal/models"
)

func (t *Tx) GetGroup(id string) (models.Group, error) {
	var g DBGroup
	ok, err := get(t.tx.Bucket(bucketGroups), []byte(id), &g)
	if err != nil {
		return models.Group{}, err
	}
	if !ok {
		return models.Group{}, fmt.Errorf("%w: group %s", models.ErrNotFound, id)
	}
	return g.model(), nil
}

func (t *Tx) PutGroup(g models.Group) error {
	return put(t.tx.Bucket(bucketGroups), &DBGroup{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Image:       toDBAttachment(g.Image),
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
	})
}

// GroupsCreatedBy lists groups whose createdBy is userID, oldest first.
func (t *Tx) GroupsCreatedBy(userID string) ([]models.Group, error) {
	var groups []models.Group
	err := t.tx.Bucket(bucketGroups).ForEach(func(k, v []byte) error {
		var g DBGroup
		if err := g.UnmarshalBinary(v); err != nil {
			return err
		}
		if g.CreatedBy == userID {
			groups = append(groups, g.model())
		}
		return nil
	})
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].CreatedAt != groups[j].CreatedAt {
			return groups[i].CreatedAt < groups[j].CreatedAt
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, err
}

// DeleteGroup removes the group together with its memberships and messages.
func (t *Tx) DeleteGroup(id string) error {
	if _, err := t.GetGroup(id); err != nil {
		return err
	}

	members, err := t.MembershipsByGroup(id)
	if err != nil {
		return err
	}
	for _, m := range members {
		if err := t.DeleteMembership(id, m.UserID); err != nil {
			return err
		}
	}

	if err := deleteNested(t.tx.Bucket(bucketGroupMembers), []byte(id)); err != nil {
		return err
	}
	if err := deleteNested(t.tx.Bucket(bucketGroupMessages), []byte(id)); err != nil {
		return err
	}
	return t.tx.Bucket(bucketGroups).Delete([]byte(id))
}

func deleteNested(parent *bbolt.Bucket, name []byte) error {
	err := parent.DeleteBucket(name)
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil
	}
	return err
}

// GetMembership returns the membership of userID in groupID or models.ErrNotFound.
func (t *Tx) GetMembership(groupID, userID string) (models.GroupMembership, error) {
	var m DBMembership
	ok, err := get(t.tx.Bucket(bucketGroupMembers).Bucket([]byte(groupID)), []byte(userID), &m)
	if err != nil {
		return models.GroupMembership{}, err
	}
	if !ok {
		return models.GroupMembership{}, fmt.Errorf("%w: user %s is not a member of group %s", models.ErrNotFound, userID, groupID)
	}
	return m.model(), nil
}

func (t *Tx) MembershipExists(groupID, userID string) bool {
	members := t.tx.Bucket(bucketGroupMembers).Bucket([]byte(groupID))
	return members != nil && members.Get([]byte(userID)) != nil
}

// PutMembership creates or updates a membership and its per-user index entry.
func (t *Tx) PutMembership(m models.GroupMembership) error {
	members, err := t.tx.Bucket(bucketGroupMembers).CreateBucketIfNotExists([]byte(m.GroupID))
	if err != nil {
		return fmt.Errorf("failed to create members bucket: %w", err)
	}
	err = put(members, &DBMembership{
		ID:       m.ID,
		GroupID:  m.GroupID,
		UserID:   m.UserID,
		Role:     string(m.Role),
		JoinedAt: m.JoinedAt,
	})
	if err != nil {
		return err
	}

	userGroups, err := t.tx.Bucket(bucketUserGroups).CreateBucketIfNotExists([]byte(m.UserID))
	if err != nil {
		return fmt.Errorf("failed to create user groups bucket: %w", err)
	}
	return userGroups.Put([]byte(m.GroupID), []byte(m.ID))
}

func (t *Tx) DeleteMembership(groupID, userID string) error {
	members := t.tx.Bucket(bucketGroupMembers).Bucket([]byte(groupID))
	if members == nil || members.Get([]byte(userID)) == nil {
		return fmt.Errorf("%w: user %s is not a member of group %s", models.ErrNotFound, userID, groupID)
	}
	if err := members.Delete([]byte(userID)); err != nil {
		return err
	}

	userGroups := t.tx.Bucket(bucketUserGroups)
	if b := userGroups.Bucket([]byte(userID)); b != nil {
		if err := b.Delete([]byte(groupID)); err != nil {
			return err
		}
		if k, _ := b.Cursor().First(); k == nil {
			return deleteNested(userGroups, []byte(userID))
		}
	}
	return nil
}

// MembershipsByGroup returns members in join order; ties are broken by user id.
func (t *Tx) MembershipsByGroup(groupID string) ([]models.GroupMembership, error) {
	members := t.tx.Bucket(bucketGroupMembers).Bucket([]byte(groupID))
	if members == nil {
		return nil, nil
	}

	var result []models.GroupMembership
	err := members.ForEach(func(k, v []byte) error {
		var m DBMembership
		if err := m.UnmarshalBinary(v); err != nil {
			return err
		}
		result = append(result, m.model())
		return nil
	})
	sortMemberships(result)
	return result, err
}

// MembershipsByUser returns every membership held by userID.
func (t *Tx) MembershipsByUser(userID string) ([]models.GroupMembership, error) {
	userGroups := t.tx.Bucket(bucketUserGroups).Bucket([]byte(userID))
	if userGroups == nil {
		return nil, nil
	}

	var result []models.GroupMembership
	err := userGroups.ForEach(func(k, v []byte) error {
		m, err := t.GetMembership(string(k), userID)
		if err != nil {
			return fmt.Errorf("dangling user group index %s/%s: %w", userID, k, err)
		}
		result = append(result, m)
		return nil
	})
	sortMemberships(result)
	return result, err
}

func sortMemberships(ms []models.GroupMembership) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].JoinedAt != ms[j].JoinedAt {
			return ms[i].JoinedAt < ms[j].JoinedAt
		}
		return ms[i].UserID < ms[j].UserID
	})
}

// AppendGroupMessage stores a new message at the end of the group history,
// assigning m.Seq and clamping m.Timestamp like AppendDirectMessage.
func (t *Tx) AppendGroupMessage(m *models.GroupMessage) error {
	history, err := t.tx.Bucket(bucketGroupMessages).CreateBucketIfNotExists([]byte(m.GroupID))
	if err != nil {
		return fmt.Errorf("failed to create group messages bucket: %w", err)
	}

	seq, err := history.NextSequence()
	if err != nil {
		return err
	}
	m.Seq = int64(seq)

	if _, last := history.Cursor().Last(); last != nil {
		var prev DBGroupMessage
		if err := prev.UnmarshalBinary(last); err != nil {
			return fmt.Errorf("failed to unmarshal group message: %w", err)
		}
		if m.Timestamp < prev.Timestamp {
			m.Timestamp = prev.Timestamp
		}
	}

	return put(history, &DBGroupMessage{
		ID:        m.ID,
		Seq:       m.Seq,
		GroupID:   m.GroupID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      string(m.Type),
		Media:     toDBAttachment(m.Media),
		Timestamp: m.Timestamp,
	})
}

// GroupMessages returns the group history in creation order.
func (t *Tx) GroupMessages(groupID string) ([]models.GroupMessage, error) {
	history := t.tx.Bucket(bucketGroupMessages).Bucket([]byte(groupID))
	if history == nil {
		return nil, nil
	}

	var result []models.GroupMessage
	err := history.ForEach(func(k, v []byte) error {
		var m DBGroupMessage
		if err := m.UnmarshalBinary(v); err != nil {
			return err
		}
		result = append(result, m.model())
		return nil
	})
	return result, err
}

// DeleteGroupMessagesBySender removes every group message authored by userID.
func (t *Tx) DeleteGroupMessagesBySender(userID string) (int, error) {
	all := t.tx.Bucket(bucketGroupMessages)

	var groupIDs [][]byte
	err := all.ForEach(func(k, v []byte) error {
		if v == nil {
			groupIDs = append(groupIDs, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, groupID := range groupIDs {
		history := all.Bucket(groupID)
		var keys [][]byte
		err := history.ForEach(func(k, v []byte) error {
			var m DBGroupMessage
			if err := m.UnmarshalBinary(v); err != nil {
				return err
			}
			if m.SenderID == userID {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return 0, err
		}
		for _, k := range keys {
			if err := history.Delete(k); err != nil {
				return 0, err
			}
		}
		deleted += len(keys)
	}
	return deleted, nil
}
