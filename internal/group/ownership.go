package group

import (
	"parley/internal/models"
	"parley/internal/storage"
)

type Outcome string

const (
	Unchanged   Outcome = "unchanged"
	Transferred Outcome = "transferred"
	Promoted    Outcome = "promoted"
	Dissolved   Outcome = "dissolved"
)

// Disposition describes what happened to a group when a member left it.
type Disposition struct {
	GroupID string  `json:"groupId"`
	Outcome Outcome `json:"outcome"`
	// UserID is the new owner or the promoted member.
	UserID string       `json:"userId,omitempty"`
	Group  models.Group `json:"-"`
}

func others(members []models.GroupMembership, leaverID string) []models.GroupMembership {
	out := make([]models.GroupMembership, 0, len(members))
	for _, m := range members {
		if m.UserID != leaverID {
			out = append(out, m)
		}
	}
	return out
}

// DisposeOwnership hands a group created by leaverID to someone else. An
// existing admin becomes the creator; otherwise the earliest joined member is
// promoted to admin and made creator; a group with no one else is deleted
// with its messages and memberships. The leaver's own membership is left for
// the caller unless the group is dissolved.
func DisposeOwnership(tx *storage.Tx, g models.Group, leaverID string) (Disposition, error) {
	members, err := tx.MembershipsByGroup(g.ID)
	if err != nil {
		return Disposition{}, err
	}
	rest := others(members, leaverID)

	for _, m := range rest {
		if m.Role == models.RoleAdmin {
			g.CreatedBy = m.UserID
			if err := tx.PutGroup(g); err != nil {
				return Disposition{}, err
			}
			return Disposition{GroupID: g.ID, Outcome: Transferred, UserID: m.UserID, Group: g}, nil
		}
	}

	if len(rest) > 0 {
		heir := rest[0]
		heir.Role = models.RoleAdmin
		if err := tx.PutMembership(heir); err != nil {
			return Disposition{}, err
		}
		g.CreatedBy = heir.UserID
		if err := tx.PutGroup(g); err != nil {
			return Disposition{}, err
		}
		return Disposition{GroupID: g.ID, Outcome: Promoted, UserID: heir.UserID, Group: g}, nil
	}

	if err := tx.DeleteGroup(g.ID); err != nil {
		return Disposition{}, err
	}
	return Disposition{GroupID: g.ID, Outcome: Dissolved, Group: g}, nil
}

// EnsureAdmin keeps a group administered once leaverID is gone. It promotes
// the earliest joined member when the leaver is the last admin and dissolves
// the group when nobody else is left.
func EnsureAdmin(tx *storage.Tx, groupID, leaverID string) (Disposition, error) {
	g, err := tx.GetGroup(groupID)
	if err != nil {
		return Disposition{}, err
	}
	members, err := tx.MembershipsByGroup(groupID)
	if err != nil {
		return Disposition{}, err
	}
	rest := others(members, leaverID)

	if len(rest) == 0 {
		if err := tx.DeleteGroup(groupID); err != nil {
			return Disposition{}, err
		}
		return Disposition{GroupID: groupID, Outcome: Dissolved, Group: g}, nil
	}

	for _, m := range rest {
		if m.Role == models.RoleAdmin {
			return Disposition{GroupID: groupID, Outcome: Unchanged, Group: g}, nil
		}
	}

	heir := rest[0]
	heir.Role = models.RoleAdmin
	if err := tx.PutMembership(heir); err != nil {
		return Disposition{}, err
	}
	return Disposition{GroupID: groupID, Outcome: Promoted, UserID: heir.UserID, Group: g}, nil
}

// HasAdmin reports whether the group has at least one admin member.
func HasAdmin(tx *storage.Tx, groupID string) (bool, error) {
	members, err := tx.MembershipsByGroup(groupID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.Role == models.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}
