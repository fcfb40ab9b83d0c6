package account

import (
	"context"
	"errors"
	"fmt"

	"parley/internal/group"
	"parley/internal/models"
	"parley/internal/social"
	"parley/internal/storage"
)

// DeletionReport summarises what removing an account touched.
type DeletionReport struct {
	UserID         string              `json:"userId"`
	DirectMessages int                 `json:"directMessages"`
	FriendRequests int                 `json:"friendRequests"`
	GroupMessages  int                 `json:"groupMessages"`
	Groups         []group.Disposition `json:"groups"`
}

// deletion is the state shared by the steps of one account removal.
type deletion struct {
	tx      *storage.Tx
	userID  string
	friends []string
	touched []string
	report  DeletionReport
}

func (d *deletion) touch(groupID string) {
	for _, id := range d.touched {
		if id == groupID {
			return
		}
	}
	d.touched = append(d.touched, groupID)
}

func (d *deletion) record(disp group.Disposition) {
	d.touch(disp.GroupID)
	if disp.Outcome != group.Unchanged {
		d.report.Groups = append(d.report.Groups, disp)
	}
}

type step struct {
	name string
	run  func(d *deletion) error
}

// Owned groups must be disposed of while the user's memberships still exist,
// so the heir is chosen from the other members.
var deletionSteps = []step{
	{"direct_messages", deleteDirectMessages},
	{"friend_requests", deleteFriendRequests},
	{"owned_groups", disposeOwnedGroups},
	{"memberships", deleteMemberships},
	{"group_messages", deleteGroupMessages},
	{"user", deleteUserRecord},
	{"verify", verifyDeletion},
}

func deleteDirectMessages(d *deletion) error {
	n, err := d.tx.DeleteDirectMessagesOf(d.userID)
	d.report.DirectMessages = n
	return err
}

func deleteFriendRequests(d *deletion) error {
	sent, err := d.tx.FriendRequestsBySender(d.userID, "")
	if err != nil {
		return err
	}
	received, err := d.tx.FriendRequestsByReceiver(d.userID, "")
	if err != nil {
		return err
	}
	for _, r := range append(sent, received...) {
		if err := d.tx.DeleteFriendRequest(r.ID); err != nil {
			return err
		}
		d.report.FriendRequests++
	}
	return nil
}

func disposeOwnedGroups(d *deletion) error {
	owned, err := d.tx.GroupsCreatedBy(d.userID)
	if err != nil {
		return err
	}
	for _, g := range owned {
		disp, err := group.DisposeOwnership(d.tx, g, d.userID)
		if err != nil {
			return fmt.Errorf("group %s: %w", g.ID, err)
		}
		d.record(disp)
	}
	return nil
}

func deleteMemberships(d *deletion) error {
	memberships, err := d.tx.MembershipsByUser(d.userID)
	if err != nil {
		return err
	}
	for _, m := range memberships {
		disp, err := group.EnsureAdmin(d.tx, m.GroupID, d.userID)
		if err != nil {
			return fmt.Errorf("group %s: %w", m.GroupID, err)
		}
		d.record(disp)
		if disp.Outcome == group.Dissolved {
			continue
		}
		if err := d.tx.DeleteMembership(m.GroupID, d.userID); err != nil {
			return err
		}
	}
	return nil
}

func deleteGroupMessages(d *deletion) error {
	n, err := d.tx.DeleteGroupMessagesBySender(d.userID)
	d.report.GroupMessages = n
	return err
}

func deleteUserRecord(d *deletion) error {
	if err := d.tx.DeletePushSubscriptions(d.userID); err != nil {
		return err
	}
	return d.tx.DeleteUser(d.userID)
}

func verifyDeletion(d *deletion) error {
	if d.tx.UserExists(d.userID) {
		return errors.New("user record still present")
	}
	if ms, err := d.tx.MembershipsByUser(d.userID); err != nil {
		return err
	} else if len(ms) > 0 {
		return fmt.Errorf("%d memberships left", len(ms))
	}
	for _, groupID := range d.touched {
		if _, err := d.tx.GetGroup(groupID); errors.Is(err, models.ErrNotFound) {
			continue
		} else if err != nil {
			return err
		}
		ok, err := group.HasAdmin(d.tx, groupID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("group %s has no admin", groupID)
		}
	}
	return nil
}

// DeleteUser removes the account and everything that refers to it in one
// transaction. Groups the user created pass to another member or are
// dissolved when nobody else is left. Any failure leaves the store untouched.
func (s *Service) DeleteUser(ctx context.Context, userID string) (DeletionReport, error) {
	var d *deletion
	err := s.store.Update(ctx, func(tx *storage.Tx) error {
		if !tx.UserExists(userID) {
			return fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
		}
		d = &deletion{
			tx:     tx,
			userID: userID,
			report: DeletionReport{UserID: userID},
		}

		var err error
		if d.friends, err = social.FriendIDsTx(tx, userID); err != nil {
			return fmt.Errorf("%w: account deletion: %w", models.ErrInternal, err)
		}

		for _, st := range s.steps {
			if err := st.run(d); err != nil {
				return fmt.Errorf("%w: account deletion step %s: %w", models.ErrInternal, st.name, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrInternal) {
			s.logger.Error("account deletion failed", "user_id", userID, "error", err)
		}
		return DeletionReport{}, err
	}

	s.afterDeletion(d)
	s.logger.Info("account deleted",
		"user_id", userID,
		"direct_messages", d.report.DirectMessages,
		"friend_requests", d.report.FriendRequests,
		"group_messages", d.report.GroupMessages,
		"groups", len(d.report.Groups),
	)
	return d.report, nil
}

func (s *Service) afterDeletion(d *deletion) {
	s.sessions.RevokeUser(d.userID)

	for _, id := range d.friends {
		s.publisher.NotifyDirect(id, models.ServerMessage{Type: models.ServerMessageTypeOffline, UserID: d.userID})
		s.publisher.NotifyDirect(id, models.ServerMessage{Type: models.ServerMessageTypeFriendRemoved, UserID: d.userID})
	}

	dissolved := make(map[string]bool)
	for _, disp := range d.report.Groups {
		if disp.Outcome == group.Dissolved {
			dissolved[disp.GroupID] = true
			continue
		}
		g := disp.Group
		s.publisher.NotifyTopic(disp.GroupID, models.ServerMessage{
			Type:    models.ServerMessageTypeGroupUpdated,
			GroupID: disp.GroupID,
			UserID:  disp.UserID,
			Group:   &g,
		})
	}
	for _, groupID := range d.touched {
		if dissolved[groupID] {
			continue
		}
		s.publisher.NotifyTopic(groupID, models.ServerMessage{
			Type:    models.ServerMessageTypeMemberLeft,
			GroupID: groupID,
			UserID:  d.userID,
		})
	}

	s.publisher.NotifyDirect(d.userID, models.ServerMessage{Type: models.ServerMessageTypeAccountDeleted, UserID: d.userID})
	s.publisher.Disconnect(d.userID)
}
