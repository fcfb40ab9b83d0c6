package storage

import (
	"fmt"
	"sort"

	"parley/internal/models"
)

func (t *Tx) GetFriendRequest(id string) (models.FriendRequest, error) {
	var r DBFriendRequest
	ok, err := get(t.tx.Bucket(bucketFriendRequests), []byte(id), &r)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if !ok {
		return models.FriendRequest{}, fmt.Errorf("%w: friend request %s", models.ErrNotFound, id)
	}
	return r.model(), nil
}

// FriendRequestByPair finds the request between a and b regardless of who sent it.
func (t *Tx) FriendRequestByPair(a, b string) (models.FriendRequest, bool, error) {
	id := t.tx.Bucket(bucketFriendPairs).Get([]byte(pairKey(a, b)))
	if id == nil {
		return models.FriendRequest{}, false, nil
	}
	r, err := t.GetFriendRequest(string(id))
	if err != nil {
		return models.FriendRequest{}, false, fmt.Errorf("dangling friend pair index %s: %w", pairKey(a, b), err)
	}
	return r, true, nil
}

// PutFriendRequest saves the request and claims the pair index. It fails with
// models.ErrConflict if another request already holds the pair.
func (t *Tx) PutFriendRequest(r models.FriendRequest) error {
	pairs := t.tx.Bucket(bucketFriendPairs)
	key := []byte(pairKey(r.SenderID, r.ReceiverID))
	if owner := pairs.Get(key); owner != nil && string(owner) != r.ID {
		return fmt.Errorf("%w: friend request already exists", models.ErrConflict)
	}

	dbReq := &DBFriendRequest{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
	}
	if err := put(t.tx.Bucket(bucketFriendRequests), dbReq); err != nil {
		return err
	}
	return pairs.Put(key, []byte(r.ID))
}

func (t *Tx) DeleteFriendRequest(id string) error {
	r, err := t.GetFriendRequest(id)
	if err != nil {
		return err
	}
	if err := t.tx.Bucket(bucketFriendPairs).Delete([]byte(pairKey(r.SenderID, r.ReceiverID))); err != nil {
		return err
	}
	return t.tx.Bucket(bucketFriendRequests).Delete([]byte(id))
}

// FriendRequestsBySender lists requests sent by userID. An empty status matches any.
func (t *Tx) FriendRequestsBySender(userID string, status models.FriendRequestStatus) ([]models.FriendRequest, error) {
	return t.filterFriendRequests(func(r *DBFriendRequest) bool {
		return r.SenderID == userID && (status == "" || r.Status == string(status))
	})
}

// FriendRequestsByReceiver lists requests received by userID. An empty status matches any.
func (t *Tx) FriendRequestsByReceiver(userID string, status models.FriendRequestStatus) ([]models.FriendRequest, error) {
	return t.filterFriendRequests(func(r *DBFriendRequest) bool {
		return r.ReceiverID == userID && (status == "" || r.Status == string(status))
	})
}

func (t *Tx) filterFriendRequests(match func(r *DBFriendRequest) bool) ([]models.FriendRequest, error) {
	var result []models.FriendRequest
	err := t.tx.Bucket(bucketFriendRequests).ForEach(func(k, v []byte) error {
		var r DBFriendRequest
		if err := r.UnmarshalBinary(v); err != nil {
			return err
		}
		if match(&r) {
			result = append(result, r.model())
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].ID < result[j].ID
	})
	return result, err
}
