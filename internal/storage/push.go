package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// PushSubscription is a browser web push endpoint registered by a user.
type PushSubscription struct {
	UserID   string `msgpack:"userId" json:"-"`
	Endpoint string `msgpack:"endpoint" json:"endpoint"`
	Auth     string `msgpack:"auth" json:"auth"`
	P256dh   string `msgpack:"p256dh" json:"p256dh"`
}

func (p *PushSubscription) Key() []byte {
	sum := sha256.Sum256([]byte(p.Endpoint))
	return []byte(hex.EncodeToString(sum[:]))
}

func (p *PushSubscription) MarshalBinary() (data []byte, err error) {
	type alias PushSubscription
	return msgpack.Marshal((*alias)(p))
}

func (p *PushSubscription) UnmarshalBinary(data []byte) error {
	type alias PushSubscription
	return msgpack.Unmarshal(data, (*alias)(p))
}

func (t *Tx) PutPushSubscription(sub PushSubscription) error {
	b, err := t.tx.Bucket(bucketPushSubscriptions).CreateBucketIfNotExists([]byte(sub.UserID))
	if err != nil {
		return fmt.Errorf("failed to create push bucket: %w", err)
	}
	return put(b, &sub)
}

func (t *Tx) PushSubscriptions(userID string) ([]PushSubscription, error) {
	b := t.tx.Bucket(bucketPushSubscriptions).Bucket([]byte(userID))
	if b == nil {
		return nil, nil
	}
	var subs []PushSubscription
	err := b.ForEach(func(k, v []byte) error {
		var sub PushSubscription
		if err := sub.UnmarshalBinary(v); err != nil {
			return err
		}
		subs = append(subs, sub)
		return nil
	})
	return subs, err
}

func (t *Tx) DeletePushSubscription(userID, endpoint string) error {
	b := t.tx.Bucket(bucketPushSubscriptions).Bucket([]byte(userID))
	if b == nil {
		return nil
	}
	sub := PushSubscription{Endpoint: endpoint}
	return b.Delete(sub.Key())
}

func (t *Tx) DeletePushSubscriptions(userID string) error {
	return deleteNested(t.tx.Bucket(bucketPushSubscriptions), []byte(userID))
}

// PushSubscriptions lists the subscriptions of a user in its own transaction.
func (s *BboltStorage) PushSubscriptions(ctx context.Context, userID string) ([]PushSubscription, error) {
	var subs []PushSubscription
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		subs, err = tx.PushSubscriptions(userID)
		return err
	})
	return subs, err
}

// RemovePushSubscription drops a subscription the push service reported as gone.
func (s *BboltStorage) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	return s.Update(ctx, func(tx *Tx) error {
		return tx.DeletePushSubscription(userID, endpoint)
	})
}
