package storage

import (
	"fmt"

	"go.etcd.io/bbolt"

	"parley/internal/models"
)

// AppendDirectMessage stores a new message at the end of its conversation.
// It assigns m.Seq and clamps m.Timestamp so that timestamps never decrease
// along the conversation.
func (t *Tx) AppendDirectMessage(m *models.DirectMessage) error {
	pair := pairKey(m.SenderID, m.ReceiverID)
	conv, err := t.tx.Bucket(bucketConversations).CreateBucketIfNotExists([]byte(pair))
	if err != nil {
		return fmt.Errorf("failed to create conversation bucket: %w", err)
	}

	seq, err := conv.NextSequence()
	if err != nil {
		return err
	}
	m.Seq = int64(seq)

	if _, last := conv.Cursor().Last(); last != nil {
		var prev DBDirectMessage
		if err := prev.UnmarshalBinary(last); err != nil {
			return fmt.Errorf("failed to unmarshal message: %w", err)
		}
		if m.Timestamp < prev.Timestamp {
			m.Timestamp = prev.Timestamp
		}
	}

	if err := putDirectMessage(conv, *m); err != nil {
		return err
	}
	return put(t.tx.Bucket(bucketMessageRefs), &DBMessageRef{ID: m.ID, Pair: pair, Seq: m.Seq})
}

func putDirectMessage(conv *bbolt.Bucket, m models.DirectMessage) error {
	return put(conv, &DBDirectMessage{
		ID:         m.ID,
		Seq:        m.Seq,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Type:       string(m.Type),
		Media:      toDBAttachment(m.Media),
		Read:       m.Read,
		Timestamp:  m.Timestamp,
	})
}

// Conversation returns every message between a and b in creation order.
func (t *Tx) Conversation(a, b string) ([]models.DirectMessage, error) {
	conv := t.tx.Bucket(bucketConversations).Bucket([]byte(pairKey(a, b)))
	if conv == nil {
		return nil, nil
	}

	var messages []models.DirectMessage
	err := conv.ForEach(func(k, v []byte) error {
		var m DBDirectMessage
		if err := m.UnmarshalBinary(v); err != nil {
			return err
		}
		messages = append(messages, m.model())
		return nil
	})
	return messages, err
}

func (t *Tx) GetDirectMessage(id string) (models.DirectMessage, error) {
	var ref DBMessageRef
	ok, err := get(t.tx.Bucket(bucketMessageRefs), []byte(id), &ref)
	if err != nil {
		return models.DirectMessage{}, err
	}
	if !ok {
		return models.DirectMessage{}, fmt.Errorf("%w: message %s", models.ErrNotFound, id)
	}

	var m DBDirectMessage
	ok, err = get(t.tx.Bucket(bucketConversations).Bucket([]byte(ref.Pair)), seqKey(ref.Seq), &m)
	if err != nil {
		return models.DirectMessage{}, err
	}
	if !ok {
		return models.DirectMessage{}, fmt.Errorf("dangling message ref %s", id)
	}
	return m.model(), nil
}

// UpdateDirectMessage overwrites an existing message in place.
func (t *Tx) UpdateDirectMessage(m models.DirectMessage) error {
	conv := t.tx.Bucket(bucketConversations).Bucket([]byte(pairKey(m.SenderID, m.ReceiverID)))
	if conv == nil || conv.Get(seqKey(m.Seq)) == nil {
		return fmt.Errorf("%w: message %s", models.ErrNotFound, m.ID)
	}
	return putDirectMessage(conv, m)
}

// DeleteDirectMessagesOf drops every conversation the user takes part in.
func (t *Tx) DeleteDirectMessagesOf(userID string) (int, error) {
	convs := t.tx.Bucket(bucketConversations)
	refs := t.tx.Bucket(bucketMessageRefs)

	var pairs [][]byte
	err := convs.ForEach(func(k, v []byte) error {
		if v == nil && pairHas(string(k), userID) {
			pairs = append(pairs, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, pair := range pairs {
		err := convs.Bucket(pair).ForEach(func(k, v []byte) error {
			var m DBDirectMessage
			if err := m.UnmarshalBinary(v); err != nil {
				return err
			}
			deleted++
			return refs.Delete([]byte(m.ID))
		})
		if err != nil {
			return 0, err
		}
		if err := convs.DeleteBucket(pair); err != nil {
			return 0, fmt.Errorf("failed to delete conversation %s: %w", pair, err)
		}
	}
	return deleted, nil
}
