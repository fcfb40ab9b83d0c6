package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"

	"parley/internal/models"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBUser struct {
	ID           string `msgpack:"id"`
	UserName     string `msgpack:"userName"`
	Email        string `msgpack:"email"`
	DisplayName  string `msgpack:"displayName"`
	Online       bool   `msgpack:"online"`
	LastSeen     int64  `msgpack:"lastSeen"`
	Status       string `msgpack:"status"`
	Theme        string `msgpack:"theme"`
	Phone        string `msgpack:"phone"`
	AvatarFileID string `msgpack:"avatarFileId"`
	PasswordHash string `msgpack:"passwordHash"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

func (u *DBUser) Key() []byte {
	return []byte(u.ID)
}

func (u *DBUser) MarshalBinary() (data []byte, err error) {
	type alias DBUser
	return msgpack.Marshal((*alias)(u))
}

func (u *DBUser) UnmarshalBinary(data []byte) error {
	type alias DBUser
	return msgpack.Unmarshal(data, (*alias)(u))
}

func (u *DBUser) model() models.User {
	return models.User{
		ID:          u.ID,
		UserName:    u.UserName,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Presence: models.Presence{
			Online:   u.Online,
			LastSeen: u.LastSeen,
		},
		Profile: models.Profile{
			Status:       u.Status,
			Theme:        u.Theme,
			Phone:        u.Phone,
			AvatarFileID: u.AvatarFileID,
		},
		CreatedAt: u.CreatedAt,
	}
}

type DBFriendRequest struct {
	ID         string `msgpack:"id"`
	SenderID   string `msgpack:"senderId"`
	ReceiverID string `msgpack:"receiverId"`
	Status     string `msgpack:"status"`
	CreatedAt  int64  `msgpack:"createdAt"`
}

func (r *DBFriendRequest) Key() []byte {
	return []byte(r.ID)
}

func (r *DBFriendRequest) MarshalBinary() (data []byte, err error) {
	type alias DBFriendRequest
	return msgpack.Marshal((*alias)(r))
}

func (r *DBFriendRequest) UnmarshalBinary(data []byte) error {
	type alias DBFriendRequest
	return msgpack.Unmarshal(data, (*alias)(r))
}

func (r *DBFriendRequest) model() models.FriendRequest {
	return models.FriendRequest{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Status:     models.FriendRequestStatus(r.Status),
		CreatedAt:  r.CreatedAt,
	}
}

type DBAttachment struct {
	FileID   string `msgpack:"fileId"`
	MimeType string `msgpack:"mimeType"`
	Name     string `msgpack:"name"`
	Size     int64  `msgpack:"size"`
}

func toDBAttachment(a *models.Attachment) *DBAttachment {
	if a == nil {
		return nil
	}
	return &DBAttachment{FileID: a.FileID, MimeType: a.MimeType, Name: a.Name, Size: a.Size}
}

func (a *DBAttachment) model() *models.Attachment {
	if a == nil {
		return nil
	}
	return &models.Attachment{FileID: a.FileID, MimeType: a.MimeType, Name: a.Name, Size: a.Size}
}

type DBDirectMessage struct {
	ID         string        `msgpack:"id"`
	Seq        int64         `msgpack:"seq"`
	SenderID   string        `msgpack:"senderId"`
	ReceiverID string        `msgpack:"receiverId"`
	Content    string        `msgpack:"content"`
	Type       string        `msgpack:"type"`
	Media      *DBAttachment `msgpack:"media"`
	Read       bool          `msgpack:"read"`
	Timestamp  int64         `msgpack:"timestamp"`
}

func (m *DBDirectMessage) Key() []byte {
	return seqKey(m.Seq)
}

func (m *DBDirectMessage) MarshalBinary() (data []byte, err error) {
	type alias DBDirectMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBDirectMessage) UnmarshalBinary(data []byte) error {
	type alias DBDirectMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBDirectMessage) model() models.DirectMessage {
	return models.DirectMessage{
		ID:         m.ID,
		Seq:        m.Seq,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Type:       models.MessageType(m.Type),
		Media:      m.Media.model(),
		Read:       m.Read,
		Timestamp:  m.Timestamp,
	}
}

// DBMessageRef locates a direct message inside its conversation bucket.
type DBMessageRef struct {
	ID   string `msgpack:"id"`
	Pair string `msgpack:"pair"`
	Seq  int64  `msgpack:"seq"`
}

func (r *DBMessageRef) Key() []byte {
	return []byte(r.ID)
}

func (r *DBMessageRef) MarshalBinary() (data []byte, err error) {
	type alias DBMessageRef
	return msgpack.Marshal((*alias)(r))
}

func (r *DBMessageRef) UnmarshalBinary(data []byte) error {
	type alias DBMessageRef
	return msgpack.Unmarshal(data, (*alias)(r))
}

type DBGroup struct {
	ID          string        `msgpack:"id"`
	Name        string        `msgpack:"name"`
	Description string        `msgpack:"description"`
	Image       *DBAttachment `msgpack:"image"`
	CreatedBy   string        `msgpack:"createdBy"`
	CreatedAt   int64         `msgpack:"createdAt"`
}

func (g *DBGroup) Key() []byte {
	return []byte(g.ID)
}

func (g *DBGroup) MarshalBinary() (data []byte, err error) {
	type alias DBGroup
	return msgpack.Marshal((*alias)(g))
}

func (g *DBGroup) UnmarshalBinary(data []byte) error {
	type alias DBGroup
	return msgpack.Unmarshal(data, (*alias)(g))
}

func (g *DBGroup) model() models.Group {
	return models.Group{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Image:       g.Image.model(),
		CreatedBy:   g.CreatedBy,
		CreatedAt:   g.CreatedAt,
	}
}

type DBMembership struct {
	ID       string `msgpack:"id"`
	GroupID  string `msgpack:"groupId"`
	UserID   string `msgpack:"userId"`
	Role     string `msgpack:"role"`
	JoinedAt int64  `msgpack:"joinedAt"`
}

// Key is the user id: memberships live in a per-group bucket.
func (m *DBMembership) Key() []byte {
	return []byte(m.UserID)
}

func (m *DBMembership) MarshalBinary() (data []byte, err error) {
	type alias DBMembership
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMembership) UnmarshalBinary(data []byte) error {
	type alias DBMembership
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBMembership) model() models.GroupMembership {
	return models.GroupMembership{
		ID:       m.ID,
		GroupID:  m.GroupID,
		UserID:   m.UserID,
		Role:     models.Role(m.Role),
		JoinedAt: m.JoinedAt,
	}
}

type DBGroupMessage struct {
	ID        string        `msgpack:"id"`
	Seq       int64         `msgpack:"seq"`
	GroupID   string        `msgpack:"groupId"`
	SenderID  string        `msgpack:"senderId"`
	Content   string        `msgpack:"content"`
	Type      string        `msgpack:"type"`
	Media     *DBAttachment `msgpack:"media"`
	Timestamp int64         `msgpack:"timestamp"`
}

func (m *DBGroupMessage) Key() []byte {
	return seqKey(m.Seq)
}

func (m *DBGroupMessage) MarshalBinary() (data []byte, err error) {
	type alias DBGroupMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBGroupMessage) UnmarshalBinary(data []byte) error {
	type alias DBGroupMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBGroupMessage) model() models.GroupMessage {
	return models.GroupMessage{
		ID:        m.ID,
		Seq:       m.Seq,
		GroupID:   m.GroupID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      models.MessageType(m.Type),
		Media:     m.Media.model(),
		Timestamp: m.Timestamp,
	}
}

func seqKey(seq int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(seq))
	return key
}
