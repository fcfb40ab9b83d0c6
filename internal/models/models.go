package models

// User represents a user in the system.
type User struct {
	ID          string   `json:"id"`
	UserName    string   `json:"userName"`
	Email       string   `json:"email"`
	DisplayName string   `json:"displayName"`
	Presence    Presence `json:"presence"`
	Profile     Profile  `json:"profile"`
	CreatedAt   int64    `json:"createdAt"`
}

// Presence represents the online status of a user.
type Presence struct {
	Online   bool  `json:"online"`
	LastSeen int64 `json:"lastSeen"` // Unix timestamp (milliseconds)
}

// Profile holds free-form profile metadata.
type Profile struct {
	Status       string `json:"status,omitempty"`
	Theme        string `json:"theme,omitempty"`
	Phone        string `json:"phone,omitempty"`
	AvatarFileID string `json:"avatarFileId,omitempty"`
}

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "PENDING"
	FriendRequestAccepted FriendRequestStatus = "ACCEPTED"
	FriendRequestRejected FriendRequestStatus = "REJECTED"
)

// FriendRequest is the only record of a relation between two users.
// Friendship is an ACCEPTED request in either direction.
type FriendRequest struct {
	ID         string              `json:"id"`
	SenderID   string              `json:"senderId"`
	ReceiverID string              `json:"receiverId"`
	Status     FriendRequestStatus `json:"status"`
	CreatedAt  int64               `json:"createdAt"`
}

// Counterparty returns the other side of the request.
func (r FriendRequest) Counterparty(userID string) string {
	if r.SenderID == userID {
		return r.ReceiverID
	}
	return r.SenderID
}

type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeFile  MessageType = "FILE"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// Attachment references an opaque blob kept by the file store.
type Attachment struct {
	FileID   string `json:"fileId"`
	MimeType string `json:"mimeType"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
}

// DirectMessage is a message between exactly two users.
type DirectMessage struct {
	ID         string      `json:"id"`
	Seq        int64       `json:"seq"`
	SenderID   string      `json:"senderId"`
	ReceiverID string      `json:"receiverId"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Media      *Attachment `json:"media,omitempty"`
	Read       bool        `json:"read"`
	Timestamp  int64       `json:"timestamp"` // Unix timestamp (milliseconds)
}

// Group is a named conversation between members.
type Group struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Image       *Attachment `json:"image,omitempty"`
	CreatedBy   string      `json:"createdBy"`
	CreatedAt   int64       `json:"createdAt"`
}

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

type GroupMembership struct {
	ID       string `json:"id"`
	GroupID  string `json:"groupId"`
	UserID   string `json:"userId"`
	Role     Role   `json:"role"`
	JoinedAt int64  `json:"joinedAt"`
}

type GroupMessage struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"seq"`
	GroupID   string      `json:"groupId"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	Media     *Attachment `json:"media,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// ClientMessage represents a message sent from the client to the server.
type ClientMessage struct {
	Type       ClientMessageType `json:"type"`
	ReceiverID string            `json:"receiverId,omitempty"`
	GroupID    string            `json:"groupId,omitempty"`
	Content    string            `json:"content,omitempty"`
	Typing     bool              `json:"typing,omitempty"`
}

// ServerMessage represents an event delivered to the client.
type ServerMessage struct {
	Type          ServerMessageType `json:"type"`
	UserID        string            `json:"userId,omitempty"`
	Online        bool              `json:"online,omitempty"`
	GroupID       string            `json:"groupId,omitempty"`
	Typing        bool              `json:"typing,omitempty"`
	Message       *DirectMessage    `json:"message,omitempty"`
	GroupMessage  *GroupMessage     `json:"groupMessage,omitempty"`
	FriendRequest *FriendRequest    `json:"friendRequest,omitempty"`
	Group         *Group            `json:"group,omitempty"`
	Error         string            `json:"error,omitempty"`
}

type ClientMessageType string

const (
	ClientMessageTypeSend      ClientMessageType = "send"
	ClientMessageTypeSendGroup ClientMessageType = "send_group"
	ClientMessageTypeTyping    ClientMessageType = "typing"
	ClientMessageTypeRead      ClientMessageType = "read"
)

type ServerMessageType string

const (
	ServerMessageTypeOnline               ServerMessageType = "online"
	ServerMessageTypeOffline              ServerMessageType = "offline"
	ServerMessageTypeMessage              ServerMessageType = "message"
	ServerMessageTypeRead                 ServerMessageType = "read"
	ServerMessageTypeTyping               ServerMessageType = "typing"
	ServerMessageTypeGroupMessage         ServerMessageType = "group_message"
	ServerMessageTypeGroupUpdated         ServerMessageType = "group_updated"
	ServerMessageTypeMemberJoined         ServerMessageType = "member_joined"
	ServerMessageTypeMemberLeft           ServerMessageType = "member_left"
	ServerMessageTypeFriendRequest        ServerMessageType = "friend_request"
	ServerMessageTypeFriendRequestUpdated ServerMessageType = "friend_request_updated"
	ServerMessageTypeFriendRemoved        ServerMessageType = "friend_removed"
	ServerMessageTypeAccountDeleted       ServerMessageType = "account_deleted"
	ServerMessageTypeError                ServerMessageType = "error"
)
