package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Conversation struct {
	Id          int       `json:"id"`
	ExternalId  string    `json:"external_id"`
	Peer        User      `json:"peer"`
	PeerOnline  bool      `json:"peer_online"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

type Message struct {
	Id             int       `json:"id"`
	ConversationId int       `json:"conversation_id"`
	SenderId       int       `json:"sender_id"`
	Content        string    `json:"content"`
	AttachmentPath string    `json:"attachment_path,omitempty"`
	AttachmentSecs int       `json:"attachment_duration_seconds,omitempty"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

type PresenceStatus struct {
	UserId     int       `json:"id"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
