package database

import (
	"database/sql"
	"time"
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Presence is the per-account online/offline row. SessionStartedAt is set
// while a session is open and cleared when the accumulated duration is
// flushed into TotalOnlineSeconds.
type Presence struct {
	AccountId          int
	Online             bool
	LastSeenAt         time.Time
	SessionStartedAt   sql.NullTime
	TotalOnlineSeconds int64
	FailedLoginCount   int
	LockedUntil        sql.NullTime
	UpdatedAt          time.Time
}

// Conversation stores the two participants canonically with UserAId < UserBId
// so the unordered pair maps to exactly one row.
type Conversation struct {
	Id         int
	ExternalId string
	UserAId    int
	UserBId    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Other returns the participant that is not accountId.
func (c Conversation) Other(accountId int) int {
	if c.UserAId == accountId {
		return c.UserBId
	}
	return c.UserAId
}

// HasParticipant reports whether accountId is one of the two parties.
func (c Conversation) HasParticipant(accountId int) bool {
	return c.UserAId == accountId || c.UserBId == accountId
}

type Message struct {
	Id             int
	ConversationId int
	SenderId       int
	Content        sql.NullString
	AttachmentPath sql.NullString
	AttachmentSecs sql.NullInt64
	IsRead         bool
	IsDeleted      bool
	CreatedAt      time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateMessageParams struct {
	ConversationId int
	SenderId       int
	Content        string
	AttachmentPath string
	AttachmentSecs int
}

// MessageFilter narrows FetchMessages.
type MessageFilter struct {
	UnreadOnly bool
	SinceId    int
}

type ActivityEventType string

const (
	ActivityLogin       ActivityEventType = "login"
	ActivityLogout      ActivityEventType = "logout"
	ActivityLoginFailed ActivityEventType = "login_failed"
	ActivityMessageSent ActivityEventType = "message_sent"
)
