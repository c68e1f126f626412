package database

import "time"

type Repository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)

	GetPresence(accountId int) (Presence, error)
	TouchLastSeen(accountId int, now time.Time) error
	// OpenPresenceSession marks the account online, starting the session
	// timer only if one is not already running.
	OpenPresenceSession(accountId int, now time.Time) error
	// ClosePresenceSession flushes the open session into the accumulated
	// total and marks the account offline. Returns false when no session
	// was open, making repeated calls idempotent.
	ClosePresenceSession(accountId int, now time.Time) (bool, error)
	ListStaleOnlinePresences(cutoff time.Time, limit int) ([]Presence, error)
	CountOnline() (int, error)
	GetPresences(accountIds []int) ([]Presence, error)

	// IncrementFailedLogins atomically bumps the counter and returns the
	// new value.
	IncrementFailedLogins(accountId int) (int, error)
	SetLock(accountId int, until time.Time) error
	ResetFailedLogins(accountId int) error
	ClearLock(accountId int) error

	CreateConversation(userAId, userBId int, externalId string) (Conversation, bool, error)
	GetConversationById(id int) (Conversation, error)
	ListConversations(accountId int) ([]Conversation, error)
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessageById(id int) (Message, error)
	GetMessages(conversationId, viewerId int, filter MessageFilter) ([]Message, error)
	GetLastMessage(conversationId int) (*Message, error)
	MarkMessagesRead(conversationId, viewerId int, messageIds []int) (int, error)
	MarkAllMessagesRead(conversationId, viewerId int) (int, error)
	UnreadCount(conversationId, viewerId int) (int, error)
	GlobalUnreadCount(viewerId int) (int, error)
	MessageStatuses(conversationId, senderId int) (map[int]bool, error)

	RecordActivity(accountId int, event ActivityEventType, day time.Time) error
}
