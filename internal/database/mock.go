package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetPresence(accountId int) (Presence, error) {
	args := m.Called(accountId)
	return args.Get(0).(Presence), args.Error(1)
}
func (m *MockRepository) TouchLastSeen(accountId int, now time.Time) error {
	args := m.Called(accountId, now)
	return args.Error(0)
}
func (m *MockRepository) OpenPresenceSession(accountId int, now time.Time) error {
	args := m.Called(accountId, now)
	return args.Error(0)
}
func (m *MockRepository) ClosePresenceSession(accountId int, now time.Time) (bool, error) {
	args := m.Called(accountId, now)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) ListStaleOnlinePresences(cutoff time.Time, limit int) ([]Presence, error) {
	args := m.Called(cutoff, limit)
	return args.Get(0).([]Presence), args.Error(1)
}
func (m *MockRepository) CountOnline() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) GetPresences(accountIds []int) ([]Presence, error) {
	args := m.Called(accountIds)
	return args.Get(0).([]Presence), args.Error(1)
}
func (m *MockRepository) IncrementFailedLogins(accountId int) (int, error) {
	args := m.Called(accountId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) SetLock(accountId int, until time.Time) error {
	args := m.Called(accountId, until)
	return args.Error(0)
}
func (m *MockRepository) ResetFailedLogins(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockRepository) ClearLock(accountId int) error {
	args := m.Called(accountId)
	return args.Error(0)
}
func (m *MockRepository) CreateConversation(userAId, userBId int, externalId string) (Conversation, bool, error) {
	args := m.Called(userAId, userBId, externalId)
	return args.Get(0).(Conversation), args.Bool(1), args.Error(2)
}
func (m *MockRepository) GetConversationById(id int) (Conversation, error) {
	args := m.Called(id)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockRepository) ListConversations(accountId int) ([]Conversation, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Conversation), args.Error(1)
}
func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessageById(id int) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessages(conversationId, viewerId int, filter MessageFilter) ([]Message, error) {
	args := m.Called(conversationId, viewerId, filter)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) GetLastMessage(conversationId int) (*Message, error) {
	args := m.Called(conversationId)
	if msg, ok := args.Get(0).(*Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) MarkMessagesRead(conversationId, viewerId int, messageIds []int) (int, error) {
	args := m.Called(conversationId, viewerId, messageIds)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) MarkAllMessagesRead(conversationId, viewerId int) (int, error) {
	args := m.Called(conversationId, viewerId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) UnreadCount(conversationId, viewerId int) (int, error) {
	args := m.Called(conversationId, viewerId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) GlobalUnreadCount(viewerId int) (int, error) {
	args := m.Called(viewerId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) MessageStatuses(conversationId, senderId int) (map[int]bool, error) {
	args := m.Called(conversationId, senderId)
	return args.Get(0).(map[int]bool), args.Error(1)
}
func (m *MockRepository) RecordActivity(accountId int, event ActivityEventType, day time.Time) error {
	args := m.Called(accountId, event, day)
	return args.Error(0)
}
