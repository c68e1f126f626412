package chat

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/akarpov/gametrade/internal/database"
	"github.com/akarpov/gametrade/internal/stats"
	"github.com/akarpov/gametrade/internal/types"
	"github.com/teris-io/shortid"
)

var (
	// ErrNotParticipant is returned when an account acts on a conversation
	// it is not part of.
	ErrNotParticipant = errors.New("account is not a participant in conversation")
	// ErrEmptyMessage is returned when a message has neither content nor
	// an attachment.
	ErrEmptyMessage = errors.New("message has no content or attachment")
	// ErrSamePeer is returned when both conversation parties are the same
	// account.
	ErrSamePeer = errors.New("conversation requires two distinct accounts")
)

// Service owns two-party conversations and their read state. Viewing a
// message through any fetch is what marks it read; read state never goes
// back to unread.
type Service struct {
	log   *log.Logger
	db    database.Repository
	stats stats.StatsProvider

	generateShortId func() (string, error)
}

func NewService(logger *log.Logger, db database.Repository, statsProvider stats.StatsProvider) *Service {
	return &Service{
		log:             logger,
		db:              db,
		stats:           statsProvider,
		generateShortId: shortid.Generate,
	}
}

// GetOrCreate returns the conversation for the unordered pair (aId, bId),
// creating it if absent. Lookup is commutative: the pair is canonicalized
// before hitting storage, so (a, b) and (b, a) resolve to the same row.
func (s *Service) GetOrCreate(aId, bId int) (database.Conversation, bool, error) {
	if aId == bId {
		return database.Conversation{}, false, ErrSamePeer
	}

	if aId > bId {
		aId, bId = bId, aId
	}

	sid, err := s.generateShortId()
	if err != nil {
		return database.Conversation{}, false, fmt.Errorf("generate conversation id: %w", err)
	}

	conv, isNew, err := s.db.CreateConversation(aId, bId, sid)
	if err != nil {
		return database.Conversation{}, false, fmt.Errorf("create conversation: %w", err)
	}

	if isNew {
		s.stats.Incr(stats.ConversationsCreated)
	}

	return conv, isNew, nil
}

func (s *Service) getForParticipant(conversationId, accountId int) (database.Conversation, error) {
	conv, err := s.db.GetConversationById(conversationId)
	if err != nil {
		return database.Conversation{}, err
	}

	if !conv.HasParticipant(accountId) {
		return database.Conversation{}, ErrNotParticipant
	}

	return conv, nil
}

// PostMessage appends a text message to the conversation and bumps its
// updated_at.
func (s *Service) PostMessage(conversationId, senderId int, content string) (database.Message, error) {
	return s.postMessage(conversationId, senderId, content, "", 0)
}

// PostVoiceMessage appends a message whose payload is a stored attachment.
func (s *Service) PostVoiceMessage(conversationId, senderId int, attachmentPath string, durationSecs int) (database.Message, error) {
	return s.postMessage(conversationId, senderId, "", attachmentPath, durationSecs)
}

func (s *Service) postMessage(conversationId, senderId int, content, attachmentPath string, durationSecs int) (database.Message, error) {
	if content == "" && attachmentPath == "" {
		return database.Message{}, ErrEmptyMessage
	}

	if _, err := s.getForParticipant(conversationId, senderId); err != nil {
		return database.Message{}, err
	}

	msg, err := s.db.CreateMessage(database.CreateMessageParams{
		ConversationId: conversationId,
		SenderId:       senderId,
		Content:        content,
		AttachmentPath: attachmentPath,
		AttachmentSecs: durationSecs,
	})
	if err != nil {
		return database.Message{}, fmt.Errorf("create message: %w", err)
	}

	s.stats.Incr(stats.MessagesCreated)

	// activity counters are telemetry, failures must not fail the send
	if err := s.db.RecordActivity(senderId, database.ActivityMessageSent, time.Now().UTC()); err != nil {
		s.log.Println("record message activity:", err)
	}

	return msg, nil
}

// FetchMessages returns the conversation's messages ascending by creation
// time, marking the other party's unread messages among them as read.
func (s *Service) FetchMessages(conversationId, viewerId int, unreadOnly bool) ([]database.Message, error) {
	return s.fetch(conversationId, viewerId, database.MessageFilter{UnreadOnly: unreadOnly})
}

// PollNew returns messages with id greater than sinceId, with the same
// read-on-fetch side effect as FetchMessages.
func (s *Service) PollNew(conversationId, viewerId, sinceId int) ([]database.Message, error) {
	return s.fetch(conversationId, viewerId, database.MessageFilter{SinceId: sinceId})
}

func (s *Service) fetch(conversationId, viewerId int, filter database.MessageFilter) ([]database.Message, error) {
	if _, err := s.getForParticipant(conversationId, viewerId); err != nil {
		return nil, err
	}

	messages, err := s.db.GetMessages(conversationId, viewerId, filter)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	var fetchedUnread []int
	for i, msg := range messages {
		if msg.SenderId != viewerId && !msg.IsRead {
			fetchedUnread = append(fetchedUnread, msg.Id)
			messages[i].IsRead = true
		}
	}

	if len(fetchedUnread) > 0 {
		if _, err := s.db.MarkMessagesRead(conversationId, viewerId, fetchedUnread); err != nil {
			return nil, fmt.Errorf("mark fetched messages read: %w", err)
		}
	}

	return messages, nil
}

// MarkAllRead flips every unread message from the other participant and
// returns how many were flipped.
func (s *Service) MarkAllRead(conversationId, viewerId int) (int, error) {
	if _, err := s.getForParticipant(conversationId, viewerId); err != nil {
		return 0, err
	}

	count, err := s.db.MarkAllMessagesRead(conversationId, viewerId)
	if err != nil {
		return 0, fmt.Errorf("mark all messages read: %w", err)
	}

	return count, nil
}

// MarkMessageRead marks a single message read. Marking one's own sent
// message is a no-op, not an error.
func (s *Service) MarkMessageRead(messageId, viewerId int) error {
	msg, err := s.db.GetMessageById(messageId)
	if err != nil {
		return err
	}

	if _, err := s.getForParticipant(msg.ConversationId, viewerId); err != nil {
		return err
	}

	if msg.SenderId == viewerId {
		return nil
	}

	if _, err := s.db.MarkMessagesRead(msg.ConversationId, viewerId, []int{messageId}); err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}

	return nil
}

// UnreadCount counts messages the viewer has not read in one conversation.
func (s *Service) UnreadCount(conversationId, viewerId int) (int, error) {
	if _, err := s.getForParticipant(conversationId, viewerId); err != nil {
		return 0, err
	}

	return s.db.UnreadCount(conversationId, viewerId)
}

// GlobalUnread sums unread counts across every conversation the viewer
// participates in.
func (s *Service) GlobalUnread(viewerId int) (int, error) {
	return s.db.GlobalUnreadCount(viewerId)
}

// MessageStatuses reports the read state of the viewer's own sent messages,
// keyed by message id. The chat UI polls this to render delivery ticks.
func (s *Service) MessageStatuses(conversationId, viewerId int) (map[int]bool, error) {
	if _, err := s.getForParticipant(conversationId, viewerId); err != nil {
		return nil, err
	}

	return s.db.MessageStatuses(conversationId, viewerId)
}

// ListForUser returns the viewer's conversations newest-first, each with the
// peer, the peer's presence, the last message and the viewer's unread count.
func (s *Service) ListForUser(viewerId int) ([]types.Conversation, error) {
	dbConvs, err := s.db.ListConversations(viewerId)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	convs := make([]types.Conversation, 0, len(dbConvs))
	for _, c := range dbConvs {
		peerId := c.Other(viewerId)

		peer, err := s.db.GetAccountById(peerId)
		if err != nil {
			return nil, fmt.Errorf("get peer account %d: %w", peerId, err)
		}

		peerPresence, err := s.db.GetPresence(peerId)
		if err != nil {
			return nil, fmt.Errorf("get peer presence %d: %w", peerId, err)
		}

		unread, err := s.db.UnreadCount(c.Id, viewerId)
		if err != nil {
			return nil, fmt.Errorf("unread count for conversation %d: %w", c.Id, err)
		}

		last, err := s.db.GetLastMessage(c.Id)
		if err != nil {
			return nil, fmt.Errorf("last message for conversation %d: %w", c.Id, err)
		}

		conv := types.Conversation{
			Id:         c.Id,
			ExternalId: c.ExternalId,
			Peer: types.User{
				Id:       peer.Id,
				Username: peer.Username,
			},
			PeerOnline:  peerPresence.Online,
			UnreadCount: unread,
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		}
		if last != nil {
			msg := MessageToAPI(*last)
			conv.LastMessage = &msg
		}

		convs = append(convs, conv)
	}

	return convs, nil
}

// MessageToAPI converts a stored message to its JSON form.
func MessageToAPI(m database.Message) types.Message {
	return types.Message{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		Content:        m.Content.String,
		AttachmentPath: m.AttachmentPath.String,
		AttachmentSecs: int(m.AttachmentSecs.Int64),
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}
