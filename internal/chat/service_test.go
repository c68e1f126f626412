package chat

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/akarpov/gametrade/internal/database"
	"github.com/akarpov/gametrade/internal/stats"
	"github.com/akarpov/gametrade/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestService(t *testing.T, mockRepo *database.MockRepository, mockStats *stats.MockStatsUpdater) *Service {
	t.Helper()
	svc := NewService(testutil.TestLogger(t), mockRepo, mockStats)
	svc.generateShortId = func() (string, error) {
		return "EoGKUXPHgz", nil
	}
	return svc
}

func TestService_GetOrCreate(t *testing.T) {
	conv := database.Conversation{
		Id:         1,
		ExternalId: "EoGKUXPHgz",
		UserAId:    3,
		UserBId:    7,
	}

	t.Run("lookup is commutative", func(t *testing.T) {
		// both argument orders must hit storage with the canonical pair
		for _, pair := range [][2]int{{3, 7}, {7, 3}} {
			mockRepo := &database.MockRepository{}
			mockStats := &stats.MockStatsUpdater{}

			mockRepo.On("CreateConversation", 3, 7, "EoGKUXPHgz").Return(conv, false, nil).Once()

			svc := newTestService(t, mockRepo, mockStats)
			got, isNew, err := svc.GetOrCreate(pair[0], pair[1])
			assert.NoError(t, err)
			assert.False(t, isNew)
			assert.Equal(t, conv.Id, got.Id)
			mockRepo.AssertExpectations(t)
		}
	})

	t.Run("new conversation bumps the counter", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockStats := &stats.MockStatsUpdater{}
		defer mockStats.AssertExpectations(t)

		mockRepo.On("CreateConversation", 3, 7, "EoGKUXPHgz").Return(conv, true, nil).Once()
		mockStats.On("Incr", stats.ConversationsCreated).Once()

		svc := newTestService(t, mockRepo, mockStats)
		_, isNew, err := svc.GetOrCreate(7, 3)
		assert.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("same account on both sides is rejected", func(t *testing.T) {
		svc := newTestService(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
		_, _, err := svc.GetOrCreate(3, 3)
		assert.ErrorIs(t, err, ErrSamePeer)
	})

	t.Run("short id error is wrapped", func(t *testing.T) {
		svc := newTestService(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
		svc.generateShortId = func() (string, error) {
			return "", errors.New("generator exhausted")
		}

		_, _, err := svc.GetOrCreate(3, 7)
		assert.Error(t, err)
	})
}

func TestService_PostMessage(t *testing.T) {
	conv := database.Conversation{Id: 1, UserAId: 3, UserBId: 7}

	t.Run("participant can post", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockStats := &stats.MockStatsUpdater{}
		defer mockStats.AssertExpectations(t)

		created := database.Message{
			Id:             10,
			ConversationId: 1,
			SenderId:       3,
			Content:        sql.NullString{String: "hello", Valid: true},
			CreatedAt:      time.Now().UTC(),
		}

		mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
		mockRepo.On("CreateMessage", database.CreateMessageParams{
			ConversationId: 1,
			SenderId:       3,
			Content:        "hello",
		}).Return(created, nil).Once()
		mockRepo.On("RecordActivity", 3, database.ActivityMessageSent, mock.Anything).Return(nil).Once()
		mockStats.On("Incr", stats.MessagesCreated).Once()

		svc := newTestService(t, mockRepo, mockStats)
		msg, err := svc.PostMessage(1, 3, "hello")
		assert.NoError(t, err)
		assert.Equal(t, 10, msg.Id)
		assert.False(t, msg.IsRead, "new messages start unread")
	})

	t.Run("non-participant gets ErrNotParticipant", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()

		svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
		_, err := svc.PostMessage(1, 99, "hello")
		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		svc := newTestService(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
		_, err := svc.PostMessage(1, 3, "")
		assert.ErrorIs(t, err, ErrEmptyMessage)
	})

	t.Run("activity failure does not fail the send", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockStats := &stats.MockStatsUpdater{}

		mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
		mockRepo.On("CreateMessage", mock.Anything).Return(database.Message{Id: 10}, nil).Once()
		mockRepo.On("RecordActivity", 3, database.ActivityMessageSent, mock.Anything).
			Return(errors.New("db error")).Once()
		mockStats.On("Incr", stats.MessagesCreated).Once()

		svc := newTestService(t, mockRepo, mockStats)
		_, err := svc.PostMessage(1, 3, "hello")
		assert.NoError(t, err)
	})
}

func TestService_PostVoiceMessage(t *testing.T) {
	conv := database.Conversation{Id: 1, UserAId: 3, UserBId: 7}

	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)
	mockStats := &stats.MockStatsUpdater{}

	mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
	mockRepo.On("CreateMessage", database.CreateMessageParams{
		ConversationId: 1,
		SenderId:       7,
		AttachmentPath: "abc.webm",
		AttachmentSecs: 12,
	}).Return(database.Message{Id: 11}, nil).Once()
	mockRepo.On("RecordActivity", 7, database.ActivityMessageSent, mock.Anything).Return(nil).Once()
	mockStats.On("Incr", stats.MessagesCreated).Once()

	svc := newTestService(t, mockRepo, mockStats)
	msg, err := svc.PostVoiceMessage(1, 7, "abc.webm", 12)
	assert.NoError(t, err)
	assert.Equal(t, 11, msg.Id)
}

func TestService_FetchMessages(t *testing.T) {
	conv := database.Conversation{Id: 1, UserAId: 3, UserBId: 7}

	t.Run("marks the other party's messages read", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		messages := []database.Message{
			{Id: 1, ConversationId: 1, SenderId: 3, IsRead: true},
			{Id: 2, ConversationId: 1, SenderId: 3, IsRead: false},
			{Id: 3, ConversationId: 1, SenderId: 7, IsRead: false},
		}

		mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
		mockRepo.On("GetMessages", 1, 7, database.MessageFilter{}).Return(messages, nil).Once()
		mockRepo.On("MarkMessagesRead", 1, 7, []int{2}).Return(1, nil).Once()

		svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
		got, err := svc.FetchMessages(1, 7, false)
		assert.NoError(t, err)
		assert.Len(t, got, 3)
		// the viewer's copy reflects the flip; own unread stays untouched
		assert.True(t, got[1].IsRead)
		assert.False(t, got[2].IsRead)
	})

	t.Run("viewer's own messages are never flipped", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		messages := []database.Message{
			{Id: 1, ConversationId: 1, SenderId: 3, IsRead: false},
			{Id: 2, ConversationId: 1, SenderId: 3, IsRead: false},
		}

		mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
		mockRepo.On("GetMessages", 1, 3, database.MessageFilter{}).Return(messages, nil).Once()
		// no MarkMessagesRead expected: all messages are the viewer's own

		svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
		got, err := svc.FetchMessages(1, 3, false)
		assert.NoError(t, err)
		assert.False(t, got[0].IsRead)
		assert.False(t, got[1].IsRead)
	})

	t.Run("unknown conversation propagates sql.ErrNoRows", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetConversationById", 1).Return(database.Conversation{}, sql.ErrNoRows).Once()

		svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
		_, err := svc.FetchMessages(1, 3, false)
		assert.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestService_PollNew(t *testing.T) {
	conv := database.Conversation{Id: 1, UserAId: 3, UserBId: 7}

	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)

	messages := []database.Message{
		{Id: 5, ConversationId: 1, SenderId: 3, IsRead: false},
	}

	mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
	mockRepo.On("GetMessages", 1, 7, database.MessageFilter{SinceId: 4}).Return(messages, nil).Once()
	mockRepo.On("MarkMessagesRead", 1, 7, []int{5}).Return(1, nil).Once()

	svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
	got, err := svc.PollNew(1, 7, 4)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.True(t, got[0].IsRead)
}

func TestService_MarkMessageRead(t *testing.T) {
	conv := database.Conversation{Id: 1, UserAId: 3, UserBId: 7}

	t.Run("recipient marks a message read", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetMessageById", 5).Return(database.Message{
			Id: 5, ConversationId: 1, SenderId: 3,
		}, nil).Once()
		mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
		mockRepo.On("MarkMessagesRead", 1, 7, []int{5}).Return(1, nil).Once()

		svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
		assert.NoError(t, svc.MarkMessageRead(5, 7))
	})

	t.Run("marking own message is a silent no-op", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetMessageById", 5).Return(database.Message{
			Id: 5, ConversationId: 1, SenderId: 3,
		}, nil).Once()
		mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
		// no MarkMessagesRead call expected

		svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
		assert.NoError(t, svc.MarkMessageRead(5, 3))
	})
}

func TestService_MarkAllRead(t *testing.T) {
	conv := database.Conversation{Id: 1, UserAId: 3, UserBId: 7}

	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
	mockRepo.On("MarkAllMessagesRead", 1, 7).Return(4, nil).Once()

	svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
	count, err := svc.MarkAllRead(1, 7)
	assert.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestService_UnreadCounts(t *testing.T) {
	conv := database.Conversation{Id: 1, UserAId: 3, UserBId: 7}

	t.Run("per conversation", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetConversationById", 1).Return(conv, nil).Once()
		mockRepo.On("UnreadCount", 1, 7).Return(3, nil).Once()

		svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
		count, err := svc.UnreadCount(1, 7)
		assert.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("global", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GlobalUnreadCount", 7).Return(5, nil).Once()

		svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
		count, err := svc.GlobalUnread(7)
		assert.NoError(t, err)
		assert.Equal(t, 5, count)
	})
}

func TestService_ListForUser(t *testing.T) {
	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)

	last := database.Message{
		Id:             9,
		ConversationId: 1,
		SenderId:       7,
		Content:        sql.NullString{String: "latest", Valid: true},
	}

	mockRepo.On("ListConversations", 3).Return([]database.Conversation{
		{Id: 1, ExternalId: "EoGKUXPHgz", UserAId: 3, UserBId: 7},
	}, nil).Once()
	mockRepo.On("GetAccountById", 7).Return(database.User{Id: 7, Username: "bob"}, nil).Once()
	mockRepo.On("GetPresence", 7).Return(database.Presence{AccountId: 7, Online: true}, nil).Once()
	mockRepo.On("UnreadCount", 1, 3).Return(2, nil).Once()
	mockRepo.On("GetLastMessage", 1).Return(&last, nil).Once()

	svc := newTestService(t, mockRepo, &stats.MockStatsUpdater{})
	convs, err := svc.ListForUser(3)
	assert.NoError(t, err)
	assert.Len(t, convs, 1)
	assert.Equal(t, "bob", convs[0].Peer.Username)
	assert.True(t, convs[0].PeerOnline)
	assert.Equal(t, 2, convs[0].UnreadCount)
	assert.Equal(t, "latest", convs[0].LastMessage.Content)
}
