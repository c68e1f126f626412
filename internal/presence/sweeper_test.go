package presence

import (
	"errors"
	"testing"
	"time"

	"github.com/akarpov/gametrade/internal/database"
	"github.com/akarpov/gametrade/internal/stats"
	"github.com/akarpov/gametrade/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestSweeper_Sweep(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-InactivityThreshold)

	t.Run("closes every stale session", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockStats := &stats.MockStatsUpdater{}
		defer mockStats.AssertExpectations(t)

		stale := []database.Presence{
			{AccountId: 1, Online: true, LastSeenAt: now.Add(-time.Hour)},
			{AccountId: 2, Online: true, LastSeenAt: now.Add(-2 * time.Hour)},
		}

		mockRepo.On("ListStaleOnlinePresences", cutoff, sweepBatchSize).Return(stale, nil).Once()
		mockRepo.On("ClosePresenceSession", 1, now).Return(true, nil).Once()
		mockRepo.On("ClosePresenceSession", 2, now).Return(true, nil).Once()
		mockStats.On("Decr", stats.OnlineUsers).Twice()

		tracker := NewTracker(testutil.TestLogger(t), mockRepo, mockStats)
		sweeper := NewSweeper(testutil.TestLogger(t), mockRepo, tracker)

		n, err := sweeper.Sweep(now)
		assert.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("nothing stale", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("ListStaleOnlinePresences", cutoff, sweepBatchSize).Return([]database.Presence{}, nil).Once()

		tracker := NewTracker(testutil.TestLogger(t), mockRepo, &stats.MockStatsUpdater{})
		sweeper := NewSweeper(testutil.TestLogger(t), mockRepo, tracker)

		n, err := sweeper.Sweep(now)
		assert.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("list error is returned", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("ListStaleOnlinePresences", cutoff, sweepBatchSize).
			Return([]database.Presence{}, errors.New("db error")).Once()

		tracker := NewTracker(testutil.TestLogger(t), mockRepo, &stats.MockStatsUpdater{})
		sweeper := NewSweeper(testutil.TestLogger(t), mockRepo, tracker)

		_, err := sweeper.Sweep(now)
		assert.Error(t, err)
	})

	t.Run("stops when a full batch makes no progress", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		stale := make([]database.Presence, sweepBatchSize)
		for i := range stale {
			stale[i] = database.Presence{AccountId: i + 1, Online: true, LastSeenAt: now.Add(-time.Hour)}
		}

		mockRepo.On("ListStaleOnlinePresences", cutoff, sweepBatchSize).Return(stale, nil).Once()
		mockRepo.On("ClosePresenceSession", mock.Anything, now).Return(false, errors.New("db error")).Times(sweepBatchSize)

		tracker := NewTracker(testutil.TestLogger(t), mockRepo, &stats.MockStatsUpdater{})
		sweeper := NewSweeper(testutil.TestLogger(t), mockRepo, tracker)

		n, err := sweeper.Sweep(now)
		assert.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestSweeper_RunStop(t *testing.T) {
	mockRepo := &database.MockRepository{}
	tracker := NewTracker(testutil.TestLogger(t), mockRepo, &stats.MockStatsUpdater{})
	sweeper := NewSweeper(testutil.TestLogger(t), mockRepo, tracker)
	sweeper.interval = time.Hour

	sweeper.Run()
	sweeper.Stop()
}
