package lockout

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/akarpov/gametrade/internal/database"
	"github.com/akarpov/gametrade/internal/stats"
	"github.com/akarpov/gametrade/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGuard_RecordFailure(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("below the threshold only counts", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockStats := &stats.MockStatsUpdater{}
		defer mockStats.AssertExpectations(t)

		mockRepo.On("IncrementFailedLogins", 1).Return(3, nil).Once()
		mockStats.On("Incr", stats.FailedLogins).Once()

		guard := NewGuard(testutil.TestLogger(t), mockRepo, mockStats)
		assert.NoError(t, guard.RecordFailure(1, now))
	})

	t.Run("fifth failure locks for thirty minutes", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockStats := &stats.MockStatsUpdater{}
		defer mockStats.AssertExpectations(t)

		mockRepo.On("IncrementFailedLogins", 1).Return(MaxFailedLogins, nil).Once()
		mockRepo.On("SetLock", 1, now.Add(LockDuration)).Return(nil).Once()
		mockStats.On("Incr", stats.FailedLogins).Once()
		mockStats.On("Incr", stats.AccountLockouts).Once()

		guard := NewGuard(testutil.TestLogger(t), mockRepo, mockStats)
		assert.NoError(t, guard.RecordFailure(1, now))
	})

	t.Run("failure after an expired lock re-locks immediately", func(t *testing.T) {
		// the counter only resets on a successful login, so count 6 is
		// already past the threshold
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockStats := &stats.MockStatsUpdater{}
		defer mockStats.AssertExpectations(t)

		mockRepo.On("IncrementFailedLogins", 1).Return(MaxFailedLogins+1, nil).Once()
		mockRepo.On("SetLock", 1, now.Add(LockDuration)).Return(nil).Once()
		mockStats.On("Incr", stats.FailedLogins).Once()
		mockStats.On("Incr", stats.AccountLockouts).Once()

		guard := NewGuard(testutil.TestLogger(t), mockRepo, mockStats)
		assert.NoError(t, guard.RecordFailure(1, now))
	})

	t.Run("increment error is returned", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("IncrementFailedLogins", 1).Return(0, errors.New("db error")).Once()

		guard := NewGuard(testutil.TestLogger(t), mockRepo, &stats.MockStatsUpdater{})
		assert.Error(t, guard.RecordFailure(1, now))
	})
}

func TestGuard_RecordSuccess(t *testing.T) {
	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("ResetFailedLogins", 1).Return(nil).Once()

	guard := NewGuard(testutil.TestLogger(t), mockRepo, &stats.MockStatsUpdater{})
	assert.NoError(t, guard.RecordSuccess(1))
}

func TestGuard_IsLocked(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tcases := []struct {
		name        string
		lockedUntil sql.NullTime
		expectClear bool
		wantLocked  bool
		wantLeft    time.Duration
	}{
		{
			name:       "no lock",
			wantLocked: false,
		},
		{
			name:        "active lock reports remaining time",
			lockedUntil: sql.NullTime{Time: now.Add(10 * time.Minute), Valid: true},
			wantLocked:  true,
			wantLeft:    10 * time.Minute,
		},
		{
			name:        "expired lock is cleared lazily",
			lockedUntil: sql.NullTime{Time: now.Add(-time.Minute), Valid: true},
			expectClear: true,
			wantLocked:  false,
		},
		{
			name:        "lock expiring exactly now is not locked",
			lockedUntil: sql.NullTime{Time: now, Valid: true},
			expectClear: true,
			wantLocked:  false,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)

			mockRepo.On("GetPresence", 1).Return(database.Presence{
				AccountId:   1,
				LockedUntil: tc.lockedUntil,
			}, nil).Once()
			if tc.expectClear {
				mockRepo.On("ClearLock", 1).Return(nil).Once()
			}

			guard := NewGuard(testutil.TestLogger(t), mockRepo, &stats.MockStatsUpdater{})
			locked, remaining, err := guard.IsLocked(1, now)
			assert.NoError(t, err)
			assert.Equal(t, tc.wantLocked, locked)
			assert.Equal(t, tc.wantLeft, remaining)
		})
	}
}

// Lockout cycle: five failures lock the account, a success at any point
// resets the counter and clears the lock.
func TestGuard_LockoutCycle(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mockRepo := &database.MockRepository{}
	defer mockRepo.AssertExpectations(t)
	mockStats := &stats.MockStatsUpdater{}

	mockStats.On("Incr", stats.FailedLogins).Times(MaxFailedLogins)
	mockStats.On("Incr", stats.AccountLockouts).Once()

	for i := 1; i <= MaxFailedLogins; i++ {
		mockRepo.On("IncrementFailedLogins", 1).Return(i, nil).Once()
	}
	mockRepo.On("SetLock", 1, now.Add(LockDuration)).Return(nil).Once()

	guard := NewGuard(testutil.TestLogger(t), mockRepo, mockStats)
	for i := 0; i < MaxFailedLogins; i++ {
		assert.NoError(t, guard.RecordFailure(1, now))
	}

	// locked until now+30m
	mockRepo.On("GetPresence", 1).Return(database.Presence{
		AccountId:   1,
		LockedUntil: sql.NullTime{Time: now.Add(LockDuration), Valid: true},
	}, nil).Once()
	locked, remaining, err := guard.IsLocked(1, now)
	assert.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, LockDuration, remaining)

	// success resets everything
	mockRepo.On("ResetFailedLogins", 1).Return(nil).Once()
	assert.NoError(t, guard.RecordSuccess(1))

	mockRepo.On("GetPresence", 1).Return(database.Presence{AccountId: 1}, nil).Once()
	locked, _, err = guard.IsLocked(1, now)
	assert.NoError(t, err)
	assert.False(t, locked)
}
