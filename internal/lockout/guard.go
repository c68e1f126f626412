package lockout

import (
	"fmt"
	"log"
	"time"

	"github.com/akarpov/gametrade/internal/database"
	"github.com/akarpov/gametrade/internal/stats"
)

const (
	// MaxFailedLogins is the number of consecutive failures that locks an
	// account.
	MaxFailedLogins = 5
	// LockDuration is how long an account stays locked.
	LockDuration = 30 * time.Minute
)

// Guard tracks failed login attempts per account and applies a time-boxed
// lockout once the failure threshold is reached. It must be consulted before
// credentials are verified so locked accounts short-circuit.
type Guard struct {
	log   *log.Logger
	db    database.Repository
	stats stats.StatsProvider
}

func NewGuard(logger *log.Logger, db database.Repository, statsProvider stats.StatsProvider) *Guard {
	return &Guard{
		log:   logger,
		db:    db,
		stats: statsProvider,
	}
}

// RecordFailure bumps the failure counter and locks the account once the
// threshold is reached.
func (g *Guard) RecordFailure(accountId int, now time.Time) error {
	count, err := g.db.IncrementFailedLogins(accountId)
	if err != nil {
		return fmt.Errorf("increment failed logins for account %d: %w", accountId, err)
	}

	g.stats.Incr(stats.FailedLogins)

	if count >= MaxFailedLogins {
		until := now.Add(LockDuration)
		if err := g.db.SetLock(accountId, until); err != nil {
			return fmt.Errorf("lock account %d: %w", accountId, err)
		}

		g.stats.Incr(stats.AccountLockouts)
		g.log.Printf("account %d locked until %s after %d failed logins", accountId, until.Format(time.RFC3339), count)
	}

	return nil
}

// RecordSuccess resets the failure counter and clears any lock.
func (g *Guard) RecordSuccess(accountId int) error {
	if err := g.db.ResetFailedLogins(accountId); err != nil {
		return fmt.Errorf("reset failed logins for account %d: %w", accountId, err)
	}

	return nil
}

// IsLocked reports whether the account is currently locked and, if so, how
// much lock time remains. An expired lock is cleared lazily.
func (g *Guard) IsLocked(accountId int, now time.Time) (bool, time.Duration, error) {
	p, err := g.db.GetPresence(accountId)
	if err != nil {
		return false, 0, fmt.Errorf("get presence for account %d: %w", accountId, err)
	}

	if !p.LockedUntil.Valid {
		return false, 0, nil
	}

	if !p.LockedUntil.Time.After(now) {
		if err := g.db.ClearLock(accountId); err != nil {
			return false, 0, fmt.Errorf("clear expired lock for account %d: %w", accountId, err)
		}
		return false, 0, nil
	}

	return true, p.LockedUntil.Time.Sub(now), nil
}
