package presence

import (
	"fmt"
	"log"
	"time"

	"github.com/akarpov/gametrade/internal/database"
	"github.com/akarpov/gametrade/internal/stats"
)

// InactivityThreshold is how long an account may go without being seen
// before a heartbeat or sweep considers it inactive.
const InactivityThreshold = 300 * time.Second

type Action int

const (
	// ActionHeartbeat is a periodic signal from an active client.
	ActionHeartbeat Action = iota
	// ActionOnline is an explicit online transition, e.g. on login.
	ActionOnline
	// ActionOffline is an explicit offline transition, e.g. on logout.
	ActionOffline
)

func (a Action) String() string {
	switch a {
	case ActionHeartbeat:
		return "heartbeat"
	case ActionOnline:
		return "online"
	case ActionOffline:
		return "offline"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ParseAction maps the wire form of an action to its Action value.
func ParseAction(s string) (Action, error) {
	switch s {
	case "", "heartbeat":
		return ActionHeartbeat, nil
	case "online":
		return ActionOnline, nil
	case "offline":
		return ActionOffline, nil
	default:
		return 0, fmt.Errorf("unknown presence action %q", s)
	}
}

type transition int

const (
	transitionNone transition = iota
	// transitionOpen marks the account online, starting the session timer
	// if one is not already running.
	transitionOpen
	// transitionClose flushes the session timer and marks the account
	// offline.
	transitionClose
	// transitionTouch only advances last_seen_at.
	transitionTouch
)

// evaluate decides the state transition for a presence given the current
// time and the observed action. It is a pure function of its inputs so the
// state machine can be tested without storage.
func evaluate(p database.Presence, now time.Time, action Action) transition {
	switch action {
	case ActionOnline:
		return transitionOpen
	case ActionOffline:
		if p.Online || p.SessionStartedAt.Valid {
			return transitionClose
		}
		return transitionTouch
	case ActionHeartbeat:
		lastSeen := p.LastSeenAt
		if lastSeen.After(now) {
			// clock skew guard: a future last_seen_at is treated as now
			lastSeen = now
		}

		if now.Sub(lastSeen) < InactivityThreshold {
			return transitionOpen
		}
		if p.Online || p.SessionStartedAt.Valid {
			return transitionClose
		}
		return transitionTouch
	default:
		return transitionNone
	}
}

// Tracker owns the online/offline state machine for accounts. All mutations
// go through guarded repository updates so concurrent touches cannot
// double-count session duration.
type Tracker struct {
	log   *log.Logger
	db    database.Repository
	stats stats.StatsProvider
}

func NewTracker(logger *log.Logger, db database.Repository, statsProvider stats.StatsProvider) *Tracker {
	return &Tracker{
		log:   logger,
		db:    db,
		stats: statsProvider,
	}
}

// Touch applies an observed action for an account at the given time.
func (t *Tracker) Touch(accountId int, now time.Time, action Action) error {
	p, err := t.db.GetPresence(accountId)
	if err != nil {
		return fmt.Errorf("get presence for account %d: %w", accountId, err)
	}

	switch evaluate(p, now, action) {
	case transitionOpen:
		if err := t.db.OpenPresenceSession(accountId, now); err != nil {
			return fmt.Errorf("open session for account %d: %w", accountId, err)
		}
		if !p.Online {
			t.stats.Incr(stats.OnlineUsers)
		}
	case transitionClose:
		if err := t.closeSession(accountId, now, p.Online); err != nil {
			return err
		}
	case transitionTouch:
		if err := t.db.TouchLastSeen(accountId, now); err != nil {
			return fmt.Errorf("touch last seen for account %d: %w", accountId, err)
		}
	}

	return nil
}

// RefreshAll batch-loads the requested presences and re-evaluates each one
// against the inactivity threshold without counting the call as user
// activity. Stale online rows are forced offline before being returned.
// Unknown account ids are silently absent from the result.
func (t *Tracker) RefreshAll(accountIds []int, now time.Time) ([]database.Presence, error) {
	presences, err := t.db.GetPresences(accountIds)
	if err != nil {
		return nil, fmt.Errorf("get presences: %w", err)
	}

	for i, p := range presences {
		if !p.Online {
			continue
		}

		lastSeen := p.LastSeenAt
		if lastSeen.After(now) {
			lastSeen = now
		}
		if now.Sub(lastSeen) < InactivityThreshold {
			continue
		}

		if err := t.closeSession(p.AccountId, now, p.Online); err != nil {
			return nil, err
		}

		refreshed, err := t.db.GetPresence(p.AccountId)
		if err != nil {
			return nil, fmt.Errorf("get presence for account %d: %w", p.AccountId, err)
		}
		presences[i] = refreshed
	}

	return presences, nil
}

func (t *Tracker) closeSession(accountId int, now time.Time, wasOnline bool) error {
	flushed, err := t.db.ClosePresenceSession(accountId, now)
	if err != nil {
		return fmt.Errorf("close session for account %d: %w", accountId, err)
	}

	if flushed {
		t.log.Printf("flushed session duration for account %d", accountId)
	}
	if wasOnline {
		t.stats.Decr(stats.OnlineUsers)
	}

	return nil
}
