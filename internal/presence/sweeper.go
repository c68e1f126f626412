package presence

import (
	"log"
	"time"

	"github.com/akarpov/gametrade/internal/database"
)

const (
	defaultSweepInterval = 300 * time.Second
	sweepBatchSize       = 500
)

// Sweeper periodically forces offline any account that is still marked
// online but has not been seen within the inactivity threshold. It exists
// because a client that disappears never sends an explicit offline.
type Sweeper struct {
	log      *log.Logger
	db       database.Repository
	tracker  *Tracker
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewSweeper(logger *log.Logger, db database.Repository, tracker *Tracker) *Sweeper {
	return &Sweeper{
		log:      logger,
		db:       db,
		tracker:  tracker,
		interval: defaultSweepInterval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Run() {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if n, err := s.Sweep(time.Now().UTC()); err != nil {
					s.log.Println("presence sweep:", err)
				} else if n > 0 {
					s.log.Printf("presence sweep marked %d accounts offline", n)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// Sweep scans stale online presences in batches and closes each session,
// returning how many accounts were transitioned offline.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	cutoff := now.Add(-InactivityThreshold)

	var total int
	for {
		stale, err := s.db.ListStaleOnlinePresences(cutoff, sweepBatchSize)
		if err != nil {
			return total, err
		}

		var closed int
		for _, p := range stale {
			if err := s.tracker.closeSession(p.AccountId, now, p.Online); err != nil {
				s.log.Println("sweep close session:", err)
				continue
			}
			closed++
		}
		total += closed

		// stop if the batch made no progress, otherwise failed rows
		// would be re-listed forever
		if len(stale) < sweepBatchSize || closed == 0 {
			return total, nil
		}
	}
}
