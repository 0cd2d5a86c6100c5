package state

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kayz/loom/internal/logger"
)

// Janitor periodically purges idle state entries from a Store on a cron
// schedule.
type Janitor struct {
	cron  *cron.Cron
	store *Store
	ttl   time.Duration
}

// NewJanitor creates a janitor sweeping entries idle longer than ttl on the
// given 5-field cron schedule.
func NewJanitor(store *Store, schedule string, ttl time.Duration) (*Janitor, error) {
	j := &Janitor{
		cron:  cron.New(),
		store: store,
		ttl:   ttl,
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule state sweep: %w", err)
	}
	return j, nil
}

// Start begins the sweep schedule.
func (j *Janitor) Start() {
	j.cron.Start()
	logger.Info("[STATE] Janitor started (ttl %s)", j.ttl)
}

// Stop stops the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	logger.Info("[STATE] Janitor stopped")
}

func (j *Janitor) sweep() {
	n, err := j.store.PurgeIdle(j.ttl)
	if err != nil {
		logger.Warn("[STATE] Sweep failed: %v", err)
		return
	}
	if n > 0 {
		logger.Info("[STATE] Purged %d idle state entries", n)
	}
}
