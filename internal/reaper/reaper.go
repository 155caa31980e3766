package reaper

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const purgeTimeout = 30 * time.Second

// TokenStore is the slice of the reset-token store the reaper needs.
type TokenStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Reaper periodically purges used and expired reset tokens.
type Reaper struct {
	cron  *cron.Cron
	store TokenStore
}

// New schedules a purge on the given cron spec (e.g. "@every 10m").
func New(store TokenStore, spec string) (*Reaper, error) {
	c := cron.New()
	r := &Reaper{cron: c, store: store}
	if _, err := c.AddFunc(spec, r.run); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the schedule in its own goroutine.
func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for an in-flight purge to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reaper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	purged, err := r.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		log.Printf("reset token purge failed: %v", err)
		return
	}
	if purged > 0 {
		log.Printf("purged %d reset tokens", purged)
	}
}
