package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/parkpulse/parking-pricing/internal/parking"
)

// Scheduler periodically refreshes external signals for every known group so
// interactive price queries mostly hit warm cache entries.
type Scheduler struct {
	scheduler *gocron.Scheduler
	groups    parking.GroupStore
	signals   parking.SignalSource
	interval  time.Duration
}

// New creates a new Scheduler.
func New(groups parking.GroupStore, signals parking.SignalSource, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		groups:    groups,
		signals:   signals,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 5
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		groups, err := s.groups.ListGroups(ctx)
		if err != nil {
			log.Printf("scheduler: list groups failed: %v", err)
			return
		}
		if len(groups) == 0 {
			return
		}

		log.Printf("scheduler: refreshing signals for %d groups", len(groups))

		var wg sync.WaitGroup
		for _, g := range groups {
			g := g
			wg.Add(1)
			go func() {
				defer wg.Done()

				if _, err := s.signals.GetOrFetch(ctx, g.GroupID, g.Center); err != nil {
					log.Printf("scheduler: signal refresh failed for group %s: %v", g.GroupID, err)
				}
			}()
		}
		wg.Wait()
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
