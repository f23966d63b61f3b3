package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/forecastlab/weather-compare/internal/forecast"
	"github.com/forecastlab/weather-compare/internal/geo"
)

// Refresher periodically re-fetches tracked locations so their cache entries
// stay warm and user requests rarely hit a cold path.
type Refresher struct {
	scheduler *gocron.Scheduler
	service   *forecast.Service
	resolver  *geo.Resolver
	keys      []string
	interval  time.Duration
}

// New creates a Refresher for the given location keys.
func New(keys []string, interval time.Duration, service *forecast.Service, resolver *geo.Resolver) *Refresher {
	return &Refresher{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		resolver:  resolver,
		keys:      keys,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (r *Refresher) Start() error {
	if len(r.keys) == 0 {
		log.Println("refresher: no tracked locations configured; nothing to schedule")
		return nil
	}

	minutes := int(r.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := r.scheduler.Every(minutes).Minutes().Do(func() {
		log.Println("refresher: warming tracked locations")

		var wg sync.WaitGroup
		for _, key := range r.keys {
			key := key
			wg.Add(1)
			go func() {
				defer wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				loc, err := r.resolver.Resolve(ctx, key)
				if err != nil {
					log.Printf("refresher: could not resolve %q: %v", key, err)
					return
				}
				r.service.Warm(ctx, loc)
			}()
		}
		wg.Wait()
		log.Println("refresher: completed warm cycle")
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (r *Refresher) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}
