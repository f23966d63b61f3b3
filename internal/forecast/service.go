package forecast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forecastlab/weather-compare/internal/cache"
)

// Service orchestrates concurrent provider fetches, the response cache, and
// error-envelope translation. One instance is constructed at startup and
// shared; it holds no per-request state.
type Service struct {
	cache      *cache.Cache
	providers  []Provider
	hourlySpan int
	production bool
}

// NewService creates a Service. hourlySpan is the number of hourly points
// requested from every source. In production mode user-visible error
// messages are generic; otherwise they carry the underlying detail.
func NewService(c *cache.Cache, providers []Provider, hourlySpan int, production bool) *Service {
	return &Service{
		cache:      c,
		providers:  providers,
		hourlySpan: hourlySpan,
		production: production,
	}
}

// Sources returns the configured source names in their fixed order.
func (s *Service) Sources() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Get returns the series for one source, from cache when fresh. Provider
// failures are folded into the series error envelope; the returned error is
// non-nil only for unknown sources.
func (s *Service) Get(ctx context.Context, loc Location, source string) (ForecastSeries, error) {
	for _, p := range s.providers {
		if p.Name() == source {
			return s.fetchOne(ctx, p, loc), nil
		}
	}
	return ForecastSeries{}, fmt.Errorf("unknown source %q", source)
}

// GetAll fans out to every configured source concurrently and returns one
// entry per source in fixed order, errored sources included. No source's
// failure aborts its siblings.
func (s *Service) GetAll(ctx context.Context, loc Location) []ForecastSeries {
	traceID := uuid.NewString()
	log.Printf("DEBUG: [%s] GetAll for %s across %d sources", traceID, loc.Key(), len(s.providers))

	results := make([]ForecastSeries, len(s.providers))
	var wg sync.WaitGroup

	for i, p := range s.providers {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.fetchOne(ctx, p, loc)
		}()
	}
	wg.Wait()

	ok := 0
	for _, r := range results {
		if !r.IsError {
			ok++
		}
	}
	log.Printf("DEBUG: [%s] GetAll for %s finished: %d/%d sources ok", traceID, loc.Key(), ok, len(results))
	return results
}

// fetchOne resolves one source through the cache, calling the provider on a
// miss and translating taxonomy errors into the series envelope.
func (s *Service) fetchOne(ctx context.Context, p Provider, loc Location) ForecastSeries {
	key := cache.Key(loc.Key(), p.Name())
	if cached, hit := s.cache.Get(key); hit {
		if series, okType := cached.(ForecastSeries); okType {
			return series
		}
	}

	series, err := p.Fetch(ctx, loc, s.hourlySpan)
	if err != nil {
		return s.envelope(loc, p.Name(), err)
	}

	s.cache.Set(key, series, cache.ClassWeather)
	return series
}

// envelope maps a provider failure onto the fixed-slot series shape.
func (s *Service) envelope(loc Location, source string, err error) ForecastSeries {
	switch {
	case errors.Is(err, ErrRateLimited):
		log.Printf("INFO: %s rate limited for %s", source, loc.Key())
		return RateLimitedSeries(loc, source)
	case errors.Is(err, ErrAuth):
		log.Printf("ERROR: %s auth failure for %s: %v", source, loc.Key(), err)
		return ErrorSeries(loc, source, s.message("credentials rejected or missing", err))
	case errors.Is(err, ErrSchema):
		log.Printf("ERROR: %s returned an unexpected payload for %s: %v", source, loc.Key(), err)
		return ErrorSeries(loc, source, s.message("provider returned unexpected data", err))
	default:
		log.Printf("ERROR: %s fetch failed for %s: %v", source, loc.Key(), err)
		return ErrorSeries(loc, source, s.message("provider unavailable", err))
	}
}

// message picks the user-visible error text: generic in production, detailed
// otherwise.
func (s *Service) message(generic string, err error) string {
	if s.production {
		return generic
	}
	return fmt.Sprintf("%s: %v", generic, err)
}

// ClearCache drops every cached response and reports how many were evicted.
func (s *Service) ClearCache() int {
	n := s.cache.Len()
	s.cache.InvalidateAll()
	return n
}

// Warm pre-fetches all sources for a location with a bounded deadline. Used
// by the background refresher; the caller's cancellation propagates.
func (s *Service) Warm(ctx context.Context, loc Location) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	s.GetAll(ctx, loc)
}
