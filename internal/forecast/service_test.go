package forecast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/forecastlab/weather-compare/internal/cache"
)

// fakeProvider returns a canned series or error and counts its calls.
type fakeProvider struct {
	name      string
	err       error
	temp      float64
	calls     int
	slowBy    time.Duration
	sawCtxErr error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(ctx context.Context, loc Location, hours int) (ForecastSeries, error) {
	f.calls++
	f.sawCtxErr = ctx.Err()
	if f.slowBy > 0 {
		select {
		case <-ctx.Done():
			return ForecastSeries{}, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
		case <-time.After(f.slowBy):
		}
	}
	if f.err != nil {
		return ForecastSeries{}, f.err
	}
	now := time.Now().UTC()
	obs := NormalizedObservation{Timestamp: now.UnixMilli(), Temperature: f.temp}
	return ForecastSeries{
		Location:    loc,
		Source:      f.name,
		Current:     &obs,
		Hourly:      []*NormalizedObservation{&obs},
		Daily:       []NormalizedObservation{obs},
		LastUpdated: now,
	}, nil
}

func testLocation() Location {
	return Location{ZipCode: "90210", City: "Beverly Hills", State: "CA", Country: "US"}
}

func newTestService(providers ...*fakeProvider) *Service {
	ps := make([]Provider, len(providers))
	for i, p := range providers {
		ps[i] = p
	}
	return NewService(cache.New(time.Minute, time.Minute), ps, 24, false)
}

// TestGetAllPartialFailure: one source with missing credentials yields an
// isError entry while siblings return normally: same cardinality, same
// order, every call.
func TestGetAllPartialFailure(t *testing.T) {
	good := &fakeProvider{name: "openweathermap", temp: 70}
	bad := &fakeProvider{name: "weatherapi", err: fmt.Errorf("%w: weatherapi api key is not configured", ErrAuth)}
	alsoGood := &fakeProvider{name: "openmeteo", temp: 72}

	svc := newTestService(good, bad, alsoGood)
	results := svc.GetAll(context.Background(), testLocation())

	if len(results) != 3 {
		t.Fatalf("expected fixed cardinality 3, got %d", len(results))
	}
	if results[0].IsError || results[2].IsError {
		t.Error("healthy sources must not be marked errored")
	}
	if !results[1].IsError {
		t.Fatal("auth-failed source must carry isError=true")
	}
	if results[1].ErrorMessage == "" {
		t.Error("errored source must carry an errorMessage")
	}
	if results[1].Source != "weatherapi" {
		t.Error("source order must be preserved")
	}
}

// TestRateLimitedSourceIsNotAnError: a 429 produces an empty series flagged
// rateLimited, never isError, and never blocks siblings.
func TestRateLimitedSourceIsNotAnError(t *testing.T) {
	limited := &fakeProvider{name: "weatherapi", err: fmt.Errorf("%w: status 429", ErrRateLimited)}
	good := &fakeProvider{name: "openmeteo", temp: 68}

	svc := newTestService(limited, good)
	results := svc.GetAll(context.Background(), testLocation())

	if results[0].IsError {
		t.Error("rate-limited source must not be isError")
	}
	if !results[0].RateLimited {
		t.Error("rate-limited source must set rateLimited=true")
	}
	if len(results[0].Hourly) != 0 || len(results[0].Daily) != 0 {
		t.Error("rate-limited source must return empty series")
	}
	if results[1].IsError {
		t.Error("sibling source must be unaffected")
	}
}

// TestCacheHitSkipsProvider: a second Get within the TTL must be served from
// cache without touching the provider.
func TestCacheHitSkipsProvider(t *testing.T) {
	p := &fakeProvider{name: "openweathermap", temp: 70}
	svc := newTestService(p)

	loc := testLocation()
	if _, err := svc.Get(context.Background(), loc, "openweathermap"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Get(context.Background(), loc, "openweathermap"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1 (second call cached)", p.calls)
	}
}

// TestErrorsAreNotCached: a failed fetch must not poison the cache; the next
// call retries the provider.
func TestErrorsAreNotCached(t *testing.T) {
	p := &fakeProvider{name: "openweathermap", err: fmt.Errorf("%w: boom", ErrNetwork)}
	svc := newTestService(p)

	loc := testLocation()
	first, _ := svc.Get(context.Background(), loc, "openweathermap")
	if !first.IsError {
		t.Fatal("expected errored series")
	}

	p.err = nil
	p.temp = 71
	second, _ := svc.Get(context.Background(), loc, "openweathermap")
	if second.IsError {
		t.Error("recovered provider should serve data on the next call")
	}
	if p.calls != 2 {
		t.Errorf("provider called %d times, want 2", p.calls)
	}
}

func TestGetUnknownSource(t *testing.T) {
	svc := newTestService(&fakeProvider{name: "openweathermap"})
	if _, err := svc.Get(context.Background(), testLocation(), "nosuch"); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestClearCache(t *testing.T) {
	p := &fakeProvider{name: "openweathermap", temp: 70}
	svc := newTestService(p)

	loc := testLocation()
	svc.Get(context.Background(), loc, "openweathermap")

	if n := svc.ClearCache(); n != 1 {
		t.Errorf("ClearCache dropped %d entries, want 1", n)
	}

	svc.Get(context.Background(), loc, "openweathermap")
	if p.calls != 2 {
		t.Errorf("provider called %d times after clear, want 2", p.calls)
	}
}

// TestWarmPropagatesContext: cancelling the caller's context must reach the
// providers; Warm only adds a ceiling on top of it.
func TestWarmPropagatesContext(t *testing.T) {
	p := &fakeProvider{name: "openweathermap", temp: 70}
	svc := newTestService(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Warm(ctx, testLocation())

	if p.calls != 1 {
		t.Fatalf("provider called %d times, want 1", p.calls)
	}
	if p.sawCtxErr == nil {
		t.Error("provider should observe the caller's cancellation")
	}
}

// TestProductionMessagesAreGeneric: detailed provider errors leak only in
// development mode.
func TestProductionMessagesAreGeneric(t *testing.T) {
	detail := "secret-internal-hostname refused connection"
	p := &fakeProvider{name: "openweathermap", err: fmt.Errorf("%w: %s", ErrNetwork, detail)}

	prod := NewService(cache.New(time.Minute, time.Minute), []Provider{p}, 24, true)
	series, _ := prod.Get(context.Background(), testLocation(), "openweathermap")
	if series.ErrorMessage != "provider unavailable" {
		t.Errorf("production message = %q, want generic", series.ErrorMessage)
	}

	dev := NewService(cache.New(time.Minute, time.Minute), []Provider{p}, 24, false)
	series, _ = dev.Get(context.Background(), testLocation(), "openweathermap")
	if series.ErrorMessage == "provider unavailable" {
		t.Error("development message should carry detail")
	}
}
