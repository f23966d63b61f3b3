// Package stitch reconstructs full-length hourly series from providers that
// return fixed-size windows behind continuation tokens. Tokens from these
// providers frequently go stale on reuse, so the stitcher carries a fallback
// strategy that perturbs the query instead of replaying a rejected token.
package stitch

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/forecastlab/weather-compare/internal/forecast"
)

// Request describes one page fetch. Token is empty for the initial request
// and for fallback requests.
type Request struct {
	Latitude  float64
	Longitude float64
	Hours     int
	Token     string
}

// Page is one provider response window.
type Page struct {
	Points    []forecast.NormalizedObservation
	NextToken string
}

// Fetcher issues a single paginated request against one provider.
type Fetcher interface {
	FetchPage(ctx context.Context, req Request) (Page, error)
}

// Provenance records how the stitched series was assembled.
type Provenance struct {
	PagesRequested      int
	TotalHoursRetrieved int
	HoursFromPrimary    int
	HoursFromFallback   int
	HoursRequested      int
}

// Stitcher collects pages sequentially until the requested span is covered,
// a bounded request ceiling is reached, or the provider stops yielding new
// data. Partial recovery is success, not failure.
type Stitcher struct {
	// MaxPages bounds the total number of requests (primary + fallback) so a
	// misbehaving provider cannot trap us in a loop.
	MaxPages int

	// PageDelay is the pause between consecutive requests to the same
	// provider. Deliberate blocking, honors context cancellation.
	PageDelay time.Duration

	// FallbackOffsets are coordinate perturbations (degrees) tried in order
	// once a continuation token is rejected. Each solicits a different window
	// from the same provider without replaying the bad token.
	FallbackOffsets []float64
}

// NewStitcher returns a Stitcher with the defaults used in production.
func NewStitcher(maxPages int, pageDelay time.Duration) *Stitcher {
	if maxPages <= 0 {
		maxPages = 12
	}
	return &Stitcher{
		MaxPages:        maxPages,
		PageDelay:       pageDelay,
		FallbackOffsets: []float64{0.01, -0.01, 0.02},
	}
}

// Collect runs the stitch loop. The returned points are deduplicated by
// timestamp (first-seen wins), sorted ascending, and truncated to the
// requested span. An error is returned only when nothing at all could be
// recovered.
func (s *Stitcher) Collect(ctx context.Context, f Fetcher, req Request) ([]forecast.NormalizedObservation, Provenance, error) {
	prov := Provenance{HoursRequested: req.Hours}
	seen := make(map[int64]forecast.NormalizedObservation)

	// requests counts every outbound call (primary and fallback) against the
	// iteration ceiling; PagesRequested counts pages that delivered data:
	// successful primary pages, and fallback pages contributing new hours.
	requests := 0

	merge := func(points []forecast.NormalizedObservation) int {
		added := 0
		for _, p := range points {
			if _, dup := seen[p.Timestamp]; dup {
				continue
			}
			seen[p.Timestamp] = p
			added++
		}
		return added
	}

	// Initial request for the full span.
	requests++
	page, err := f.FetchPage(ctx, Request{Latitude: req.Latitude, Longitude: req.Longitude, Hours: req.Hours})
	if err != nil {
		return nil, prov, err
	}
	prov.PagesRequested++
	prov.HoursFromPrimary += merge(page.Points)

	token := page.NextToken
	fallback := false
	nextOffset := 0

	for len(seen) < req.Hours && requests < s.MaxPages {
		if !fallback && token == "" {
			break
		}
		if err := s.pause(ctx); err != nil {
			break
		}

		if !fallback {
			requests++
			page, err = f.FetchPage(ctx, Request{Latitude: req.Latitude, Longitude: req.Longitude, Hours: req.Hours, Token: token})
			if errors.Is(err, forecast.ErrPageToken) {
				log.Printf("WARN: continuation token rejected after %d pages, switching to fallback requests", prov.PagesRequested)
				fallback = true
				continue
			}
			if err != nil {
				break
			}
			prov.PagesRequested++
			prov.HoursFromPrimary += merge(page.Points)
			token = page.NextToken
			continue
		}

		// Fallback mode: perturbed coordinates, one shot per offset.
		if nextOffset >= len(s.FallbackOffsets) {
			break
		}
		off := s.FallbackOffsets[nextOffset]
		nextOffset++

		requests++
		page, err = f.FetchPage(ctx, Request{Latitude: req.Latitude + off, Longitude: req.Longitude, Hours: req.Hours})
		if err != nil {
			continue
		}
		added := merge(page.Points)
		if added > 0 {
			prov.PagesRequested++
		}
		prov.HoursFromFallback += added
	}

	points := s.finish(seen, req.Hours)
	return points, Provenance{
		PagesRequested:      prov.PagesRequested,
		TotalHoursRetrieved: len(points),
		HoursFromPrimary:    prov.HoursFromPrimary,
		HoursFromFallback:   prov.HoursFromFallback,
		HoursRequested:      prov.HoursRequested,
	}, nil
}

// finish sorts collected points ascending by timestamp and truncates to the
// requested span.
func (s *Stitcher) finish(seen map[int64]forecast.NormalizedObservation, hours int) []forecast.NormalizedObservation {
	points := make([]forecast.NormalizedObservation, 0, len(seen))
	for _, p := range seen {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
	if len(points) > hours {
		points = points[:hours]
	}
	return points
}

func (s *Stitcher) pause(ctx context.Context) error {
	if s.PageDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.PageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
