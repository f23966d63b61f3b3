package providers

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"github.com/forecastlab/weather-compare/internal/forecast"
)

// DemoProvider stands in for a source whose credentials are absent while the
// service runs in demo mode. It serves a deterministic synthetic series so
// downstream comparison code still has a full-cardinality input, clearly
// flagged via isMockData.
type DemoProvider struct {
	source string
	reason string
}

func NewDemoProvider(source, reason string) *DemoProvider {
	return &DemoProvider{source: source, reason: reason}
}

func (d *DemoProvider) Name() string { return d.source }

func (d *DemoProvider) Fetch(_ context.Context, loc forecast.Location, hours int) (forecast.ForecastSeries, error) {
	now := time.Now().UTC().Truncate(time.Hour)

	points := make([]forecast.NormalizedObservation, 0, hours)
	for i := 0; i < hours; i++ {
		points = append(points, demoObservation(d.source, loc, now.Add(time.Duration(i)*time.Hour)))
	}

	days := hours / 24
	if days == 0 {
		days = 1
	}
	daily := make([]forecast.NormalizedObservation, 0, days)
	for i := 0; i < days; i++ {
		day := now.Truncate(24 * time.Hour).AddDate(0, 0, i)
		daily = append(daily, demoObservation(d.source, loc, day))
	}

	current := demoObservation(d.source, loc, now)

	return forecast.ForecastSeries{
		Location:       loc,
		Current:        &current,
		Hourly:         forecast.HourlyGrid(now, hours, points),
		Daily:          daily,
		Source:         d.source,
		LastUpdated:    time.Now().UTC(),
		IsMockData:     true,
		MockDataReason: d.reason,
	}, nil
}

// fillDemoHours extends a partially recovered hourly series with synthetic
// points so the requested span is covered. Real points always win; only
// missing hour slots are filled.
func fillDemoHours(points []forecast.NormalizedObservation, hours int, loc forecast.Location) []forecast.NormalizedObservation {
	have := make(map[int64]bool, len(points))
	var start time.Time
	if len(points) > 0 {
		start = points[0].Time().Truncate(time.Hour)
	} else {
		start = time.Now().UTC().Truncate(time.Hour)
	}
	for _, p := range points {
		have[p.Timestamp] = true
	}

	filled := append([]forecast.NormalizedObservation{}, points...)
	for i := 0; i < hours; i++ {
		ts := start.Add(time.Duration(i) * time.Hour)
		if have[ts.UnixMilli()] {
			continue
		}
		filled = append(filled, demoObservation("fill", loc, ts))
	}
	return filled
}

// demoObservation produces a stable synthetic observation: a diurnal
// temperature curve offset by a hash of the source and location, dry skies.
// Determinism matters so repeated demo calls agree with each other.
func demoObservation(source string, loc forecast.Location, ts time.Time) forecast.NormalizedObservation {
	h := fnv.New32a()
	h.Write([]byte(source))
	h.Write([]byte(loc.Key()))
	offset := float64(h.Sum32()%70) / 10.0 // 0..6.9°F spread between sources

	phase := float64(ts.Hour()) / 24.0 * 2 * math.Pi
	temp := 62.0 + offset + 12.0*math.Sin(phase-math.Pi/2)

	prob := forecast.KnownProbability(10)
	return forecast.NormalizedObservation{
		Timestamp:   ts.UTC().UnixMilli(),
		Temperature: math.Round(temp*10) / 10,
		FeelsLike:   math.Round((temp-1.5)*10) / 10,
		Humidity:    55,
		WindSpeed:   6.2,
		Precipitation: forecast.Precipitation{
			Probability: prob,
			Amount:      0,
			Type:        forecast.PrecipUndefined,
		},
		WeatherCondition: "Partly cloudy",
		Icon:             forecast.IconPartlyCloudy,
	}
}
