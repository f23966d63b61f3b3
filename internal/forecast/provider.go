package forecast

import (
	"context"
)

// Provider abstracts one external weather source. Fetch returns a fully
// normalized series for the location, covering the requested hourly span.
// Failures are reported through the error taxonomy in errors.go; the service
// translates them into the series error envelope.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, loc Location, hours int) (ForecastSeries, error)
}
