package forecast

import (
	"encoding/json"
	"fmt"
	"time"
)

// Icon is the canonical condition icon shared by all sources.
type Icon string

const (
	IconUnknown      Icon = "unknown"
	IconClear        Icon = "clear"
	IconPartlyCloudy Icon = "partly-cloudy"
	IconCloudy       Icon = "cloudy"
	IconFog          Icon = "fog"
	IconRain         Icon = "rain"
	IconSnow         Icon = "snow"
	IconSleet        Icon = "sleet"
	IconStorm        Icon = "storm"
)

// PrecipType classifies the form of expected precipitation.
type PrecipType string

const (
	PrecipRain      PrecipType = "rain"
	PrecipSnow      PrecipType = "snow"
	PrecipIce       PrecipType = "ice"
	PrecipMixed     PrecipType = "mixed"
	PrecipUndefined PrecipType = "undefined"
)

// Coordinates is a resolved lat/lon pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location is a fully resolved place. Immutable once resolved.
type Location struct {
	ZipCode     string      `json:"zipCode,omitempty"`
	City        string      `json:"city"`
	State       string      `json:"state,omitempty"`
	Country     string      `json:"country"`
	Coordinates Coordinates `json:"coordinates"`
}

// Key returns the canonical string key used for caching and routing.
// Zip codes are preferred since they are already unique; otherwise the
// key falls back to a city/state composite.
func (l Location) Key() string {
	if l.ZipCode != "" {
		return l.ZipCode
	}
	if l.State != "" {
		return l.City + "," + l.State
	}
	return fmt.Sprintf("%.4f,%.4f", l.Coordinates.Latitude, l.Coordinates.Longitude)
}

// Probability is a precipitation probability in percent. Some providers omit
// it entirely; that absence is distinct from an explicit zero and marshals as
// the string "n/a".
type Probability struct {
	Value float64
	Known bool
}

// KnownProbability wraps an explicit percentage value.
func KnownProbability(v float64) Probability {
	return Probability{Value: v, Known: true}
}

// UnknownProbability is the "n/a" sentinel.
func UnknownProbability() Probability {
	return Probability{}
}

func (p Probability) MarshalJSON() ([]byte, error) {
	if !p.Known {
		return []byte(`"n/a"`), nil
	}
	return []byte(fmt.Sprintf("%g", p.Value)), nil
}

func (p *Probability) UnmarshalJSON(b []byte) error {
	if string(b) == `"n/a"` || string(b) == "null" {
		*p = Probability{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid probability %q: %w", string(b), err)
	}
	*p = Probability{Value: v, Known: true}
	return nil
}

// Precipitation carries the normalized precipitation fields of an observation.
// Amount is always canonical millimeters and already rounded; it is never
// re-derived or re-rounded downstream.
type Precipitation struct {
	Probability Probability `json:"probability"`
	Amount      float64     `json:"amount"`
	Type        PrecipType  `json:"type"`
}

// NormalizedObservation is one canonical-unit data point: °F, mph, mm.
// Timestamp is epoch milliseconds and unique within a series.
type NormalizedObservation struct {
	Timestamp        int64         `json:"timestamp"`
	Temperature      float64       `json:"temperature"`
	FeelsLike        float64       `json:"feelsLike"`
	Humidity         float64       `json:"humidity"`
	WindSpeed        float64       `json:"windSpeed"`
	WindDirection    *float64      `json:"windDirection,omitempty"`
	Precipitation    Precipitation `json:"precipitation"`
	WeatherCondition string        `json:"weatherCondition"`
	Icon             Icon          `json:"icon"`
}

// Time returns the observation timestamp as UTC time.
func (o NormalizedObservation) Time() time.Time {
	return time.UnixMilli(o.Timestamp).UTC()
}

// PaginationInfo records how a stitched hourly series was assembled.
// hoursFromApi counts real provider data (primary pages plus fallback
// requests); hoursFromMockData counts demo-filled hours.
type PaginationInfo struct {
	PagesRequested      int `json:"pagesRequested"`
	TotalHoursRetrieved int `json:"totalHoursRetrieved"`
	HoursFromAPI        int `json:"hoursFromApi"`
	HoursFromMockData   int `json:"hoursFromMockData"`
	HoursRequested      int `json:"hoursRequested"`
}

// ForecastSeries is one source's complete normalized view of a location.
// Hourly is fixed-length; a nil slot means "no data for that hour", it is
// never omitted. The error envelope fields let a failed source still occupy
// its slot in the multi-source response.
type ForecastSeries struct {
	Location    Location                 `json:"location"`
	Current     *NormalizedObservation   `json:"current"`
	Hourly      []*NormalizedObservation `json:"hourly"`
	Daily       []NormalizedObservation  `json:"daily"`
	Source      string                   `json:"source"`
	LastUpdated time.Time                `json:"lastUpdated"`

	IsError        bool            `json:"isError,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	RateLimited    bool            `json:"rateLimited,omitempty"`
	IsMockData     bool            `json:"isMockData,omitempty"`
	MockDataReason string          `json:"mockDataReason,omitempty"`
	PaginationInfo *PaginationInfo `json:"paginationInfo,omitempty"`
}

// ErrorSeries builds the fixed-slot entry for a source that failed.
func ErrorSeries(loc Location, source, message string) ForecastSeries {
	return ForecastSeries{
		Location:     loc,
		Source:       source,
		Hourly:       []*NormalizedObservation{},
		Daily:        []NormalizedObservation{},
		LastUpdated:  time.Now().UTC(),
		IsError:      true,
		ErrorMessage: message,
	}
}

// RateLimitedSeries builds the empty entry for a source that returned a
// rate-limit signal. Not an error: siblings proceed and the slot is kept.
func RateLimitedSeries(loc Location, source string) ForecastSeries {
	return ForecastSeries{
		Location:    loc,
		Source:      source,
		Hourly:      []*NormalizedObservation{},
		Daily:       []NormalizedObservation{},
		LastUpdated: time.Now().UTC(),
		RateLimited: true,
	}
}

// HourlyGrid places observations onto a fixed-length hour grid starting at
// start (truncated to the hour). Slots with no matching observation stay nil.
// Duplicate timestamps keep the first-seen observation.
func HourlyGrid(start time.Time, hours int, points []NormalizedObservation) []*NormalizedObservation {
	grid := make([]*NormalizedObservation, hours)
	base := start.UTC().Truncate(time.Hour)
	for i := range points {
		p := points[i]
		slot := int(p.Time().Sub(base) / time.Hour)
		if slot < 0 || slot >= hours {
			continue
		}
		if grid[slot] == nil {
			grid[slot] = &p
		}
	}
	return grid
}
