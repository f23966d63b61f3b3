package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/forecastlab/weather-compare/internal/forecast"
	"github.com/forecastlab/weather-compare/internal/stitch"
	"github.com/forecastlab/weather-compare/internal/units"
)

// openMeteoTimeLayout is the ISO shape Open-Meteo uses for hourly/daily time
// arrays (no zone suffix; values are UTC when timezone=UTC is requested).
const openMeteoTimeLayout = "2006-01-02T15:04"

// OpenMeteoProvider implements forecast.Provider for Open-Meteo. The hourly
// endpoint serves a fixed-size window per request together with a
// continuation token, so full-span recovery goes through the stitcher.
// Native units: °C, km/h, mm.
type OpenMeteoProvider struct {
	name     string
	baseURL  string
	norm     *units.Normalizer
	stitcher *stitch.Stitcher
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker

	// fillShortfall synthesizes demo hours for any span the provider could
	// not be made to return. Only enabled in demo mode.
	fillShortfall bool
}

func NewOpenMeteoProvider(client *http.Client, norm *units.Normalizer, stitcher *stitch.Stitcher) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:     "openmeteo",
		baseURL:  "https://api.open-meteo.com/v1/forecast",
		norm:     norm,
		stitcher: stitcher,
		httpCfg:  HTTPClientConfig{Client: client, Backoff: DefaultBackoff()},
		circuit:  newBreaker("openmeteo"),
	}
}

// SetBaseURL points the provider at a different endpoint. Used by tests.
func (p *OpenMeteoProvider) SetBaseURL(u string) { p.baseURL = u }

// EnableShortfallFill turns on demo filling of unrecoverable hours.
func (p *OpenMeteoProvider) EnableShortfallFill() { p.fillShortfall = true }

func (p *OpenMeteoProvider) Name() string { return p.name }

// openMeteoPayload is the typed intermediate for Open-Meteo's array-of-
// columns response shape.
type openMeteoPayload struct {
	Current struct {
		Time                     string   `json:"time"`
		Temperature              float64  `json:"temperature_2m"`
		ApparentTemperature      float64  `json:"apparent_temperature"`
		RelativeHumidity         float64  `json:"relative_humidity_2m"`
		WindSpeed                float64  `json:"wind_speed_10m"`
		WindDirection            *float64 `json:"wind_direction_10m"`
		Precipitation            float64  `json:"precipitation"`
		PrecipitationProbability *float64 `json:"precipitation_probability"`
		WeatherCode              int      `json:"weather_code"`
	} `json:"current"`
	Hourly struct {
		Time                     []string  `json:"time"`
		Temperature              []float64 `json:"temperature_2m"`
		ApparentTemperature      []float64 `json:"apparent_temperature"`
		RelativeHumidity         []float64 `json:"relative_humidity_2m"`
		WindSpeed                []float64 `json:"wind_speed_10m"`
		WindDirection            []float64 `json:"wind_direction_10m"`
		Precipitation            []float64 `json:"precipitation"`
		PrecipitationProbability []float64 `json:"precipitation_probability"`
		WeatherCode              []int     `json:"weather_code"`
	} `json:"hourly"`
	Daily struct {
		Time                        []string  `json:"time"`
		TemperatureMax              []float64 `json:"temperature_2m_max"`
		ApparentTemperatureMax      []float64 `json:"apparent_temperature_max"`
		PrecipitationSum            []float64 `json:"precipitation_sum"`
		PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
		WeatherCode                 []int     `json:"weather_code"`
	} `json:"daily"`
	ContinuationToken string `json:"continuation_token"`
}

// pageFetcher adapts one Fetch call to the stitch.Fetcher contract and
// captures the current/daily blocks off the first page it sees.
type pageFetcher struct {
	p       *OpenMeteoProvider
	current *forecast.NormalizedObservation
	daily   []forecast.NormalizedObservation
}

func (f *pageFetcher) FetchPage(ctx context.Context, req stitch.Request) (stitch.Page, error) {
	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", req.Latitude))
		values.Set("longitude", fmt.Sprintf("%f", req.Longitude))
		values.Set("timezone", "UTC")
		values.Set("forecast_hours", fmt.Sprintf("%d", req.Hours))
		values.Set("current", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,wind_direction_10m,precipitation,precipitation_probability,weather_code")
		values.Set("hourly", "temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,wind_direction_10m,precipitation,precipitation_probability,weather_code")
		values.Set("daily", "temperature_2m_max,apparent_temperature_max,precipitation_sum,precipitation_probability_max,weather_code")
		if req.Token != "" {
			values.Set("continuation_token", req.Token)
		}
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", f.p.baseURL, values.Encode()), nil)
	}

	resp, attempts, err := doRequestWithResilience(ctx, f.p.httpCfg, f.p.circuit, buildRequest)
	if err != nil {
		// A 4xx on a tokened request means the continuation token went
		// stale; surface it as such so the stitcher can switch strategies.
		if req.Token != "" && errors.Is(err, forecast.ErrSchema) {
			return stitch.Page{}, fmt.Errorf("%w: %v", forecast.ErrPageToken, err)
		}
		return stitch.Page{}, err
	}
	defer resp.Body.Close()

	var payload openMeteoPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return stitch.Page{}, fmt.Errorf("%w: openmeteo: %v", forecast.ErrSchema, err)
	}
	if attempts > 1 {
		log.Printf("DEBUG: openmeteo page succeeded after %d attempts", attempts)
	}

	points := f.p.normalizeHourly(payload)

	if f.current == nil && payload.Current.Time != "" {
		obs := f.p.normalizeCurrent(payload)
		f.current = &obs
	}
	if f.daily == nil && len(payload.Daily.Time) > 0 {
		f.daily = f.p.normalizeDaily(payload)
	}

	return stitch.Page{Points: points, NextToken: payload.ContinuationToken}, nil
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc forecast.Location, hours int) (forecast.ForecastSeries, error) {
	fetcher := &pageFetcher{p: p}

	points, prov, err := p.stitcher.Collect(ctx, fetcher, stitch.Request{
		Latitude:  loc.Coordinates.Latitude,
		Longitude: loc.Coordinates.Longitude,
		Hours:     hours,
	})
	if err != nil {
		return forecast.ForecastSeries{}, err
	}

	info := &forecast.PaginationInfo{
		PagesRequested:      prov.PagesRequested,
		TotalHoursRetrieved: prov.TotalHoursRetrieved,
		HoursFromAPI:        prov.HoursFromPrimary + prov.HoursFromFallback,
		HoursRequested:      prov.HoursRequested,
	}

	series := forecast.ForecastSeries{
		Location:       loc,
		Current:        fetcher.current,
		Daily:          fetcher.daily,
		Source:         p.name,
		LastUpdated:    time.Now().UTC(),
		PaginationInfo: info,
	}
	if series.Daily == nil {
		series.Daily = []forecast.NormalizedObservation{}
	}

	if p.fillShortfall && len(points) < hours {
		filled := fillDemoHours(points, hours, loc)
		info.HoursFromMockData = len(filled) - len(points)
		info.TotalHoursRetrieved = len(filled)
		points = filled
		series.IsMockData = true
		series.MockDataReason = fmt.Sprintf("provider returned %d of %d requested hours; remainder synthesized", info.HoursFromAPI, hours)
	}

	series.Hourly = forecast.HourlyGrid(time.Now().UTC(), hours, points)
	return series, nil
}

func (p *OpenMeteoProvider) normalizeCurrent(payload openMeteoPayload) forecast.NormalizedObservation {
	c := payload.Current
	ts, err := time.Parse(openMeteoTimeLayout, c.Time)
	if err != nil {
		ts = time.Now().UTC()
	}
	obs := forecast.NormalizedObservation{
		Timestamp:   ts.UTC().UnixMilli(),
		Temperature: p.norm.Temperature(p.name, c.Temperature, units.UnitNone),
		FeelsLike:   p.norm.Temperature(p.name, c.ApparentTemperature, units.UnitNone),
		Humidity:    c.RelativeHumidity,
		WindSpeed:   p.norm.WindSpeed(p.name, c.WindSpeed, units.UnitNone),
		Precipitation: forecast.Precipitation{
			Probability: p.norm.Probability(c.PrecipitationProbability),
			Amount:      p.norm.Precipitation(p.name, c.Precipitation, units.UnitNone),
			Type:        precipTypeFromWeatherCode(c.WeatherCode),
		},
		WeatherCondition: weatherCodeText(c.WeatherCode),
		Icon:             mapWeatherCode(c.WeatherCode),
	}
	if c.WindDirection != nil {
		deg := *c.WindDirection
		obs.WindDirection = &deg
	}
	return obs
}

func (p *OpenMeteoProvider) normalizeHourly(payload openMeteoPayload) []forecast.NormalizedObservation {
	h := payload.Hourly
	points := make([]forecast.NormalizedObservation, 0, len(h.Time))
	for i, raw := range h.Time {
		ts, err := time.Parse(openMeteoTimeLayout, raw)
		if err != nil {
			log.Printf("WARN: openmeteo: skipping hourly slot with bad time %q: %v", raw, err)
			continue
		}

		// Temperature is required; a slot the temperature column does not
		// cover is dropped rather than defaulted to 0°C.
		if i >= len(h.Temperature) {
			log.Printf("WARN: openmeteo: dropping hourly slot %s with missing temperature", raw)
			continue
		}

		obs := forecast.NormalizedObservation{
			Timestamp:   ts.UTC().UnixMilli(),
			Temperature: p.norm.Temperature(p.name, h.Temperature[i], units.UnitNone),
		}
		if i < len(h.ApparentTemperature) {
			obs.FeelsLike = p.norm.Temperature(p.name, h.ApparentTemperature[i], units.UnitNone)
		}
		if i < len(h.RelativeHumidity) {
			obs.Humidity = h.RelativeHumidity[i]
		}
		if i < len(h.WindSpeed) {
			obs.WindSpeed = p.norm.WindSpeed(p.name, h.WindSpeed[i], units.UnitNone)
		}
		if i < len(h.WindDirection) {
			deg := h.WindDirection[i]
			obs.WindDirection = &deg
		}

		var prob *float64
		if i < len(h.PrecipitationProbability) {
			prob = &h.PrecipitationProbability[i]
		}
		var amount float64
		if i < len(h.Precipitation) {
			amount = h.Precipitation[i]
		}
		code := 0
		if i < len(h.WeatherCode) {
			code = h.WeatherCode[i]
		}
		obs.Precipitation = forecast.Precipitation{
			Probability: p.norm.Probability(prob),
			Amount:      p.norm.Precipitation(p.name, amount, units.UnitNone),
			Type:        precipTypeFromWeatherCode(code),
		}
		obs.WeatherCondition = weatherCodeText(code)
		obs.Icon = mapWeatherCode(code)

		points = append(points, obs)
	}
	return points
}

func (p *OpenMeteoProvider) normalizeDaily(payload openMeteoPayload) []forecast.NormalizedObservation {
	d := payload.Daily
	daily := make([]forecast.NormalizedObservation, 0, len(d.Time))
	for i, raw := range d.Time {
		ts, err := time.Parse("2006-01-02", raw)
		if err != nil {
			ts, err = time.Parse(openMeteoTimeLayout, raw)
			if err != nil {
				continue
			}
		}

		obs := forecast.NormalizedObservation{
			Timestamp: ts.UTC().UnixMilli(),
		}
		if i < len(d.TemperatureMax) {
			obs.Temperature = p.norm.Temperature(p.name, d.TemperatureMax[i], units.UnitNone)
		}
		if i < len(d.ApparentTemperatureMax) {
			obs.FeelsLike = p.norm.Temperature(p.name, d.ApparentTemperatureMax[i], units.UnitNone)
		}
		var prob *float64
		if i < len(d.PrecipitationProbabilityMax) {
			prob = &d.PrecipitationProbabilityMax[i]
		}
		var amount float64
		if i < len(d.PrecipitationSum) {
			amount = d.PrecipitationSum[i]
		}
		code := 0
		if i < len(d.WeatherCode) {
			code = d.WeatherCode[i]
		}
		obs.Precipitation = forecast.Precipitation{
			Probability: p.norm.Probability(prob),
			Amount:      p.norm.Precipitation(p.name, amount, units.UnitNone),
			Type:        precipTypeFromWeatherCode(code),
		}
		obs.WeatherCondition = weatherCodeText(code)
		obs.Icon = mapWeatherCode(code)

		daily = append(daily, obs)
	}
	return daily
}

// mapWeatherCode maps WMO weather codes onto the canonical icon set.
func mapWeatherCode(code int) forecast.Icon {
	switch {
	case code == 0:
		return forecast.IconClear
	case code >= 1 && code <= 2:
		return forecast.IconPartlyCloudy
	case code == 3:
		return forecast.IconCloudy
	case code >= 45 && code <= 48:
		return forecast.IconFog
	case code >= 56 && code <= 57, code >= 66 && code <= 67:
		return forecast.IconSleet
	case code >= 51 && code <= 65, code >= 80 && code <= 82:
		return forecast.IconRain
	case code >= 71 && code <= 77, code >= 85 && code <= 86:
		return forecast.IconSnow
	case code >= 95:
		return forecast.IconStorm
	default:
		return forecast.IconUnknown
	}
}

func precipTypeFromWeatherCode(code int) forecast.PrecipType {
	switch {
	case code >= 56 && code <= 57, code >= 66 && code <= 67:
		return forecast.PrecipIce
	case code >= 71 && code <= 77, code >= 85 && code <= 86:
		return forecast.PrecipSnow
	case code >= 51 && code <= 65, code >= 80 && code <= 82, code >= 95:
		return forecast.PrecipRain
	default:
		return forecast.PrecipUndefined
	}
}

func weatherCodeText(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code >= 1 && code <= 3:
		return "Partly cloudy"
	case code >= 45 && code <= 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case code >= 61 && code <= 67:
		return "Rain"
	case code >= 71 && code <= 77:
		return "Snow"
	case code >= 80 && code <= 82:
		return "Rain showers"
	case code >= 85 && code <= 86:
		return "Snow showers"
	case code >= 95:
		return "Thunderstorm"
	default:
		return fmt.Sprintf("Weather code %d", code)
	}
}
