package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/forecastlab/weather-compare/internal/forecast"
	"github.com/forecastlab/weather-compare/internal/units"
)

// OpenWeatherProvider implements forecast.Provider for OpenWeatherMap's
// One Call endpoint. Native units are metric: °C, m/s, mm.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	norm    *units.Normalizer
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, norm *units.Normalizer) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/3.0/onecall",
		norm:    norm,
		httpCfg: HTTPClientConfig{Client: client, Backoff: DefaultBackoff()},
		circuit: newBreaker("openweathermap"),
	}
}

// SetBaseURL points the provider at a different endpoint. Used by tests.
func (p *OpenWeatherProvider) SetBaseURL(u string) { p.baseURL = u }

func (p *OpenWeatherProvider) Name() string { return p.name }

// oneCallPayload is the typed intermediate for OpenWeatherMap. All parsing
// happens here; nothing downstream probes alternate field names.
type oneCallPayload struct {
	Current oneCallPoint   `json:"current"`
	Hourly  []oneCallPoint `json:"hourly"`
	Daily   []oneCallDay   `json:"daily"`
}

type oneCallPoint struct {
	Dt        int64    `json:"dt"`
	Temp      *float64 `json:"temp"`
	FeelsLike *float64 `json:"feels_like"`
	Humidity  *float64 `json:"humidity"`
	WindSpeed *float64 `json:"wind_speed"`
	WindDeg   *float64 `json:"wind_deg"`
	Pop       *float64 `json:"pop"`
	Rain      struct {
		OneH float64 `json:"1h"`
	} `json:"rain"`
	Snow struct {
		OneH float64 `json:"1h"`
	} `json:"snow"`
	Weather []oneCallCondition `json:"weather"`
}

type oneCallDay struct {
	Dt   int64 `json:"dt"`
	Temp struct {
		Day float64 `json:"day"`
		Max float64 `json:"max"`
	} `json:"temp"`
	FeelsLike struct {
		Day float64 `json:"day"`
	} `json:"feels_like"`
	Humidity  *float64           `json:"humidity"`
	WindSpeed *float64           `json:"wind_speed"`
	Pop       *float64           `json:"pop"`
	Rain      float64            `json:"rain"`
	Snow      float64            `json:"snow"`
	Weather   []oneCallCondition `json:"weather"`
}

type oneCallCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, loc forecast.Location, hours int) (forecast.ForecastSeries, error) {
	if p.apiKey == "" {
		return forecast.ForecastSeries{}, fmt.Errorf("%w: openweathermap api key is not configured", forecast.ErrAuth)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lat", fmt.Sprintf("%f", loc.Coordinates.Latitude))
		values.Set("lon", fmt.Sprintf("%f", loc.Coordinates.Longitude))
		values.Set("exclude", "minutely,alerts")
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	resp, attempts, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return forecast.ForecastSeries{}, err
	}
	defer resp.Body.Close()

	var payload oneCallPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return forecast.ForecastSeries{}, fmt.Errorf("%w: openweathermap: %v", forecast.ErrSchema, err)
	}

	current, ok := p.normalizePoint(payload.Current)
	if !ok {
		return forecast.ForecastSeries{}, fmt.Errorf("%w: openweathermap: current observation is missing temperature", forecast.ErrSchema)
	}

	points := make([]forecast.NormalizedObservation, 0, len(payload.Hourly))
	dropped := 0
	for _, h := range payload.Hourly {
		obs, ok := p.normalizePoint(h)
		if !ok {
			dropped++
			continue
		}
		points = append(points, obs)
	}
	if dropped > 0 {
		log.Printf("WARN: openweathermap: dropped %d hourly points missing temperature for %s", dropped, loc.Key())
	}

	daily := make([]forecast.NormalizedObservation, 0, len(payload.Daily))
	for _, d := range payload.Daily {
		daily = append(daily, p.normalizeDay(d))
	}

	if attempts > 1 {
		log.Printf("DEBUG: openweathermap succeeded after %d attempts for %s", attempts, loc.Key())
	}

	return forecast.ForecastSeries{
		Location:    loc,
		Current:     &current,
		Hourly:      forecast.HourlyGrid(time.Now().UTC(), hours, points),
		Daily:       daily,
		Source:      p.name,
		LastUpdated: time.Now().UTC(),
	}, nil
}

// normalizePoint converts one payload point. Temperature is required: a point
// without it is reported unusable rather than defaulting to 0°C, which would
// enter the data as a genuine 32°F reading. The remaining fields fall back
// with their state recorded.
func (p *OpenWeatherProvider) normalizePoint(pt oneCallPoint) (forecast.NormalizedObservation, bool) {
	temp := fieldFromPtr(pt.Temp, 0)
	if temp.State != units.FieldValid {
		return forecast.NormalizedObservation{}, false
	}
	feels := fieldFromPtr(pt.FeelsLike, temp.Value)
	humidity := fieldFromPtr(pt.Humidity, 0)
	wind := fieldFromPtr(pt.WindSpeed, 0)

	amount := pt.Rain.OneH + pt.Snow.OneH

	obs := forecast.NormalizedObservation{
		Timestamp:   time.Unix(pt.Dt, 0).UTC().UnixMilli(),
		Temperature: p.norm.Temperature(p.name, temp.Value, units.UnitNone),
		FeelsLike:   p.norm.Temperature(p.name, feels.Value, units.UnitNone),
		Humidity:    humidity.Value,
		WindSpeed:   p.norm.WindSpeed(p.name, wind.Value, units.UnitNone),
		Precipitation: forecast.Precipitation{
			Probability: p.norm.Probability(scalePop(pt.Pop)),
			Amount:      p.norm.Precipitation(p.name, amount, units.UnitNone),
			Type:        precipTypeFromAmounts(pt.Rain.OneH, pt.Snow.OneH),
		},
	}
	if pt.WindDeg != nil {
		deg := *pt.WindDeg
		obs.WindDirection = &deg
	}
	if len(pt.Weather) > 0 {
		obs.WeatherCondition = pt.Weather[0].Description
		obs.Icon = mapOpenWeatherIcon(pt.Weather[0].Icon)
	} else {
		obs.Icon = forecast.IconUnknown
	}
	return obs, true
}

func (p *OpenWeatherProvider) normalizeDay(d oneCallDay) forecast.NormalizedObservation {
	humidity := fieldFromPtr(d.Humidity, 0)
	wind := fieldFromPtr(d.WindSpeed, 0)

	obs := forecast.NormalizedObservation{
		Timestamp:   time.Unix(d.Dt, 0).UTC().UnixMilli(),
		Temperature: p.norm.Temperature(p.name, d.Temp.Max, units.UnitNone),
		FeelsLike:   p.norm.Temperature(p.name, d.FeelsLike.Day, units.UnitNone),
		Humidity:    humidity.Value,
		WindSpeed:   p.norm.WindSpeed(p.name, wind.Value, units.UnitNone),
		Precipitation: forecast.Precipitation{
			Probability: p.norm.Probability(scalePop(d.Pop)),
			Amount:      p.norm.Precipitation(p.name, d.Rain+d.Snow, units.UnitNone),
			Type:        precipTypeFromAmounts(d.Rain, d.Snow),
		},
	}
	if len(d.Weather) > 0 {
		obs.WeatherCondition = d.Weather[0].Description
		obs.Icon = mapOpenWeatherIcon(d.Weather[0].Icon)
	} else {
		obs.Icon = forecast.IconUnknown
	}
	return obs
}

// scalePop converts OpenWeather's 0-1 probability to percent, preserving
// absence: a missing pop stays nil and becomes the "n/a" sentinel.
func scalePop(pop *float64) *float64 {
	if pop == nil {
		return nil
	}
	v := *pop * 100
	return &v
}

// fieldFromPtr lifts an optional payload field into a Field result, so a
// substituted default is distinguishable from a genuine zero.
func fieldFromPtr(p *float64, def float64) units.Field {
	if p == nil {
		return units.Defaulted(def)
	}
	return units.Valid(*p)
}

func precipTypeFromAmounts(rain, snow float64) forecast.PrecipType {
	switch {
	case rain > 0 && snow > 0:
		return forecast.PrecipMixed
	case snow > 0:
		return forecast.PrecipSnow
	case rain > 0:
		return forecast.PrecipRain
	default:
		return forecast.PrecipUndefined
	}
}

// mapOpenWeatherIcon maps OpenWeatherMap icon codes onto the canonical set.
func mapOpenWeatherIcon(code string) forecast.Icon {
	switch {
	case strings.HasPrefix(code, "01"):
		return forecast.IconClear
	case strings.HasPrefix(code, "02"), strings.HasPrefix(code, "03"):
		return forecast.IconPartlyCloudy
	case strings.HasPrefix(code, "04"):
		return forecast.IconCloudy
	case strings.HasPrefix(code, "09"), strings.HasPrefix(code, "10"):
		return forecast.IconRain
	case strings.HasPrefix(code, "11"):
		return forecast.IconStorm
	case strings.HasPrefix(code, "13"):
		return forecast.IconSnow
	case strings.HasPrefix(code, "50"):
		return forecast.IconFog
	default:
		return forecast.IconUnknown
	}
}
