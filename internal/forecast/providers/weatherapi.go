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

	"github.com/forecastlab/weather-compare/internal/common"
	"github.com/forecastlab/weather-compare/internal/forecast"
	"github.com/forecastlab/weather-compare/internal/units"
)

// WeatherAPIProvider implements forecast.Provider for WeatherAPI.com's
// forecast endpoint. Native units: °C, km/h, mm with explicit probabilities.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	norm    *units.Normalizer
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, norm *units.Normalizer) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		norm:    norm,
		httpCfg: HTTPClientConfig{Client: client, Backoff: DefaultBackoff()},
		circuit: newBreaker("weatherapi"),
	}
}

// SetBaseURL points the provider at a different endpoint. Used by tests.
func (p *WeatherAPIProvider) SetBaseURL(u string) { p.baseURL = u }

func (p *WeatherAPIProvider) Name() string { return p.name }

// taggedAmount decodes a precipitation field that arrives either as a bare
// number (documented default unit applies) or as an object carrying its own
// unit tag. WeatherAPI's documentation and some of its payload shapes
// disagree on precipitation units, so the tag, when present, is trusted over
// the documented default. A field that is neither shape decodes as malformed
// instead of failing the whole payload; callers check Usable and drop the
// affected entry.
type taggedAmount struct {
	units.Field
	Unit units.Unit
}

func (t *taggedAmount) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		t.Field = units.Valid(n)
		t.Unit = units.UnitNone
		return nil
	}
	var obj struct {
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		t.Field = units.Malformed()
		return nil
	}
	t.Field = units.Valid(obj.Value)
	t.Unit = units.Unit(obj.Unit)
	return nil
}

// weatherAPIPayload is the typed intermediate for WeatherAPI.com.
type weatherAPIPayload struct {
	Location struct {
		LocaltimeEpoch int64 `json:"localtime_epoch"`
	} `json:"location"`
	Current  weatherAPIHour `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			DateEpoch int64 `json:"date_epoch"`
			Day       struct {
				MaxTempC          float64      `json:"maxtemp_c"`
				AvgHumidity       float64      `json:"avghumidity"`
				MaxWindKph        float64      `json:"maxwind_kph"`
				TotalPrecip       taggedAmount `json:"totalprecip_mm"`
				DailyChanceOfRain *float64     `json:"daily_chance_of_rain"`
				DailyChanceOfSnow *float64     `json:"daily_chance_of_snow"`
				Condition         struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"day"`
			Hour []weatherAPIHour `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

type weatherAPIHour struct {
	TimeEpoch    int64        `json:"time_epoch"`
	TempC        *float64     `json:"temp_c"`
	FeelsLikeC   *float64     `json:"feelslike_c"`
	Humidity     *float64     `json:"humidity"`
	WindKph      *float64     `json:"wind_kph"`
	WindDegree   *float64     `json:"wind_degree"`
	Precip       taggedAmount `json:"precip_mm"`
	ChanceOfRain *float64     `json:"chance_of_rain"`
	ChanceOfSnow *float64     `json:"chance_of_snow"`
	WillItSnow   int          `json:"will_it_snow"`
	Condition    struct {
		Text string `json:"text"`
	} `json:"condition"`
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, loc forecast.Location, hours int) (forecast.ForecastSeries, error) {
	if p.apiKey == "" {
		return forecast.ForecastSeries{}, fmt.Errorf("%w: weatherapi api key is not configured", forecast.ErrAuth)
	}

	days := hours/24 + 1
	if days > 10 {
		days = 10
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", fmt.Sprintf("%f,%f", loc.Coordinates.Latitude, loc.Coordinates.Longitude))
		values.Set("days", fmt.Sprintf("%d", days))
		return http.NewRequest(http.MethodGet, fmt.Sprintf("%s?%s", p.baseURL, values.Encode()), nil)
	}

	resp, attempts, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return forecast.ForecastSeries{}, err
	}
	defer resp.Body.Close()

	var payload weatherAPIPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return forecast.ForecastSeries{}, fmt.Errorf("%w: weatherapi: %v", forecast.ErrSchema, err)
	}
	if attempts > 1 {
		log.Printf("DEBUG: weatherapi succeeded after %d attempts for %s", attempts, loc.Key())
	}

	current, ok := p.normalizeHour(payload.Current)
	if !ok {
		return forecast.ForecastSeries{}, fmt.Errorf("%w: weatherapi: current observation is missing temperature or has malformed precipitation", forecast.ErrSchema)
	}
	if current.Timestamp == 0 {
		current.Timestamp = time.Unix(payload.Location.LocaltimeEpoch, 0).UTC().UnixMilli()
	}

	var points []forecast.NormalizedObservation
	daily := make([]forecast.NormalizedObservation, 0, len(payload.Forecast.ForecastDay))
	dropped := 0

	for _, fd := range payload.Forecast.ForecastDay {
		for _, h := range fd.Hour {
			obs, ok := p.normalizeHour(h)
			if !ok {
				dropped++
				continue
			}
			points = append(points, obs)
		}

		if !fd.Day.TotalPrecip.Usable() {
			log.Printf("WARN: weatherapi: skipping daily entry with malformed precipitation for %s", loc.Key())
			continue
		}

		prob := fd.Day.DailyChanceOfRain
		if prob == nil {
			prob = fd.Day.DailyChanceOfSnow
		}
		daily = append(daily, forecast.NormalizedObservation{
			Timestamp:   time.Unix(fd.DateEpoch, 0).UTC().UnixMilli(),
			Temperature: p.norm.Temperature(p.name, fd.Day.MaxTempC, units.UnitNone),
			FeelsLike:   p.norm.Temperature(p.name, fd.Day.MaxTempC, units.UnitNone),
			Humidity:    fd.Day.AvgHumidity,
			WindSpeed:   p.norm.WindSpeed(p.name, fd.Day.MaxWindKph, units.UnitNone),
			Precipitation: forecast.Precipitation{
				Probability: p.norm.Probability(prob),
				Amount:      p.norm.Precipitation(p.name, fd.Day.TotalPrecip.Value, fd.Day.TotalPrecip.Unit),
				Type:        precipTypeFromChances(fd.Day.DailyChanceOfRain, fd.Day.DailyChanceOfSnow),
			},
			WeatherCondition: fd.Day.Condition.Text,
			Icon:             mapWeatherAPICondition(fd.Day.Condition.Text),
		})
	}
	if dropped > 0 {
		log.Printf("WARN: weatherapi: dropped %d hourly points with missing temperature or malformed precipitation for %s", dropped, loc.Key())
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

// normalizeHour converts one payload hour. Temperature is required and the
// precipitation field must have decoded; an hour failing either check is
// reported unusable so a missing temp_c never masquerades as 32°F.
func (p *WeatherAPIProvider) normalizeHour(h weatherAPIHour) (forecast.NormalizedObservation, bool) {
	temp := fieldFromPtr(h.TempC, 0)
	if temp.State != units.FieldValid || !h.Precip.Usable() {
		return forecast.NormalizedObservation{}, false
	}
	feels := fieldFromPtr(h.FeelsLikeC, temp.Value)
	humidity := fieldFromPtr(h.Humidity, 0)
	wind := fieldFromPtr(h.WindKph, 0)

	prob := h.ChanceOfRain
	if prob == nil {
		prob = h.ChanceOfSnow
	}

	ptype := precipTypeFromChances(h.ChanceOfRain, h.ChanceOfSnow)
	if h.WillItSnow == 1 {
		ptype = forecast.PrecipSnow
	}

	obs := forecast.NormalizedObservation{
		Timestamp:   time.Unix(h.TimeEpoch, 0).UTC().UnixMilli(),
		Temperature: p.norm.Temperature(p.name, temp.Value, units.UnitNone),
		FeelsLike:   p.norm.Temperature(p.name, feels.Value, units.UnitNone),
		Humidity:    humidity.Value,
		WindSpeed:   p.norm.WindSpeed(p.name, wind.Value, units.UnitNone),
		Precipitation: forecast.Precipitation{
			Probability: p.norm.Probability(prob),
			Amount:      p.norm.Precipitation(p.name, h.Precip.Value, h.Precip.Unit),
			Type:        ptype,
		},
		WeatherCondition: h.Condition.Text,
		Icon:             mapWeatherAPICondition(h.Condition.Text),
	}
	if h.WindDegree != nil {
		deg := *h.WindDegree
		obs.WindDirection = &deg
	}
	return obs, true
}

func precipTypeFromChances(rain, snow *float64) forecast.PrecipType {
	r := rain != nil && *rain > 0
	s := snow != nil && *snow > 0
	switch {
	case r && s:
		return forecast.PrecipMixed
	case s:
		return forecast.PrecipSnow
	case r:
		return forecast.PrecipRain
	default:
		return forecast.PrecipUndefined
	}
}

func mapWeatherAPICondition(text string) forecast.Icon {
	lower := strings.ToLower(text)
	switch {
	case text == "":
		return forecast.IconUnknown
	case common.HasAny(lower, "thunder", "storm"):
		return forecast.IconStorm
	case common.HasAny(lower, "sleet", "ice", "freezing"):
		return forecast.IconSleet
	case common.HasAny(lower, "snow", "blizzard"):
		return forecast.IconSnow
	case common.HasAny(lower, "rain", "shower", "drizzle"):
		return forecast.IconRain
	case common.HasAny(lower, "fog", "mist"):
		return forecast.IconFog
	case common.HasAny(lower, "partly"):
		return forecast.IconPartlyCloudy
	case common.HasAny(lower, "cloud", "overcast"):
		return forecast.IconCloudy
	case common.HasAny(lower, "sunny", "clear"):
		return forecast.IconClear
	default:
		return forecast.IconUnknown
	}
}
