// Package geo resolves opaque location keys (zip code, "lat,lon", or
// "city,state") into coordinates. Geocoding itself is an external
// collaborator: a Google key routes through kelvins/geocoder, otherwise the
// Open-Meteo geocoding API is called through a retrying resty client.
package geo

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kelvins/geocoder"

	"github.com/forecastlab/weather-compare/internal/cache"
	"github.com/forecastlab/weather-compare/internal/forecast"
)

var (
	zipPattern   = regexp.MustCompile(`^\d{5}$`)
	coordPattern = regexp.MustCompile(`^-?\d+(\.\d+)?,-?\d+(\.\d+)?$`)
)

// Resolver turns location keys into resolved Locations, caching results
// under the default (short) TTL class.
type Resolver struct {
	cache      *cache.Cache
	googleKey  string
	client     *resty.Client
	geocodeURL string
}

// NewResolver creates a Resolver. googleKey may be empty; resolution then
// uses the keyless Open-Meteo geocoding API.
func NewResolver(c *cache.Cache, googleKey string) *Resolver {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)

	if googleKey != "" {
		geocoder.ApiKey = googleKey
	}

	return &Resolver{
		cache:      c,
		googleKey:  googleKey,
		client:     client,
		geocodeURL: "https://geocoding-api.open-meteo.com/v1/search",
	}
}

// SetGeocodeURL points the fallback geocoder at a different endpoint. Used
// by tests.
func (r *Resolver) SetGeocodeURL(u string) { r.geocodeURL = u }

// Resolve parses and geocodes a location key. The result is immutable and
// cached.
func (r *Resolver) Resolve(ctx context.Context, key string) (forecast.Location, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return forecast.Location{}, fmt.Errorf("empty location key")
	}

	cacheKey := cache.Key(key, "geo")
	if cached, hit := r.cache.Get(cacheKey); hit {
		if loc, okType := cached.(forecast.Location); okType {
			return loc, nil
		}
	}

	loc, err := r.resolve(ctx, key)
	if err != nil {
		return forecast.Location{}, err
	}

	r.cache.Set(cacheKey, loc, cache.ClassDefault)
	return loc, nil
}

func (r *Resolver) resolve(ctx context.Context, key string) (forecast.Location, error) {
	// Bare coordinates skip geocoding entirely.
	if coordPattern.MatchString(key) {
		parts := strings.SplitN(key, ",", 2)
		lat, _ := strconv.ParseFloat(parts[0], 64)
		lon, _ := strconv.ParseFloat(parts[1], 64)
		return forecast.Location{
			City:        key,
			Country:     "",
			Coordinates: forecast.Coordinates{Latitude: lat, Longitude: lon},
		}, nil
	}

	if r.googleKey != "" {
		loc, err := r.resolveGoogle(key)
		if err == nil {
			return loc, nil
		}
		log.Printf("WARN: google geocoding failed for %q, falling back: %v", key, err)
	}

	return r.resolveOpenMeteo(ctx, key)
}

func (r *Resolver) resolveGoogle(key string) (forecast.Location, error) {
	addr := geocoder.Address{Country: "US"}
	if zipPattern.MatchString(key) {
		addr.PostalCode = key
	} else {
		parts := strings.SplitN(key, ",", 2)
		addr.City = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			addr.State = strings.TrimSpace(parts[1])
		}
	}

	coords, err := geocoder.Geocoding(addr)
	if err != nil {
		return forecast.Location{}, fmt.Errorf("google geocoding: %w", err)
	}

	loc := forecast.Location{
		ZipCode:     addr.PostalCode,
		City:        addr.City,
		State:       addr.State,
		Country:     "US",
		Coordinates: forecast.Coordinates{Latitude: coords.Latitude, Longitude: coords.Longitude},
	}
	return loc, nil
}

// openMeteoGeoResponse is the Open-Meteo geocoding search payload.
type openMeteoGeoResponse struct {
	Results []struct {
		Name        string  `json:"name"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Admin1      string  `json:"admin1"`
		CountryCode string  `json:"country_code"`
	} `json:"results"`
}

func (r *Resolver) resolveOpenMeteo(ctx context.Context, key string) (forecast.Location, error) {
	name := key
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	}

	var payload openMeteoGeoResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"name":  name,
			"count": "1",
		}).
		SetResult(&payload).
		Get(r.geocodeURL)
	if err != nil {
		return forecast.Location{}, fmt.Errorf("%w: geocoding: %v", forecast.ErrNetwork, err)
	}
	if resp.IsError() {
		return forecast.Location{}, forecast.ClassifyStatus(resp.StatusCode())
	}
	if len(payload.Results) == 0 {
		return forecast.Location{}, fmt.Errorf("no geocoding result for %q", key)
	}

	res := payload.Results[0]
	loc := forecast.Location{
		City:        res.Name,
		State:       res.Admin1,
		Country:     res.CountryCode,
		Coordinates: forecast.Coordinates{Latitude: res.Latitude, Longitude: res.Longitude},
	}
	if zipPattern.MatchString(key) {
		loc.ZipCode = key
	}
	return loc, nil
}
