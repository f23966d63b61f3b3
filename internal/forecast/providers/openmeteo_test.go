package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forecastlab/weather-compare/internal/stitch"
	"github.com/forecastlab/weather-compare/internal/units"
)

// openMeteoWindow renders an Open-Meteo style hourly window as JSON.
func openMeteoWindow(start time.Time, hours int, token string) string {
	times := make([]string, hours)
	temps := make([]float64, hours)
	for i := 0; i < hours; i++ {
		times[i] = start.Add(time.Duration(i) * time.Hour).Format(openMeteoTimeLayout)
		temps[i] = 10.0
	}

	payload := map[string]interface{}{
		"current": map[string]interface{}{
			"time":           times[0],
			"temperature_2m": 11.0,
			"weather_code":   0,
		},
		"hourly": map[string]interface{}{
			"time":           times,
			"temperature_2m": temps,
		},
		"daily": map[string]interface{}{
			"time":               []string{start.Format("2006-01-02")},
			"temperature_2m_max": []float64{14.0},
		},
	}
	if token != "" {
		payload["continuation_token"] = token
	}
	b, _ := json.Marshal(payload)
	return string(b)
}

func newTestOpenMeteo(srv *httptest.Server) *OpenMeteoProvider {
	p := NewOpenMeteoProvider(srv.Client(), units.NewNormalizer(), stitch.NewStitcher(8, 0))
	p.SetBaseURL(srv.URL)
	return p
}

// TestOpenMeteoStitchesAcrossPages: two token-linked windows merge into one
// series with pagination provenance attached.
func TestOpenMeteoStitchesAcrossPages(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("continuation_token") {
		case "":
			fmt.Fprint(w, openMeteoWindow(base, 24, "page2"))
		case "page2":
			fmt.Fprint(w, openMeteoWindow(base.Add(24*time.Hour), 24, ""))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	series, err := p.Fetch(context.Background(), testLoc(), 48)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if series.PaginationInfo == nil {
		t.Fatal("expected pagination info")
	}
	if series.PaginationInfo.PagesRequested != 2 {
		t.Errorf("pagesRequested = %d, want 2", series.PaginationInfo.PagesRequested)
	}
	if series.PaginationInfo.HoursFromAPI != 48 {
		t.Errorf("hoursFromApi = %d, want 48", series.PaginationInfo.HoursFromAPI)
	}
	if series.Current == nil {
		t.Fatal("expected current observation from first page")
	}
	if len(series.Daily) != 1 {
		t.Errorf("daily length = %d, want 1", len(series.Daily))
	}
}

// TestOpenMeteoTokenRejectionFallsBack: a stale token triggers perturbed
// fallback requests instead of failing the source.
func TestOpenMeteoTokenRejectionFallsBack(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var sawPerturbed bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("continuation_token") != "" {
			// Every token is stale.
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		lat := q.Get("latitude")
		if strings.HasPrefix(lat, "34.09") {
			fmt.Fprint(w, openMeteoWindow(base, 24, "stale"))
			return
		}
		sawPerturbed = true
		fmt.Fprint(w, openMeteoWindow(base.Add(24*time.Hour), 24, ""))
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	series, err := p.Fetch(context.Background(), testLoc(), 72)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !sawPerturbed {
		t.Fatal("expected fallback requests with perturbed coordinates")
	}
	if series.PaginationInfo.HoursFromAPI < 48 {
		t.Errorf("hoursFromApi = %d, want at least 48", series.PaginationInfo.HoursFromAPI)
	}
	if series.IsError {
		t.Error("fallback recovery must not mark the source errored")
	}
}

// TestOpenMeteoDemoFill: in demo mode unrecoverable hours are synthesized
// and accounted as mock data.
func TestOpenMeteoDemoFill(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, openMeteoWindow(base, 24, ""))
	}))
	defer srv.Close()

	p := newTestOpenMeteo(srv)
	p.EnableShortfallFill()

	series, err := p.Fetch(context.Background(), testLoc(), 48)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !series.IsMockData {
		t.Error("demo-filled series must be flagged isMockData")
	}
	if series.MockDataReason == "" {
		t.Error("demo-filled series must carry a reason")
	}
	info := series.PaginationInfo
	if info.HoursFromMockData != 24 {
		t.Errorf("hoursFromMockData = %d, want 24", info.HoursFromMockData)
	}
	if info.HoursFromAPI != 24 {
		t.Errorf("hoursFromApi = %d, want 24", info.HoursFromAPI)
	}
	if info.TotalHoursRetrieved != 48 {
		t.Errorf("totalHoursRetrieved = %d, want 48", info.TotalHoursRetrieved)
	}
}
