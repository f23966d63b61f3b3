package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forecastlab/weather-compare/internal/forecast"
)

func fastBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func execute(t *testing.T, srv *httptest.Server, backoff BackoffConfig) (*http.Response, int, error) {
	t.Helper()
	cfg := HTTPClientConfig{Client: srv.Client(), Backoff: backoff}
	return doRequestWithResilience(context.Background(), cfg, newBreaker(t.Name()), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
}

// TestRetriesTransientFailures: 5xx responses are retried with backoff until
// the server recovers, and the attempt count is observable.
func TestRetriesTransientFailures(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, attempts, err := execute(t, srv, fastBackoff())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if hits != 3 {
		t.Errorf("server hit %d times, want 3", hits)
	}
}

// TestAuthErrorsAreNotRetried: a 401 is fatal for the source; exactly one
// request goes out.
func TestAuthErrorsAreNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, attempts, err := execute(t, srv, fastBackoff())
	if !errors.Is(err, forecast.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if hits != 1 || attempts != 1 {
		t.Errorf("auth failure retried: hits=%d attempts=%d", hits, attempts)
	}
}

// TestRateLimitNotRetried: 429 surfaces immediately as ErrRateLimited.
func TestRateLimitNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, _, err := execute(t, srv, fastBackoff())
	if !errors.Is(err, forecast.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if hits != 1 {
		t.Errorf("rate limit retried: hits=%d", hits)
	}
}

// TestRetriesExhaust: a persistently failing server exhausts the retry
// budget and the last error propagates as a network error.
func TestRetriesExhaust(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, attempts, err := execute(t, srv, fastBackoff())
	if !errors.Is(err, forecast.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if hits != 4 { // initial + 3 retries
		t.Errorf("hits = %d, want 4", hits)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

// TestContextCancellationStopsRetries verifies cooperative cancellation cuts
// the retry loop short.
func TestContextCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := HTTPClientConfig{Client: srv.Client(), Backoff: fastBackoff()}
	_, _, err := doRequestWithResilience(ctx, cfg, newBreaker(t.Name()), func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, srv.URL, nil)
	})
	if !errors.Is(err, forecast.ErrNetwork) {
		t.Fatalf("expected cancellation surfaced as ErrNetwork, got %v", err)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	_, _, err := doRequestWithResilience(context.Background(), HTTPClientConfig{}, newBreaker(t.Name()), nil)
	if err == nil {
		t.Fatal("expected error for missing client")
	}
}
