package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/forecastlab/weather-compare/internal/forecast"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// DefaultBackoff matches the configured retry policy: 3 retries starting at
// 500ms, doubling, capped at 5s.
func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// doRequestWithResilience executes the HTTP request with retries, exponential
// backoff, and a circuit breaker. Responses are classified into the failure
// taxonomy before the retry decision: auth failures, rate limits and schema
// errors are never retried; transport failures and 5xx are. The attempt count
// is returned so callers can surface it in diagnostics.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, int, error) {
	if cfg.Client == nil {
		return nil, 0, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, 0, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, attempt, fmt.Errorf("%w: %v", forecast.ErrNetwork, ctx.Err())
		}

		req, err := buildRequest()
		if err != nil {
			return nil, attempt, err
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, fmt.Errorf("%w: %v", forecast.ErrNetwork, execErr)
			}
			if clsErr := forecast.ClassifyStatus(resp.StatusCode); clsErr != nil {
				resp.Body.Close()
				return nil, clsErr
			}
			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, attempt + 1, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, attempt + 1, nil
		}

		// If the circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, attempt + 1, fmt.Errorf("%w: %s: %v", forecast.ErrNetwork, errCircuitOpen, err)
		}

		if !forecast.Retryable(err) {
			return nil, attempt + 1, err
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, attempt + 1, lastErr
		}

		// Backoff with exponential delay.
		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt + 1, fmt.Errorf("%w: %v", forecast.ErrNetwork, ctx.Err())
		case <-timer.C:
			// continue to next attempt
		}

		attempt++
	}
}
