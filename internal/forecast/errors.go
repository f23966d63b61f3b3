package forecast

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure taxonomy for provider calls. The retry executor and the service
// branch on these with errors.Is; providers wrap them with context.
var (
	// ErrNetwork covers transport failures, timeouts and 5xx responses.
	// Transient: retried with backoff.
	ErrNetwork = errors.New("network error")

	// ErrAuth covers missing or rejected credentials. Fatal for the source,
	// never retried.
	ErrAuth = errors.New("authentication error")

	// ErrRateLimited is the provider's 429 / quota signal. Not retried within
	// the current call; the source returns an empty series with
	// rateLimited=true.
	ErrRateLimited = errors.New("rate limited")

	// ErrSchema means the payload decoded but did not have the expected
	// shape, or failed to decode at all.
	ErrSchema = errors.New("unexpected payload schema")

	// ErrPageToken means a continuation token was rejected. Internal to the
	// stitcher; escalates only if fallback also makes no progress.
	ErrPageToken = errors.New("pagination token invalid")
)

// ClassifyStatus maps an HTTP status code onto the taxonomy. 2xx maps to nil.
func ClassifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrAuth, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, code)
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrSchema, code)
	}
}

// Retryable reports whether the retry executor should attempt the call again.
// Auth failures, rate limits and schema errors never are.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrAuth), errors.Is(err, ErrRateLimited), errors.Is(err, ErrSchema):
		return false
	default:
		return true
	}
}
