package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/air-quality-features/internal/features"
)

// BackoffConfig controls retry attempts and exponential backoff.
type BackoffConfig struct {
	MaxAttempts     int // total attempts, including the first
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff is three attempts waiting 4s then 8s, never more than 10s.
var DefaultBackoff = BackoffConfig{
	MaxAttempts:     3,
	InitialInterval: 4 * time.Second,
	MaxInterval:     10 * time.Second,
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errMissingAPIKey = errors.New("api key is not configured")
)

// statusError carries the upstream HTTP status of a failed attempt.
type statusError struct {
	StatusCode int
	kind       error
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: status %d", e.kind, e.StatusCode)
}

func (e *statusError) Unwrap() error { return e.kind }

func newStatusError(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return &statusError{StatusCode: code, kind: errRateLimited}
	case code >= 500:
		return &statusError{StatusCode: code, kind: errServerError}
	default:
		return &statusError{StatusCode: code, kind: errUnexpected}
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         name,
		MaxRequests:  5,
		Interval:     1 * time.Minute,
		Timeout:      2 * time.Minute,
		IsSuccessful: upstreamHealthy,
	})
}

// upstreamHealthy decides which attempts count as breaker failures. Only
// transport errors, 429 and 5xx do; a 4xx such as an unknown city does not.
func upstreamHealthy(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// backoffDelay returns the wait after the given failed attempt (1-based).
func backoffDelay(cfg BackoffConfig, attempt int) time.Duration {
	delay := cfg.InitialInterval
	for i := 1; i < attempt; i++ {
		delay *= 2
		if cfg.MaxInterval > 0 && delay >= cfg.MaxInterval {
			return cfg.MaxInterval
		}
	}
	if cfg.MaxInterval > 0 && delay > cfg.MaxInterval {
		return cfg.MaxInterval
	}
	return delay
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker. It returns the number of attempts made.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) (*http.Response, int, error) {
	if cfg.Client == nil {
		return nil, 0, errNoHTTPClient
	}
	if cfg.Backoff.MaxAttempts < 1 || cfg.Backoff.InitialInterval < 0 {
		return nil, 0, errInvalidConfig
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return nil, attempt - 1, ctx.Err()
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, attempt - 1, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				return nil, newStatusError(resp.StatusCode)
			}
			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, attempt, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, attempt, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, attempt, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxAttempts {
			return nil, attempt, lastErr
		}

		timer := time.NewTimer(backoffDelay(cfg.Backoff, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

// upstreamError wraps a final failure with the source, city and upstream status.
func upstreamError(source, city string, attempts int, err error) error {
	code := 0
	var se *statusError
	if errors.As(err, &se) {
		code = se.StatusCode
	}
	return &features.UpstreamFetchError{
		Source:     source,
		City:       city,
		StatusCode: code,
		Attempts:   attempts,
		Err:        err,
	}
}
