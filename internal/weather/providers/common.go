package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-heatmap/internal/weather"
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

// Options configures a data source.
type Options struct {
	// BaseURL overrides the upstream endpoint; empty means the public API.
	BaseURL string
	// RequestDelay is the pause between two consecutive upstream calls.
	RequestDelay time.Duration
	// MaxRetries is the number of retries for a failed call.
	MaxRetries int
}

// DefaultRequestDelay keeps the sequential request rate below the upstream limits.
const DefaultRequestDelay = 300 * time.Millisecond

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errBuildRequest  = errors.New("cannot build request")
)

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

func httpConfig(client *http.Client, opts Options) HTTPClientConfig {
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return HTTPClientConfig{
		Client: client,
		Backoff: BackoffConfig{
			MaxRetries:      retries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
}

// doRequestWithResilience executes the HTTP request with retries, exponential backoff,
// and a circuit breaker.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBuildRequest, err)
		}

		// Ensure the request obeys context cancellation.
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			// Handle rate limiting and server errors explicitly.
			if resp.StatusCode == http.StatusTooManyRequests {
				drain(resp)
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				drain(resp)
				return nil, errServerError
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				drain(resp)
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}

			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		// Client errors do not get better by asking again.
		if errors.Is(err, errUnexpected) {
			return nil, err
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		attempt++
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// hourlyRequest is one upstream call for one sample coordinate.
type hourlyRequest struct {
	coord weather.Coordinate
	build func() (*http.Request, error)

	// first and hours describe the series a placeholder must cover.
	first time.Time
	hours int
}

// decodeFunc turns a successful response body into records.
type decodeFunc func(body io.Reader, req hourlyRequest) ([]weather.Record, error)

// sequentialGatherer runs hourly requests one after another, pausing between
// calls, and turns failed calls into placeholder records.
type sequentialGatherer struct {
	name    string
	delay   time.Duration
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func (s *sequentialGatherer) run(
	ctx context.Context,
	cond weather.Condition,
	requests []hourlyRequest,
	decode decodeFunc,
	progress *weather.Tracker,
) ([]weather.Record, error) {
	if err := cancelled(ctx); err != nil {
		return nil, err
	}

	var records []weather.Record
	total := len(requests)

	for i, req := range requests {
		if err := cancelled(ctx); err != nil {
			return nil, err
		}

		resp, err := doRequestWithResilience(ctx, s.httpCfg, s.circuit, req.build)
		if cerr := cancelled(ctx); cerr != nil {
			if resp != nil {
				resp.Body.Close()
			}
			return nil, cerr
		}

		switch {
		case err != nil && errors.Is(err, errBuildRequest):
			return nil, &weather.PartialGatherError{Index: i, Total: total, Records: records, Err: err}
		case err != nil:
			log.Printf("%s: request %d of %d for %s failed: %v", s.name, i+1, total, req.coord, err)
			records = append(records, placeholders(req, cond)...)
			progress.Step("Request %d of %d failed", i+1, total)
		default:
			got, derr := decode(resp.Body, req)
			resp.Body.Close()
			if derr != nil {
				log.Printf("ERROR: %s: malformed response for %s: %v", s.name, req.coord, derr)
				return nil, &weather.PartialGatherError{Index: i, Total: total, Records: records, Err: derr}
			}
			for j := range got {
				got[j].Coordinate = req.coord
				got[j].Condition = cond.ID
			}
			records = append(records, got...)
			progress.Step("Request %d of %d succeeded", i+1, total)
		}

		if i < total-1 {
			if err := sleep(ctx, s.delay); err != nil {
				return nil, cancelled(ctx)
			}
		}
	}

	if err := cancelled(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

// placeholders fills the series of a failed request with error-flagged records.
func placeholders(req hourlyRequest, cond weather.Condition) []weather.Record {
	out := make([]weather.Record, 0, req.hours)
	for h := 0; h < req.hours; h++ {
		out = append(out, weather.Record{
			Coordinate: req.coord,
			Condition:  cond.ID,
			Error:      true,
			Time:       req.first.Add(time.Duration(h) * time.Hour),
		})
	}
	return out
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", weather.ErrCancelled, err)
	}
	return nil
}

// currentHour is the first hour of a forecast series: the start of the
// current wall-clock hour in the region's timezone, so placeholders land on
// the same instants as the upstream series in zones with fractional offsets.
func currentHour(now time.Time, timezone string) time.Time {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("DEBUG: unknown timezone %q, using UTC: %v", timezone, err)
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc).UTC()
}
