package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/metrics"
	"github.com/i474232898/forecast-accuracy/internal/store"
	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// BackoffConfig controls exponential backoff between transient failures.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// SnapshotWriter persists a raw payload and reports where and when.
type SnapshotWriter interface {
	Write(p weather.Provider, city string, payload []byte) (string, time.Time, error)
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// Fetcher downloads forecasts for one provider. It owns a circuit breaker,
// so a fetcher must not be shared between provider workers.
type Fetcher struct {
	client  *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
	writer  SnapshotWriter
}

func NewFetcher(client *http.Client, backoff BackoffConfig, writer SnapshotWriter, name string) *Fetcher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Fetcher{
		client:  client,
		backoff: backoff,
		circuit: cb,
		writer:  writer,
	}
}

// Fetch downloads the plugin's forecast for city, stores the raw payload and
// returns the decoded snapshots.
//
// Unsupported cities and truncated transfers fail immediately. Transient
// failures (network errors, 429, 5xx, open circuit) are retried with
// exponential backoff and end in *weather.TransientTransportError once the
// retry budget is spent.
func (f *Fetcher) Fetch(ctx context.Context, city string, plugin weather.Plugin) ([]weather.ForecastSnapshot, error) {
	log := logger.GetLogger()
	p := plugin.Provider()

	req, err := plugin.BuildRequest(city)
	if err != nil {
		var unsupported *weather.UnsupportedCityError
		if errors.As(err, &unsupported) {
			log.Errorw("Plugin cannot deal with city", "provider", p, "city", city)
		} else {
			log.Errorw("Failed to build request", "provider", p, "city", city, "error", err)
		}
		return nil, err
	}

	payload, err := f.download(ctx, p, city, req)
	if err != nil {
		log.Errorw("Forecast download failed", "provider", p, "city", city, "error", err)
		return nil, err
	}
	log.Infow("Queried provider successfully", "provider", p, "city", city, "bytes", len(payload))

	path, acquiredAt, err := f.writer.Write(p, city, payload)
	if err != nil {
		return nil, fmt.Errorf("store %s forecast for %s: %w", p, city, err)
	}

	days, err := plugin.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s payload stored at %s: %w", p, path, err)
	}
	return store.ResolveDays(p, city, acquiredAt, days), nil
}

func (f *Fetcher) download(ctx context.Context, p weather.Provider, city string, req weather.Request) ([]byte, error) {
	if f.client == nil {
		return nil, errNoHTTPClient
	}
	if f.backoff.MaxRetries < 0 || f.backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	log := logger.GetLogger()

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
		if err != nil {
			return nil, err
		}
		for k, vs := range req.Header {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}

		result, err := f.circuit.Execute(func() (interface{}, error) {
			return f.roundTrip(httpReq, p, city)
		})
		if err == nil {
			body, ok := result.([]byte)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return body, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isTransient(err) {
			return nil, err
		}
		if attempt >= f.backoff.MaxRetries {
			return nil, &weather.TransientTransportError{Provider: p, City: city, Attempts: attempt + 1, Err: err}
		}

		delay := f.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > f.backoff.MaxInterval && f.backoff.MaxInterval > 0 {
			delay = f.backoff.MaxInterval
		}
		log.Warnw("Transient failure, retrying",
			"provider", p, "city", city, "attempt", attempt+1, "delay", delay, "error", err)
		metrics.Get().FetchRetries.WithLabelValues(string(p)).Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (f *Fetcher) roundTrip(req *http.Request, p weather.Provider, city string) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", weather.ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, &weather.IncompleteTransferError{Provider: p, City: city, Err: err}
	}
	if err != nil {
		return nil, err
	}
	if resp.ContentLength >= 0 && int64(len(body)) != resp.ContentLength {
		return nil, &weather.IncompleteTransferError{
			Provider: p,
			City:     city,
			Err:      fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, len(body), resp.ContentLength),
		}
	}
	return body, nil
}

// isTransient reports whether a failed attempt should be retried. Truncated
// transfers and non-retryable statuses are not; everything else, including an
// open circuit, is.
func isTransient(err error) bool {
	var incomplete *weather.IncompleteTransferError
	if errors.As(err, &incomplete) || errors.Is(err, weather.ErrUnexpectedStatus) {
		return false
	}
	return true
}
