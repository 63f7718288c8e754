package acquisition

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/store"
	"github.com/i474232898/forecast-accuracy/internal/weather"
	"github.com/i474232898/forecast-accuracy/internal/weather/providers"
)

func init() {
	logger.IsTest = true
}

const (
	accuPayload = `{"DailyForecasts":[
		{"Date":"2020-01-01T07:00:00+01:00","Temperature":{"Minimum":{"Value":1.0},"Maximum":{"Value":5.0}},"Day":{},"Night":{}},
		{"Date":"2020-01-02T07:00:00+01:00","Temperature":{"Minimum":{"Value":2.0},"Maximum":{"Value":6.0}},"Day":{},"Night":{}}
	]}`
	wdcPayload = `{"forecasts":[
		{"num":1,"fcst_valid_local":"2020-01-01T07:00:00+0100","day":{"temp":4,"rh":80,"wspd":10}}
	]}`
)

var fastBackoff = BackoffConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

// stubPlugin points a real provider decoder at a test server.
type stubPlugin struct {
	weather.Decoder
	url         string
	unsupported map[string]bool
	panics      bool
}

func newStubPlugin(t *testing.T, p weather.Provider, url string) *stubPlugin {
	t.Helper()
	d, err := providers.NewDecoder(p)
	require.NoError(t, err)
	return &stubPlugin{Decoder: d, url: url, unsupported: map[string]bool{}}
}

func (s *stubPlugin) BuildRequest(city string) (weather.Request, error) {
	if s.panics {
		panic("plugin exploded")
	}
	if s.unsupported[city] {
		return weather.Request{}, &weather.UnsupportedCityError{Provider: s.Provider(), City: city}
	}
	return weather.Request{Method: http.MethodGet, URL: s.url + "/" + city}, nil
}

func (s *stubPlugin) VariableSchema() weather.VariableSet {
	return s.Provider().Schema().Variables
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}

func TestFetchStoresPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, accuPayload)
	}))
	defer srv.Close()

	base := t.TempDir()
	acquired := time.Date(2020, 1, 1, 3, 0, 0, 0, time.UTC)
	disk := store.NewDiskStoreWithPaths(&store.PathBuilder{Base: base, Now: func() time.Time { return acquired }})
	f := NewFetcher(srv.Client(), fastBackoff, disk, "test")

	snaps, err := f.Fetch(context.Background(), "berlin", newStubPlugin(t, weather.AccuWeather, srv.URL))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, 1, snaps[1].Offset)
	v, ok := snaps[0].Variables.Get(weather.AirTemperature)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	stored, err := os.ReadFile(filepath.Join(base, "berlin", "accuweather", store.SnapshotName(acquired)))
	require.NoError(t, err)
	assert.Equal(t, accuPayload, string(stored))
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			io.WriteString(w, accuPayload)
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), fastBackoff, store.NewDiskStore(t.TempDir()), "test")
	snaps, err := f.Fetch(context.Background(), "berlin", newStubPlugin(t, weather.AccuWeather, srv.URL))
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchGivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	base := t.TempDir()
	backoff := BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	f := NewFetcher(srv.Client(), backoff, store.NewDiskStore(base), "test")

	_, err := f.Fetch(context.Background(), "berlin", newStubPlugin(t, weather.AccuWeather, srv.URL))
	var transient *weather.TransientTransportError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 3, transient.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, countFiles(t, filepath.Join(base, "berlin", "accuweather")))
}

func TestFetchDoesNotRetryPermanentStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), fastBackoff, store.NewDiskStore(t.TempDir()), "test")
	_, err := f.Fetch(context.Background(), "berlin", newStubPlugin(t, weather.AccuWeather, srv.URL))
	assert.ErrorIs(t, err, weather.ErrUnexpectedStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchUnsupportedCityMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	plugin := newStubPlugin(t, weather.AccuWeather, srv.URL)
	plugin.unsupported["atlantis"] = true

	f := NewFetcher(srv.Client(), fastBackoff, store.NewDiskStore(t.TempDir()), "test")
	_, err := f.Fetch(context.Background(), "atlantis", plugin)
	var unsupported *weather.UnsupportedCityError
	assert.ErrorAs(t, err, &unsupported)
	assert.Zero(t, calls.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type truncatedBody struct{ r io.Reader }

func (b *truncatedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}

func (b *truncatedBody) Close() error { return nil }

func TestFetchIncompleteTransferIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return &http.Response{
			StatusCode:    http.StatusOK,
			ContentLength: -1,
			Body:          &truncatedBody{r: strings.NewReader(accuPayload[:20])},
			Request:       r,
		}, nil
	})}

	base := t.TempDir()
	f := NewFetcher(client, fastBackoff, store.NewDiskStore(base), "test")
	_, err := f.Fetch(context.Background(), "berlin", newStubPlugin(t, weather.AccuWeather, "http://provider.test"))

	var incomplete *weather.IncompleteTransferError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, countFiles(t, filepath.Join(base, "berlin", "accuweather")))
}

func TestFetchShortContentLengthIsIncomplete(t *testing.T) {
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode:    http.StatusOK,
			ContentLength: int64(len(accuPayload) + 10),
			Body:          io.NopCloser(strings.NewReader(accuPayload)),
			Request:       r,
		}, nil
	})}

	f := NewFetcher(client, fastBackoff, store.NewDiskStore(t.TempDir()), "test")
	_, err := f.Fetch(context.Background(), "berlin", newStubPlugin(t, weather.AccuWeather, "http://provider.test"))
	var incomplete *weather.IncompleteTransferError
	assert.ErrorAs(t, err, &incomplete)
}

func TestFetchStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	backoff := BackoffConfig{MaxRetries: 1000, InitialInterval: 10 * time.Millisecond, MaxInterval: 10 * time.Millisecond}
	f := NewFetcher(srv.Client(), backoff, store.NewDiskStore(t.TempDir()), "test")
	_, err := f.Fetch(ctx, "berlin", newStubPlugin(t, weather.AccuWeather, srv.URL))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreForecastsLoopContinuesAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/hamburg") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		io.WriteString(w, accuPayload)
	}))
	defer srv.Close()

	plugin := newStubPlugin(t, weather.AccuWeather, srv.URL)
	plugin.unsupported["bremen"] = true

	svc := NewService(srv.Client(), fastBackoff, store.NewDiskStore(t.TempDir()))
	report := svc.StoreForecastsLoop(context.Background(), []string{"berlin", "bremen", "hamburg", "stuttgart"}, plugin)

	assert.Equal(t, PassReport{Provider: weather.AccuWeather, Stored: 2, Failed: 2, Snapshots: 4}, report)
}

func TestStoreForecastsIsolatesProviders(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		io.WriteString(w, accuPayload)
	}))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, wdcPayload)
	}))
	defer fast.Close()

	base := t.TempDir()
	svc := NewService(&http.Client{}, fastBackoff, store.NewDiskStore(base))
	cities := []string{"berlin", "hamburg"}

	done := make(chan []PassReport)
	go func() {
		done <- svc.StoreForecasts(context.Background(), cities, []weather.Plugin{
			newStubPlugin(t, weather.AccuWeather, slow.URL),
			newStubPlugin(t, weather.WeatherDotCom, fast.URL),
		})
	}()

	require.Eventually(t, func() bool {
		return countFiles(t, filepath.Join(base, "hamburg", "weatherdotcom")) == 1
	}, 5*time.Second, 5*time.Millisecond, "fast provider must finish while the slow one is blocked")
	assert.Zero(t, countFiles(t, filepath.Join(base, "berlin", "accuweather")))

	close(release)
	reports := <-done
	require.Len(t, reports, 2)
	assert.Equal(t, 2, reports[0].Stored)
	assert.Equal(t, 2, reports[1].Stored)
}

func TestStoreForecastsRecoversWorkerPanic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, wdcPayload)
	}))
	defer srv.Close()

	broken := newStubPlugin(t, weather.AccuWeather, srv.URL)
	broken.panics = true

	svc := NewService(srv.Client(), fastBackoff, store.NewDiskStore(t.TempDir()))
	reports := svc.StoreForecasts(context.Background(), []string{"berlin"}, []weather.Plugin{
		broken,
		newStubPlugin(t, weather.WeatherDotCom, srv.URL),
	})

	require.Len(t, reports, 2)
	assert.True(t, reports[0].Aborted)
	assert.Equal(t, weather.AccuWeather, reports[0].Provider)
	assert.Equal(t, 1, reports[1].Stored)
}
