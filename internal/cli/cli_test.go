package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpapi "github.com/i474232898/forecast-accuracy/internal/api/http"
	"github.com/i474232898/forecast-accuracy/internal/evaluation"
	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/weather"
)

func init() {
	logger.IsTest = true
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CITIES_FILE", "CITIES", "PROVIDERS", "FORECAST_BASE_PATH", "ERRORS_PATH",
		"GROUND_TRUTH_DSN", "ACQUIRE_CRON", "FETCH_INITIAL_BACKOFF", "FETCH_MAX_BACKOFF",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("GROUND_TRUTH_DIR", t.TempDir())
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSummarizeCommand(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	table := evaluation.NewErrorTable()
	table.Append(evaluation.ErrorRecord{
		Provider:      weather.AccuWeather,
		City:          "berlin",
		Offset:        1,
		ReferenceDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Errors:        weather.Values{weather.AirTemperature: weather.Float(1.0)},
	})
	require.NoError(t, table.Save(evaluation.TablePath(dir)))

	out, err := run(t, "summarize", "--errors-path", dir, "--providers", "accuweather", "--max-offset", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "accuweather (mean)")
	assert.Contains(t, out, "AirTemperature")
	assert.Contains(t, out, "1.000")
	assert.Contains(t, out, "NaN")

	out, err = run(t, "summarize", "--errors-path", dir, "--by", "city", "--cities", "berlin,hamburg", "--stat", "n")
	require.NoError(t, err)
	assert.Contains(t, out, "hamburg")
}

func TestSummarizeRejectsBadFlags(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	_, err := run(t, "summarize", "--errors-path", dir, "--by", "station")
	assert.Error(t, err)
	_, err = run(t, "summarize", "--errors-path", dir, "--stat", "median")
	assert.Error(t, err)
	_, err = run(t, "summarize", "--errors-path", dir, "--providers", "darksky")
	assert.Error(t, err)
	_, err = run(t, "summarize", "--errors-path", dir, "--max-offset", "9")
	assert.Error(t, err)
}

func TestEvaluateCommandWritesTable(t *testing.T) {
	isolateEnv(t)
	errorsDir := t.TempDir()

	out, err := run(t, "evaluate",
		"--errors-path", errorsDir,
		"--base-path", t.TempDir(),
		"--from", "2020-01-01", "--to", "2020-01-02",
		"--cities", "berlin")
	require.NoError(t, err)
	assert.Contains(t, out, "appended=0")

	_, err = os.Stat(filepath.Join(errorsDir, evaluation.TableFile))
	assert.NoError(t, err)
}

func TestEvaluateRequiresFrom(t *testing.T) {
	isolateEnv(t)
	_, err := run(t, "evaluate", "--errors-path", t.TempDir())
	assert.Error(t, err)
}

func TestEvaluateRejectsOutOfRangeMaxOffset(t *testing.T) {
	for _, offset := range []string{"-1", "7"} {
		isolateEnv(t)
		errorsDir := t.TempDir()
		_, err := run(t, "evaluate",
			"--errors-path", errorsDir,
			"--base-path", t.TempDir(),
			"--from", "2020-01-01", "--to", "2020-01-02",
			"--max-offset="+offset)
		require.Error(t, err, offset)
		assert.Contains(t, err.Error(), "--max-offset")

		_, statErr := os.Stat(filepath.Join(errorsDir, evaluation.TableFile))
		assert.True(t, os.IsNotExist(statErr), "no table is written for %s", offset)
	}
}

func TestServeAppEndpoints(t *testing.T) {
	app := newApp(httpapi.NewHandler(t.TempDir(), weather.Providers(), []string{"berlin"}))

	for _, target := range []string{"/health", "/metrics", "/api/v1/accuracy/summary"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, target)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/accuracy/errors", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
