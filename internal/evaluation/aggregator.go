package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/forecast-accuracy/internal/groundtruth"
	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/metrics"
	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// ForecastSource loads the forecasts a provider made for a city on a
// reference date. No data is an empty result, not an error.
type ForecastSource interface {
	Load(city string, p weather.Provider, referenceDate time.Time) ([]weather.ForecastSnapshot, error)
}

// UpdateResult counts what an update did with each slot.
type UpdateResult struct {
	RunID    string `json:"runId"`
	Appended int    `json:"appended"`
	// Existing slots were scored by an earlier run and left untouched.
	Existing int `json:"existing"`
	// Missing slots lacked a forecast or a ground-truth observation.
	Missing int `json:"missing"`
	// Failed slots could not be scored, or their data could not be loaded.
	Failed int `json:"failed"`
	Rows   int `json:"rows"`
}

// Aggregator extends the error table with newly scorable forecasts. It runs
// sequentially; use at most one aggregator per table file.
type Aggregator struct {
	truth     groundtruth.Source
	forecasts ForecastSource
	maxOffset int
}

func NewAggregator(truth groundtruth.Source, forecasts ForecastSource) *Aggregator {
	return &Aggregator{
		truth:     truth,
		forecasts: forecasts,
		maxOffset: weather.MaxOffset,
	}
}

// WithMaxOffset limits scoring to offsets 0..maxOffset.
func (a *Aggregator) WithMaxOffset(maxOffset int) *Aggregator {
	if maxOffset >= 0 && maxOffset <= weather.MaxOffset {
		a.maxOffset = maxOffset
	}
	return a
}

// Update loads the table in errorsDir, scores every (city, reference date,
// provider, offset) slot in [start, end] that is not yet in the table, and
// rewrites the table. The table is saved even when the run is cancelled
// part way, so completed slots are kept.
func (a *Aggregator) Update(ctx context.Context, errorsDir string, start, end time.Time, cities []string, providers []weather.Provider) (UpdateResult, error) {
	log := logger.GetLogger()
	path := TablePath(errorsDir)

	table, err := LoadTable(path)
	if err != nil {
		return UpdateResult{}, err
	}
	log.Infow("Loaded error table", "path", path, "rows", table.Len())

	res, runErr := a.Extend(ctx, table, start, end, cities, providers)
	if res.RunID == "" {
		return res, runErr
	}

	if err := table.Save(path); err != nil {
		return res, err
	}
	log.Infow("Saved error table", "path", path, "rows", table.Len(), "appended", res.Appended)
	return res, runErr
}

// Extend scores slots into table in memory. Missing data and per-slot
// failures are counted and skipped; only cancellation stops the pass.
func (a *Aggregator) Extend(ctx context.Context, table *ErrorTable, start, end time.Time, cities []string, providers []weather.Provider) (UpdateResult, error) {
	log := logger.GetLogger()

	from, to := weather.Day(start), weather.Day(end)
	if to.Before(from) {
		return UpdateResult{}, fmt.Errorf("end date %s is before start date %s",
			to.Format(weather.DateLayout), from.Format(weather.DateLayout))
	}

	res := UpdateResult{RunID: uuid.NewString()}
	log.Infow("Starting evaluation run",
		"runID", res.RunID, "from", from.Format(weather.DateLayout), "to", to.Format(weather.DateLayout),
		"cities", len(cities), "providers", len(providers))

	for _, city := range cities {
		// Forecasts made on the last day still target days up to maxOffset later.
		records, err := a.truth.Query(ctx, city, from, to.AddDate(0, 0, a.maxOffset))
		if err != nil {
			if ctx.Err() != nil {
				return a.finish(res, table), ctx.Err()
			}
			log.Errorw("Ground truth query failed; skipping city", "city", city, "error", err)
			res.Failed++
			continue
		}
		truth := groundtruth.NewIndex(records)

		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if ctx.Err() != nil {
				return a.finish(res, table), ctx.Err()
			}
			for _, p := range providers {
				a.scoreDay(table, truth, city, p, day, res.RunID, &res)
			}
		}
	}

	return a.finish(res, table), nil
}

func (a *Aggregator) finish(res UpdateResult, table *ErrorTable) UpdateResult {
	res.Rows = table.Len()

	m := metrics.Get()
	m.EvaluationRuns.Inc()
	m.EvaluationSlots.WithLabelValues("appended").Add(float64(res.Appended))
	m.EvaluationSlots.WithLabelValues("existing").Add(float64(res.Existing))
	m.EvaluationSlots.WithLabelValues("missing").Add(float64(res.Missing))
	m.EvaluationSlots.WithLabelValues("failed").Add(float64(res.Failed))

	logger.GetLogger().Infow("Evaluation run finished",
		"runID", res.RunID, "appended", res.Appended, "existing", res.Existing,
		"missing", res.Missing, "failed", res.Failed)
	return res
}

func (a *Aggregator) scoreDay(table *ErrorTable, truth groundtruth.Index, city string, p weather.Provider, day time.Time, runID string, res *UpdateResult) {
	log := logger.GetLogger()

	snaps, err := a.forecasts.Load(city, p, day)
	if err != nil {
		log.Errorw("Loading forecasts failed",
			"city", city, "provider", p, "referenceDate", day.Format(weather.DateLayout), "error", err)
		res.Failed += a.maxOffset + 1
		return
	}

	// Snapshots come ordered by acquisition time; the first one of the day
	// wins when a provider was queried more than once.
	byOffset := make(map[int]weather.ForecastSnapshot, len(snaps))
	for _, s := range snaps {
		if _, seen := byOffset[s.Offset]; !seen {
			byOffset[s.Offset] = s
		}
	}

	for offset := 0; offset <= a.maxOffset; offset++ {
		key := ErrorRecord{Provider: p, City: city, ReferenceDate: day, Offset: offset}.Key()
		if table.Has(key) {
			res.Existing++
			continue
		}

		fc, ok := byOffset[offset]
		if !ok {
			res.Missing++
			continue
		}
		gt, ok := truth.Lookup(day.AddDate(0, 0, offset))
		if !ok {
			res.Missing++
			continue
		}

		rec, err := Score(gt, fc, p)
		if err != nil {
			log.Warnw("Cannot score forecast", "city", city, "provider", p, "offset", offset, "error", err)
			res.Failed++
			continue
		}
		rec.RunID = runID
		if table.Append(rec) {
			res.Appended++
		}
	}
}
