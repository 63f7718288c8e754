// Package evaluation scores stored forecasts against ground truth and keeps
// the scores in a persistent, append-only error table.
package evaluation

import (
	"strings"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// ErrorRecord holds the signed errors (ground truth minus forecast) of one
// forecast. A nil error means the variable could not be scored.
type ErrorRecord struct {
	Provider      weather.Provider
	City          string
	Offset        int
	ReferenceDate time.Time
	Errors        weather.Values
	// RunID identifies the evaluation run that appended the record.
	RunID string
}

// Key identifies a scored forecast in the error table.
type Key struct {
	Provider      weather.Provider
	City          string
	ReferenceDate time.Time
	Offset        int
}

func (r ErrorRecord) Key() Key {
	return Key{
		Provider:      r.Provider,
		City:          strings.ToLower(r.City),
		ReferenceDate: weather.Day(r.ReferenceDate),
		Offset:        r.Offset,
	}
}

// Score computes ground truth minus forecast for every variable the provider
// supports and the ground truth reports.
//
// For the provider's null-as-zero variables a missing forecast value counts
// as zero. This only applies to OpenWeatherMap precipitation, whose payload
// omits rain on dry days; elsewhere a missing forecast value stays null.
//
// Score fails with *weather.AlignmentError when the rows belong to different
// target days, cities or providers.
func Score(gt weather.GroundTruthRecord, fc weather.ForecastSnapshot, provider weather.Provider) (ErrorRecord, error) {
	switch {
	case fc.Provider != provider:
		return ErrorRecord{}, alignmentError(gt, fc, provider, "forecast is from "+string(fc.Provider))
	case !strings.EqualFold(gt.City, fc.City):
		return ErrorRecord{}, alignmentError(gt, fc, provider, "ground truth is for "+gt.City)
	case !weather.Day(gt.Date).Equal(weather.Day(fc.ObservationDate)):
		return ErrorRecord{}, alignmentError(gt, fc, provider, "target dates differ")
	}

	schema := provider.Schema()
	errs := make(weather.Values, len(weather.Variables()))
	for _, v := range weather.Variables() {
		errs[v] = nil
		if !schema.Variables.Has(v) {
			continue
		}
		truth, ok := gt.Variables.Get(v)
		if !ok {
			continue
		}
		forecast, ok := fc.Variables.Get(v)
		if !ok {
			if !schema.NullAsZero.Has(v) {
				continue
			}
			forecast = 0
		}
		errs[v] = weather.Float(truth - forecast)
	}

	return ErrorRecord{
		Provider:      provider,
		City:          strings.ToLower(fc.City),
		Offset:        fc.Offset,
		ReferenceDate: weather.Day(fc.ReferenceDate),
		Errors:        errs,
	}, nil
}

func alignmentError(gt weather.GroundTruthRecord, fc weather.ForecastSnapshot, p weather.Provider, reason string) error {
	return &weather.AlignmentError{
		Provider:     p,
		City:         fc.City,
		TruthDate:    gt.Date,
		ForecastDate: fc.ObservationDate,
		Reason:       reason,
	}
}
