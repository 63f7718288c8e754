// Package groundtruth provides read-only access to authoritative station
// observations, queried by city and date range.
package groundtruth

import (
	"context"
	"sort"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// Source returns the observations of a city for every available day in
// [start, end], both inclusive. Days without observations are simply absent.
type Source interface {
	Query(ctx context.Context, city string, start, end time.Time) ([]weather.GroundTruthRecord, error)
}

// Index maps calendar days to records for fast lookup by target date.
type Index map[time.Time]weather.GroundTruthRecord

// NewIndex indexes records by their calendar day. Later records for the same
// day replace earlier ones.
func NewIndex(records []weather.GroundTruthRecord) Index {
	idx := make(Index, len(records))
	for _, r := range records {
		idx[weather.Day(r.Date)] = r
	}
	return idx
}

// Lookup returns the record for the calendar day of date.
func (idx Index) Lookup(date time.Time) (weather.GroundTruthRecord, bool) {
	r, ok := idx[weather.Day(date)]
	return r, ok
}

func sortByDate(records []weather.GroundTruthRecord) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Date.Before(records[j].Date) })
}
