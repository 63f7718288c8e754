package weather

import (
	"fmt"
	"net/http"
	"time"
)

// Request describes the HTTP call a plugin wants made for one city. It is a
// plain descriptor so the fetcher can rebuild the *http.Request per attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
}

// ForecastDay is one day of a decoded provider payload. Offset is set by
// providers with explicit offsets; Date always carries the target day as
// reported, possibly with a time of day and zone.
type ForecastDay struct {
	Offset    *int
	Date      time.Time
	Variables Values
}

// Decoder turns a raw provider payload into forecast days.
type Decoder interface {
	Provider() Provider
	Decode(payload []byte) ([]ForecastDay, error)
}

// Plugin knows how to address one provider's API.
type Plugin interface {
	Decoder
	// BuildRequest returns *UnsupportedCityError for cities the provider
	// cannot serve.
	BuildRequest(city string) (Request, error)
	VariableSchema() VariableSet
}

// Resolve places a decoded day on the reference date of the acquisition and
// returns the snapshot. Offsets outside 0..MaxOffset are rejected with
// ErrOffsetOutOfRange.
func Resolve(p Provider, city string, acquiredAt time.Time, day ForecastDay) (ForecastSnapshot, error) {
	ref := Day(acquiredAt.UTC())

	var offset int
	switch p.Schema().Offsets {
	case OffsetAbsolute:
		offset = DaysBetween(ref, day.Date)
	default:
		if day.Offset == nil {
			return ForecastSnapshot{}, fmt.Errorf("%s payload day without offset", p)
		}
		offset = *day.Offset
	}

	if offset < 0 || offset > MaxOffset {
		return ForecastSnapshot{}, fmt.Errorf("%w: %s/%s offset %d for reference %s",
			ErrOffsetOutOfRange, p, city, offset, ref.Format(DateLayout))
	}

	vals := make(Values, len(day.Variables))
	schema := p.Schema()
	for v, x := range day.Variables {
		if schema.Variables.Has(v) {
			vals[v] = x
		}
	}

	return ForecastSnapshot{
		Provider:        p,
		City:            city,
		ReferenceDate:   ref,
		Offset:          offset,
		ObservationDate: ref.AddDate(0, 0, offset),
		Variables:       vals,
		AcquiredAt:      acquiredAt.UTC(),
	}, nil
}
