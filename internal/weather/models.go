package weather

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies a forecast provider. The set is closed; every value has
// an entry in the schema table.
type Provider string

const (
	AccuWeather    Provider = "accuweather"
	OpenWeatherMap Provider = "openweathermap"
	WeatherDotCom  Provider = "weatherdotcom"
)

// Providers returns all known providers in their canonical order.
func Providers() []Provider {
	return []Provider{AccuWeather, OpenWeatherMap, WeatherDotCom}
}

// ParseProvider maps a provider name to its Provider value.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := schemas[p]; !ok {
		return "", fmt.Errorf("unknown provider %q", name)
	}
	return p, nil
}

// ParseProviders parses a list of provider names, rejecting duplicates.
func ParseProviders(names []string) ([]Provider, error) {
	seen := make(map[Provider]struct{}, len(names))
	out := make([]Provider, 0, len(names))
	for _, n := range names {
		p, err := ParseProvider(n)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("provider %q listed twice", n)
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Variable is a name from the canonical weather variable vocabulary.
type Variable string

const (
	AirTemperature Variable = "AirTemperature"
	MaxAirTemp     Variable = "MaxAirTemp"
	MinAirTemp     Variable = "MinAirTemp"
	Precipitation  Variable = "Precipitation"
	VaporPressure  Variable = "VaporPressure"
	AirPressure    Variable = "AirPressure"
	RelHumidity    Variable = "RelHumidity"
	WindSpeed      Variable = "WindSpeed"
	SnowDepth      Variable = "SnowDepth"
	HoursOfSun     Variable = "HoursOfSun"
)

// Variables returns the canonical vocabulary in table column order.
func Variables() []Variable {
	return []Variable{
		AirTemperature, MaxAirTemp, MinAirTemp, Precipitation, VaporPressure,
		AirPressure, RelHumidity, WindSpeed, SnowDepth, HoursOfSun,
	}
}

// ParseVariable maps a variable name to its Variable value.
func ParseVariable(name string) (Variable, error) {
	for _, v := range Variables() {
		if strings.EqualFold(string(v), strings.TrimSpace(name)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown variable %q", name)
}

// VariableSet is an unordered set of variables.
type VariableSet map[Variable]struct{}

func NewVariableSet(vs ...Variable) VariableSet {
	s := make(VariableSet, len(vs))
	for _, v := range vs {
		s[v] = struct{}{}
	}
	return s
}

func (s VariableSet) Has(v Variable) bool {
	_, ok := s[v]
	return ok
}

// Values maps variables to measurements. A nil entry (or a missing key) is
// null: the value is unknown, not zero.
type Values map[Variable]*float64

// Float returns a pointer to v, for building Values literals.
func Float(v float64) *float64 {
	return &v
}

// Get returns the value of v and whether it is non-null.
func (vals Values) Get(v Variable) (float64, bool) {
	p, ok := vals[v]
	if !ok || p == nil {
		return 0, false
	}
	return *p, true
}

// City is a catalog entry describing where a city is, in the terms the
// provider plugins need to address it.
type City struct {
	Name string
	Lat  float64
	Lon  float64
	// HasCoordinates is false when Lat and Lon were never set; 0,0 is a
	// valid point and cannot mark absence.
	HasCoordinates bool
	AccuWeatherKey string
}

// ForecastSnapshot is one provider's forecast for one city and one target day,
// as acquired on ReferenceDate.
type ForecastSnapshot struct {
	Provider        Provider  `json:"provider"`
	City            string    `json:"city"`
	ReferenceDate   time.Time `json:"referenceDate"`
	Offset          int       `json:"offset"`
	ObservationDate time.Time `json:"observationDate"`
	Variables       Values    `json:"variables"`
	AcquiredAt      time.Time `json:"acquiredAt"`
}

// GroundTruthRecord is an authoritative station observation for a city and day.
type GroundTruthRecord struct {
	City      string    `json:"city"`
	Date      time.Time `json:"date"`
	Variables Values    `json:"variables"`
}

// Day truncates t to its calendar date, keeping the date as seen in t's own
// location, and returns it as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// DateLayout is the layout used for dates in tables, flags and file formats.
const DateLayout = "2006-01-02"
