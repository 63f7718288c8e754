package weather

// MaxOffset is the longest prediction horizon, in days, that is acquired and
// evaluated.
const MaxOffset = 6

// OffsetEncoding describes how a provider's payload places a forecast day
// relative to the moment the forecast was made.
type OffsetEncoding int

const (
	// OffsetExplicit payloads carry the day offset itself.
	OffsetExplicit OffsetEncoding = iota
	// OffsetAbsolute payloads carry only the target date; the offset is
	// derived from the reference date.
	OffsetAbsolute
)

func (e OffsetEncoding) String() string {
	if e == OffsetAbsolute {
		return "absolute"
	}
	return "explicit"
}

// Schema declares what a provider can report.
type Schema struct {
	Provider  Provider
	Variables VariableSet
	Offsets   OffsetEncoding
	// NullAsZero lists variables whose absence in the provider's payload
	// means an observed zero rather than a missing value.
	NullAsZero VariableSet
}

var schemas = map[Provider]Schema{
	// Min/max and liquid totals only; the daily mean is derived from min/max.
	AccuWeather: {
		Provider:   AccuWeather,
		Variables:  NewVariableSet(AirTemperature, MaxAirTemp, MinAirTemp, Precipitation),
		Offsets:    OffsetExplicit,
		NullAsZero: NewVariableSet(),
	},
	// The daily endpoint omits "rain" on dry days.
	OpenWeatherMap: {
		Provider: OpenWeatherMap,
		Variables: NewVariableSet(
			AirTemperature, MaxAirTemp, MinAirTemp, Precipitation,
			AirPressure, RelHumidity, WindSpeed,
		),
		Offsets:    OffsetAbsolute,
		NullAsZero: NewVariableSet(Precipitation),
	},
	// Aggregate temperature only, precipitation is reported for today only.
	WeatherDotCom: {
		Provider:   WeatherDotCom,
		Variables:  NewVariableSet(AirTemperature, RelHumidity, WindSpeed),
		Offsets:    OffsetExplicit,
		NullAsZero: NewVariableSet(),
	},
}

// Schema returns the provider's declared capabilities. Unknown providers get
// an empty schema, which supports nothing.
func (p Provider) Schema() Schema {
	if s, ok := schemas[p]; ok {
		return s
	}
	return Schema{Provider: p, Variables: NewVariableSet(), NullAsZero: NewVariableSet()}
}
