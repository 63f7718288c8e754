package providers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

const openWeatherMapBaseURL = "http://api.openweathermap.org/data/2.5/forecast/daily"

// OpenWeatherMapPlugin implements weather.Plugin for the OpenWeatherMap daily
// forecast. Cities are queried by name, so any named city is accepted.
type OpenWeatherMapPlugin struct {
	openWeatherMapDecoder
	apiKey  string
	baseURL string
}

func NewOpenWeatherMapPlugin(apiKey string) *OpenWeatherMapPlugin {
	return &OpenWeatherMapPlugin{
		apiKey:  apiKey,
		baseURL: openWeatherMapBaseURL,
	}
}

func (p *OpenWeatherMapPlugin) VariableSchema() weather.VariableSet {
	return weather.OpenWeatherMap.Schema().Variables
}

func (p *OpenWeatherMapPlugin) BuildRequest(city string) (weather.Request, error) {
	name := normalizeCity(city)
	if name == "" {
		return weather.Request{}, &weather.UnsupportedCityError{Provider: weather.OpenWeatherMap, City: city}
	}
	if p.apiKey == "" {
		return weather.Request{}, fmt.Errorf("openweathermap api key is not configured")
	}

	values := url.Values{}
	values.Set("q", name)
	values.Set("units", "metric")
	values.Set("mode", "json")
	values.Set("cnt", strconv.Itoa(weather.MaxOffset+1))
	values.Set("appid", p.apiKey)

	return getRequest(p.baseURL, values), nil
}

type openWeatherMapDecoder struct{}

func (openWeatherMapDecoder) Provider() weather.Provider { return weather.OpenWeatherMap }

// Decode reads the daily list. Entries carry only an absolute timestamp, which
// is placed in the city's zone before the calendar date is taken.
func (openWeatherMapDecoder) Decode(payload []byte) ([]weather.ForecastDay, error) {
	var body struct {
		City struct {
			Timezone int `json:"timezone"`
		} `json:"city"`
		List []struct {
			Dt   int64 `json:"dt"`
			Temp struct {
				Day *float64 `json:"day"`
				Min *float64 `json:"min"`
				Max *float64 `json:"max"`
			} `json:"temp"`
			Pressure *float64 `json:"pressure"`
			Humidity *float64 `json:"humidity"`
			Speed    *float64 `json:"speed"`
			Rain     *float64 `json:"rain"`
		} `json:"list"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode openweathermap payload: %w", err)
	}

	zone := time.FixedZone("city", body.City.Timezone)
	days := make([]weather.ForecastDay, 0, len(body.List))
	for _, e := range body.List {
		days = append(days, weather.ForecastDay{
			Date: time.Unix(e.Dt, 0).In(zone),
			Variables: weather.Values{
				weather.AirTemperature: e.Temp.Day,
				weather.MinAirTemp:     e.Temp.Min,
				weather.MaxAirTemp:     e.Temp.Max,
				weather.AirPressure:    e.Pressure,
				weather.RelHumidity:    e.Humidity,
				weather.WindSpeed:      e.Speed,
				weather.Precipitation:  e.Rain,
			},
		})
	}
	return days, nil
}
