package providers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

const (
	weatherDotComBaseURL = "https://api.weather.com/v1/geocode"
	weatherDotComTime    = "2006-01-02T15:04:05-0700"
)

// WeatherDotComPlugin implements weather.Plugin for the weather.com daily
// forecast, which is addressed by coordinates from the catalog.
type WeatherDotComPlugin struct {
	weatherDotComDecoder
	apiKey  string
	baseURL string
	catalog Catalog
}

func NewWeatherDotComPlugin(apiKey string, catalog Catalog) *WeatherDotComPlugin {
	return &WeatherDotComPlugin{
		apiKey:  apiKey,
		baseURL: weatherDotComBaseURL,
		catalog: catalog,
	}
}

func (p *WeatherDotComPlugin) VariableSchema() weather.VariableSet {
	return weather.WeatherDotCom.Schema().Variables
}

func (p *WeatherDotComPlugin) BuildRequest(city string) (weather.Request, error) {
	entry, ok := p.catalog.Lookup(city)
	if !ok || !entry.HasCoordinates {
		return weather.Request{}, &weather.UnsupportedCityError{Provider: weather.WeatherDotCom, City: city}
	}
	if p.apiKey == "" {
		return weather.Request{}, fmt.Errorf("weatherdotcom api key is not configured")
	}

	values := url.Values{}
	values.Set("units", "m")
	values.Set("language", "en-US")
	values.Set("apiKey", p.apiKey)

	base := fmt.Sprintf("%s/%.4f/%.4f/forecast/daily/7day.json", p.baseURL, entry.Lat, entry.Lon)
	return getRequest(base, values), nil
}

type weatherDotComDecoder struct{}

func (weatherDotComDecoder) Provider() weather.Provider { return weather.WeatherDotCom }

type weatherDotComPart struct {
	Temp *float64 `json:"temp"`
	RH   *float64 `json:"rh"`
	Wspd *float64 `json:"wspd"`
}

// Decode reads the forecasts array. "num" is 1 for today. The day part is
// null once the day is over, in which case the night part is used.
func (weatherDotComDecoder) Decode(payload []byte) ([]weather.ForecastDay, error) {
	var body struct {
		Forecasts []struct {
			Num            int                `json:"num"`
			FcstValidLocal string             `json:"fcst_valid_local"`
			Day            *weatherDotComPart `json:"day"`
			Night          *weatherDotComPart `json:"night"`
		} `json:"forecasts"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode weatherdotcom payload: %w", err)
	}

	days := make([]weather.ForecastDay, 0, len(body.Forecasts))
	for _, f := range body.Forecasts {
		date, err := time.Parse(weatherDotComTime, f.FcstValidLocal)
		if err != nil {
			return nil, fmt.Errorf("weatherdotcom day %d: %w", f.Num, err)
		}

		part := f.Day
		if part == nil {
			part = f.Night
		}
		vals := weather.Values{}
		if part != nil {
			vals[weather.AirTemperature] = part.Temp
			vals[weather.RelHumidity] = part.RH
			if part.Wspd != nil {
				// km/h to m/s
				vals[weather.WindSpeed] = weather.Float(*part.Wspd / 3.6)
			}
		}

		days = append(days, weather.ForecastDay{
			Offset:    intPtr(f.Num - 1),
			Date:      date,
			Variables: vals,
		})
	}
	return days, nil
}
