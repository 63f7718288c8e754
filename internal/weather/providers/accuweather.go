package providers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

const accuWeatherBaseURL = "http://dataservice.accuweather.com/forecasts/v1/daily/5day"

// AccuWeatherPlugin implements weather.Plugin for the AccuWeather daily
// forecast API. Cities are addressed by AccuWeather location key, so only
// catalog cities carrying a key are supported.
type AccuWeatherPlugin struct {
	accuWeatherDecoder
	apiKey  string
	baseURL string
	catalog Catalog
}

func NewAccuWeatherPlugin(apiKey string, catalog Catalog) *AccuWeatherPlugin {
	return &AccuWeatherPlugin{
		apiKey:  apiKey,
		baseURL: accuWeatherBaseURL,
		catalog: catalog,
	}
}

func (p *AccuWeatherPlugin) VariableSchema() weather.VariableSet {
	return weather.AccuWeather.Schema().Variables
}

func (p *AccuWeatherPlugin) BuildRequest(city string) (weather.Request, error) {
	entry, ok := p.catalog.Lookup(city)
	if !ok || entry.AccuWeatherKey == "" {
		return weather.Request{}, &weather.UnsupportedCityError{Provider: weather.AccuWeather, City: city}
	}
	if p.apiKey == "" {
		return weather.Request{}, fmt.Errorf("accuweather api key is not configured")
	}

	values := url.Values{}
	values.Set("apikey", p.apiKey)
	values.Set("metric", "true")
	values.Set("details", "true")

	return getRequest(fmt.Sprintf("%s/%s", p.baseURL, url.PathEscape(entry.AccuWeatherKey)), values), nil
}

type accuWeatherDecoder struct{}

func (accuWeatherDecoder) Provider() weather.Provider { return weather.AccuWeather }

type accuWeatherAmount struct {
	Value *float64 `json:"Value"`
}

type accuWeatherHalfDay struct {
	TotalLiquid *accuWeatherAmount `json:"TotalLiquid"`
}

// Decode reads the DailyForecasts array; a day's position in the array is
// its offset. The daily mean temperature is the midpoint of min and max.
func (accuWeatherDecoder) Decode(payload []byte) ([]weather.ForecastDay, error) {
	var body struct {
		DailyForecasts []struct {
			Date        string `json:"Date"`
			Temperature struct {
				Minimum accuWeatherAmount `json:"Minimum"`
				Maximum accuWeatherAmount `json:"Maximum"`
			} `json:"Temperature"`
			Day   accuWeatherHalfDay `json:"Day"`
			Night accuWeatherHalfDay `json:"Night"`
		} `json:"DailyForecasts"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode accuweather payload: %w", err)
	}

	days := make([]weather.ForecastDay, 0, len(body.DailyForecasts))
	for i, f := range body.DailyForecasts {
		date, err := time.Parse(time.RFC3339, f.Date)
		if err != nil {
			return nil, fmt.Errorf("accuweather day %d: %w", i, err)
		}

		minT, maxT := f.Temperature.Minimum.Value, f.Temperature.Maximum.Value
		vals := weather.Values{
			weather.MinAirTemp:    minT,
			weather.MaxAirTemp:    maxT,
			weather.Precipitation: sumLiquid(f.Day, f.Night),
		}
		if minT != nil && maxT != nil {
			vals[weather.AirTemperature] = weather.Float((*minT + *maxT) / 2)
		}

		days = append(days, weather.ForecastDay{
			Offset:    intPtr(i),
			Date:      date,
			Variables: vals,
		})
	}
	return days, nil
}

func sumLiquid(halves ...accuWeatherHalfDay) *float64 {
	var total float64
	var seen bool
	for _, h := range halves {
		if h.TotalLiquid != nil && h.TotalLiquid.Value != nil {
			total += *h.TotalLiquid.Value
			seen = true
		}
	}
	if !seen {
		return nil
	}
	return &total
}
