package providers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// Catalog indexes the known cities by lower-case name.
type Catalog map[string]weather.City

// NewCatalog builds a catalog from a list of cities.
func NewCatalog(cities []weather.City) Catalog {
	c := make(Catalog, len(cities))
	for _, city := range cities {
		c[normalizeCity(city.Name)] = city
	}
	return c
}

// Lookup returns the catalog entry for name.
func (c Catalog) Lookup(name string) (weather.City, bool) {
	city, ok := c[normalizeCity(name)]
	return city, ok
}

// APIKeys holds the credentials each provider expects.
type APIKeys struct {
	AccuWeather    string
	OpenWeatherMap string
	WeatherDotCom  string
}

// New returns the plugin for p.
func New(p weather.Provider, keys APIKeys, catalog Catalog) (weather.Plugin, error) {
	switch p {
	case weather.AccuWeather:
		return NewAccuWeatherPlugin(keys.AccuWeather, catalog), nil
	case weather.OpenWeatherMap:
		return NewOpenWeatherMapPlugin(keys.OpenWeatherMap), nil
	case weather.WeatherDotCom:
		return NewWeatherDotComPlugin(keys.WeatherDotCom, catalog), nil
	default:
		return nil, fmt.Errorf("no plugin for provider %q", p)
	}
}

// NewAll returns one plugin per provider, in the given order.
func NewAll(ps []weather.Provider, keys APIKeys, catalog Catalog) ([]weather.Plugin, error) {
	plugins := make([]weather.Plugin, 0, len(ps))
	for _, p := range ps {
		plugin, err := New(p, keys, catalog)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, plugin)
	}
	return plugins, nil
}

// NewDecoder returns the payload decoder for p. Decoding needs no
// credentials, so stored snapshots can be read without API keys.
func NewDecoder(p weather.Provider) (weather.Decoder, error) {
	switch p {
	case weather.AccuWeather:
		return accuWeatherDecoder{}, nil
	case weather.OpenWeatherMap:
		return openWeatherMapDecoder{}, nil
	case weather.WeatherDotCom:
		return weatherDotComDecoder{}, nil
	default:
		return nil, fmt.Errorf("no decoder for provider %q", p)
	}
}

func getRequest(baseURL string, values url.Values) weather.Request {
	return weather.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s?%s", baseURL, values.Encode()),
		Header: http.Header{"Accept": []string{"application/json"}},
	}
}

func normalizeCity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func intPtr(i int) *int {
	return &i
}
