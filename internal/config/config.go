package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/forecast-accuracy/internal/acquisition"
	"github.com/i474232898/forecast-accuracy/internal/common"
	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/weather"
	"github.com/i474232898/forecast-accuracy/internal/weather/providers"
)

type AppConfig struct {
	APIKeys providers.APIKeys

	// ForecastBasePath is the root of the snapshot tree.
	ForecastBasePath string
	// ErrorsPath is the directory holding the error table.
	ErrorsPath string

	// Catalog describes every city a plugin may be asked about.
	Catalog []weather.City
	// Cities and Providers select what acquisition and evaluation cover.
	Cities    []string
	Providers []weather.Provider

	HTTPTimeout time.Duration
	Backoff     acquisition.BackoffConfig

	// AcquireCron is a standard 5-field cron expression, evaluated in UTC.
	AcquireCron string

	// Ground truth comes from GroundTruthDSN when set, else from CSV files
	// in GroundTruthDir.
	GroundTruthDir string
	GroundTruthDSN string

	Port string
}

// DefaultCities is the catalog used when no CITIES_FILE is configured.
func DefaultCities() []weather.City {
	return []weather.City{
		{Name: "berlin", Lat: 52.5200, Lon: 13.4050, HasCoordinates: true, AccuWeatherKey: "178087"},
		{Name: "hamburg", Lat: 53.5511, Lon: 9.9937, HasCoordinates: true, AccuWeatherKey: "178556"},
		{Name: "bremen", Lat: 53.0793, Lon: 8.8017, HasCoordinates: true, AccuWeatherKey: "178313"},
		{Name: "stuttgart", Lat: 48.7758, Lon: 9.1829, HasCoordinates: true, AccuWeatherKey: "167220"},
	}
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.GetLogger().Debugw("No .env file loaded", "error", err)
	}
	cfg := &AppConfig{}

	cfg.APIKeys = providers.APIKeys{
		AccuWeather:    os.Getenv("ACCUWEATHER_API_KEY"),
		OpenWeatherMap: os.Getenv("OPENWEATHERMAP_API_KEY"),
		WeatherDotCom:  os.Getenv("WEATHERDOTCOM_API_KEY"),
	}

	cfg.ForecastBasePath = getenvDefault("FORECAST_BASE_PATH", "./forecasts")
	cfg.ErrorsPath = getenvDefault("ERRORS_PATH", "./errors")
	cfg.GroundTruthDir = getenvDefault("GROUND_TRUTH_DIR", "./groundtruth")
	cfg.GroundTruthDSN = os.Getenv("GROUND_TRUTH_DSN")
	cfg.Port = getenvDefault("PORT", "8080")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}

	cfg.Backoff.MaxRetries = getenvInt("FETCH_MAX_RETRIES", 5)
	if cfg.Backoff.InitialInterval, err = getenvDuration("FETCH_INITIAL_BACKOFF", time.Second); err != nil {
		return nil, err
	}
	if cfg.Backoff.MaxInterval, err = getenvDuration("FETCH_MAX_BACKOFF", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 || cfg.Backoff.MaxInterval < cfg.Backoff.InitialInterval {
		return nil, fmt.Errorf("invalid fetch backoff: retries=%d initial=%s max=%s",
			cfg.Backoff.MaxRetries, cfg.Backoff.InitialInterval, cfg.Backoff.MaxInterval)
	}

	cfg.AcquireCron = getenvDefault("ACQUIRE_CRON", "0 3 * * *")
	if err := ValidateCron(cfg.AcquireCron); err != nil {
		return nil, err
	}

	cfg.Catalog = DefaultCities()
	if path := os.Getenv("CITIES_FILE"); path != "" {
		if cfg.Catalog, err = LoadCities(path); err != nil {
			return nil, err
		}
	}

	cfg.Cities = common.SplitList(os.Getenv("CITIES"))
	if len(cfg.Cities) == 0 {
		for _, c := range cfg.Catalog {
			cfg.Cities = append(cfg.Cities, c.Name)
		}
	}

	cfg.Providers = weather.Providers()
	if names := common.SplitList(os.Getenv("PROVIDERS")); len(names) > 0 {
		if cfg.Providers, err = weather.ParseProviders(names); err != nil {
			return nil, fmt.Errorf("invalid PROVIDERS: %w", err)
		}
	}

	return cfg, nil
}

// ValidateCron checks a standard 5-field cron expression.
func ValidateCron(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid ACQUIRE_CRON %q: %w", expr, err)
	}
	return nil
}

type citiesFile struct {
	Cities []struct {
		Name           string    `yaml:"name"`
		Coordinates    []float64 `yaml:"coordinates"`
		AccuWeatherKey string    `yaml:"accuweather_key"`
	} `yaml:"cities"`
}

// LoadCities reads a YAML city catalog.
func LoadCities(path string) ([]weather.City, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cities file: %w", err)
	}

	var f citiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse cities file %s: %w", path, err)
	}
	if len(f.Cities) == 0 {
		return nil, fmt.Errorf("cities file %s lists no cities", path)
	}

	out := make([]weather.City, 0, len(f.Cities))
	seen := make(map[string]struct{}, len(f.Cities))
	for i, c := range f.Cities {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			return nil, fmt.Errorf("cities file %s: entry %d has no name", path, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("cities file %s: %q listed twice", path, name)
		}
		seen[name] = struct{}{}

		city := weather.City{Name: name, AccuWeatherKey: c.AccuWeatherKey}
		switch len(c.Coordinates) {
		case 0:
		case 2:
			city.Lat, city.Lon = c.Coordinates[0], c.Coordinates[1]
			city.HasCoordinates = true
		default:
			return nil, fmt.Errorf("cities file %s: %q needs coordinates [lat, lon]", path, name)
		}
		out = append(out, city)
	}
	return out, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
