// Package cli implements the forecast-accuracy command line.
package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/i474232898/forecast-accuracy/internal/common"
	"github.com/i474232898/forecast-accuracy/internal/config"
	"github.com/i474232898/forecast-accuracy/internal/groundtruth"
	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/weather"
	"github.com/i474232898/forecast-accuracy/internal/weather/providers"
)

const longDescription = `Acquires daily forecasts from several weather providers, stores them on disk
and scores them against weather-station observations.`

// rootOptions are the flags shared by every subcommand. Set flags override
// the environment configuration.
type rootOptions struct {
	basePath   string
	errorsPath string
	cities     string
	providers  string

	cfg *config.AppConfig
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "forecast-accuracy",
		Short:         "Weather forecast acquisition and accuracy evaluation",
		Long:          longDescription,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.basePath, "base-path", "", "forecast snapshot directory (default $FORECAST_BASE_PATH or ./forecasts)")
	flags.StringVar(&opts.errorsPath, "errors-path", "", "error table directory (default $ERRORS_PATH or ./errors)")
	flags.StringVar(&opts.cities, "cities", "", "comma separated cities (default $CITIES or the catalog)")
	flags.StringVar(&opts.providers, "providers", "", "comma separated providers (default $PROVIDERS or all)")

	rootCmd.AddCommand(
		newAcquireCmd(opts),
		newScheduleCmd(opts),
		newEvaluateCmd(opts),
		newSummarizeCmd(opts),
		newServeCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if o.basePath != "" {
		cfg.ForecastBasePath = o.basePath
	}
	if o.errorsPath != "" {
		cfg.ErrorsPath = o.errorsPath
	}
	if cities := common.SplitList(o.cities); len(cities) > 0 {
		cfg.Cities = cities
	}
	if names := common.SplitList(o.providers); len(names) > 0 {
		if cfg.Providers, err = weather.ParseProviders(names); err != nil {
			return fmt.Errorf("invalid --providers: %w", err)
		}
	}

	o.cfg = cfg
	logger.GetLogger().Debugw("Configuration loaded",
		"basePath", cfg.ForecastBasePath, "errorsPath", cfg.ErrorsPath,
		"cities", cfg.Cities, "providers", cfg.Providers)
	return nil
}

func (o *rootOptions) httpClient() *http.Client {
	return &http.Client{Timeout: o.cfg.HTTPTimeout}
}

func (o *rootOptions) plugins() ([]weather.Plugin, error) {
	return providers.NewAll(o.cfg.Providers, o.cfg.APIKeys, providers.NewCatalog(o.cfg.Catalog))
}

// groundTruth opens the configured observation source. The returned func
// releases it.
func (o *rootOptions) groundTruth() (groundtruth.Source, func(), error) {
	if o.cfg.GroundTruthDSN != "" {
		src, err := groundtruth.NewPostgresSource(o.cfg.GroundTruthDSN)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	}
	return groundtruth.NewCSVSource(o.cfg.GroundTruthDir), func() {}, nil
}
