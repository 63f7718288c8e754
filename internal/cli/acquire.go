package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/i474232898/forecast-accuracy/internal/acquisition"
	"github.com/i474232898/forecast-accuracy/internal/config"
	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/scheduler"
	"github.com/i474232898/forecast-accuracy/internal/store"
)

func newAcquireCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "acquire",
		Short: "Fetch and store today's forecasts once",
		Long: `Runs one acquisition pass: every provider fetches a forecast for every city
concurrently and the raw payloads are written below the forecast base path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			plugins, err := opts.plugins()
			if err != nil {
				return err
			}

			svc := acquisition.NewService(opts.httpClient(), opts.cfg.Backoff, store.NewDiskStore(opts.cfg.ForecastBasePath))
			reports := svc.StoreForecasts(cmd.Context(), opts.cfg.Cities, plugins)

			out := cmd.OutOrStdout()
			failed := 0
			for _, r := range reports {
				fmt.Fprintf(out, "%-15s stored=%d failed=%d snapshots=%d", r.Provider, r.Stored, r.Failed, r.Snapshots)
				if r.Aborted {
					fmt.Fprint(out, " aborted")
				}
				fmt.Fprintln(out)
				failed += r.Failed
			}
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			if failed > 0 {
				logger.GetLogger().Warnw("Acquisition finished with failures", "failed", failed)
			}
			return nil
		},
	}
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var cronExpr string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run acquisition on a daily schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := opts.scheduler(cronExpr)
			if err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			defer sched.Stop()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			logger.GetLogger().Infow("Scheduler shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression in UTC (default $ACQUIRE_CRON or \"0 3 * * *\")")
	return cmd
}

func (o *rootOptions) scheduler(cronExpr string) (*scheduler.Scheduler, error) {
	if cronExpr == "" {
		cronExpr = o.cfg.AcquireCron
	}
	if err := config.ValidateCron(cronExpr); err != nil {
		return nil, err
	}
	plugins, err := o.plugins()
	if err != nil {
		return nil, err
	}
	svc := acquisition.NewService(o.httpClient(), o.cfg.Backoff, store.NewDiskStore(o.cfg.ForecastBasePath))
	return scheduler.New(cronExpr, o.cfg.Cities, plugins, svc), nil
}
