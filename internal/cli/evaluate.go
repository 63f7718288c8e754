package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/forecast-accuracy/internal/common"
	"github.com/i474232898/forecast-accuracy/internal/evaluation"
	"github.com/i474232898/forecast-accuracy/internal/store"
	"github.com/i474232898/forecast-accuracy/internal/weather"
)

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var (
		from      string
		to        string
		maxOffset int
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score stored forecasts against ground truth and extend the error table",
		Long: `Scores every (city, reference date, provider, offset) in the date range that
is not yet in the error table, then rewrites the table. Re-running over the
same range appends nothing.`,
		Example: `  forecast-accuracy evaluate --from 2020-01-01 --to 2020-01-31
  forecast-accuracy evaluate --from 2020-01-01 --cities berlin --providers accuweather`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkMaxOffset(maxOffset); err != nil {
				return err
			}
			start, err := common.ParseDate(from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			// observations for today are not final yet
			end := weather.Day(time.Now().UTC()).AddDate(0, 0, -1)
			if to != "" {
				if end, err = common.ParseDate(to); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
			}

			truth, closeTruth, err := opts.groundTruth()
			if err != nil {
				return err
			}
			defer closeTruth()

			agg := evaluation.NewAggregator(truth, store.NewDiskStore(opts.cfg.ForecastBasePath)).
				WithMaxOffset(maxOffset)
			res, err := agg.Update(cmd.Context(), opts.cfg.ErrorsPath, start, end, opts.cfg.Cities, opts.cfg.Providers)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "run %s: appended=%d existing=%d missing=%d failed=%d rows=%d\n",
				res.RunID, res.Appended, res.Existing, res.Missing, res.Failed, res.Rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first reference date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last reference date (default yesterday)")
	cmd.Flags().IntVar(&maxOffset, "max-offset", weather.MaxOffset, "largest prediction offset to score")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func checkMaxOffset(n int) error {
	if n < 0 || n > weather.MaxOffset {
		return fmt.Errorf("invalid --max-offset %d (expected 0..%d)", n, weather.MaxOffset)
	}
	return nil
}
