package cli

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/i474232898/forecast-accuracy/internal/evaluation"
	"github.com/i474232898/forecast-accuracy/internal/weather"
)

func newSummarizeCmd(opts *rootOptions) *cobra.Command {
	var (
		by        string
		variable  string
		stat      string
		maxOffset int
	)

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Print error statistics from the error table",
		Long: `Aggregates the error table into a provider x label x offset tensor and prints
one table per provider. Labels are variables (--by variable) or cities
(--by city, for a single --variable). Empty cells print as NaN.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkMaxOffset(maxOffset); err != nil {
				return err
			}
			pick, err := statPicker(stat)
			if err != nil {
				return err
			}

			table, err := evaluation.LoadTable(evaluation.TablePath(opts.cfg.ErrorsPath))
			if err != nil {
				return err
			}

			var tensor evaluation.ErrorTensor
			switch by {
			case "variable":
				tensor = evaluation.SummarizeByVariable(table, opts.cfg.Providers, weather.Variables(), maxOffset)
			case "city":
				v, err := weather.ParseVariable(variable)
				if err != nil {
					return err
				}
				tensor = evaluation.SummarizeByCity(table, opts.cfg.Providers, opts.cfg.Cities, v, maxOffset)
			default:
				return fmt.Errorf("invalid --by %q (expected variable|city)", by)
			}

			return printTensor(cmd.OutOrStdout(), tensor, stat, pick)
		},
	}

	cmd.Flags().StringVar(&by, "by", "variable", "summary axis: variable|city")
	cmd.Flags().StringVar(&variable, "variable", string(weather.AirTemperature), "variable summarized with --by city")
	cmd.Flags().StringVar(&stat, "stat", "mean", "statistic to print: n|mean|mse|rms|norm")
	cmd.Flags().IntVar(&maxOffset, "max-offset", weather.MaxOffset, "largest prediction offset to include")
	return cmd
}

func statPicker(name string) (func(evaluation.Stat) float64, error) {
	switch strings.ToLower(name) {
	case "n":
		return func(s evaluation.Stat) float64 { return float64(s.N) }, nil
	case "mean":
		return func(s evaluation.Stat) float64 { return s.Mean }, nil
	case "mse":
		return func(s evaluation.Stat) float64 { return s.MSE }, nil
	case "rms":
		return func(s evaluation.Stat) float64 { return s.RMS }, nil
	case "norm":
		return func(s evaluation.Stat) float64 { return s.Norm }, nil
	default:
		return nil, fmt.Errorf("invalid --stat %q (expected n|mean|mse|rms|norm)", name)
	}
}

func printTensor(w io.Writer, t evaluation.ErrorTensor, stat string, pick func(evaluation.Stat) float64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	for pi, p := range t.Providers {
		fmt.Fprintf(tw, "%s (%s)\t", p, stat)
		for _, o := range t.Offsets {
			fmt.Fprintf(tw, "+%d\t", o)
		}
		fmt.Fprintln(tw)

		for li, label := range t.Labels {
			fmt.Fprintf(tw, "%s\t", label)
			for oi := range t.Offsets {
				fmt.Fprintf(tw, "%s\t", formatStat(pick(t.Cells[pi][li][oi])))
			}
			fmt.Fprintln(tw)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func formatStat(x float64) string {
	if math.IsNaN(x) {
		return "NaN"
	}
	return strconv.FormatFloat(x, 'f', 3, 64)
}
