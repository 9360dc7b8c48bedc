package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/experiment"
	"github.com/offer-goat/offer-goat/internal/stats"
)

var resultsCmd = &cobra.Command{
	Use:   "results <id>",
	Short: "Show detailed results for an experiment",
	Long: `Recalculate and show conversion rates, confidence intervals and the
significance of variant A against the control.`,
	Args: cobra.ExactArgs(1),
	RunE: runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
}

func runResults(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		exp, err := eng.RecalculateStatistics(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get results: %w", err)
		}
		printResults(cmd, exp)
		return nil
	})
}

func printResults(cmd *cobra.Command, exp *experiment.Experiment) {
	out := cmd.OutOrStdout()

	// Print header
	fmt.Fprintf(out, "EXPERIMENT: %s (%s)\n", exp.Name, exp.ID)
	fmt.Fprintf(out, "STATUS: %s\n", exp.Status)
	fmt.Fprintf(out, "METRIC: %s\n", exp.PrimaryMetric)
	fmt.Fprintf(out, "SAMPLE: %s of %s per variant\n",
		formatNumber(exp.CurrentSample()), formatNumber(int64(exp.SampleSizePerVariant)))
	fmt.Fprintf(out, "CREATED: %s\n", exp.CreatedAt.Format("2006-01-02"))
	fmt.Fprintln(out)

	// Print table header
	fmt.Fprintln(out, "VARIANT     IMPRESSIONS  CLICKS   CONVERSIONS  RATE     95% CI            P-VALUE")
	fmt.Fprintln(out, strings.Repeat("─", 84))

	for _, v := range exp.Variants() {
		arm := exp.Arm(v)

		indicator := ""
		if exp.WinningVariant != nil && *exp.WinningVariant == v {
			indicator = " ← WINNING"
		}
		if exp.SelectedVariant != nil && *exp.SelectedVariant == v {
			indicator = " ← SELECTED"
		}

		ciStr := fmt.Sprintf("[%.1f%%, %.1f%%]", arm.Stats.CILower*100, arm.Stats.CIUpper*100)
		if arm.Counters.Impressions == 0 {
			ciStr = "N/A"
		}
		pStr := "-"
		if v != experiment.Control {
			pStr = fmt.Sprintf("%.4f", arm.Stats.PValueVsControl)
		}

		fmt.Fprintf(out, "%-10s  %-11s  %-7s  %-11s  %-7s  %-16s  %s%s\n",
			v,
			formatNumber(arm.Counters.Impressions),
			formatNumber(arm.Counters.Clicks),
			formatNumber(arm.Counters.Conversions),
			formatPercent(arm.Stats.ConversionRate),
			ciStr,
			pStr,
			indicator,
		)
	}

	fmt.Fprintln(out)

	// Print significance message
	confidence := stats.SignificanceTest(
		exp.VariantA.Counters.Conversions, exp.VariantA.Counters.Impressions,
		exp.Control.Counters.Conversions, exp.Control.Counters.Impressions,
	)
	confPct := confidence * 100
	switch {
	case exp.IsStatisticallySignificant && exp.WinningVariant != nil:
		lift := ""
		if exp.WinningLift != nil {
			lift = fmt.Sprintf(" (%+.1f%% lift)", *exp.WinningLift)
		}
		fmt.Fprintf(out, "Statistical significance: p = %.4f < %.2f, %s is winning%s\n",
			exp.PValueVsControl, exp.SignificanceLevel, exp.WinningVariant, lift)
	case confPct >= 90:
		fmt.Fprintf(out, "Statistical significance: %.1f%% confident variant_a beats control (not yet significant)\n", confPct)
	default:
		fmt.Fprintln(out, "Statistical significance: Not enough data to determine a winner")
	}
	if exp.VariantB != nil {
		fmt.Fprintln(out, "Note: variant_b is reported against control but never promoted automatically.")
	}
}
