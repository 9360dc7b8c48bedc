package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/stats"
)

func init() {
	rootCmd.AddCommand(newSampleSizeCmd())
}

func newSampleSizeCmd() *cobra.Command {
	var in stats.SampleSizeInput

	cmd := &cobra.Command{
		Use:   "sample-size",
		Short: "Plan the sample size of an experiment",
		Long: `Compute the impressions needed per variant to detect a relative lift.

Example:
  og sample-size --baseline 0.03 --mde 0.2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("baseline") {
				in.BaselineRate = cfg.Planning.BaselineRate
			}
			if !flags.Changed("alpha") {
				in.SignificanceLevel = cfg.Planning.SignificanceLevel
			}
			if !flags.Changed("power") {
				in.Power = cfg.Planning.StatisticalPower
			}
			if !flags.Changed("daily") {
				in.DailyImpressions = cfg.Planning.DailyImpressions
			}

			size := stats.CalculateSampleSize(in)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Baseline %.2f%%, MDE %+.0f%%, alpha %.2f, power %.2f\n",
				in.BaselineRate*100, in.MinimumDetectableEffect*100, in.SignificanceLevel, in.Power)
			fmt.Fprintf(out, "Per variant: %s\n", formatNumber(int64(size.RequiredPerVariant)))
			fmt.Fprintf(out, "Total:       %s\n", formatNumber(int64(size.TotalRequired)))
			fmt.Fprintf(out, "Estimated:   %d days at %d impressions/day\n", size.EstimatedDaysToComplete, in.DailyImpressions)
			return nil
		},
	}

	cmd.Flags().Float64Var(&in.BaselineRate, "baseline", 0, "baseline conversion rate (default from config)")
	cmd.Flags().Float64Var(&in.MinimumDetectableEffect, "mde", 0.2, "minimum detectable effect, relative")
	cmd.Flags().Float64Var(&in.SignificanceLevel, "alpha", 0, "significance level (default from config)")
	cmd.Flags().Float64Var(&in.Power, "power", 0, "statistical power (default from config)")
	cmd.Flags().IntVar(&in.DailyImpressions, "daily", 0, "expected impressions per day (default from config)")

	return cmd
}
