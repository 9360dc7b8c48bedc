package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newCreateCmd())
}

func newCreateCmd() *cobra.Command {
	var (
		shopID      string
		description string
		metric      string
		split       string
		mde         float64
		alpha       float64
		power       float64
		baseline    float64
		auto        bool
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new experiment",
		Long: `Create a new experiment in draft status and plan its sample size.

Design parameters left unset fall back to the planning section of the config.

Examples:
  og create "Free shipping banner" --shop shop-1 --split 50/50 --mde 0.2
  og create "Bundle discount" --shop shop-1 --split 50/30/20 --mde 0.1 --auto`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			control, variantA, variantB, err := parseSplit(split)
			if err != nil {
				return err
			}

			in := experiment.CreateInput{
				ShopID:                  shopID,
				Name:                    args[0],
				Description:             description,
				PrimaryMetric:           metric,
				ControlTrafficPercent:   control,
				VariantATrafficPercent:  variantA,
				VariantBTrafficPercent:  variantB,
				MinimumDetectableEffect: mde,
				SignificanceLevel:       alpha,
				StatisticalPower:        power,
				BaselineRate:            baseline,
				AutoSelectWinner:        auto,
			}

			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				exp, err := eng.CreateExperiment(ctx, in)
				if err != nil {
					return fmt.Errorf("failed to create experiment: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created experiment '%s' (%s)\n", exp.Name, exp.ID)
				fmt.Fprintf(out, "  Split: control %d%% / variant_a %d%%", exp.Split.Control, exp.Split.VariantA)
				if exp.Split.HasVariantB() {
					fmt.Fprintf(out, " / variant_b %d%%", exp.Split.VariantB)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "  Sample size: %s per variant (~%d days)\n",
					formatNumber(int64(exp.SampleSizePerVariant)), exp.EstimatedDaysToComplete)
				if exp.AutoSelectWinner {
					fmt.Fprintln(out, "  Winner will be selected automatically once significant.")
				}
				fmt.Fprintf(out, "\nStart it with: og start %s\n", exp.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&shopID, "shop", "", "shop the experiment belongs to (required)")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().StringVar(&metric, "metric", experiment.MetricConversionRate, "primary metric (conversion_rate, click_rate, revenue_per_impression)")
	cmd.Flags().StringVar(&split, "split", "50/50", "traffic split CONTROL/A or CONTROL/A/B, summing to 100")
	cmd.Flags().Float64Var(&mde, "mde", 0.2, "minimum detectable effect, relative (0.2 = +20%)")
	cmd.Flags().Float64Var(&alpha, "alpha", 0, "significance level (default from config)")
	cmd.Flags().Float64Var(&power, "power", 0, "statistical power (default from config)")
	cmd.Flags().Float64Var(&baseline, "baseline", 0, "baseline conversion rate used for planning (default from config)")
	cmd.Flags().BoolVar(&auto, "auto", false, "select the winner automatically once significant")
	cmd.MarkFlagRequired("shop")

	return cmd
}
