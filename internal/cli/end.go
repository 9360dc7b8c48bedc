package cli

import (
	"context"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/experiment"
)

func init() {
	rootCmd.AddCommand(newEndCmd())
}

func newEndCmd() *cobra.Command {
	var (
		winner      string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "end <id>",
		Short: "End an experiment, optionally declaring a winner",
		Long: `End a running or paused experiment.

Without --winner the experiment is completed. With --winner it moves to
winner_selected and the chosen variant is recorded.

Examples:
  og end 3f1c... --winner variant_a
  og end 3f1c... --interactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
				var picked *experiment.Variant
				switch {
				case interactive:
					exp, err := eng.RecalculateStatistics(ctx, id)
					if err != nil {
						return fmt.Errorf("failed to load experiment: %w", err)
					}
					picked, err = promptWinner(exp)
					if err != nil {
						return err
					}
				case winner != "":
					v, err := experiment.ParseVariant(winner)
					if err != nil {
						return err
					}
					picked = &v
				}

				exp, err := eng.EndExperiment(ctx, id, picked)
				if err != nil {
					return fmt.Errorf("failed to end experiment: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), describeEnd(exp))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&winner, "winner", "w", "", "winning variant (control, variant_a, variant_b)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "pick the winner from a list")
	cmd.MarkFlagsMutuallyExclusive("winner", "interactive")

	return cmd
}

func promptWinner(exp *experiment.Experiment) (*experiment.Variant, error) {
	items := []string{"No winner (complete)"}
	for _, v := range exp.Variants() {
		arm := exp.Arm(v)
		items = append(items, fmt.Sprintf("%s  (%s of %s)",
			v, formatPercent(arm.Stats.ConversionRate), formatNumber(arm.Counters.Impressions)))
	}

	prompt := promptui.Select{
		Label: "Winner for " + exp.Name,
		Items: items,
		Size:  len(items),
	}

	idx, _, err := prompt.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			return nil, fmt.Errorf("cancelled")
		}
		return nil, err
	}

	if idx == 0 {
		return nil, nil
	}
	v := exp.Variants()[idx-1]
	return &v, nil
}
