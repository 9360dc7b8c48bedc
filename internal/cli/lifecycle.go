package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/experiment"
)

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start or resume an experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			exp, err := eng.StartExperiment(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to start experiment: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Experiment '%s' is %s (started %s)\n",
				exp.Name, exp.Status, exp.StartedAt.Format("2006-01-02 15:04"))
			return nil
		})
	},
}

var pauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a running experiment",
	Long: `Pause a running experiment. Counters are kept, and conversions for
impressions already served still count.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			exp, err := eng.PauseExperiment(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to pause experiment: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Experiment '%s' is %s\n", exp.Name, exp.Status)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Zero the counters of a draft or paused experiment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			exp, err := eng.ResetCounters(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to reset experiment: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Counters of '%s' reset\n", exp.Name)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(startCmd, pauseCmd, resetCmd)
}

func describeEnd(exp *experiment.Experiment) string {
	if exp.SelectedVariant != nil {
		return fmt.Sprintf("Experiment '%s' ended; winner: %s", exp.Name, exp.SelectedVariant)
	}
	return fmt.Sprintf("Experiment '%s' completed without a winner", exp.Name)
}
