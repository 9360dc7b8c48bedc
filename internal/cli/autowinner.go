package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/engine"
)

var autoWinnerShop string

var autoWinnerCmd = &cobra.Command{
	Use:   "auto-winner",
	Short: "Run one automatic winner selection pass",
	Long: `Recalculate every running experiment with automatic winner selection
that reached its planned sample size, and promote significant winners.

'og serve' runs this on the configured auto_winner.interval.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			summary, err := eng.ProcessAutoWinnerSelection(ctx, autoWinnerShop)
			if err != nil {
				return fmt.Errorf("auto-winner pass failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned %d, evaluated %d, promoted %d, failed %d\n",
				summary.Scanned, summary.Evaluated, len(summary.Promoted), summary.Failed)
			for _, p := range summary.Promoted {
				lift := ""
				if p.Lift != nil {
					lift = fmt.Sprintf(", %+.1f%% lift", *p.Lift)
				}
				fmt.Fprintf(out, "  %s → %s (p = %.4f%s)\n", p.ExperimentID, p.Winner, p.PValue, lift)
			}
			return nil
		})
	},
}

func init() {
	autoWinnerCmd.Flags().StringVar(&autoWinnerShop, "shop", "", "only this shop (default all shops)")
	rootCmd.AddCommand(autoWinnerCmd)
}
