package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/experiment"
)

var assignCmd = &cobra.Command{
	Use:   "assign <id> <session-id>...",
	Short: "Show which variant sessions are assigned to",
	Long: `Show the deterministic variant assignment of one or more sessions.

Example:
  og assign 3f1c... sess-1 sess-2 sess-3`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
			for _, session := range args[1:] {
				v, err := eng.AssignVariant(ctx, args[0], session)
				if err != nil {
					return fmt.Errorf("failed to assign %s: %w", session, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t(bucket %d)\n", session, v, experiment.Bucket(args[0], session))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(assignCmd)
}
