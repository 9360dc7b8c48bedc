package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/experiment"
	"github.com/offer-goat/offer-goat/internal/store"
)

var (
	listShop   string
	listStatus string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments",
	Long:  `List experiments with their status, traffic and sample progress.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listShop, "shop", "", "only experiments of this shop")
	listCmd.Flags().StringVar(&listStatus, "status", "", "only experiments in this status")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	filter := store.ListFilter{ShopID: listShop, Status: experiment.Status(listStatus)}
	if listStatus != "" && !filter.Status.Valid() {
		return fmt.Errorf("unknown status %q", listStatus)
	}

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		exps, err := eng.ListExperiments(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to list experiments: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(exps) == 0 {
			fmt.Fprintln(out, "No experiments yet.")
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Create one with:")
			fmt.Fprintln(out, `  og create "Free shipping banner" --shop YOUR_SHOP --split 50/50`)
			return nil
		}

		// Print table
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSHOP\tNAME\tSTATUS\tSPLIT\tIMPRESSIONS\tCONVERSIONS\tSAMPLE\tCREATED")

		for _, exp := range exps {
			var impressions, conversions int64
			for _, v := range exp.Variants() {
				c := exp.Arm(v).Counters
				impressions += c.Impressions
				conversions += c.Conversions
			}

			splitStr := fmt.Sprintf("%d/%d", exp.Split.Control, exp.Split.VariantA)
			if exp.Split.HasVariantB() {
				splitStr += fmt.Sprintf("/%d", exp.Split.VariantB)
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s/%s\t%s\n",
				exp.ID,
				exp.ShopID,
				exp.Name,
				strings.ToUpper(string(exp.Status)),
				splitStr,
				formatNumber(impressions),
				formatNumber(conversions),
				formatNumber(exp.CurrentSample()),
				formatNumber(int64(exp.SampleSizePerVariant)),
				exp.CreatedAt.Format("2006-01-02"),
			)
		}

		return w.Flush()
	})
}
