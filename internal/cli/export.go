package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/experiment"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export raw funnel events",
	Long: `Export the funnel events of an experiment in CSV or JSON format.

Examples:
  og export 3f1c... --format csv > events.csv
  og export 3f1c... --format json > events.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "output format (csv or json)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportFormat != "csv" && exportFormat != "json" {
		return fmt.Errorf("invalid format: must be 'csv' or 'json'")
	}

	return withEngine(cmd, func(ctx context.Context, eng *engine.Engine) error {
		events, err := eng.ListEvents(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get events: %w", err)
		}

		if exportFormat == "csv" {
			return exportCSV(cmd.OutOrStdout(), events)
		}
		return exportJSON(cmd.OutOrStdout(), events)
	})
}

func exportCSV(out io.Writer, events []*experiment.ConversionEvent) error {
	w := csv.NewWriter(out)

	// Write header
	header := []string{
		"event_id", "session_id", "variant", "impression_at", "clicked_at", "converted_at",
		"order_id", "revenue", "quantity",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write rows
	for _, e := range events {
		variant := ""
		if e.AssignedVariant != nil {
			variant = e.AssignedVariant.String()
		}
		row := []string{
			e.ID,
			e.SessionID,
			variant,
			e.ImpressionAt.Format(time.RFC3339),
			formatOptionalTime(e.ClickedAt),
			formatOptionalTime(e.ConvertedAt),
			e.ConversionOrderID,
			strconv.FormatFloat(e.ConversionRevenue, 'f', 2, 64),
			strconv.Itoa(e.ConversionQuantity),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

type jsonExport struct {
	Events []*experiment.ConversionEvent `json:"events"`
}

func exportJSON(out io.Writer, events []*experiment.ConversionEvent) error {
	if events == nil {
		events = []*experiment.ConversionEvent{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(jsonExport{Events: events})
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
