package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/logger"
	"github.com/offer-goat/offer-goat/internal/server"
	"github.com/offer-goat/offer-goat/internal/store"
)

var port int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the offer-goat HTTP server and the auto-winner scheduler.

The server provides:
  - Assignment and event endpoints for the offer-serving side
  - Admin API for experiments (token protected)
  - Health check and Prometheus metrics

Example:
  og serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config or OG_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.WithHashSalt(cfg.LogHashSalt)

	return runWithEngine(cmd, cfg, log, func(ctx context.Context, eng *engine.Engine, s *store.SQLiteStore) error {
		srv := server.New(eng, s, server.Config{
			Port:      cfg.Port,
			Token:     cfg.AdminToken,
			TokenFile: tokenFilePath(cfg.DBPath),
		}, log)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out)
		fmt.Fprintf(out, "offer-goat running on http://localhost:%d\n", cfg.Port)
		fmt.Fprintf(out, "Admin token: %s\n", srv.Token())
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Press Ctrl+C to stop")

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			engine.NewScheduler(eng, cfg.AutoWinner.Interval).Run(gctx)
			return nil
		})
		g.Go(func() error {
			return srv.Start(gctx)
		})
		return g.Wait()
	})
}
