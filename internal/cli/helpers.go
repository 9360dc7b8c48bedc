package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/offer-goat/offer-goat/internal/config"
	"github.com/offer-goat/offer-goat/internal/engine"
	"github.com/offer-goat/offer-goat/internal/logger"
	"github.com/offer-goat/offer-goat/internal/store"
)

// loadConfig reads the config file and environment, then applies flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

// withEngine opens the database, builds an engine, executes the function,
// and handles cleanup.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return runWithEngine(cmd, cfg, logger.Nop(), func(ctx context.Context, eng *engine.Engine, _ *store.SQLiteStore) error {
		return fn(ctx, eng)
	})
}

func runWithEngine(cmd *cobra.Command, cfg config.Config, log *logger.Logger, fn func(context.Context, *engine.Engine, *store.SQLiteStore) error) error {
	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	eng := engine.New(s,
		engine.WithLogger(log),
		engine.WithDefaults(cfg.Defaults()),
		engine.WithConcurrency(cfg.AutoWinner.Concurrency),
	)
	return fn(commandContext(cmd), eng, s)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// tokenFilePath returns the path of the admin token file, stored alongside
// the database.
func tokenFilePath(db string) string {
	return filepath.Join(filepath.Dir(db), ".og-token")
}

// parseSplit parses "60/40" or "50/30/20" into traffic percentages.
func parseSplit(s string) (control, variantA int, variantB *int, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, nil, fmt.Errorf("invalid split %q: want CONTROL/A or CONTROL/A/B", s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0, 0, nil, fmt.Errorf("invalid split %q: %w", s, err)
		}
		nums[i] = n
	}

	if len(nums) == 3 {
		b := nums[2]
		variantB = &b
	}
	return nums[0], nums[1], variantB, nil
}

func formatPercent(rate float64) string {
	if rate == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", rate*100)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
}
