package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Show the admin API token",
	Long: `Show the admin token of the running server.

Use this when you've scrolled past the startup message or need to
call the admin API.

Example:
  og token`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(tokenFilePath(cfg.DBPath))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no server running. Start with: og serve")
		}
		return fmt.Errorf("failed to read token file: %w", err)
	}

	token := string(data)
	if token == "" {
		return fmt.Errorf("token file is empty. Restart the server with: og serve")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Admin token: %s\n", token)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Example: curl -H 'Authorization: Bearer %s' http://localhost:%d/v1/experiments\n", token, cfg.Port)
	return nil
}
