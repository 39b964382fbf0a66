// Command meeting joins a live meeting session from the terminal and optionally serves it to a local front-end.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"github.com/C23038/URITOMO-Frontend/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meeting",
		Short:         "Live meeting chat with translations",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: no .env file loaded (%v), using the process environment\n", err)
			}

			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg = loaded
			logger = logs.GetLoggerFromString(cfg.LogLevel)
			slog.SetDefault(logger)
			return nil
		},
	}

	rootCmd.AddCommand(joinCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(roomCmd())
	return rootCmd
}
