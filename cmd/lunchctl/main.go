// Command lunchctl operates the lunch picker catalog and history from a shell.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ashureev/lunch-picker/internal/app"
	"github.com/ashureev/lunch-picker/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	dbPath  string
	timeout time.Duration
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "lunchctl",
	Short: "Operate the lunch picker catalog and choice history",
	Long: `lunchctl runs catalog syncs, previews recommendations and seeds
choice history against the same database the server uses.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default: DB_PATH)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment, applying the --db override.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

// openCore loads configuration and opens the database.
func openCore() (*config.Config, *app.Core, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	core, err := app.NewCore(cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	return cfg, core, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func closeCore(core *app.Core) {
	if err := core.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: close database: %v\n", err)
	}
}
