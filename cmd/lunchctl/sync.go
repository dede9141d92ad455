package main

import (
	"fmt"

	"github.com/ashureev/lunch-picker/internal/bot"
	"github.com/ashureev/lunch-picker/internal/line"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one catalog sync cycle now",
	Long: `Fetch nearby venues for every configured type, reconcile them into the
database and print the names discovered for the first time.

With --notify the result is also pushed to USER_ID_ADMIN over LINE.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("notify", false, "Push new venues to the admin LINE user")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, core, err := openCore()
	if err != nil {
		return err
	}
	defer closeCore(core)

	if cfg.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required for sync")
	}

	var notifier bot.Notifier
	if notify, _ := cmd.Flags().GetBool("notify"); notify {
		if cfg.LINE.AccessToken == "" || cfg.LINE.AdminUserID == "" {
			return fmt.Errorf("--notify needs LINE_CHANNEL_ACCESS_TOKEN and USER_ID_ADMIN")
		}
		client, err := line.NewClient(cfg.LINE.AccessToken)
		if err != nil {
			return err
		}
		notifier = client
	}

	ctx, cancel := commandContext()
	defer cancel()

	n, err := bot.New(nil, core.Catalog, notifier, cfg.LINE.AdminUserID).RunScheduledSync(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if n == nil {
		fmt.Fprintln(out, "No new venues.")
		return nil
	}
	fmt.Fprintln(out, n.Text)
	if n.Pushed {
		fmt.Fprintln(out, "(pushed to admin)")
	}
	return nil
}
