package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and seed choice history",
}

var historyAddCmd = &cobra.Command{
	Use:   "add <user> <venue>",
	Short: "Record a venue choice, optionally backdated",
	Long: `Record <venue> as <user>'s choice. --days-ago backdates the record, which
is useful for checking recency exclusion by hand.`,
	Args: cobra.ExactArgs(2),
	RunE: runHistoryAdd,
}

var historyRecentCmd = &cobra.Command{
	Use:   "recent <user>",
	Short: "List venues excluded for a user by recency",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryRecent,
}

func init() {
	historyAddCmd.Flags().Int("days-ago", 0, "Backdate the choice by N days")
	historyRecentCmd.Flags().Int("days", 0, "Window in days (default: HISTORY_WINDOW_DAYS)")

	historyCmd.AddCommand(historyAddCmd)
	historyCmd.AddCommand(historyRecentCmd)
}

func runHistoryAdd(cmd *cobra.Command, args []string) error {
	daysAgo, _ := cmd.Flags().GetInt("days-ago")
	if daysAgo < 0 {
		return fmt.Errorf("--days-ago must not be negative")
	}

	_, core, err := openCore()
	if err != nil {
		return err
	}
	defer closeCore(core)

	ctx, cancel := commandContext()
	defer cancel()

	at := time.Now().AddDate(0, 0, -daysAgo)
	outcome, err := core.Recorder.RecordChoice(ctx, args[0], args[1], at)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s at %s\n", outcome, args[0], args[1], at.Format(time.RFC3339))
	return nil
}

func runHistoryRecent(cmd *cobra.Command, args []string) error {
	cfg, core, err := openCore()
	if err != nil {
		return err
	}
	defer closeCore(core)

	days, _ := cmd.Flags().GetInt("days")
	if days <= 0 {
		days = cfg.History.WindowDays
	}

	ctx, cancel := commandContext()
	defer cancel()

	recent, err := core.Recorder.RecentVenueIDs(ctx, args[0], days)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(recent))
	for id := range recent {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d venue(s) chosen in the last %d day(s)\n", len(ids), days)
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}
