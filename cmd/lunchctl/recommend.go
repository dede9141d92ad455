package main

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/lunch-picker/internal/conversation"
	"github.com/ashureev/lunch-picker/internal/domain"
	"github.com/ashureev/lunch-picker/internal/recommend"
	"github.com/spf13/cobra"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Preview the ranked recommendation list",
	Long: `Run the recommendation engine with the given preferences. With --user the
user's recent choices are excluded, as in the chat flow.`,
	Args: cobra.NoArgs,
	RunE: runRecommend,
}

func init() {
	recommendCmd.Flags().String("keyword", "", "Substring of name or address")
	recommendCmd.Flags().String("category", "", "Category label: 飯, 麵, 咖啡 or 不限")
	recommendCmd.Flags().String("budget", "", "Budget tier: $, $$ or $$$")
	recommendCmd.Flags().String("user", "", "Exclude this user's recent choices")
	recommendCmd.Flags().Bool("json", false, "Print venues as JSON")
}

func runRecommend(cmd *cobra.Command, args []string) error {
	keyword, _ := cmd.Flags().GetString("keyword")
	categoryLabel, _ := cmd.Flags().GetString("category")
	budgetLabel, _ := cmd.Flags().GetString("budget")
	user, _ := cmd.Flags().GetString("user")
	asJSON, _ := cmd.Flags().GetBool("json")

	req := recommend.Request{Keyword: keyword}
	if categoryLabel != "" {
		c, ok := domain.LookupCategory(categoryLabel)
		if !ok {
			return fmt.Errorf("unknown category %q", categoryLabel)
		}
		req.Category = &c
	}
	if budgetLabel != "" {
		b, ok := domain.LookupBudget(budgetLabel)
		if !ok {
			return fmt.Errorf("unknown budget %q", budgetLabel)
		}
		req.Budget = &b
	}

	cfg, core, err := openCore()
	if err != nil {
		return err
	}
	defer closeCore(core)

	ctx, cancel := commandContext()
	defer cancel()

	if user != "" {
		req.Exclude, err = core.Recorder.RecentVenueIDs(ctx, user, cfg.History.WindowDays)
		if err != nil {
			return err
		}
	}

	venues, err := core.Recommender.Recommend(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(venues)
	}
	if len(venues) == 0 {
		fmt.Fprintln(out, conversation.TextNoMatch)
		return nil
	}
	fmt.Fprintln(out, conversation.FormatVenues(venues))
	return nil
}
