package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexharvest/lexharvest/internal/app"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print corpus statistics",
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := app.New(cmd.Context(), cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	total, err := a.Store.CountDocuments(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	byCategory, err := a.Store.CountsByCategory(ctx)
	if err != nil {
		return fmt.Errorf("category counts: %w", err)
	}
	sessions, err := a.Store.Sessions(ctx, 1)
	if err != nil {
		return fmt.Errorf("recent sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "documents: %d\n", total)
	for category, count := range byCategory {
		fmt.Fprintf(out, "  %s: %d\n", category, count)
	}
	if len(sessions) > 0 {
		s := sessions[0]
		fmt.Fprintf(out, "last session %s (%s): %d processed, %d inserted, %d updated, %d skipped, %d errors\n",
			s.SessionID, s.Status, s.Stats.Total, s.Stats.Inserted,
			s.Stats.Updated, s.Stats.Skipped, s.Stats.Errors)
	}
	return nil
}
