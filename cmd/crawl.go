package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lexharvest/lexharvest/internal/app"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Run one full crawl over the configured sources",
		RunE:  runCrawl,
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	a, err := app.New(cmd.Context(), cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Service.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run crawl: %w", err)
	}

	a.Logger.Info("crawl finished",
		zap.String("session_id", result.SessionID),
		zap.Int("total", result.Stats.Total),
		zap.Int("inserted", result.Stats.Inserted),
		zap.Int("updated", result.Stats.Updated),
		zap.Int("skipped", result.Stats.Skipped),
		zap.Int("errors", result.Stats.Errors),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d processed, %d inserted, %d updated, %d skipped, %d errors\n",
		result.SessionID, result.Stats.Total, result.Stats.Inserted,
		result.Stats.Updated, result.Stats.Skipped, result.Stats.Errors)
	return nil
}
