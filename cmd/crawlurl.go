package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexharvest/lexharvest/internal/app"
)

func newCrawlURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl-url <url>",
		Short: "Crawl a single page and process it as a one-item batch",
		Args:  cobra.ExactArgs(1),
		RunE:  runCrawlURL,
	}
}

func runCrawlURL(cmd *cobra.Command, args []string) error {
	a, err := app.New(cmd.Context(), cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Service.RunURL(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("crawl %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d inserted, %d updated, %d skipped, %d errors\n",
		result.SessionID, result.Stats.Inserted, result.Stats.Updated,
		result.Stats.Skipped, result.Stats.Errors)
	return nil
}
