package cmd

import (
	"context"
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/narradar/narradar/internal/content"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract signals from pending content items",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		provider, err := a.provider()
		if err != nil {
			return err
		}

		ctx := context.Background()
		limit, _ := cmd.Flags().GetInt("limit")

		pending, err := a.content.ListPending(ctx, limit)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No pending content to process.")
			return nil
		}

		bar := progressbar.NewOptions(len(pending),
			progressbar.OptionSetDescription("extracting"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)

		stats, err := a.extractor(provider).Run(ctx, limit, func() {
			_ = bar.Add(1)
		})
		_ = bar.Finish()
		if err != nil {
			return err
		}

		fmt.Printf("Processed %d items: %d completed, %d skipped, %d requeued, %d failed\n",
			stats.Processed, stats.Completed, stats.Skipped, stats.Requeued, stats.Failed)
		fmt.Printf("Extracted %d signals\n", stats.Signals)

		counts, err := a.content.CountByStatus(ctx)
		if err == nil && counts[content.StatusPending] > 0 {
			fmt.Printf("%d items remain pending (retries or limit); run extract again.\n",
				counts[content.StatusPending])
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().Int("limit", 0, "max items to process this run (0 = all)")
	rootCmd.AddCommand(extractCmd)
}
