package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/narradar/narradar/internal/source"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch all active sources and ingest new content",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		only, _ := cmd.Flags().GetString("type")
		types := []source.Type{source.TypeWeb, source.TypeAPI}
		if only != "" {
			types = []source.Type{source.Type(only)}
		}

		f := a.fetcher()
		ctx := context.Background()
		for _, t := range types {
			stats, err := f.Run(ctx, t)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d sources, %d pages, %d ingested, %d duplicates, %d filtered, %d errors\n",
				t, stats.Sources, stats.Pages, stats.Ingested,
				stats.Duplicates, stats.Filtered, stats.Errors)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("type", "", "only fetch sources of this type")
	rootCmd.AddCommand(ingestCmd)
}
