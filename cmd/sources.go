package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/narradar/narradar/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage tracked content sources",
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add a source to track",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		sourceType, _ := cmd.Flags().GetString("type")
		category, _ := cmd.Flags().GetString("category")
		priority, _ := cmd.Flags().GetString("priority")

		src := &source.Source{
			Name:       args[0],
			URL:        args[1],
			SourceType: source.Type(sourceType),
			Category:   category,
			Priority:   source.Priority(priority),
		}
		if err := a.sources.Create(context.Background(), src); err != nil {
			return err
		}
		fmt.Printf("Added %s source %q (%s)\n", src.SourceType, src.Name, src.ID)
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		all, _ := cmd.Flags().GetBool("all")
		sources, err := a.sources.List(context.Background(), source.ListFilter{ActiveOnly: !all})
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("No sources configured.")
			return nil
		}

		for _, src := range sources {
			state := "active"
			if !src.IsActive {
				state = "inactive"
			}
			last := "never"
			if src.LastFetchedAt != nil {
				last = src.LastFetchedAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-36s  %-8s  %-8s  %-10s  last fetch: %s\n    %s  %s\n",
				src.ID, src.SourceType, state, src.Priority, last, src.Name, src.URL)
		}
		return nil
	},
}

func init() {
	sourcesAddCmd.Flags().String("type", "web", "source type (web, twitter, reddit, pdf, api)")
	sourcesAddCmd.Flags().String("category", "general", "source category label")
	sourcesAddCmd.Flags().String("priority", "medium", "fetch priority (high, medium, low)")
	sourcesListCmd.Flags().Bool("all", false, "include inactive sources")

	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesListCmd)
	rootCmd.AddCommand(sourcesCmd)
}
