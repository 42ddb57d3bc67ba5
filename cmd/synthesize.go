package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/narradar/narradar/internal/synthesizer"
)

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize",
	Short: "Synthesize narratives from the recent signal window",
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

		stats, err := a.synthesizer(provider).Synthesize(context.Background())
		if errors.Is(err, synthesizer.ErrEmptyBatch) {
			fmt.Printf("No signals in the last %d days; run extract first.\n", a.cfg.WindowDays)
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("Considered %d signals, %d candidate narratives\n", stats.Signals, stats.Candidates)
		fmt.Printf("Narratives: %d created, %d updated, %d rejected\n",
			stats.Created, stats.Updated, stats.Rejected)
		fmt.Printf("Ideas attached: %d\n", stats.Ideas)
		if stats.Retried {
			fmt.Println("(first model pass returned nothing; result came from the retry)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(synthesizeCmd)
}
