package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute velocity scores and sweep stale narratives",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		rescored, err := a.engine().RescoreAll(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Rescored %d narratives\n", rescored)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rescoreCmd)
}
