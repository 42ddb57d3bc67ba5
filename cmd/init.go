package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/narradar/narradar/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.RunWizard(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", cfgFile)
		fmt.Printf("Watching ecosystem: %s (provider: %s, model: %s)\n",
			cfg.Ecosystem, cfg.Provider, cfg.Model)
		fmt.Println("Next: add sources with `narradar sources add`, then run `narradar serve`.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
