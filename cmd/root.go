package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "narradar",
	Short: "Narrative radar for a blockchain ecosystem",
	Long: `Narradar watches a blockchain ecosystem's information flow: it fetches
content from configured sources, extracts structured signals with a
language model, synthesizes cross-source narratives with startup ideas,
and ranks them by a decaying velocity score.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".narradar.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
