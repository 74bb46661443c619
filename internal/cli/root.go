// Package cli implements the twin3 command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "twin3",
	Short: "Per-user trait matrix engine",
	Long:  "Twin3 turns user life events into a persistent 256-dimension trait matrix: tag matching, oracle scoring and smoothed state updates, plus offline mining of new trait themes and taxonomy affinity mapping.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(matrixCmd)
	rootCmd.AddCommand(evolveCmd)
	rootCmd.AddCommand(affinityCmd)
}
