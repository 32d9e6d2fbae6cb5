package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gardener",
	Short: "Slack workspace gardener",
	Long: `Gardener keeps a Slack workspace tidy: it warns and archives idle
channels, nudges users with incomplete profiles, and exports channel
membership reports.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(hashesCmd)
	rootCmd.AddCommand(exportCmd)
}
