package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configFile string
	dbURL      string
)

var rootCmd = &cobra.Command{
	Use:   "rolerules",
	Short: "Role-based pricing rule service",
	Long:  `rolerules manages per-role pricing rule sets and serves the rules/v1 admin API.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (postgres://... or sqlite://path)")
}

func Execute() error {
	return rootCmd.Execute()
}
