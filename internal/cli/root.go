package cli

import (
	"github.com/spf13/cobra"
)

var dryRun bool

var rootCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Retention engine for the shared game store",
	Long:  "janitor keeps the ephemeral multiplayer store consistent and bounded: stale presence, dead rooms, expired training data and idempotency markers are deleted in bounded batches.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "compute and report decisions without writing to the store")
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(versionCmd)
}
