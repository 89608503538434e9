package cli

import (
	"github.com/spf13/cobra"

	"github.com/kapu/rtdb-janitor/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run the one-time store migration (pointers, legacy nodes, repairs)",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		return migrate.NewRunner(rt.store, rt.cfg, rt.log, dryRun).Run(cmd.Context())
	},
}
