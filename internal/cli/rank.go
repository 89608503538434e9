package cli

import (
	"github.com/spf13/cobra"

	"github.com/kapu/rtdb-janitor/internal/leaderboard"
)

var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Refresh leaderboard sort keys and rebuild global ranks",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		rb := leaderboard.NewRebuilder(rt.store, rt.log, rt.cfg.LeaderboardLimit, dryRun)
		_, err = rb.Rebuild(cmd.Context())
		return err
	},
}
