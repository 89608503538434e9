package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kapu/rtdb-janitor/internal/janitor"
	"github.com/kapu/rtdb-janitor/internal/promfile"
	"github.com/kapu/rtdb-janitor/internal/runlog"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run the scheduled retention phases once",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx := cmd.Context()
		j := janitor.New(rt.store, rt.cfg, rt.log, dryRun)
		report, runErr := j.RunMaintenance(ctx)

		recordRun(ctx, rt, report)
		exportMetrics(rt, report)

		return runErr
	},
}

// recordRun persists the run summary when the Postgres run log is
// configured; failures there never fail the run itself.
func recordRun(ctx context.Context, rt *runtime, report *janitor.Report) {
	if rt.cfg.RunLogURL == "" || report == nil {
		return
	}
	rec, err := runlog.Open(rt.cfg.RunLogURL)
	if err != nil {
		rt.log.Warn("run log unavailable", zap.Error(err))
		return
	}
	defer rec.Close()
	if err := rec.Record(ctx, report.RunID, report.Mode, report.StartedAt, report.FinishedAt, report.Phases); err != nil {
		rt.log.Warn("run log write failed", zap.Error(err))
	}
}

func exportMetrics(rt *runtime, report *janitor.Report) {
	if rt.cfg.MetricsFile == "" || report == nil {
		return
	}
	for phase, summary := range report.Phases {
		for name, n := range phaseCounts(summary) {
			promfile.Count(phase, name, n)
		}
	}
	if err := promfile.WriteFile(rt.cfg.MetricsFile); err != nil {
		rt.log.Warn("metrics file write failed", zap.Error(err))
	}
}

// phaseCounts flattens a summary struct into its integer fields via
// its JSON form.
func phaseCounts(summary any) map[string]int {
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil
	}
	var counts map[string]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil
	}
	return counts
}
