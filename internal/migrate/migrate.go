// Package migrate holds the one-time store migration: canonical model
// pointers, wholesale legacy-node removal, conservative field repair
// and a leaderboard rebuild.
package migrate

import (
	"context"

	"go.uber.org/zap"

	"github.com/kapu/rtdb-janitor/internal/config"
	"github.com/kapu/rtdb-janitor/internal/janitor"
	"github.com/kapu/rtdb-janitor/internal/leaderboard"
	"github.com/kapu/rtdb-janitor/internal/rtdb"
)

// nodes that must not survive the migration at all
var legacyNodes = []string{"playerMatches", "matchResults", "matchLogs", "roomArchives"}

type Runner struct {
	store  rtdb.Store
	cfg    *config.AppConfig
	log    *zap.Logger
	dryRun bool
}

func NewRunner(store rtdb.Store, cfg *config.AppConfig, log *zap.Logger, dryRun bool) *Runner {
	return &Runner{store: store, cfg: cfg, log: log, dryRun: dryRun}
}

// Run executes every migration step. Steps are idempotent, so a failed
// migration can simply be re-run.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("store migration starting", zap.Bool("dryRun", r.dryRun))

	if err := r.MigrateModelPointers(ctx); err != nil {
		return err
	}
	if err := r.CleanupLegacyNodes(ctx); err != nil {
		return err
	}

	j := janitor.New(r.store, r.cfg, r.log, r.dryRun)
	if _, err := j.RepairMarkers(ctx); err != nil {
		return err
	}
	if _, err := j.PurgeProcessedTraining(ctx); err != nil {
		return err
	}
	if _, err := j.RepairTrainingRecords(ctx); err != nil {
		return err
	}

	rb := leaderboard.NewRebuilder(r.store, r.log, r.cfg.LeaderboardLimit, r.dryRun)
	if _, err := rb.Rebuild(ctx); err != nil {
		return err
	}

	r.log.Info("store migration complete")
	return nil
}

// CleanupLegacyNodes removes whole legacy subtrees that should no
// longer exist anywhere.
func (r *Runner) CleanupLegacyNodes(ctx context.Context) error {
	for _, node := range legacyNodes {
		if r.get(ctx, node) == nil {
			continue
		}
		r.log.Info("deleting legacy node", zap.String("node", node))
		if err := r.delete(ctx, node); err != nil {
			r.log.Warn("legacy node delete failed", zap.String("node", node), zap.Error(err))
		}
	}
	return nil
}
