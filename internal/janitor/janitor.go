// Package janitor holds the retention engine: it snapshots the shared
// game store, classifies what is safe to delete or repair, and applies
// the decisions in bounded batches.
package janitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/rtdb-janitor/internal/config"
	"github.com/kapu/rtdb-janitor/internal/rtdb"
)

// Janitor runs retention phases against one store. It keeps no state
// between runs; every run works from a fresh snapshot.
type Janitor struct {
	store   rtdb.Store
	cfg     *config.AppConfig
	log     *zap.Logger
	dryRun  bool
	protect map[string]bool

	now func() time.Time
}

func New(store rtdb.Store, cfg *config.AppConfig, log *zap.Logger, dryRun bool) *Janitor {
	return &Janitor{
		store:   store,
		cfg:     cfg,
		log:     log,
		dryRun:  dryRun,
		protect: cfg.ProtectSet(),
		now:     time.Now,
	}
}

// Report aggregates one maintenance run for the run log.
type Report struct {
	RunID      string         `json:"runId"`
	Mode       string         `json:"mode"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Phases     map[string]any `json:"phases"`
}

// RunMaintenance executes every scheduled retention phase in order.
// Protection-set computation inside the player phase strictly precedes
// its staleness decisions; phases themselves are independent.
func (j *Janitor) RunMaintenance(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Mode:      j.mode(),
		StartedAt: j.now(),
		Phases:    map[string]any{},
	}

	players, err := j.CleanupStalePlayers(ctx)
	report.Phases["stalePlayers"] = players
	if err != nil {
		return j.finish(report), err
	}

	presence, err := j.CleanupStalePresence(ctx)
	report.Phases["stalePresence"] = presence
	if err != nil {
		return j.finish(report), err
	}

	rooms, err := j.CleanupStaleRooms(ctx)
	report.Phases["staleRooms"] = rooms
	if err != nil {
		return j.finish(report), err
	}

	training, err := j.CleanupExpiredTraining(ctx)
	report.Phases["trainingRetention"] = training
	if err != nil {
		return j.finish(report), err
	}

	legacy, err := j.CleanupLegacyMatchData(ctx)
	report.Phases["legacyMatchData"] = legacy
	if err != nil {
		return j.finish(report), err
	}

	markers, err := j.CleanupExpiredMarkers(ctx)
	report.Phases["statsMarkers"] = markers
	if err != nil {
		return j.finish(report), err
	}

	return j.finish(report), nil
}

func (j *Janitor) finish(r *Report) *Report {
	r.FinishedAt = j.now()
	return r
}

func (j *Janitor) mode() string {
	if j.dryRun {
		return "DRY-RUN"
	}
	return "APPLIED"
}

func (j *Janitor) nowMillis() int64 { return j.now().UnixMilli() }

func (j *Janitor) applier(chunkSize int) *Applier {
	return NewApplier(j.store, j.log, j.dryRun, chunkSize)
}

// safeGetMap fetches a whole subtree, substituting an empty collection
// on any read problem or shape mismatch (fail-open bulk scans).
func (j *Janitor) safeGetMap(ctx context.Context, path string) map[string]any {
	raw, err := j.store.Get(ctx, path)
	if err != nil {
		j.log.Warn("snapshot read failed, treating as empty",
			zap.String("path", path), zap.Error(err))
		return map[string]any{}
	}
	m, ok := asMap(raw)
	if !ok {
		return map[string]any{}
	}
	return m
}
