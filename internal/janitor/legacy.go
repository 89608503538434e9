package janitor

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// LegacySummary reports the legacy match-data cleanup phase.
type LegacySummary struct {
	Users   int `json:"users"`
	Results int `json:"results"`
	Logs    int `json:"logs"`
}

// CleanupLegacyMatchData gradually removes per-match history nodes
// that predate the retention policy, in bounded buckets per run.
func (j *Janitor) CleanupLegacyMatchData(ctx context.Context) (LegacySummary, error) {
	var sum LegacySummary
	updates := Updates{}

	users, err := j.store.ShallowKeys(ctx, "playerMatches")
	if err != nil {
		j.log.Warn("legacy playerMatches probe failed", zap.Error(err))
		users = nil
	}
	sort.Strings(users)
	if len(users) > j.cfg.LegacyUsersLimit {
		users = users[:j.cfg.LegacyUsersLimit]
	}
	for _, uid := range users {
		if uid != "" {
			updates.Remove("playerMatches/" + uid)
			sum.Users++
		}
	}

	sum.Results = j.collectLegacyBucket(ctx, "matchResults", &updates)
	sum.Logs = j.collectLegacyBucket(ctx, "matchLogs", &updates)

	if _, err := j.applier(BulkChunkSize).Apply(ctx, updates); err != nil {
		return sum, err
	}
	j.log.Info("legacy match data cleanup",
		zap.String("mode", j.mode()),
		zap.Int("playerUsersDeleted", sum.Users),
		zap.Int("matchResultsDeleted", sum.Results),
		zap.Int("matchLogsDeleted", sum.Logs),
		zap.Int("userLimit", j.cfg.LegacyUsersLimit),
		zap.Int("matchLimit", j.cfg.LegacyMatchLimit))
	return sum, nil
}

func (j *Janitor) collectLegacyBucket(ctx context.Context, collection string, updates *Updates) int {
	ids := j.safeGetMap(ctx, collection)
	keys := make([]string, 0, len(ids))
	for k := range ids {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) > j.cfg.LegacyMatchLimit {
		keys = keys[:j.cfg.LegacyMatchLimit]
	}
	for _, id := range keys {
		updates.Remove(collection + "/" + id)
	}
	return len(keys)
}
