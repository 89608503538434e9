package leaderboard

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/rtdb-janitor/internal/rtdb"
)

// RankOutcome is the result of one best-effort globalRank write.
type RankOutcome struct {
	UID  string
	Rank int
	Err  error
}

// RebuildSummary reports one leaderboard rebuild.
type RebuildSummary struct {
	Refreshed   int           `json:"refreshed"`
	RankWritten int           `json:"rankWritten"`
	RankFailed  int           `json:"rankFailed"`
	Outcomes    []RankOutcome `json:"-"`
}

// Rebuilder refreshes every entry's sortKey and then assigns global
// ranks from the refreshed ordering.
type Rebuilder struct {
	store  rtdb.Store
	log    *zap.Logger
	limit  int
	dryRun bool

	now func() time.Time
}

func NewRebuilder(store rtdb.Store, log *zap.Logger, limit int, dryRun bool) *Rebuilder {
	return &Rebuilder{store: store, log: log, limit: limit, dryRun: dryRun, now: time.Now}
}

// Rebuild refreshes sortKey (and the lastActivity fallback) for up to
// limit entries, then re-fetches ordered by sortKey and writes
// playerProfile/{uid}/stats/globalRank 1..N. A failed rank write must
// not abort ranking of the rest; failures are reported per item.
func (r *Rebuilder) Rebuild(ctx context.Context) (RebuildSummary, error) {
	nowMS := r.now().UnixMilli()
	var sum RebuildSummary

	batch, err := r.store.QueryChildren(ctx, "leaderboard", rtdb.Query{
		OrderBy: "sortKey", LimitToFirst: r.limit,
	})
	if err != nil || len(batch) == 0 {
		// entries predating the sortKey field are only reachable by points
		batch, err = r.store.QueryChildren(ctx, "leaderboard", rtdb.Query{
			OrderBy: "points", LimitToFirst: r.limit,
		})
		if err != nil {
			r.log.Warn("leaderboard fetch failed", zap.Error(err))
			return sum, nil
		}
	}
	if len(batch) == 0 {
		r.log.Info("no leaderboard entries found")
		return sum, nil
	}

	for uid, row := range batch {
		entry, ok := row.(map[string]any)
		if uid == "" || !ok {
			continue
		}
		points := intField(entry, "points")
		wins := intField(entry, "wins")
		losses := intField(entry, "losses")
		lastActivity := firstTS(entry, "lastActivity", "updatedAt", "lastActiveAt")
		if lastActivity <= 0 {
			lastActivity = nowMS
		}

		patch := map[string]any{
			"sortKey":      SortKey(uid, points, wins, losses, lastActivity),
			"lastActivity": lastActivity,
		}
		if r.dryRun {
			sum.Refreshed++
			continue
		}
		if err := r.store.Patch(ctx, "leaderboard/"+uid, patch); err != nil {
			return sum, err
		}
		sum.Refreshed++
	}

	if r.dryRun {
		r.log.Info("leaderboard rebuild",
			zap.String("mode", "DRY-RUN"),
			zap.Int("refreshed", sum.Refreshed))
		return sum, nil
	}

	// ascending lexicographic order is best-first due to inversion
	refreshed, err := r.store.QueryChildren(ctx, "leaderboard", rtdb.Query{
		OrderBy: "sortKey", LimitToFirst: r.limit,
	})
	if err != nil || len(refreshed) == 0 {
		return sum, err
	}

	ordered := make([]string, 0, len(refreshed))
	for uid := range refreshed {
		ordered = append(ordered, uid)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return sortKeyOf(refreshed[ordered[i]]) < sortKeyOf(refreshed[ordered[j]])
	})

	for i, uid := range ordered {
		rank := i + 1
		err := r.store.Patch(ctx, "playerProfile/"+uid+"/stats", map[string]any{"globalRank": rank})
		out := RankOutcome{UID: uid, Rank: rank, Err: err}
		sum.Outcomes = append(sum.Outcomes, out)
		if err != nil {
			sum.RankFailed++
			r.log.Warn("globalRank write failed", zap.String("uid", uid), zap.Error(err))
			continue
		}
		sum.RankWritten++
	}

	r.log.Info("leaderboard rebuild",
		zap.String("mode", "APPLIED"),
		zap.Int("refreshed", sum.Refreshed),
		zap.Int("rankWritten", sum.RankWritten),
		zap.Int("rankFailed", sum.RankFailed))
	return sum, nil
}

func sortKeyOf(row any) string {
	m, ok := row.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m["sortKey"].(string)
	return s
}

func intField(m map[string]any, key string) int64 {
	switch n := m[key].(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

func firstTS(m map[string]any, keys ...string) int64 {
	for _, k := range keys {
		if ts := intField(m, k); ts > 0 {
			return ts
		}
	}
	return 0
}
