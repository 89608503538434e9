package leaderboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/kapu/rtdb-janitor/internal/rtdb"
)

func newTestRebuilder(t *testing.T, dryRun bool) (*Rebuilder, rtdb.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	store, err := rtdb.NewRedisStore(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	r := NewRebuilder(store, zap.NewNop(), 5000, dryRun)
	r.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return r, store
}

func TestRebuild_RefreshesKeysAndAssignsRanks(t *testing.T) {
	r, store := newTestRebuilder(t, false)
	ctx := context.Background()

	_ = store.Put(ctx, "leaderboard/alice", map[string]any{
		"points": float64(100), "wins": float64(10), "losses": float64(2), "lastActivity": float64(1000),
	})
	_ = store.Put(ctx, "leaderboard/bob", map[string]any{
		"points": float64(100), "wins": float64(12), "losses": float64(1), "lastActivity": float64(500),
	})
	_ = store.Put(ctx, "leaderboard/carol", map[string]any{
		"points": float64(300), "wins": float64(1), "losses": float64(0), "updatedAt": float64(777),
	})

	sum, err := r.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if sum.Refreshed != 3 || sum.RankWritten != 3 || sum.RankFailed != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	// carol leads on points, bob beats alice on wins
	wantRanks := map[string]float64{"carol": 1, "bob": 2, "alice": 3}
	for uid, want := range wantRanks {
		got, err := store.Get(ctx, "playerProfile/"+uid+"/stats/globalRank")
		if err != nil || got != want {
			t.Fatalf("globalRank[%s] = %#v err=%v, want %v", uid, got, err, want)
		}
	}

	// sortKey reflects the tuple and lastActivity fell back to updatedAt
	k, _ := store.Get(ctx, "leaderboard/carol/sortKey")
	if k != SortKey("carol", 300, 1, 0, 777) {
		t.Fatalf("carol sortKey = %#v", k)
	}
	la, _ := store.Get(ctx, "leaderboard/carol/lastActivity")
	if la != float64(777) {
		t.Fatalf("carol lastActivity = %#v", la)
	}
}

func TestRebuild_DryRunWithholdsWrites(t *testing.T) {
	r, store := newTestRebuilder(t, true)
	ctx := context.Background()

	_ = store.Put(ctx, "leaderboard/alice", map[string]any{"points": float64(5)})

	sum, err := r.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if sum.Refreshed != 1 || sum.RankWritten != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if v, _ := store.Get(ctx, "leaderboard/alice/sortKey"); v != nil {
		t.Fatalf("dry run wrote a sortKey: %#v", v)
	}
	if v, _ := store.Get(ctx, "playerProfile/alice/stats/globalRank"); v != nil {
		t.Fatalf("dry run wrote a rank: %#v", v)
	}
}

func TestRebuild_EmptyLeaderboardIsFine(t *testing.T) {
	r, _ := newTestRebuilder(t, false)
	sum, err := r.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if sum.Refreshed != 0 || sum.RankWritten != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}
