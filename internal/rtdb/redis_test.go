package rtdb

import (
	"context"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	url := fmt.Sprintf("redis://%s/0", mr.Addr())
	s, err := NewRedisStore(url)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStore_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "players/u1", map[string]any{"updatedAt": float64(1000)}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "players/u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	row, ok := got.(map[string]any)
	if !ok || row["updatedAt"] != float64(1000) {
		t.Fatalf("unexpected row: %#v", got)
	}

	coll, err := s.Get(ctx, "players")
	if err != nil {
		t.Fatalf("Get collection: %v", err)
	}
	m, ok := coll.(map[string]any)
	if !ok || len(m) != 1 {
		t.Fatalf("unexpected collection: %#v", coll)
	}

	if v, err := s.Get(ctx, "players/absent"); err != nil || v != nil {
		t.Fatalf("absent child should be nil, got %#v err=%v", v, err)
	}
}

func TestRedisStore_DeepPathsAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	game := map[string]any{
		"status":   "active",
		"presence": map[string]any{"u1": map[string]any{"updatedAt": float64(5)}},
	}
	if err := s.Put(ctx, "games/g1", game); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "games/g1/presence/u1/updatedAt")
	if err != nil || got != float64(5) {
		t.Fatalf("deep get = %#v err=%v", got, err)
	}

	if err := s.Delete(ctx, "games/g1/presence/u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err = s.Get(ctx, "games/g1/presence/u1")
	if err != nil || got != nil {
		t.Fatalf("deleted presence still present: %#v", got)
	}
	// the room itself survives
	if v, _ := s.Get(ctx, "games/g1/status"); v != "active" {
		t.Fatalf("room status lost: %#v", v)
	}
}

func TestRedisStore_PatchWithRemoveMarker(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "games/g1", map[string]any{"status": "ended"})
	_ = s.Put(ctx, "chats/g1", map[string]any{"m1": "hi"})

	updates := map[string]any{
		"games/g1":             Remove,
		"chats/g1":             Remove,
		"players/u9/updatedAt": float64(777),
	}
	if err := s.Patch(ctx, "", updates); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	if v, _ := s.Get(ctx, "games/g1"); v != nil {
		t.Fatalf("games/g1 not removed: %#v", v)
	}
	if v, _ := s.Get(ctx, "chats/g1"); v != nil {
		t.Fatalf("chats/g1 not removed: %#v", v)
	}
	if v, _ := s.Get(ctx, "players/u9/updatedAt"); v != float64(777) {
		t.Fatalf("nested patch write missing: %#v", v)
	}

	// deleting an absent path is a no-op
	if err := s.Patch(ctx, "", map[string]any{"games/g1": Remove}); err != nil {
		t.Fatalf("re-apply remove: %v", err)
	}
}

func TestRedisStore_QueryOrderingAndBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "trainingRecords/a", map[string]any{"purgeAt": float64(300), "processed": true})
	_ = s.Put(ctx, "trainingRecords/b", map[string]any{"purgeAt": float64(100)})
	_ = s.Put(ctx, "trainingRecords/c", map[string]any{"purgeAt": float64(200)})
	_ = s.Put(ctx, "trainingRecords/d", map[string]any{"samples": []any{}})

	out, err := s.QueryChildren(ctx, "trainingRecords", Query{OrderBy: "purgeAt", EndAt: int64(250), LimitToFirst: 10})
	if err != nil {
		t.Fatalf("QueryChildren: %v", err)
	}
	// d has no purgeAt (nil sorts first, endAt keeps it), a exceeds endAt
	if len(out) != 3 {
		t.Fatalf("expected 3 children, got %d: %#v", len(out), out)
	}
	if _, ok := out["a"]; ok {
		t.Fatalf("child past endAt not filtered")
	}

	eq, err := s.QueryChildren(ctx, "trainingRecords", Query{OrderBy: "processed", EqualTo: true, LimitToFirst: 10})
	if err != nil {
		t.Fatalf("QueryChildren equalTo: %v", err)
	}
	if len(eq) != 1 {
		t.Fatalf("equalTo=true should match only a: %#v", eq)
	}

	limited, err := s.QueryChildren(ctx, "trainingRecords", Query{OrderBy: "purgeAt", LimitToFirst: 2})
	if err != nil || len(limited) != 2 {
		t.Fatalf("limit not applied: %#v err=%v", limited, err)
	}
}

func TestRedisStore_ShallowKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "idempotencyMarkers/u1", map[string]any{"m1": map[string]any{"endedAt": float64(1)}})
	_ = s.Put(ctx, "idempotencyMarkers/u2", map[string]any{"m2": map[string]any{"endedAt": float64(2)}})

	keys, err := s.ShallowKeys(ctx, "idempotencyMarkers")
	if err != nil {
		t.Fatalf("ShallowKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 owners, got %v", keys)
	}

	nested, err := s.ShallowKeys(ctx, "idempotencyMarkers/u1")
	if err != nil || len(nested) != 1 || nested[0] != "m1" {
		t.Fatalf("nested shallow keys = %v err=%v", nested, err)
	}
}
