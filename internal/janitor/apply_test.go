package janitor

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/rtdb-janitor/internal/rtdb"
)

// fakeStore records patch calls so chunking behavior is observable.
type fakeStore struct {
	patches []map[string]any
	failAt  int // 1-based patch call index that fails, 0 = never
}

func (f *fakeStore) Get(ctx context.Context, path string) (any, error) { return nil, nil }
func (f *fakeStore) Put(ctx context.Context, path string, value any) error {
	return nil
}
func (f *fakeStore) Patch(ctx context.Context, path string, updates map[string]any) error {
	f.patches = append(f.patches, updates)
	if f.failAt > 0 && len(f.patches) == f.failAt {
		return fmt.Errorf("simulated write failure")
	}
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, path string) error { return nil }
func (f *fakeStore) QueryChildren(ctx context.Context, path string, q rtdb.Query) (map[string]any, error) {
	return nil, nil
}
func (f *fakeStore) ShallowKeys(ctx context.Context, path string) ([]string, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

func TestApplier_ChunksBounded(t *testing.T) {
	f := &fakeStore{}
	a := NewApplier(f, zap.NewNop(), false, 100)

	updates := Updates{}
	for i := 0; i < 250; i++ {
		updates.Remove(fmt.Sprintf("players/u%03d", i))
	}

	applied, err := a.Apply(context.Background(), updates)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied != 250 {
		t.Fatalf("applied = %d", applied)
	}
	if len(f.patches) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(f.patches))
	}
	seen := map[string]int{}
	for i, chunk := range f.patches {
		if len(chunk) > 100 {
			t.Fatalf("chunk %d exceeds bound: %d", i, len(chunk))
		}
		for p := range chunk {
			seen[p]++
		}
	}
	// no path appears in two different chunks
	for p, n := range seen {
		if n != 1 {
			t.Fatalf("path %s appeared in %d chunks", p, n)
		}
	}
}

func TestApplier_WriteFailureAbortsFurtherChunks(t *testing.T) {
	f := &fakeStore{failAt: 2}
	a := NewApplier(f, zap.NewNop(), false, 10)

	updates := Updates{}
	for i := 0; i < 30; i++ {
		updates.Remove(fmt.Sprintf("players/u%03d", i))
	}

	applied, err := a.Apply(context.Background(), updates)
	if err == nil {
		t.Fatalf("expected write failure to surface")
	}
	if applied != 10 {
		t.Fatalf("applied should reflect only completed chunks, got %d", applied)
	}
	if len(f.patches) != 2 {
		t.Fatalf("chunk submission must stop after the failure, got %d calls", len(f.patches))
	}
}

func TestApplier_DryRunSubmitsNothing(t *testing.T) {
	f := &fakeStore{}
	a := NewApplier(f, zap.NewNop(), true, 10)

	updates := Updates{}
	updates.Remove("games/g1")
	applied, err := a.Apply(context.Background(), updates)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if applied != 1 {
		t.Fatalf("dry run must still count decisions: %d", applied)
	}
	if len(f.patches) != 0 {
		t.Fatalf("dry run submitted %d patches", len(f.patches))
	}
}

func TestApplier_ChunksFollowDecisionOrder(t *testing.T) {
	f := &fakeStore{}
	a := NewApplier(f, zap.NewNop(), false, 5)

	updates := Updates{}
	updates.Remove(companionPaths("g1")...)
	updates.Remove(companionPaths("g2")...)

	if _, err := a.Apply(context.Background(), updates); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(f.patches) != 2 {
		t.Fatalf("expected one chunk per room, got %d", len(f.patches))
	}
	// each room's cascade must land whole in a single chunk
	for i, gid := range []string{"g1", "g2"} {
		for _, p := range companionPaths(gid) {
			if !rtdb.IsRemove(f.patches[i][p]) {
				t.Fatalf("chunk %d missing cascade path %s", i, p)
			}
		}
	}
}

func TestApplier_ChunkFailureCannotOrphanEarlierCascades(t *testing.T) {
	f := &fakeStore{failAt: 2}
	a := NewApplier(f, zap.NewNop(), false, 5)

	updates := Updates{}
	updates.Remove(companionPaths("g1")...)
	updates.Remove(companionPaths("g2")...)

	if _, err := a.Apply(context.Background(), updates); err == nil {
		t.Fatalf("expected second chunk to fail")
	}

	// the submitted chunk is exactly one room's full cascade, so the
	// failure leaves no room deleted with companions behind
	submitted := f.patches[0]
	if len(submitted) != len(companionPaths("g1")) {
		t.Fatalf("first chunk has %d paths", len(submitted))
	}
	for _, p := range companionPaths("g1") {
		if !rtdb.IsRemove(submitted[p]) {
			t.Fatalf("first chunk missing %s", p)
		}
	}
	for _, p := range companionPaths("g2") {
		if _, ok := submitted[p]; ok {
			t.Fatalf("first chunk leaked %s from the unapplied room", p)
		}
	}
}

func TestApplier_EmptyUpdates(t *testing.T) {
	f := &fakeStore{}
	a := NewApplier(f, zap.NewNop(), false, 10)
	applied, err := a.Apply(context.Background(), Updates{})
	if err != nil || applied != 0 {
		t.Fatalf("empty updates: applied=%d err=%v", applied, err)
	}
	if len(f.patches) != 0 {
		t.Fatalf("no patch expected for empty set")
	}
}
