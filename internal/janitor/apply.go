package janitor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/rtdb-janitor/internal/rtdb"
)

const (
	// DefaultChunkSize bounds one multi-path write request.
	DefaultChunkSize = 400
	// BulkChunkSize is the smaller bound used by bulk expiry passes.
	BulkChunkSize = 250
)

// Updates is a flat path -> value mutation set that remembers decision
// order: related paths added together (a room and its companion nodes)
// stay adjacent, so chunking cannot scatter them across requests. A
// value of rtdb.Remove deletes the subtree at that path.
type Updates struct {
	paths  []string
	values map[string]any
}

func (u *Updates) Set(path string, v any) {
	if u.values == nil {
		u.values = map[string]any{}
	}
	if _, ok := u.values[path]; !ok {
		u.paths = append(u.paths, path)
	}
	u.values[path] = v
}

func (u *Updates) Remove(paths ...string) {
	for _, p := range paths {
		u.Set(p, rtdb.Remove)
	}
}

func (u *Updates) Len() int {
	if u == nil {
		return 0
	}
	return len(u.paths)
}

// Value returns the pending mutation for path, or nil when absent.
func (u *Updates) Value(path string) any {
	if u == nil {
		return nil
	}
	return u.values[path]
}

// Applier submits an Updates set as size-bounded root patches. Chunks
// are not atomic with respect to each other; a failing chunk aborts
// further submission and surfaces the error.
type Applier struct {
	store     rtdb.Store
	log       *zap.Logger
	dryRun    bool
	chunkSize int
}

func NewApplier(store rtdb.Store, log *zap.Logger, dryRun bool, chunkSize int) *Applier {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Applier{store: store, log: log, dryRun: dryRun, chunkSize: chunkSize}
}

// Apply submits the update set and returns the number of paths written.
// Chunks are cut in decision order, so a cascaded group smaller than
// the chunk size spans at most one chunk boundary. In dry-run mode the
// full set is counted but nothing is submitted.
func (a *Applier) Apply(ctx context.Context, u Updates) (int, error) {
	if u.Len() == 0 {
		return 0, nil
	}
	if a.dryRun {
		a.log.Debug("dry-run: withholding updates", zap.Int("paths", u.Len()))
		return u.Len(), nil
	}

	applied := 0
	for start := 0; start < len(u.paths); start += a.chunkSize {
		end := start + a.chunkSize
		if end > len(u.paths) {
			end = len(u.paths)
		}
		chunk := make(map[string]any, end-start)
		for _, p := range u.paths[start:end] {
			chunk[p] = u.values[p]
		}
		if err := a.store.Patch(ctx, "", chunk); err != nil {
			return applied, fmt.Errorf("apply chunk [%d:%d]: %w", start, end, err)
		}
		applied += len(chunk)
	}
	return applied, nil
}
