// Package rtdb abstracts the tree-shaped game store: values are
// JSON-decoded subtrees addressed by slash-separated paths, and a
// multi-path patch at the root is the only bulk write primitive.
package rtdb

import (
	"context"
	"strings"
)

// removeMarker is the designated "delete this subtree" patch value.
type removeMarker struct{}

// Remove deletes the subtree at its path when used as a patch value.
var Remove = removeMarker{}

// IsRemove reports whether a patch value is the deletion marker.
func IsRemove(v any) bool {
	_, ok := v.(removeMarker)
	return ok
}

// Query restricts an ordered child fetch. OrderBy is required; the
// zero values of the remaining fields mean "unset".
type Query struct {
	OrderBy      string
	LimitToFirst int
	EqualTo      any
	EndAt        any
}

// Store is the access protocol the janitor consumes. Reads return nil
// for absent paths rather than an error.
type Store interface {
	Get(ctx context.Context, path string) (any, error)
	Put(ctx context.Context, path string, value any) error
	// Patch applies a flat multi-path update relative to path; a value
	// of Remove deletes that subtree.
	Patch(ctx context.Context, path string, updates map[string]any) error
	Delete(ctx context.Context, path string) error
	// QueryChildren returns children of path ordered by a child field.
	QueryChildren(ctx context.Context, path string, q Query) (map[string]any, error)
	// ShallowKeys probes child identifiers without fetching values.
	ShallowKeys(ctx context.Context, path string) ([]string, error)
	Close() error
}

func cleanPath(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

func splitPath(p string) []string {
	p = cleanPath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
