package migrate

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// legacy pointer nodes superseded by modelPointers/*
var legacyPointerNodes = []string{"humanModel", "humanONNX"}

// NormalizeModelFile rewrites a model artifact reference to its hosted
// canonical form: assets/models/human/<name>.onnx. Absolute URLs pass
// through untouched.
func NormalizeModelFile(file string) string {
	f := strings.TrimSpace(file)
	if f == "" {
		return ""
	}
	lower := strings.ToLower(f)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return f
	}
	f = strings.TrimPrefix(f, "./")
	f = strings.TrimPrefix(f, "/")
	if strings.HasPrefix(f, "models/human/") {
		f = "assets/models/human/" + strings.TrimPrefix(f, "models/human/")
	}
	if !strings.HasPrefix(f, "assets/") {
		f = "assets/models/human/" + strings.TrimLeft(f, "/")
	}
	// suffixes are stripped only when the extension has to be appended
	base := f
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if strings.HasSuffix(strings.ToLower(base), ".onnx") {
		return f
	}
	return base + ".onnx"
}

// usablePointer reports whether a candidate node carries both a version
// and a file reference.
func usablePointer(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	ver, _ := m["version"].(string)
	file, _ := m["file"].(string)
	if strings.TrimSpace(ver) == "" || strings.TrimSpace(file) == "" {
		return nil, false
	}
	return m, true
}

func canonicalPointer(ptr map[string]any, nowMS int64) map[string]any {
	ver, _ := ptr["version"].(string)
	file, _ := ptr["file"].(string)
	updatedAt := nowMS
	switch t := ptr["updatedAt"].(type) {
	case float64:
		updatedAt = int64(t)
	case int64:
		updatedAt = t
	}
	return map[string]any{
		"version":   strings.TrimSpace(ver),
		"file":      NormalizeModelFile(file),
		"updatedAt": updatedAt,
	}
}

// MigrateModelPointers makes modelPointers/current|previous canonical
// and exclusive: the best available pointer wins (canonical first, then
// legacy nodes), files are normalized, legacy nodes are removed.
func (r *Runner) MigrateModelPointers(ctx context.Context) error {
	nowMS := time.Now().UnixMilli()

	pick := func(slot string) (map[string]any, bool) {
		if ptr, ok := usablePointer(r.get(ctx, "modelPointers/"+slot)); ok {
			return ptr, true
		}
		for _, node := range legacyPointerNodes {
			if ptr, ok := usablePointer(r.get(ctx, node+"/"+slot)); ok {
				return ptr, true
			}
		}
		return nil, false
	}

	cur, ok := pick("current")
	if !ok {
		r.log.Info("no usable current model pointer, skipping pointer migration")
		return nil
	}

	canonical := canonicalPointer(cur, nowMS)
	r.log.Info("writing canonical model pointer",
		zap.String("slot", "current"),
		zap.Any("version", canonical["version"]),
		zap.Any("file", canonical["file"]))
	if err := r.put(ctx, "modelPointers/current", canonical); err != nil {
		return err
	}

	if prev, ok := pick("previous"); ok {
		canonicalPrev := canonicalPointer(prev, nowMS)
		r.log.Info("writing canonical model pointer",
			zap.String("slot", "previous"),
			zap.Any("version", canonicalPrev["version"]))
		if err := r.put(ctx, "modelPointers/previous", canonicalPrev); err != nil {
			return err
		}
	}

	for _, node := range legacyPointerNodes {
		if r.get(ctx, node) == nil {
			continue
		}
		r.log.Info("deleting legacy model pointer node", zap.String("node", node))
		if err := r.delete(ctx, node); err != nil {
			r.log.Warn("legacy pointer delete failed", zap.String("node", node), zap.Error(err))
		}
	}
	return nil
}

func (r *Runner) get(ctx context.Context, path string) any {
	v, err := r.store.Get(ctx, path)
	if err != nil {
		r.log.Warn("read failed", zap.String("path", path), zap.Error(err))
		return nil
	}
	return v
}

func (r *Runner) put(ctx context.Context, path string, v any) error {
	if r.dryRun {
		r.log.Info("dry-run: withholding put", zap.String("path", path))
		return nil
	}
	return r.store.Put(ctx, path, v)
}

func (r *Runner) delete(ctx context.Context, path string) error {
	if r.dryRun {
		r.log.Info("dry-run: withholding delete", zap.String("path", path))
		return nil
	}
	return r.store.Delete(ctx, path)
}
