// Package promfile accumulates per-phase counters and dumps them in
// Prometheus text format for the node-exporter textfile collector.
package promfile

import (
	"fmt"
	"os"

	"github.com/VictoriaMetrics/metrics"
)

var set = metrics.NewSet()

// Count adds n to the named janitor counter for a phase.
func Count(phase, name string, n int) {
	if n < 0 {
		return
	}
	c := set.GetOrCreateCounter(fmt.Sprintf(`janitor_%s_total{phase=%q}`, name, phase))
	c.Add(n)
}

// WriteFile dumps the accumulated counters atomically (write + rename)
// to the textfile collector path. An empty path is a no-op.
func WriteFile(path string) error {
	if path == "" {
		return nil
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	set.WritePrometheus(f)
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
