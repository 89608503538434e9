// Package runlog persists per-run phase summaries so operators can
// diff intended vs. applied effect across runs.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type Recorder struct {
	db *sql.DB
}

func Open(databaseURL string) (*Recorder, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Recorder{db: db}, nil
}

func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record upserts one run row keyed by run id. Re-recording the same
// run id overwrites, never duplicates.
func (r *Recorder) Record(ctx context.Context, runID, mode string, startedAt, finishedAt time.Time, phases map[string]any) error {
	if r == nil || r.db == nil {
		return nil
	}
	raw, err := json.Marshal(phases)
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}

	q := `INSERT INTO janitor_runs (
	    run_id, mode, started_at, finished_at, phases
	  ) VALUES (
	    $1,$2,$3,$4,$5
	  ) ON CONFLICT (run_id) DO UPDATE SET
	    mode=EXCLUDED.mode,
	    started_at=EXCLUDED.started_at,
	    finished_at=EXCLUDED.finished_at,
	    phases=EXCLUDED.phases`

	_, err = r.db.ExecContext(ctx, q, runID, mode, startedAt, finishedAt, string(raw))
	return err
}
