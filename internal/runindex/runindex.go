// Package runindex implements the derived run index backing the paginated
// `GET /api/runs` HTTP endpoint (spec §6.2): a sqlite-backed projection of
// run/flow/step metadata, filled through UpsertRun and UpsertStep, and never
// a source of truth itself. No code in this module rebuilds it from the
// on-disk run store. Grounded on the teacher pack's
// `modernc.org/sqlite` + database/sql usage (Heikkila-Pty-Ltd-cortex's
// backup/restore tooling opens the same driver the same way).
package runindex

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stepflow-dev/harness/internal/harnesserr"
	"github.com/stepflow-dev/harness/internal/schema"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	status     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS steps (
	run_id      TEXT NOT NULL,
	flow_key    TEXT NOT NULL,
	step_id     TEXT NOT NULL,
	agent_key   TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	PRIMARY KEY (run_id, flow_key, step_id, agent_key)
);
CREATE INDEX IF NOT EXISTS idx_steps_run ON steps(run_id);
`

// Index is a handle onto the sqlite-backed derived index.
type Index struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and ensures
// its schema exists.
func Open(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, harnesserr.Wrap(harnesserr.KindConfig, "runindex", "open sqlite database", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, harnesserr.Wrap(harnesserr.KindConfig, "runindex", "apply schema", err)
	}
	return &Index{db: db}, nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error { return idx.db.Close() }

// UpsertRun records or refreshes a run's top-level status.
func (idx *Index) UpsertRun(ctx context.Context, runID string, startedAt time.Time, status string) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO runs(run_id, started_at, updated_at, status) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET updated_at = excluded.updated_at, status = excluded.status
	`, runID, startedAt.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano), status)
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindConfig, "runindex", "upsert run", err)
	}
	return nil
}

// UpsertStep records or refreshes one step's receipt summary for a run,
// projected from a schema.Receipt after it is written (spec §6.2 timeline
// endpoints read from this projection rather than re-scanning every
// receipt file on every request).
func (idx *Index) UpsertStep(ctx context.Context, r schema.Receipt) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO steps(run_id, flow_key, step_id, agent_key, status, started_at, ended_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, flow_key, step_id, agent_key) DO UPDATE SET
			status = excluded.status, started_at = excluded.started_at,
			ended_at = excluded.ended_at, duration_ms = excluded.duration_ms
	`, r.RunID, r.FlowKey, r.StepID, r.AgentKey, string(r.Status),
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.EndedAt.UTC().Format(time.RFC3339Nano), r.DurationMs)
	if err != nil {
		return harnesserr.Wrap(harnesserr.KindConfig, "runindex", "upsert step", err)
	}
	return nil
}

// RunSummary is one row of the paginated runs listing.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	UpdatedAt time.Time
	Status    string
}

// ListRuns returns up to limit runs ordered by most recently updated,
// skipping offset rows, plus whether more rows exist beyond the page.
func (idx *Index) ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, bool, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT run_id, started_at, updated_at, status FROM runs
		ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`, limit+1, offset)
	if err != nil {
		return nil, false, harnesserr.Wrap(harnesserr.KindConfig, "runindex", "list runs", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			runID, startedRaw, updatedRaw, status string
		)
		if err := rows.Scan(&runID, &startedRaw, &updatedRaw, &status); err != nil {
			return nil, false, harnesserr.Wrap(harnesserr.KindConfig, "runindex", "scan run row", err)
		}
		started, _ := time.Parse(time.RFC3339Nano, startedRaw)
		updated, _ := time.Parse(time.RFC3339Nano, updatedRaw)
		out = append(out, RunSummary{RunID: runID, StartedAt: started, UpdatedAt: updated, Status: status})
	}
	if err := rows.Err(); err != nil {
		return nil, false, harnesserr.Wrap(harnesserr.KindConfig, "runindex", "iterate run rows", err)
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

// StepTiming is one step's timing row for the flow-timing endpoint.
type StepTiming struct {
	StepID     string
	AgentKey   string
	Status     string
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMs int64
}

// FlowTiming returns every step recorded for (runID, flowKey), in
// declared-attempt order (started_at ascending).
func (idx *Index) FlowTiming(ctx context.Context, runID, flowKey string) ([]StepTiming, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT step_id, agent_key, status, started_at, ended_at, duration_ms FROM steps
		WHERE run_id = ? AND flow_key = ? ORDER BY started_at ASC
	`, runID, flowKey)
	if err != nil {
		return nil, harnesserr.Wrap(harnesserr.KindConfig, "runindex", "query flow timing", err)
	}
	defer rows.Close()

	var out []StepTiming
	for rows.Next() {
		var t StepTiming
		var startedRaw, endedRaw string
		if err := rows.Scan(&t.StepID, &t.AgentKey, &t.Status, &startedRaw, &endedRaw, &t.DurationMs); err != nil {
			return nil, harnesserr.Wrap(harnesserr.KindConfig, "runindex", "scan step timing row", err)
		}
		t.StartedAt, _ = time.Parse(time.RFC3339Nano, startedRaw)
		t.EndedAt, _ = time.Parse(time.RFC3339Nano, endedRaw)
		out = append(out, t)
	}
	return out, rows.Err()
}
