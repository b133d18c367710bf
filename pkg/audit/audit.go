// pkg/audit/audit.go
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Event is one operation invocation, recorded after the response is written.
type Event struct {
	Operation  string
	Surface    string // "rpc" | "tool"
	OrgID      string
	ActorSub   string
	RequestID  string
	StatusCode int
	Duration   time.Duration
	StartedAt  time.Time
}

// Recorder persists usage events to Postgres. A nil Recorder (or one without
// a pool) records nothing, so callers never need to branch.
type Recorder struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

func NewRecorder(pool *pgxpool.Pool, log *zap.SugaredLogger) *Recorder {
	return &Recorder{pool: pool, log: log}
}

// EnsureSchema creates the usage table if missing. Idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS usage_events (
	id uuid PRIMARY KEY,
	operation text NOT NULL,
	surface text NOT NULL,
	org_id text,
	actor_sub text,
	request_id text,
	status_code int,
	duration_ms int,
	started_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS usage_events_org_idx ON usage_events(org_id, started_at);
`)
	return err
}

// Record inserts the event. Failures are logged, never surfaced: audit is
// best-effort and must not fail a request that already succeeded.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	if r == nil || r.pool == nil {
		return
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO usage_events(id, operation, surface, org_id, actor_sub, request_id, status_code, duration_ms, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, uuid.New(), ev.Operation, ev.Surface, ev.OrgID, ev.ActorSub, ev.RequestID, ev.StatusCode, int(ev.Duration.Milliseconds()), ev.StartedAt.UTC())
	if err != nil && r.log != nil {
		r.log.Warnw("usage event insert failed", "operation", ev.Operation, "err", err)
	}
}
