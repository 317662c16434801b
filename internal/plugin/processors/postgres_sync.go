package processors

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS event_state (
	kind             TEXT PRIMARY KEY,
	count            BIGINT NOT NULL DEFAULT 0,
	last_payload     TEXT NOT NULL DEFAULT '',
	last_occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
	updated_at       TIMESTAMP WITH TIME ZONE DEFAULT NOW()
)`

const postgresUpsert = `
INSERT INTO event_state (kind, count, last_payload, last_occurred_at, updated_at)
VALUES ($1, 1, $2, $3, NOW())
ON CONFLICT (kind) DO UPDATE SET
	count = event_state.count + 1,
	last_payload = EXCLUDED.last_payload,
	last_occurred_at = EXCLUDED.last_occurred_at,
	updated_at = NOW()`

// PostgresSync keeps the same per-kind state as SQLiteSync in a shared
// Postgres database
type PostgresSync struct {
	plugin.BasePlugin
	pool *pgxpool.Pool
}

// NewPostgresSync creates a new Postgres sync plugin
func NewPostgresSync(id string) *PostgresSync {
	return &PostgresSync{
		BasePlugin: plugin.NewBasePlugin(id, "Postgres Sync", model.SyncPluginType),
	}
}

// Validate requires a database URL that pgx can parse
func (p *PostgresSync) Validate() bool {
	_, err := pgxpool.ParseConfig(p.ConfigString("url", ""))
	return p.ConfigString("url", "") != "" && err == nil
}

// Start connects and creates the state table
func (p *PostgresSync) Start() bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.ConfigMillis("connect_timeout_ms", 10*time.Second))
	defer cancel()

	pool, err := pgxpool.New(ctx, p.ConfigString("url", ""))
	if err != nil {
		p.Logger.Error("connecting to postgres", "error", err)
		p.SetStatus(model.StatusError)
		return false
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		p.Logger.Error("pinging postgres", "error", err)
		p.SetStatus(model.StatusError)
		return false
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		p.Logger.Error("creating event_state table", "error", err)
		p.SetStatus(model.StatusError)
		return false
	}

	p.pool = pool
	p.SetStatus(model.StatusRunning)
	return true
}

// Stop closes the pool
func (p *PostgresSync) Stop() bool {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	p.SetStatus(model.StatusStopped)
	return true
}

// Sync upserts the row for the event's kind
func (p *PostgresSync) Sync(ctx context.Context, event model.Event) error {
	if p.pool == nil {
		return fmt.Errorf("postgres pool is not open")
	}
	if _, err := p.pool.Exec(ctx, postgresUpsert, event.Kind, event.Payload, event.OccurredAt); err != nil {
		return fmt.Errorf("upsert %s: %w", event.Kind, err)
	}
	return nil
}

// State returns the stored row for kind
func (p *PostgresSync) State(ctx context.Context, kind string) (EventState, error) {
	if p.pool == nil {
		return EventState{}, fmt.Errorf("postgres pool is not open")
	}
	state := EventState{Kind: kind}
	err := p.pool.QueryRow(ctx,
		`SELECT count, last_payload, last_occurred_at FROM event_state WHERE kind = $1`, kind,
	).Scan(&state.Count, &state.LastPayload, &state.LastOccurredAt)
	if err != nil {
		return EventState{}, err
	}
	state.LastOccurredAt = state.LastOccurredAt.UTC()
	return state, nil
}
