package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/workflowai/runengine/internal/engine"
	"github.com/workflowai/runengine/internal/provider"
)

// Config configures the Postgres connection pool.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns sensible pool defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Postgres is the Run Store + Search Index, backed by a runs table plus
// a run_metadata side table and a content-addressed blobs table.
type Postgres struct {
	db *sql.DB
}

// Open connects to dsn and verifies it with a ping.
func Open(dsn string, cfg Config) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewWithDB wraps an already-open *sql.DB, used by tests against
// go-sqlmock.
func NewWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Migrate applies Schema. Every statement is idempotent
// (CREATE TABLE/INDEX IF NOT EXISTS), so it is safe to run on every
// deploy rather than tracking applied versions.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	return nil
}

type messagesBlob struct {
	Request  []provider.Message `json:"request"`
	Response []provider.Message `json:"response"`
}

type tracesBlob struct {
	ToolCalls []engine.ToolCallTrace `json:"tool_calls"`
	Attempts  []engine.AttemptTrace  `json:"attempts"`
}

// Save implements engine.RunStore. Large fields are written to the
// content-addressed blobs table first (ON CONFLICT DO NOTHING, so a
// byte-identical payload is stored once); the hot-field row and its
// metadata entries are written in the same transaction.
func (p *Postgres) Save(run *engine.Run) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("store: run with an id is required")
	}

	messages, err := json.Marshal(messagesBlob{Request: run.RequestMessages, Response: run.ResponseMessages})
	if err != nil {
		return fmt.Errorf("store: marshal messages: %w", err)
	}
	traces, err := json.Marshal(tracesBlob{ToolCalls: run.ToolCalls, Attempts: run.Attempts})
	if err != nil {
		return fmt.Errorf("store: marshal traces: %w", err)
	}

	messagesDigest := digestOf(kindMessages, messages)
	tracesDigest := digestOf(kindToolCalls, traces)

	ctx := context.Background()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putBlob(ctx, tx, messagesDigest, kindMessages, messages); err != nil {
		return err
	}
	if err := putBlob(ctx, tx, tracesDigest, kindToolCalls, traces); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, tenant, agent_id, version_id, schema_id, model, provider, status,
			error_kind, error_text, input_tokens, output_tokens, reasoning_tokens,
			cost_usd, context_window_usage_percent, context_window, wall_clock_ms,
			request_digest, response_digest, tool_calls_digest, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, run.Tenant, run.AgentID, run.VersionID, run.SchemaID, run.Model, run.Provider, string(run.Status),
		string(run.ErrorKind), run.ErrorText, run.InputTokens, run.OutputTokens, run.ReasoningTokens,
		run.CostUSD, run.ContextWindowUsagePercent, run.ContextWindow, run.WallClock.Milliseconds(),
		messagesDigest, messagesDigest, tracesDigest, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}

	for k, v := range run.Metadata {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_metadata (run_id, key, value) VALUES ($1,$2,$3)
			 ON CONFLICT (run_id, key) DO UPDATE SET value = excluded.value`,
			run.ID, k, v)
		if err != nil {
			return fmt.Errorf("store: insert run_metadata: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func putBlob(ctx context.Context, tx *sql.Tx, digest string, kind blobKind, payload []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO blobs (digest, kind, payload) VALUES ($1,$2,$3) ON CONFLICT (digest) DO NOTHING`,
		digest, int(kind), payload)
	if err != nil {
		return fmt.Errorf("store: insert blob: %w", err)
	}
	return nil
}

// Get fetches one run by (tenant, agentID, runID), reconstructing its
// messages and tool traces from the blobs table. Lookup by primary key
// is always immediately consistent with the most recent Save.
func (p *Postgres) Get(tenant, agentID, runID string) (*engine.Run, error) {
	ctx := context.Background()
	row := p.db.QueryRowContext(ctx, `
		SELECT id, tenant, agent_id, version_id, schema_id, model, provider, status,
		       error_kind, error_text, input_tokens, output_tokens, reasoning_tokens,
		       cost_usd, context_window_usage_percent, context_window, wall_clock_ms,
		       request_digest, tool_calls_digest, created_at
		FROM runs WHERE id = $1 AND tenant = $2 AND agent_id = $3`,
		runID, tenant, agentID)

	var (
		run                              engine.Run
		status, errorKind                string
		wallClockMS                      int64
		messagesDigest, tracesDigest     string
	)
	if err := row.Scan(
		&run.ID, &run.Tenant, &run.AgentID, &run.VersionID, &run.SchemaID, &run.Model, &run.Provider, &status,
		&errorKind, &run.ErrorText, &run.InputTokens, &run.OutputTokens, &run.ReasoningTokens,
		&run.CostUSD, &run.ContextWindowUsagePercent, &run.ContextWindow, &wallClockMS,
		&messagesDigest, &tracesDigest, &run.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	run.Status = engine.RunStatus(status)
	run.ErrorKind = engine.ErrorKind(errorKind)
	run.WallClock = time.Duration(wallClockMS) * time.Millisecond

	var messages messagesBlob
	if err := fetchBlobJSON(ctx, p.db, messagesDigest, &messages); err != nil {
		return nil, err
	}
	run.RequestMessages = messages.Request
	run.ResponseMessages = messages.Response

	if tracesDigest != "" {
		var traces tracesBlob
		if err := fetchBlobJSON(ctx, p.db, tracesDigest, &traces); err != nil {
			return nil, err
		}
		run.ToolCalls = traces.ToolCalls
		run.Attempts = traces.Attempts
	}

	run.Metadata, _ = p.metadataFor(ctx, run.ID)
	return &run, nil
}

func fetchBlobJSON(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, digest string, dest any) error {
	if digest == "" {
		return nil
	}
	var payload []byte
	row := q.QueryRowContext(ctx, `SELECT payload FROM blobs WHERE digest = $1`, digest)
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("store: blob %s missing", digest)
		}
		return fmt.Errorf("store: fetch blob: %w", err)
	}
	return json.Unmarshal(payload, dest)
}

func (p *Postgres) metadataFor(ctx context.Context, runID string) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM run_metadata WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: fetch run_metadata: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Search implements the Search(tenant, agent_id?, field_queries) →
// page<RunSummary> contract. Aggregate search is eventually consistent
// within a small bound; Postgres's own read-after-write semantics on a
// single connection already satisfy that here.
func (p *Postgres) Search(tenant, agentID string, queries []FieldQuery, limit, offset int) (Page, error) {
	if limit <= 0 {
		limit = 50
	}

	where, args, err := compileWhere(tenant, agentID, queries, 1)
	if err != nil {
		return Page{}, err
	}

	ctx := context.Background()
	var total int
	countQuery := "SELECT count(*) FROM runs WHERE " + where
	if err := p.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("store: count runs: %w", err)
	}

	limitArg := len(args) + 1
	offsetArg := len(args) + 2
	selectQuery := fmt.Sprintf(`
		SELECT id, tenant, agent_id, model, provider, status, cost_usd,
		       input_tokens, output_tokens, context_window_usage_percent, created_at
		FROM runs WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, where, limitArg, offsetArg)

	rows, err := p.db.QueryContext(ctx, selectQuery, append(append([]any{}, args...), limit, offset)...)
	if err != nil {
		return Page{}, fmt.Errorf("store: search runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var s RunSummary
		var status string
		if err := rows.Scan(&s.ID, &s.Tenant, &s.AgentID, &s.Model, &s.Provider, &status,
			&s.CostUSD, &s.InputTokens, &s.OutputTokens, &s.ContextWindowUsagePercent, &s.CreatedAt); err != nil {
			return Page{}, err
		}
		s.Status = engine.RunStatus(status)
		meta, err := p.metadataFor(ctx, s.ID)
		if err != nil {
			return Page{}, err
		}
		s.Metadata = meta
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}

	next := offset + len(summaries)
	if next >= total {
		next = 0
	}
	return Page{Runs: summaries, Total: total, NextOffset: next}, nil
}

// PruneOrphanBlobs deletes any row in blobs no longer referenced by a
// run's request/response/tool_calls digest columns or by a version's
// messages_digest. It is invoked periodically by Pruner.
func (p *Postgres) PruneOrphanBlobs(ctx context.Context) (int64, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM blobs WHERE digest NOT IN (
			SELECT request_digest FROM runs
			UNION SELECT response_digest FROM runs
			UNION SELECT tool_calls_digest FROM runs WHERE tool_calls_digest <> ''
			UNION SELECT messages_digest FROM versions
		)`)
	if err != nil {
		return 0, fmt.Errorf("store: prune orphan blobs: %w", err)
	}
	return res.RowsAffected()
}
