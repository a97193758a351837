package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workflowai/runengine/internal/assembler"
	"github.com/workflowai/runengine/internal/provider"
)

// versionPrompt is the blob payload for one Version: its rendered-message
// template and declared tool set, the two fields too large to carry as
// hot columns on the versions table.
type versionPrompt struct {
	Messages []provider.Message `json:"messages"`
	Tools    []provider.Tool    `json:"tools"`
}

// CreateVersion implements the Version-creation half of the Prompt
// Assembler's production backing store. It ignores any caller-supplied
// Major/Minor and assigns the next minor within (Agent, SchemaID),
// starting a fresh major/minor pair the first time that schema_id is
// seen: every save for an existing schema_id bumps minor, and a change
// incompatible enough to warrant a new major gets a new schema_id instead.
func (p *Postgres) CreateVersion(v *assembler.Version) (*assembler.Version, error) {
	if v == nil || v.Agent == "" {
		return nil, fmt.Errorf("store: version with an agent is required")
	}

	prompt, err := json.Marshal(versionPrompt{Messages: v.Messages, Tools: v.Tools})
	if err != nil {
		return nil, fmt.Errorf("store: marshal version prompt: %w", err)
	}
	digest := digestOf(kindVersionPrompt, prompt)

	ctx := context.Background()
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putBlob(ctx, tx, digest, kindVersionPrompt, prompt); err != nil {
		return nil, err
	}

	var major, minor int
	row := tx.QueryRowContext(ctx,
		`SELECT major, minor FROM versions WHERE agent = $1 AND schema_id = $2
		 ORDER BY major DESC, minor DESC LIMIT 1`,
		v.Agent, v.SchemaID)
	switch err := row.Scan(&major, &minor); err {
	case nil:
		minor++
	case sql.ErrNoRows:
		major, minor = 1, 0
	default:
		return nil, fmt.Errorf("store: lookup latest version: %w", err)
	}

	id := v.ID
	if id == "" {
		id = uuid.NewString()
	}

	var inputSchema, outputSchema any
	if len(v.InputSchema) > 0 {
		inputSchema = []byte(v.InputSchema)
	}
	if len(v.OutputSchema) > 0 {
		outputSchema = []byte(v.OutputSchema)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (
			id, agent, schema_id, major, minor, messages_digest, model,
			temperature, max_tokens, tools_digest, input_schema, output_schema, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		id, v.Agent, v.SchemaID, major, minor, digest, v.Model,
		v.Temperature, v.MaxTokens, "", inputSchema, outputSchema, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}

	out := *v
	out.ID = id
	out.Major, out.Minor = major, minor
	return &out, nil
}

// Deploy atomically swaps the (agent, schema_id, environment) deployment
// to point at versionID.
func (p *Postgres) Deploy(agent string, schemaID int, env assembler.Environment, versionID string) error {
	ctx := context.Background()
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO deployments (agent, schema_id, environment, version_id, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (agent, schema_id, environment) DO UPDATE
			SET version_id = excluded.version_id, updated_at = excluded.updated_at`,
		agent, schemaID, string(env), versionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: deploy version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: deploy version: no rows affected")
	}
	return nil
}

// ResolveDeployment implements assembler.DeploymentStore.
func (p *Postgres) ResolveDeployment(agent string, schemaID int, env assembler.Environment) (*assembler.Version, bool) {
	ctx := context.Background()
	var versionID string
	err := p.db.QueryRowContext(ctx,
		`SELECT version_id FROM deployments WHERE agent = $1 AND schema_id = $2 AND environment = $3`,
		agent, schemaID, string(env)).Scan(&versionID)
	if err != nil {
		return nil, false
	}
	return p.GetVersion(versionID)
}

// GetVersion implements assembler.DeploymentStore.
func (p *Postgres) GetVersion(versionID string) (*assembler.Version, bool) {
	ctx := context.Background()
	row := p.db.QueryRowContext(ctx, `
		SELECT id, agent, schema_id, major, minor, messages_digest, model,
		       temperature, max_tokens, input_schema, output_schema
		FROM versions WHERE id = $1`, versionID)

	var v assembler.Version
	var digest string
	var inputSchema, outputSchema []byte
	if err := row.Scan(&v.ID, &v.Agent, &v.SchemaID, &v.Major, &v.Minor, &digest, &v.Model,
		&v.Temperature, &v.MaxTokens, &inputSchema, &outputSchema); err != nil {
		return nil, false
	}
	v.InputSchema = inputSchema
	v.OutputSchema = outputSchema

	var prompt versionPrompt
	if err := fetchBlobJSON(ctx, p.db, digest, &prompt); err != nil {
		return nil, false
	}
	v.Messages = prompt.Messages
	v.Tools = prompt.Tools
	return &v, true
}

// Messages implements assembler.HistoryStore, fetching a prior run's full
// request+response message history for reply_to_run_id continuation. The
// lookup is scoped to tenant: a run belonging to a different tenant is
// reported not found exactly like a nonexistent run ID.
func (p *Postgres) Messages(tenant, runID string) ([]provider.Message, bool) {
	ctx := context.Background()
	var digest string
	err := p.db.QueryRowContext(ctx, `SELECT request_digest FROM runs WHERE id = $1 AND tenant = $2`, runID, tenant).Scan(&digest)
	if err != nil {
		return nil, false
	}

	var messages messagesBlob
	if err := fetchBlobJSON(ctx, p.db, digest, &messages); err != nil {
		return nil, false
	}
	return append(messages.Request, messages.Response...), true
}
