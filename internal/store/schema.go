package store

// Schema is the DDL applied by `runengine migrate`. It is intentionally
// hand-written SQL rather than a migration framework, matching the
// corpus's convention of raw database/sql + lib/pq over an ORM.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                           TEXT PRIMARY KEY,
	tenant                       TEXT NOT NULL,
	agent_id                     TEXT NOT NULL,
	version_id                   TEXT NOT NULL DEFAULT '',
	schema_id                    INTEGER NOT NULL DEFAULT 0,
	model                        TEXT NOT NULL,
	provider                     TEXT NOT NULL,
	status                       TEXT NOT NULL,
	error_kind                   TEXT NOT NULL DEFAULT '',
	error_text                   TEXT NOT NULL DEFAULT '',
	input_tokens                 INTEGER NOT NULL DEFAULT 0,
	output_tokens                INTEGER NOT NULL DEFAULT 0,
	reasoning_tokens             INTEGER NOT NULL DEFAULT 0,
	cost_usd                     DOUBLE PRECISION NOT NULL DEFAULT 0,
	context_window_usage_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
	context_window               INTEGER NOT NULL DEFAULT 0,
	wall_clock_ms                BIGINT NOT NULL DEFAULT 0,
	request_digest               TEXT NOT NULL,
	response_digest               TEXT NOT NULL,
	tool_calls_digest            TEXT NOT NULL DEFAULT '',
	created_at                   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_tenant_agent_created ON runs (tenant, agent_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_model ON runs (model);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs (status);

CREATE TABLE IF NOT EXISTS run_metadata (
	run_id TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	key    TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (run_id, key)
);

CREATE INDEX IF NOT EXISTS idx_run_metadata_key_value ON run_metadata (key, value);

CREATE TABLE IF NOT EXISTS blobs (
	digest  TEXT PRIMARY KEY,
	kind    SMALLINT NOT NULL,
	payload BYTEA NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
	run_id     TEXT NOT NULL,
	user_id    TEXT NOT NULL DEFAULT '',
	outcome    TEXT NOT NULL,
	comment    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, user_id)
);

CREATE TABLE IF NOT EXISTS versions (
	id            TEXT PRIMARY KEY,
	agent         TEXT NOT NULL,
	schema_id     INTEGER NOT NULL,
	major         INTEGER NOT NULL,
	minor         INTEGER NOT NULL,
	messages_digest TEXT NOT NULL,
	model         TEXT NOT NULL,
	temperature   DOUBLE PRECISION NOT NULL DEFAULT 0,
	max_tokens    INTEGER NOT NULL DEFAULT 0,
	tools_digest  TEXT NOT NULL DEFAULT '',
	input_schema  JSONB,
	output_schema JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_versions_agent_schema ON versions (agent, schema_id, major DESC, minor DESC);

CREATE TABLE IF NOT EXISTS deployments (
	agent       TEXT NOT NULL,
	schema_id   INTEGER NOT NULL,
	environment TEXT NOT NULL,
	version_id  TEXT NOT NULL REFERENCES versions (id),
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (agent, schema_id, environment)
);
`
