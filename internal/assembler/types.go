// Package assembler implements the Prompt Assembler: it resolves a
// deployment alias or raw model string and an input variable bag into a
// fully materialized request the Router can plan attempts for, rendering
// every message through the Template Renderer and expanding hosted-tool
// references along the way.
package assembler

import (
	"encoding/json"

	"github.com/workflowai/runengine/internal/provider"
)

// Version is an immutable (agent, schema_id, major, minor) prompt
// snapshot: stored messages with template placeholders, the bound model,
// sampling parameters, declared tools and optional input/output schemas.
type Version struct {
	ID       string
	Agent    string
	SchemaID int
	Major    int
	Minor    int

	Messages    []provider.Message
	Model       string
	Temperature float64
	MaxTokens   int
	Tools       []provider.Tool

	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
}

// Environment is one of the three deployment slots a Version can occupy.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// DeploymentStore resolves deployment aliases and version IDs. The Run
// Store backs this in production; tests use an in-memory stub.
type DeploymentStore interface {
	ResolveDeployment(agent string, schemaID int, env Environment) (*Version, bool)
	GetVersion(versionID string) (*Version, bool)
}

// HistoryStore fetches a prior run's full message history, used to
// continue a conversation via reply_to_run_id. Lookups are tenant-scoped:
// a run ID belonging to a different tenant must report not found exactly
// like a run ID that does not exist at all.
type HistoryStore interface {
	Messages(tenant, runID string) ([]provider.Message, bool)
}

// HostedTool is one built-in tool the Tool Orchestrator can execute,
// referenceable from a system message as `@tool-name`.
type HostedTool struct {
	Name        string
	Description string
}

// HostedToolRegistry looks up hosted tools by name for `@tool-name`
// expansion and registration against a run.
type HostedToolRegistry interface {
	Lookup(name string) (HostedTool, bool)
}

// Request is the HTTP Boundary's normalized view of an inbound
// chat-completion call, before deployment/template resolution.
type Request struct {
	Tenant string

	// Model is either a catalog model ID/alias or a deployment alias of
	// the form "agent-name/#schema_id/environment".
	Model string

	Messages []provider.Message
	Input    map[string]any
	Tools    []provider.Tool

	// ReplyToRunID, when set, continues a prior run: its full message
	// history is prepended and the deployment's stored template (if any)
	// is not re-applied.
	ReplyToRunID string

	// HostedToolNames are tool names requested via extra_body's hosted
	// tool list, in addition to any @tool-name found in messages.
	HostedToolNames []string
}

// Result is the fully materialized, provider-agnostic request the Router
// plans Attempts for, plus the bookkeeping the Run Engine attaches to the
// eventual Run record.
type Result struct {
	Model    string
	Messages []provider.Message
	Tools    []provider.Tool

	VersionID string
	SchemaID  int

	// SchemaFingerprint is the sorted referenced-input-key list plus the
	// canonical output-schema hash, identifying this (template, schema)
	// pair regardless of incidental textual differences.
	SchemaFingerprint string

	// HostedTools are the tools registered against this run by @name
	// expansion or the request's hosted tool list.
	HostedTools []HostedTool
}
