// Package store implements the Run Store + Search Index: append-only
// persistence for finished Runs, backed by Postgres via raw
// database/sql, with large fields split into a content-addressed blob
// table and first-class metadata search.
package store

import (
	"errors"
	"time"

	"github.com/workflowai/runengine/internal/engine"
)

// ErrNotFound is returned by Get when no run matches the given id.
var ErrNotFound = errors.New("store: run not found")

// Op is a comparison operator in a FieldQuery.
type Op string

const (
	OpEq       Op = "="
	OpNeq      Op = "!="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpContains Op = "contains"
	OpIn       Op = "in"
)

// FieldQuery is one predicate in a Search call's conjunction. Field is
// either a hot-field name (created_at, model, provider, status, cost,
// input_tokens, output_tokens, context_window_usage_percent) or
// "metadata.<key>" to query an indexed metadata entry.
type FieldQuery struct {
	Field string
	Op    Op
	Value any
}

// RunSummary is the projection of a Run returned by Search: hot fields
// only, no message bodies or tool traces.
type RunSummary struct {
	ID                        string
	Tenant                    string
	AgentID                   string
	Model                     string
	Provider                  string
	Status                    engine.RunStatus
	CostUSD                   float64
	InputTokens               int
	OutputTokens              int
	ContextWindowUsagePercent float64
	Metadata                  map[string]string
	CreatedAt                 time.Time
}

// Page is one page of a Search result.
type Page struct {
	Runs       []RunSummary
	Total      int
	NextOffset int
}

// FeedbackOutcome is the caller's verdict on one run.
type FeedbackOutcome string

const (
	FeedbackPositive FeedbackOutcome = "positive"
	FeedbackNegative FeedbackOutcome = "negative"
)

// Feedback is one (run_id, user_id) verdict. At most one row exists per
// pair; a later write replaces the earlier one.
type Feedback struct {
	RunID     string
	UserID    string
	Outcome   FeedbackOutcome
	Comment   string
	CreatedAt time.Time
}
