// Package engine implements the Run Engine: the central state machine
// that turns an assembled request into a stream of chunks back to the
// caller, failing over across Router attempts, dispatching tool calls
// and persisting the finished Run.
package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/workflowai/runengine/internal/catalog"
	"github.com/workflowai/runengine/internal/provider"
	"github.com/workflowai/runengine/internal/router"
)

// Phase names one state of the Run Engine's state machine.
type Phase string

const (
	PhaseInit        Phase = "init"
	PhasePromptReady Phase = "prompt_ready"
	PhaseAttempting  Phase = "attempting"
	PhaseStreaming   Phase = "streaming"
	PhaseToolLoop    Phase = "tool_loop"
	PhaseFinalizing  Phase = "finalizing"
	PhasePersisted   Phase = "persisted"
	PhaseFailed      Phase = "failed"
)

// ErrorKind is one of the stable error kinds surfaced to callers.
type ErrorKind string

const (
	ErrInvalidRequest       ErrorKind = "invalid_request"
	ErrMissingInput         ErrorKind = "missing_input"
	ErrTemplateInvalid      ErrorKind = "template_invalid"
	ErrUnknownModel         ErrorKind = "unknown_model"
	ErrUnknownDeployment    ErrorKind = "unknown_deployment"
	ErrAuthFailed           ErrorKind = "auth_failed"
	ErrRateLimited          ErrorKind = "rate_limited"
	ErrContextWindowExceed  ErrorKind = "context_window_exceeded"
	ErrContentFiltered      ErrorKind = "content_filtered"
	ErrProviderUnavailable  ErrorKind = "provider_unavailable"
	ErrToolBudgetExceeded   ErrorKind = "tool_budget_exceeded"
	ErrCancelled            ErrorKind = "cancelled"
	ErrInternal             ErrorKind = "internal"
)

// RunError is the terminal error surfaced to the caller and persisted on
// a failed Run.
type RunError struct {
	Kind     ErrorKind
	Message  string
	Provider string
	Model    string
}

func (e *RunError) Error() string {
	if e.Provider != "" {
		return string(e.Kind) + ": " + e.Message + " (" + e.Provider + "/" + e.Model + ")"
	}
	return string(e.Kind) + ": " + e.Message
}

// AttemptTrace records one Attempting(i) try for the finished Run.
type AttemptTrace struct {
	Provider  string
	Model     string
	Started   time.Time
	Finished  time.Time
	Succeeded bool
	ErrorKind ErrorKind
	ErrorText string
}

// RunStatus is the terminal disposition of a Run.
type RunStatus string

const (
	StatusSuccess   RunStatus = "success"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Run is the immutable record of one execution, as persisted by the Run
// Store.
type Run struct {
	ID       string
	Tenant   string
	AgentID  string
	Metadata map[string]string

	VersionID string
	SchemaID  int

	Model    string
	Provider string

	RequestMessages  []provider.Message
	ResponseMessages []provider.Message
	ToolCalls        []ToolCallTrace
	Attempts         []AttemptTrace

	InputTokens     int
	OutputTokens    int
	ReasoningTokens int

	CostUSD                  float64
	ContextWindowUsagePercent float64
	ContextWindow             int

	WallClock time.Duration
	Status    RunStatus
	ErrorKind ErrorKind
	ErrorText string

	CreatedAt     time.Time
	FeedbackToken string
}

// ToolCallTrace is one recorded tool invocation attached to a Run.
type ToolCallTrace struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Result    string
	IsError   bool
	StartedAt time.Time
	Duration  time.Duration
}

// EventKind names one structured event emitted by the state machine.
type EventKind string

const (
	EventStart          EventKind = "start"
	EventAttemptStarted EventKind = "attempt_started"
	EventAttemptFailed  EventKind = "attempt_failed"
	EventChunk          EventKind = "chunk"
	EventToolCalled     EventKind = "tool_called"
	EventToolReturned   EventKind = "tool_returned"
	EventFinished       EventKind = "finished"
)

// Event is one entry on a Run's event channel, the one Execute returns.
// The channel has a single reader (the client stream writer); no
// metrics or tracing consumer subscribes to it.
type Event struct {
	Kind EventKind

	// TextDelta/ToolCallDelta populate EventChunk.
	TextDelta     string
	ToolCallDelta *provider.Chunk

	// Provider/Model/Attempt populate EventAttemptStarted/EventAttemptFailed.
	Provider string
	Model    string
	Attempt  int
	Err      *RunError

	// ToolName/ToolCallID/ToolResult populate EventToolCalled/EventToolReturned.
	ToolName   string
	ToolCallID string
	ToolResult string
	ToolError  bool

	// Run is attached to EventFinished only.
	Run *Run
}

// ToolInvoker dispatches one tool call to the Tool Orchestrator and
// blocks until it has a result or ctx is cancelled.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, argsJSON json.RawMessage) (resultJSON string, isError bool, err error)
}

// RunStore persists a finished Run. Implementations must not block the
// Finalizing phase for long: the Run Engine hands off to a bounded queue
// and logs (rather than fails the response on) persistence errors.
type RunStore interface {
	Save(run *Run) error
}

// FeedbackSigner mints the opaque feedback token attached to a
// successful Run.
type FeedbackSigner interface {
	Sign(runID string) (string, error)
}

// Config tunes the state machine's budgets.
type Config struct {
	// MaxToolTurns bounds ToolLoop iterations within one attempt.
	MaxToolTurns int
	// AttemptTimeout bounds each Attempting(i)/Streaming pair.
	AttemptTimeout time.Duration
	// IdleStreamTimeout bounds the gap between consecutive chunks.
	IdleStreamTimeout time.Duration
	// ToolConcurrency bounds parallel tool dispatch within one ToolLoop.
	ToolConcurrency int
	// ToolTimeout bounds one tool invocation.
	ToolTimeout time.Duration
	// PersistQueueDepth bounds the in-memory queue between Finalizing and
	// RunStore.Save; a full queue drops the run and logs rather than
	// blocking the state machine.
	PersistQueueDepth int
}

// DefaultConfig returns the Run Engine's default budgets.
func DefaultConfig() Config {
	return Config{
		MaxToolTurns:      8,
		AttemptTimeout:     60 * time.Second,
		IdleStreamTimeout:  20 * time.Second,
		ToolConcurrency:    4,
		ToolTimeout:        15 * time.Second,
		PersistQueueDepth: 256,
	}
}

// Request is the fully materialized input to Execute: the Prompt
// Assembler's Result plus the run-identifying fields the HTTP Boundary
// attaches.
type Request struct {
	Tenant   string
	AgentID  string
	Metadata map[string]string

	Model             string
	Messages          []provider.Message
	Tools             []provider.Tool
	VersionID         string
	SchemaID          int
	SchemaFingerprint string

	RequiredCapabilities  []catalog.Capability
	EstimatedInputTokens  int
	EstimatedOutputTokens int

	// MaxTokens is the caller's requested output token cap, 0 if unset.
	MaxTokens int
	// Temperature is the caller's requested sampling temperature, nil if
	// the caller didn't set one.
	Temperature *float64
	// IncludeUsage gates whether the final SSE delta carries the usage
	// block (stream_options.include_usage); usage is always computed and
	// persisted regardless.
	IncludeUsage bool

	TenantPolicy router.TenantPolicy
}
