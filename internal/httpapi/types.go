// Package httpapi implements the HTTP Boundary: the OpenAI-compatible
// wire protocol on top of the Prompt Assembler and Run Engine, plus the
// run/search/feedback/deployment management endpoints.
package httpapi

import "encoding/json"

// ChatMessage is one OpenAI-shaped message in a chat-completion request
// or response.
type ChatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolDef is an OpenAI-shaped function tool definition.
type ToolDef struct {
	Type     string      `json:"type"`
	Function ToolFuncDef `json:"function"`
}

// ToolFuncDef carries a client-defined tool's name, description and JSON
// Schema parameters.
type ToolFuncDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is one function-call the model emitted, OpenAI-shaped.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc carries the called tool's name and streamed argument JSON.
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ExtraBody carries the extensions beyond the OpenAI chat-completions
// shape: template input, run continuation, cache policy and hosted-tool
// selection.
type ExtraBody struct {
	Input           map[string]any `json:"input,omitempty"`
	ReplyToRunID    string         `json:"reply_to_run_id,omitempty"`
	UseCache        string         `json:"use_cache,omitempty"` // "never" | "auto", default "auto"
	WorkflowAITools []string       `json:"workflowai_tools,omitempty"`
}

// StreamOptions controls what the final SSE delta carries, OpenAI-shaped.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChatCompletionRequest is the inbound POST /v1/chat/completions body.
type ChatCompletionRequest struct {
	Model         string            `json:"model"`
	Messages      []ChatMessage     `json:"messages"`
	Tools         []ToolDef         `json:"tools,omitempty"`
	Stream        bool              `json:"stream,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	StreamOptions *StreamOptions    `json:"stream_options,omitempty"`
	ExtraBody     ExtraBody         `json:"extra_body,omitempty"`
}

// Choice is one completion choice. This implementation always returns
// exactly one.
type Choice struct {
	Index         int          `json:"index"`
	Message       *ChatMessage `json:"message,omitempty"`
	Delta         *ChatMessage `json:"delta,omitempty"`
	FinishReason  string       `json:"finish_reason,omitempty"`
	FeedbackToken string       `json:"feedback_token,omitempty"`
}

// Usage is the OpenAI-shaped token accounting block.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionResponse is the non-streaming response body, and the
// shape of each streamed `data: {...}` line.
type ChatCompletionResponse struct {
	ID               string   `json:"id"`
	Object           string   `json:"object"`
	Model            string   `json:"model"`
	Choices          []Choice `json:"choices"`
	Usage            *Usage   `json:"usage,omitempty"`
	CostUSD          float64  `json:"cost_usd,omitempty"`
	DurationSeconds  float64  `json:"duration_seconds,omitempty"`
}

// ErrorBody is the uniform error shape returned for every failed request.
type ErrorBody struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Provider   string `json:"provider,omitempty"`
	Model      string `json:"model,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// ErrorResponse wraps ErrorBody under the "error" key, both as a
// terminal JSON response and as the final SSE event on a mid-stream
// failure.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// HostedToolDescriptor is one entry of GET /v1/tools/hosted.
type HostedToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ModelDescriptor is one entry of GET /v1/models.
type ModelDescriptor struct {
	ID              string   `json:"id"`
	Provider        string   `json:"provider"`
	Tier            string   `json:"tier"`
	ContextWindow   int      `json:"context_window"`
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	Capabilities    []string `json:"capabilities"`
	InputPrice      float64  `json:"input_price"`
	OutputPrice     float64  `json:"output_price"`
	Deprecated      bool     `json:"deprecated,omitempty"`
	ReplacedBy      string   `json:"replaced_by,omitempty"`
}

// FeedbackRequest is the POST /v1/feedback body.
type FeedbackRequest struct {
	FeedbackToken string `json:"feedback_token"`
	Outcome       string `json:"outcome"`
	Comment       string `json:"comment,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// CreateVersionRequest is the POST .../schemas/{schema_id}/versions body.
type CreateVersionRequest struct {
	Messages     []ChatMessage   `json:"messages"`
	Model        string          `json:"model"`
	Temperature  float64         `json:"temperature,omitempty"`
	MaxTokens    int             `json:"max_tokens,omitempty"`
	Tools        []ToolDef       `json:"tools,omitempty"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

// CreateVersionResponse echoes the assigned version identity.
type CreateVersionResponse struct {
	VersionID string `json:"version_id"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
}

// DeployRequest is the POST .../versions/{version_id}/deploy body.
type DeployRequest struct {
	Environment string `json:"environment"`
}

// SearchResponse is the POST .../runs/search response body.
type SearchResponse struct {
	Runs       []RunSummaryView `json:"runs"`
	Total      int              `json:"total"`
	NextOffset int              `json:"next_offset"`
}

// RunSummaryView is the wire projection of a store.RunSummary.
type RunSummaryView struct {
	ID                        string            `json:"id"`
	Tenant                    string            `json:"tenant"`
	AgentID                   string            `json:"agent_id"`
	Model                     string            `json:"model"`
	Provider                  string            `json:"provider"`
	Status                    string            `json:"status"`
	CostUSD                   float64           `json:"cost_usd"`
	InputTokens               int               `json:"input_tokens"`
	OutputTokens              int               `json:"output_tokens"`
	ContextWindowUsagePercent float64           `json:"context_window_usage_percent"`
	Metadata                  map[string]string `json:"metadata,omitempty"`
	CreatedAt                 string            `json:"created_at"`
}

// RunView is the wire projection of an engine.Run returned by
// GET .../runs/{run_id}.
type RunView struct {
	ID                        string            `json:"id"`
	Tenant                    string            `json:"tenant"`
	AgentID                   string            `json:"agent_id"`
	VersionID                 string            `json:"version_id,omitempty"`
	SchemaID                  int               `json:"schema_id,omitempty"`
	Model                     string            `json:"model"`
	Provider                  string            `json:"provider"`
	Messages                  []ChatMessage     `json:"messages"`
	Response                  []ChatMessage     `json:"response"`
	InputTokens               int               `json:"input_tokens"`
	OutputTokens              int               `json:"output_tokens"`
	CostUSD                   float64           `json:"cost_usd"`
	ContextWindowUsagePercent float64           `json:"context_window_usage_percent"`
	Status                    string            `json:"status"`
	ErrorKind                 string            `json:"error_kind,omitempty"`
	ErrorText                 string            `json:"error_text,omitempty"`
	Metadata                  map[string]string `json:"metadata,omitempty"`
	CreatedAt                 string            `json:"created_at"`
}
