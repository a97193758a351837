package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/workflowai/runengine/internal/assembler"
	"github.com/workflowai/runengine/internal/catalog"
	"github.com/workflowai/runengine/internal/engine"
)

const maxChatRequestBytes = 10 * 1024 * 1024

// defaultEstimatedOutputTokens sizes the Router's cost estimate (and the
// provider's max_tokens, absent an explicit one) when the caller didn't
// set max_tokens.
const defaultEstimatedOutputTokens = 256

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatRequestBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, err
		}
		return http.StatusBadRequest, err
	}
	return 0, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErrorResponse(w http.ResponseWriter, requestID string, err error) {
	resp, status := classify(err, requestID)
	writeJSON(w, status, resp)
}

// handleChatCompletions implements POST /v1/chat/completions: it
// normalizes the request, runs it through the Prompt Assembler and Run
// Engine, and writes either one JSON response or an SSE chunk stream.
func (h *handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var wire ChatCompletionRequest
	if status, err := decodeJSON(w, r, &wire); err != nil {
		writeJSON(w, status, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInvalidRequest), Message: err.Error(), RequestID: requestID,
		}})
		return
	}

	tenant, agentID := "", wire.Metadata["agent_id"]
	if v := r.Header.Get("X-Tenant"); v != "" {
		tenant = v
	}

	asmReq := &assembler.Request{
		Tenant:          tenant,
		Model:           wire.Model,
		Messages:        toProviderMessages(wire.Messages),
		Tools:           toProviderTools(wire.Tools),
		Input:           wire.ExtraBody.Input,
		ReplyToRunID:    wire.ExtraBody.ReplyToRunID,
		HostedToolNames: wire.ExtraBody.WorkflowAITools,
	}

	result, err := h.deps.Assembler.Assemble(asmReq)
	if err != nil {
		writeErrorResponse(w, requestID, err)
		return
	}

	requiredCaps := []catalog.Capability{}
	if len(result.Tools) > 0 {
		requiredCaps = append(requiredCaps, catalog.CapTools)
	}

	estimatedOutput := defaultEstimatedOutputTokens
	if wire.MaxTokens > 0 {
		estimatedOutput = wire.MaxTokens
	}

	includeUsage := wire.StreamOptions != nil && wire.StreamOptions.IncludeUsage

	var cacheKey string
	cacheable := h.deps.Cache != nil && wire.ExtraBody.UseCache != "never" &&
		wire.Temperature != nil && *wire.Temperature == 0
	if cacheable {
		cacheKey = cacheFingerprint(result, estimatedOutput, *wire.Temperature)
		if raw, ok := h.deps.Cache.Get(tenant, cacheKey); ok {
			h.serveCachedCompletion(w, r, raw, wire.Stream, includeUsage)
			return
		}
	}

	engReq := &engine.Request{
		Tenant:                tenant,
		AgentID:               agentID,
		Metadata:              wire.Metadata,
		Model:                 result.Model,
		Messages:              result.Messages,
		Tools:                 result.Tools,
		VersionID:             result.VersionID,
		SchemaID:              result.SchemaID,
		SchemaFingerprint:     result.SchemaFingerprint,
		RequiredCapabilities:  requiredCaps,
		EstimatedInputTokens:  estimateTokens(result.Messages),
		EstimatedOutputTokens: estimatedOutput,
		MaxTokens:             wire.MaxTokens,
		Temperature:           wire.Temperature,
		IncludeUsage:          includeUsage,
		TenantPolicy:          h.deps.TenantPolicies[tenant],
	}

	events, err := h.deps.Engine.Execute(r.Context(), engReq)
	if err != nil {
		writeErrorResponse(w, requestID, err)
		return
	}

	if wire.Stream {
		h.streamChatCompletion(w, r, requestID, result.Model, includeUsage, tenant, cacheKey, events)
		return
	}
	h.bufferChatCompletion(w, requestID, tenant, cacheKey, events)
}

// bufferChatCompletion drains events into one JSON response.
func (h *handler) bufferChatCompletion(w http.ResponseWriter, requestID, tenant, cacheKey string, events <-chan *engine.Event) {
	var (
		text      strings.Builder
		toolCalls []ToolCall
		finished  *engine.Run
		runErr    *engine.RunError
	)

	for ev := range events {
		switch ev.Kind {
		case engine.EventChunk:
			if ev.TextDelta != "" {
				text.WriteString(ev.TextDelta)
			}
			if ev.ToolCallDelta != nil && ev.ToolCallDelta.ToolCallDone {
				toolCalls = append(toolCalls, fromProviderToolCall(ev.ToolCallDelta.ToolCall))
			}
		case engine.EventFinished:
			finished = ev.Run
			runErr = ev.Err
		}
	}

	if runErr != nil && finished == nil {
		writeErrorResponse(w, requestID, runErr)
		return
	}
	if finished == nil {
		writeErrorResponse(w, requestID, fmt.Errorf("engine: run did not finish"))
		return
	}
	if finished.Status != engine.StatusSuccess {
		writeJSON(w, statusForKind(finished.ErrorKind), ErrorResponse{Error: ErrorBody{
			Kind:      string(finished.ErrorKind),
			Message:   finished.ErrorText,
			Model:     finished.Model,
			Provider:  finished.Provider,
			RequestID: requestID,
		}})
		return
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	}

	resp := ChatCompletionResponse{
		ID:     finished.ID,
		Object: "chat.completion",
		Model:  finished.Model,
		Choices: []Choice{{
			Index: 0,
			Message: &ChatMessage{
				Role:      "assistant",
				Content:   text.String(),
				ToolCalls: toolCalls,
			},
			FinishReason:  finishReason,
			FeedbackToken: finished.FeedbackToken,
		}},
		Usage: &Usage{
			PromptTokens:     finished.InputTokens,
			CompletionTokens: finished.OutputTokens,
			TotalTokens:      finished.InputTokens + finished.OutputTokens,
		},
		CostUSD:         finished.CostUSD,
		DurationSeconds: finished.WallClock.Seconds(),
	}
	h.storeCached(tenant, cacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

// storeCached marshals resp and stores it under (tenant, cacheKey) when
// caching is enabled for this request (cacheKey is empty otherwise).
func (h *handler) storeCached(tenant, cacheKey string, resp ChatCompletionResponse) {
	if h.deps.Cache == nil || cacheKey == "" {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	h.deps.Cache.Set(tenant, cacheKey, raw)
}

// serveCachedCompletion replays a cached ChatCompletionResponse, either
// as the direct JSON body or as a synthesized one-chunk SSE stream.
func (h *handler) serveCachedCompletion(w http.ResponseWriter, r *http.Request, raw []byte, stream, includeUsage bool) {
	var resp ChatCompletionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		writeErrorResponse(w, requestIDFrom(r.Context()), fmt.Errorf("cache: decode cached response: %w", err))
		return
	}
	if !stream {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	h.streamCachedCompletion(w, r, resp, includeUsage)
}

// streamCachedCompletion emits a cache hit as the same SSE shape a live
// run would produce: one delta carrying the full content (plus any tool
// calls) and one finished delta carrying cost/duration/usage.
func (h *handler) streamCachedCompletion(w http.ResponseWriter, r *http.Request, resp ChatCompletionResponse, includeUsage bool) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	writeEvent := func(v any) {
		b, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		if flusher != nil {
			flusher.Flush()
		}
	}

	var content string
	var toolCalls []ToolCall
	var feedbackToken string
	if len(resp.Choices) > 0 && resp.Choices[0].Message != nil {
		content = resp.Choices[0].Message.Content
		toolCalls = resp.Choices[0].Message.ToolCalls
		feedbackToken = resp.Choices[0].FeedbackToken
	}
	if content != "" || len(toolCalls) > 0 {
		writeEvent(ChatCompletionResponse{
			Object: "chat.completion.chunk",
			Model:  resp.Model,
			Choices: []Choice{{
				Index: 0,
				Delta: &ChatMessage{Content: content, ToolCalls: toolCalls},
			}},
		})
	}

	finishReason := "stop"
	if len(toolCalls) > 0 {
		finishReason = "tool_calls"
	}
	final := ChatCompletionResponse{
		Object: "chat.completion.chunk",
		Model:  resp.Model,
		Choices: []Choice{{
			Index:         0,
			Delta:         &ChatMessage{},
			FinishReason:  finishReason,
			FeedbackToken: feedbackToken,
		}},
		CostUSD:         resp.CostUSD,
		DurationSeconds: resp.DurationSeconds,
	}
	if includeUsage {
		final.Usage = resp.Usage
	}
	writeEvent(final)
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

// streamChatCompletion writes `data: {...}\n\n` lines for every chunk,
// ending with `data: [DONE]\n\n`. A mid-stream failure ends the stream
// cleanly with a final event carrying the standard error shape rather
// than retracting already-emitted chunks.
func (h *handler) streamChatCompletion(w http.ResponseWriter, r *http.Request, requestID, model string, includeUsage bool, tenant, cacheKey string, events <-chan *engine.Event) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	writeEvent := func(v any) {
		b, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		if flusher != nil {
			flusher.Flush()
		}
	}

	var text strings.Builder
	var toolCalls []ToolCall

	for ev := range events {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		switch ev.Kind {
		case engine.EventChunk:
			if ev.TextDelta != "" {
				text.WriteString(ev.TextDelta)
				writeEvent(ChatCompletionResponse{
					Object: "chat.completion.chunk",
					Model:  model,
					Choices: []Choice{{
						Index: 0,
						Delta: &ChatMessage{Content: ev.TextDelta},
					}},
				})
			}
			if ev.ToolCallDelta != nil && ev.ToolCallDelta.ToolCallDone {
				tc := fromProviderToolCall(ev.ToolCallDelta.ToolCall)
				toolCalls = append(toolCalls, tc)
				writeEvent(ChatCompletionResponse{
					Object: "chat.completion.chunk",
					Model:  model,
					Choices: []Choice{{
						Index: 0,
						Delta: &ChatMessage{ToolCalls: []ToolCall{tc}},
					}},
				})
			}
		case engine.EventFinished:
			if ev.Err != nil {
				writeEvent(ErrorResponse{Error: ErrorBody{
					Kind: string(ev.Err.Kind), Message: ev.Err.Message,
					Provider: ev.Err.Provider, Model: ev.Err.Model, RequestID: requestID,
				}})
				fmt.Fprint(w, "data: [DONE]\n\n")
				if flusher != nil {
					flusher.Flush()
				}
				return
			}
			run := ev.Run
			finishReason := "stop"
			if len(toolCalls) > 0 {
				finishReason = "tool_calls"
			}
			choice := Choice{Index: 0, Delta: &ChatMessage{}, FinishReason: finishReason}
			if run != nil {
				choice.FeedbackToken = run.FeedbackToken
			}
			resp := ChatCompletionResponse{
				Object:  "chat.completion.chunk",
				Model:   model,
				Choices: []Choice{choice},
			}
			if run != nil {
				resp.CostUSD = run.CostUSD
				resp.DurationSeconds = run.WallClock.Seconds()
				if includeUsage {
					resp.Usage = &Usage{
						PromptTokens:     run.InputTokens,
						CompletionTokens: run.OutputTokens,
						TotalTokens:      run.InputTokens + run.OutputTokens,
					}
				}
				if run.Status == engine.StatusSuccess {
					h.storeCached(tenant, cacheKey, ChatCompletionResponse{
						ID:     run.ID,
						Object: "chat.completion",
						Model:  model,
						Choices: []Choice{{
							Index:         0,
							Message:       &ChatMessage{Role: "assistant", Content: text.String(), ToolCalls: toolCalls},
							FinishReason:  finishReason,
							FeedbackToken: run.FeedbackToken,
						}},
						Usage: &Usage{
							PromptTokens:     run.InputTokens,
							CompletionTokens: run.OutputTokens,
							TotalTokens:      run.InputTokens + run.OutputTokens,
						},
						CostUSD:         run.CostUSD,
						DurationSeconds: run.WallClock.Seconds(),
					})
				}
			}
			writeEvent(resp)
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}
