package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/workflowai/runengine/internal/catalog"
	"github.com/workflowai/runengine/internal/provider"
	"github.com/workflowai/runengine/internal/router"
)

const eventBufferDepth = 64

// Engine drives the Run Engine state machine: Init → PromptReady →
// Attempting(i) → Streaming → [ToolLoop → Attempting(i)]* → Finalizing →
// Persisted, with a Failed branch reachable from any Attempting state.
type Engine struct {
	router *router.Router
	tools  ToolInvoker
	store  RunStore
	signer FeedbackSigner
	cat    *catalog.Catalog
	config Config
	log    *slog.Logger

	persistQueue chan *Run

	now func() time.Time
}

// New builds an Engine and, when store is non-nil, starts the single
// worker that drains its persistence queue. tools, store and signer may
// be nil for callers that never execute tool calls, never persist or
// never issue feedback tokens (e.g. unit tests exercising only the
// streaming path).
func New(rtr *router.Router, tools ToolInvoker, store RunStore, signer FeedbackSigner, cat *catalog.Catalog, config Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if config.PersistQueueDepth <= 0 {
		config.PersistQueueDepth = 256
	}
	e := &Engine{
		router: rtr,
		tools:  tools,
		store:  store,
		signer: signer,
		cat:    cat,
		config: config,
		log:    log,
		now:    time.Now,
	}
	if store != nil {
		e.persistQueue = make(chan *Run, config.PersistQueueDepth)
		go e.drainPersistQueue()
	}
	return e
}

// drainPersistQueue is the single worker that calls RunStore.Save for
// every queued Run, keeping Finalizing/Failed/Cancelled's hand-off to
// persist non-blocking regardless of store latency.
func (e *Engine) drainPersistQueue() {
	for run := range e.persistQueue {
		if err := e.store.Save(run); err != nil {
			e.log.Error("run persistence failed", "run_id", run.ID, "error", err)
		}
	}
}

// Execute runs one Run to completion (or failure/cancellation) and
// streams structured Events back. The channel is closed after the
// EventFinished event or after a terminal error; callers needing the
// final Run should read it off the last Event's Run field.
func (e *Engine) Execute(ctx context.Context, req *Request) (<-chan *Event, error) {
	if req == nil {
		return nil, fmt.Errorf("engine: request is nil")
	}
	if len(req.Messages) == 0 {
		return nil, &RunError{Kind: ErrInvalidRequest, Message: "messages is empty"}
	}
	if err := e.validateMaxTokens(req); err != nil {
		return nil, err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("engine: generate run id: %w", err)
	}

	events := make(chan *Event, eventBufferDepth)
	go e.run(ctx, runID.String(), req, events)
	return events, nil
}

type runState struct {
	run      *Run
	messages []provider.Message
	started  time.Time
}

func (e *Engine) run(ctx context.Context, runID string, req *Request, events chan<- *Event) {
	defer close(events)

	st := &runState{
		run: &Run{
			ID:        runID,
			Tenant:    req.Tenant,
			AgentID:   req.AgentID,
			Metadata:  req.Metadata,
			VersionID: req.VersionID,
			SchemaID:  req.SchemaID,
			CreatedAt: e.now(),
		},
		messages: append([]provider.Message{}, req.Messages...),
		started:  e.now(),
	}
	st.run.RequestMessages = append([]provider.Message{}, req.Messages...)

	events <- &Event{Kind: EventStart}

	attempts, err := e.plan(req)
	if err != nil {
		e.fail(st, events, err)
		return
	}

	for i, attempt := range attempts {
		if ctx.Err() != nil {
			e.cancel(ctx, st, events)
			return
		}

		events <- &Event{Kind: EventAttemptStarted, Provider: string(attempt.Provider), Model: attempt.Model, Attempt: i}

		trace := AttemptTrace{Provider: string(attempt.Provider), Model: attempt.Model, Started: e.now()}
		runErr := e.runAttempt(ctx, attempt, req, st, events)
		trace.Finished = e.now()

		if runErr == nil {
			trace.Succeeded = true
			st.run.Attempts = append(st.run.Attempts, trace)
			e.finalize(st, events)
			return
		}

		trace.ErrorKind = runErr.Kind
		trace.ErrorText = runErr.Message
		st.run.Attempts = append(st.run.Attempts, trace)

		events <- &Event{Kind: EventAttemptFailed, Provider: string(attempt.Provider), Model: attempt.Model, Attempt: i, Err: runErr}

		if runErr.Kind == ErrCancelled {
			e.cancel(ctx, st, events)
			return
		}
		if !isRetryableKind(runErr.Kind) {
			e.fail(st, events, runErr)
			return
		}
		// otherwise: retryable, fall through to the next attempt
	}

	e.fail(st, events, &RunError{Kind: ErrProviderUnavailable, Message: "all attempts exhausted"})
}

func (e *Engine) plan(req *Request) ([]router.Attempt, *RunError) {
	if e.router == nil {
		return nil, &RunError{Kind: ErrInternal, Message: "no router configured"}
	}
	attempts, err := e.router.Plan(&router.Request{
		Model:                 req.Model,
		RequiredCapabilities:  req.RequiredCapabilities,
		Tools:                 req.Tools,
		EstimatedInputTokens:  req.EstimatedInputTokens,
		EstimatedOutputTokens: req.EstimatedOutputTokens,
		Tenant:                req.TenantPolicy,
	})
	if err != nil {
		return nil, &RunError{Kind: ErrProviderUnavailable, Message: err.Error()}
	}
	return attempts, nil
}

// runAttempt drives one Attempting(i) → Streaming → [ToolLoop →
// Attempting(i)]* cycle for a single (provider, model) pair, returning
// nil on a clean Finish(stop|length).
func (e *Engine) runAttempt(ctx context.Context, attempt router.Attempt, req *Request, st *runState, events chan<- *Event) *RunError {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if e.config.AttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.config.AttemptTimeout)
		defer cancel()
	}

	for turn := 0; ; turn++ {
		if turn > e.config.MaxToolTurns {
			return &RunError{Kind: ErrToolBudgetExceeded, Message: "tool turn budget exceeded", Provider: string(attempt.Provider), Model: attempt.Model}
		}

		maxTokens := req.MaxTokens
		if maxTokens == 0 {
			maxTokens = req.EstimatedOutputTokens
		}
		completionReq := &provider.CompletionRequest{
			Model:        attempt.Model,
			Messages:     st.messages,
			Tools:        req.Tools,
			MaxTokens:    maxTokens,
			IncludeUsage: req.IncludeUsage,
		}
		if req.Temperature != nil {
			completionReq.Temperature = *req.Temperature
		}

		chunks, err := attempt.Adapter.Execute(attemptCtx, completionReq)
		if err != nil {
			classified := provider.ClassifyError(string(attempt.Provider), attempt.Model, err)
			return &RunError{Kind: errorKindFromFailover(classified.Reason), Message: err.Error(), Provider: string(attempt.Provider), Model: attempt.Model}
		}

		outcome, runErr := e.streamPhase(attemptCtx, attempt, chunks, st, events)
		if runErr != nil {
			return runErr
		}

		switch outcome.finishReason {
		case "tool_calls":
			if len(outcome.toolCalls) == 0 {
				return &RunError{Kind: ErrInternal, Message: "finish reason tool_calls with no tool calls", Provider: string(attempt.Provider), Model: attempt.Model}
			}
			st.messages = append(st.messages, provider.Message{Role: "assistant", Content: outcome.text, ToolCalls: outcome.toolCalls})
			results := e.toolLoop(attemptCtx, outcome.toolCalls, st, events)
			st.messages = append(st.messages, provider.Message{Role: "tool", ToolResults: results})
			continue
		default:
			st.messages = append(st.messages, provider.Message{Role: "assistant", Content: outcome.text})
			st.run.ResponseMessages = append(st.run.ResponseMessages, provider.Message{Role: "assistant", Content: outcome.text})
			st.run.Model = attempt.Model
			st.run.Provider = string(attempt.Provider)
			st.run.InputTokens += outcome.inputTokens
			st.run.OutputTokens += outcome.outputTokens
			if m, ok := e.catalogModel(attempt.Model); ok {
				st.run.ContextWindow = m.ContextWindow
			}
			return nil
		}
	}
}

type streamOutcome struct {
	text         string
	toolCalls    []provider.ToolCall
	finishReason string
	inputTokens  int
	outputTokens int
}

// streamPhase relays TextDelta/ToolCallDelta to the client, accumulating
// the response buffer and tool-call fragments until Finish.
func (e *Engine) streamPhase(ctx context.Context, attempt router.Attempt, chunks <-chan *provider.Chunk, st *runState, events chan<- *Event) (*streamOutcome, *RunError) {
	out := &streamOutcome{}
	pending := make(map[int]*provider.ToolCall)
	var order []int

	idleTimer := e.config.IdleStreamTimeout

	for {
		var chunk *provider.Chunk
		var ok bool
		if idleTimer > 0 {
			timer := time.NewTimer(idleTimer)
			select {
			case chunk, ok = <-chunks:
				timer.Stop()
			case <-timer.C:
				return nil, &RunError{Kind: ErrProviderUnavailable, Message: "idle stream timeout", Provider: string(attempt.Provider), Model: attempt.Model}
			case <-ctx.Done():
				timer.Stop()
				return nil, &RunError{Kind: ErrCancelled, Message: ctx.Err().Error(), Provider: string(attempt.Provider), Model: attempt.Model}
			}
		} else {
			select {
			case chunk, ok = <-chunks:
			case <-ctx.Done():
				return nil, &RunError{Kind: ErrCancelled, Message: ctx.Err().Error(), Provider: string(attempt.Provider), Model: attempt.Model}
			}
		}

		if !ok {
			return nil, &RunError{Kind: ErrInternal, Message: "provider stream closed without Finish", Provider: string(attempt.Provider), Model: attempt.Model}
		}

		if chunk.Err != nil {
			classified := provider.ClassifyError(string(attempt.Provider), attempt.Model, chunk.Err)
			return nil, &RunError{Kind: errorKindFromFailover(classified.Reason), Message: chunk.Err.Error(), Provider: string(attempt.Provider), Model: attempt.Model}
		}

		switch chunk.Kind {
		case provider.ChunkTextDelta:
			out.text += chunk.Text
			events <- &Event{Kind: EventChunk, TextDelta: chunk.Text}
		case provider.ChunkToolCallDelta:
			if _, seen := pending[chunk.ToolCallIndex]; !seen {
				order = append(order, chunk.ToolCallIndex)
			}
			if chunk.ToolCall != nil {
				pending[chunk.ToolCallIndex] = chunk.ToolCall
			}
			events <- &Event{Kind: EventChunk, ToolCallDelta: chunk}
		case provider.ChunkUsage:
			out.inputTokens += chunk.InputTokens
			out.outputTokens += chunk.OutputTokens
		case provider.ChunkFinish:
			out.inputTokens += chunk.InputTokens
			out.outputTokens += chunk.OutputTokens
			out.finishReason = chunk.FinishReason
			for _, idx := range order {
				if tc := pending[idx]; tc != nil {
					out.toolCalls = append(out.toolCalls, *tc)
				}
			}
			return out, nil
		}
	}
}

// toolLoop dispatches tool calls concurrently, preserving result order
// by the original position of each call's first appearance in the
// stream rather than completion order.
func (e *Engine) toolLoop(ctx context.Context, calls []provider.ToolCall, st *runState, events chan<- *Event) []provider.ToolResult {
	results := make([]provider.ToolResult, len(calls))
	sem := make(chan struct{}, maxInt(1, e.config.ToolConcurrency))
	var wg sync.WaitGroup

	for i, call := range calls {
		events <- &Event{Kind: EventToolCalled, ToolName: call.Name, ToolCallID: call.ID}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call provider.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()

			toolCtx := ctx
			var cancel context.CancelFunc
			if e.config.ToolTimeout > 0 {
				toolCtx, cancel = context.WithTimeout(ctx, e.config.ToolTimeout)
				defer cancel()
			}

			result := e.invokeTool(toolCtx, call)
			results[i] = result

			st.run.ToolCalls = append(st.run.ToolCalls, ToolCallTrace{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Input,
				Result:    result.Content,
				IsError:   result.IsError,
				StartedAt: e.now(),
			})
		}(i, call)
	}
	wg.Wait()

	for i := range results {
		events <- &Event{Kind: EventToolReturned, ToolName: calls[i].Name, ToolCallID: calls[i].ID, ToolResult: results[i].Content, ToolError: results[i].IsError}
	}

	return results
}

func (e *Engine) invokeTool(ctx context.Context, call provider.ToolCall) provider.ToolResult {
	if e.tools == nil {
		return provider.ToolResult{ToolCallID: call.ID, Content: "no tool orchestrator configured", IsError: true}
	}
	resultJSON, isError, err := e.tools.Invoke(ctx, call.Name, call.Input)
	if err != nil {
		return provider.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
	}
	return provider.ToolResult{ToolCallID: call.ID, Content: resultJSON, IsError: isError}
}

func (e *Engine) finalize(st *runState, events chan<- *Event) {
	st.run.WallClock = e.now().Sub(st.started)
	st.run.Status = StatusSuccess
	st.run.ContextWindowUsagePercent = contextWindowUsagePercent(st.run.InputTokens, st.run.OutputTokens, st.run.ContextWindow)

	if m, ok := e.catalogModel(st.run.Model); ok {
		st.run.CostUSD = computeCost(m, st.run.InputTokens, st.run.OutputTokens)
	}

	if e.signer != nil {
		if token, err := e.signer.Sign(st.run.ID); err == nil {
			st.run.FeedbackToken = token
		} else {
			e.log.Warn("feedback token signing failed", "run_id", st.run.ID, "error", err)
		}
	}

	e.persist(st.run)
	events <- &Event{Kind: EventFinished, Run: st.run}
}

func (e *Engine) fail(st *runState, events chan<- *Event, runErr *RunError) {
	st.run.WallClock = e.now().Sub(st.started)
	st.run.Status = StatusFailed
	st.run.ErrorKind = runErr.Kind
	st.run.ErrorText = runErr.Message
	e.persist(st.run)
	events <- &Event{Kind: EventFinished, Err: runErr, Run: st.run}
}

func (e *Engine) cancel(ctx context.Context, st *runState, events chan<- *Event) {
	st.run.WallClock = e.now().Sub(st.started)
	st.run.Status = StatusCancelled
	st.run.ErrorKind = ErrCancelled
	if err := ctx.Err(); err != nil {
		st.run.ErrorText = err.Error()
	}
	// No feedback token is issued for a cancelled run.
	e.persist(st.run)
	events <- &Event{Kind: EventFinished, Err: &RunError{Kind: ErrCancelled, Message: st.run.ErrorText}, Run: st.run}
}

// persist enqueues run for the background save worker. It never blocks:
// a full queue means the store is falling behind, and the run is
// dropped (and logged) rather than delaying the caller's Finalizing/
// Failed/Cancelled transition.
func (e *Engine) persist(run *Run) {
	if e.store == nil || e.persistQueue == nil {
		return
	}
	if run.ID == "" {
		return
	}
	select {
	case e.persistQueue <- run:
	default:
		e.log.Error("run persistence queue full, dropping run", "run_id", run.ID)
	}
}

func (e *Engine) catalogModel(modelID string) (*catalog.Model, bool) {
	if e.cat == nil {
		return nil, false
	}
	return e.cat.Get(modelID)
}

// minOutputTokens is the floor every provider adapter imposes on
// max_tokens: a request for fewer tokens than this cannot produce a
// meaningful completion and every provider rejects it outright.
const minOutputTokens = 1

// validateMaxTokens enforces the two max_tokens boundary checks against
// the resolved model's catalog entry: too low for any provider to honor,
// or large enough that combined with the estimated input it would blow
// the model's context window.
func (e *Engine) validateMaxTokens(req *Request) error {
	if req.MaxTokens == 0 {
		// Wire-absent and an explicit zero are indistinguishable once
		// decoded; treat both as "caller left it to the default".
		return nil
	}
	if req.MaxTokens < minOutputTokens {
		return &RunError{Kind: ErrInvalidRequest, Message: fmt.Sprintf("max_tokens %d is below the provider floor of %d", req.MaxTokens, minOutputTokens)}
	}
	m, ok := e.catalogModel(req.Model)
	if !ok {
		return nil
	}
	if m.MaxOutputTokens > 0 && req.MaxTokens > m.MaxOutputTokens {
		return &RunError{Kind: ErrContextWindowExceed, Message: fmt.Sprintf("max_tokens %d exceeds %s's max output of %d", req.MaxTokens, m.ID, m.MaxOutputTokens), Model: m.ID}
	}
	if m.ContextWindow > 0 && req.EstimatedInputTokens+req.MaxTokens > m.ContextWindow {
		return &RunError{Kind: ErrContextWindowExceed, Message: fmt.Sprintf("max_tokens %d plus estimated input %d exceeds %s's context window of %d", req.MaxTokens, req.EstimatedInputTokens, m.ID, m.ContextWindow), Model: m.ID}
	}
	return nil
}

func isRetryableKind(kind ErrorKind) bool {
	switch kind {
	case ErrRateLimited, ErrProviderUnavailable, ErrInternal:
		return true
	default:
		return false
	}
}

func errorKindFromFailover(reason provider.FailoverReason) ErrorKind {
	switch reason {
	case provider.ReasonRateLimited:
		return ErrRateLimited
	case provider.ReasonOverloaded, provider.ReasonTimeout, provider.ReasonNetwork, provider.ReasonInternal:
		return ErrProviderUnavailable
	case provider.ReasonAuthFailed:
		return ErrAuthFailed
	case provider.ReasonContextWindow:
		return ErrContextWindowExceed
	case provider.ReasonContentFilter:
		return ErrContentFiltered
	case provider.ReasonBadRequest:
		return ErrInvalidRequest
	default:
		return ErrInternal
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
