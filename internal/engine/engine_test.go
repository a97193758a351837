package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/workflowai/runengine/internal/catalog"
	"github.com/workflowai/runengine/internal/provider"
	"github.com/workflowai/runengine/internal/router"
)

// scriptedAdapter streams back a fixed sequence of Chunks per call,
// advancing through a list of scripts (one per Execute invocation) so a
// test can simulate a failing first attempt and a succeeding second one.
type scriptedAdapter struct {
	name    string
	scripts [][]*provider.Chunk
	errs    []error
	calls   int
}

func (a *scriptedAdapter) Name() string { return a.name }

func (a *scriptedAdapter) Capabilities(model string) provider.Capabilities {
	return provider.Capabilities{SupportsTools: true, SupportsStreaming: true}
}

func (a *scriptedAdapter) Execute(ctx context.Context, req *provider.CompletionRequest) (<-chan *provider.Chunk, error) {
	i := a.calls
	a.calls++
	if i < len(a.errs) && a.errs[i] != nil {
		return nil, a.errs[i]
	}
	if i >= len(a.scripts) {
		// Script exhausted: repeat the last one so a test with more
		// candidate (provider, model) pairs than scripted calls doesn't
		// panic on an out-of-range index.
		i = len(a.scripts) - 1
	}
	ch := make(chan *provider.Chunk, len(a.scripts[i]))
	for _, c := range a.scripts[i] {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type stubStore struct {
	saved []*Run
}

func (s *stubStore) Save(run *Run) error {
	s.saved = append(s.saved, run)
	return nil
}

type stubSigner struct{}

func (stubSigner) Sign(runID string) (string, error) { return "token_" + runID, nil }

type stubTools struct {
	results map[string]string
}

func (s *stubTools) Invoke(ctx context.Context, name string, argsJSON json.RawMessage) (string, bool, error) {
	if r, ok := s.results[name]; ok {
		return r, false, nil
	}
	return "", true, errors.New("unknown tool " + name)
}

func testCatalogAndRouter(adapter provider.Adapter, providerName catalog.Provider) (*catalog.Catalog, *router.Router) {
	cat := catalog.New()
	cat.Register(&catalog.Model{
		ID:            "test-model",
		Provider:      providerName,
		ContextWindow: 1000,
		Capabilities:  []catalog.Capability{catalog.CapTools, catalog.CapStreaming},
		InputPrice:    1.0,
		OutputPrice:   2.0,
	})
	adapters := map[catalog.Provider]provider.Adapter{providerName: adapter}
	return cat, router.New(cat, adapters, router.NewHealthTracker())
}

func drain(t *testing.T, events <-chan *Event) []*Event {
	t.Helper()
	var got []*Event
	for e := range events {
		got = append(got, e)
	}
	return got
}

func TestExecuteSuccessNoTools(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "anthropic",
		scripts: [][]*provider.Chunk{
			{
				{Kind: provider.ChunkTextDelta, Text: "Hello"},
				{Kind: provider.ChunkTextDelta, Text: " world"},
				{Kind: provider.ChunkFinish, FinishReason: "stop", InputTokens: 10, OutputTokens: 5},
			},
		},
	}
	cat, rtr := testCatalogAndRouter(adapter, catalog.ProviderAnthropic)
	e := New(rtr, nil, &stubStore{}, stubSigner{}, cat, DefaultConfig(), nil)

	req := &Request{
		Model:    "test-model",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	}
	events, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	got := drain(t, events)
	var final *Event
	var text string
	for _, ev := range got {
		if ev.Kind == EventChunk {
			text += ev.TextDelta
		}
		if ev.Kind == EventFinished {
			final = ev
		}
	}
	if text != "Hello world" {
		t.Errorf("accumulated text = %q, want %q", text, "Hello world")
	}
	if final == nil || final.Run == nil {
		t.Fatal("expected a EventFinished carrying a Run")
	}
	if final.Run.Status != StatusSuccess {
		t.Errorf("Run.Status = %q, want success", final.Run.Status)
	}
	if final.Run.InputTokens != 10 || final.Run.OutputTokens != 5 {
		t.Errorf("tokens = %d/%d, want 10/5", final.Run.InputTokens, final.Run.OutputTokens)
	}
	wantCost := 10.0*1.0/1_000_000 + 5.0*2.0/1_000_000
	if final.Run.CostUSD != wantCost {
		t.Errorf("CostUSD = %v, want %v", final.Run.CostUSD, wantCost)
	}
	if final.Run.FeedbackToken == "" {
		t.Error("expected a feedback token on a successful run")
	}
}

func TestExecuteWithToolCallRoundTrip(t *testing.T) {
	adapter := &scriptedAdapter{
		name: "anthropic",
		scripts: [][]*provider.Chunk{
			{
				{Kind: provider.ChunkToolCallDelta, ToolCallIndex: 0, ToolCall: &provider.ToolCall{ID: "call_1", Name: "websearch", Input: json.RawMessage(`{"query":"go"}`)}},
				{Kind: provider.ChunkFinish, FinishReason: "tool_calls"},
			},
			{
				{Kind: provider.ChunkTextDelta, Text: "Here you go"},
				{Kind: provider.ChunkFinish, FinishReason: "stop", InputTokens: 3, OutputTokens: 4},
			},
		},
	}
	cat, rtr := testCatalogAndRouter(adapter, catalog.ProviderAnthropic)
	tools := &stubTools{results: map[string]string{"websearch": `{"results":[]}`}}
	e := New(rtr, tools, &stubStore{}, stubSigner{}, cat, DefaultConfig(), nil)

	req := &Request{
		Model:    "test-model",
		Messages: []provider.Message{{Role: "user", Content: "search for go"}},
	}
	events, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	var sawToolCalled, sawToolReturned bool
	var final *Event
	for ev := range events {
		switch ev.Kind {
		case EventToolCalled:
			sawToolCalled = true
		case EventToolReturned:
			sawToolReturned = true
			if ev.ToolResult != `{"results":[]}` {
				t.Errorf("tool result = %q", ev.ToolResult)
			}
		case EventFinished:
			final = ev
		}
	}
	if !sawToolCalled || !sawToolReturned {
		t.Fatal("expected both EventToolCalled and EventToolReturned")
	}
	if final == nil || final.Run.Status != StatusSuccess {
		t.Fatalf("final run = %+v, want success", final)
	}
	if len(final.Run.ToolCalls) != 1 || final.Run.ToolCalls[0].Name != "websearch" {
		t.Fatalf("Run.ToolCalls = %+v, want one websearch call", final.Run.ToolCalls)
	}
}

func TestExecuteFailsOverOnRetryableError(t *testing.T) {
	failing := &scriptedAdapter{
		name:    "anthropic",
		scripts: [][]*provider.Chunk{nil},
		errs:    []error{provider.NewError(provider.ReasonOverloaded, "anthropic", "test-model", errors.New("503"))},
	}
	succeeding := &scriptedAdapter{
		name: "openai",
		scripts: [][]*provider.Chunk{
			{
				{Kind: provider.ChunkTextDelta, Text: "ok"},
				{Kind: provider.ChunkFinish, FinishReason: "stop", InputTokens: 1, OutputTokens: 1},
			},
		},
	}

	cat := catalog.New()
	cat.Register(&catalog.Model{ID: "model-a", Provider: catalog.ProviderAnthropic, ContextWindow: 100, Capabilities: []catalog.Capability{catalog.CapStreaming}})
	cat.Register(&catalog.Model{ID: "model-b", Provider: catalog.ProviderOpenAI, ContextWindow: 100, Capabilities: []catalog.Capability{catalog.CapStreaming}})
	adapters := map[catalog.Provider]provider.Adapter{
		catalog.ProviderAnthropic: failing,
		catalog.ProviderOpenAI:    succeeding,
	}
	rtr := router.New(cat, adapters, router.NewHealthTracker())
	e := New(rtr, nil, &stubStore{}, stubSigner{}, cat, DefaultConfig(), nil)

	req := &Request{
		Model:    "model-a",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	}
	events, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	var sawAttemptFailed bool
	var final *Event
	for ev := range events {
		if ev.Kind == EventAttemptFailed {
			sawAttemptFailed = true
		}
		if ev.Kind == EventFinished {
			final = ev
		}
	}
	if !sawAttemptFailed {
		t.Error("expected at least one EventAttemptFailed before success")
	}
	if final == nil || final.Run.Status != StatusSuccess {
		t.Fatalf("final run = %+v, want success after failover", final)
	}
	if final.Run.Provider != "openai" {
		t.Errorf("Run.Provider = %q, want the surviving openai attempt to have produced the final completion", final.Run.Provider)
	}
	if len(final.Run.Attempts) < 2 {
		t.Fatalf("Run.Attempts = %+v, want at least one failed attempt before the succeeding one", final.Run.Attempts)
	}
}

func TestExecuteTerminalErrorDoesNotRetry(t *testing.T) {
	adapter := &scriptedAdapter{
		name:    "anthropic",
		scripts: [][]*provider.Chunk{nil},
		errs:    []error{provider.NewError(provider.ReasonAuthFailed, "anthropic", "test-model", errors.New("401"))},
	}
	cat, rtr := testCatalogAndRouter(adapter, catalog.ProviderAnthropic)
	e := New(rtr, nil, &stubStore{}, stubSigner{}, cat, DefaultConfig(), nil)

	req := &Request{
		Model:    "test-model",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	}
	events, err := e.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	final := lastEvent(events)
	if final == nil || final.Run.Status != StatusFailed {
		t.Fatalf("final run = %+v, want failed", final)
	}
	if final.Run.ErrorKind != ErrAuthFailed {
		t.Errorf("ErrorKind = %q, want auth_failed", final.Run.ErrorKind)
	}
}

func TestExecuteRejectsEmptyMessages(t *testing.T) {
	cat, rtr := testCatalogAndRouter(&scriptedAdapter{name: "anthropic"}, catalog.ProviderAnthropic)
	e := New(rtr, nil, nil, nil, cat, DefaultConfig(), nil)

	_, err := e.Execute(context.Background(), &Request{Model: "test-model"})
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Kind != ErrInvalidRequest {
		t.Fatalf("Execute error = %v, want *RunError{Kind: invalid_request}", err)
	}
}

func TestExecuteCancellationPersistsCancelledRun(t *testing.T) {
	blocking := &blockingAdapter{}
	cat, rtr := testCatalogAndRouter(blocking, catalog.ProviderAnthropic)
	store := &stubStore{}
	e := New(rtr, nil, store, stubSigner{}, cat, DefaultConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := &Request{
		Model:    "test-model",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	}
	events, err := e.Execute(ctx, req)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	final := lastEvent(events)
	if final == nil || final.Run.Status != StatusCancelled {
		t.Fatalf("final run = %+v, want cancelled", final)
	}
	if final.Run.FeedbackToken != "" {
		t.Error("a cancelled run must not carry a feedback token")
	}
}

type blockingAdapter struct{}

func (blockingAdapter) Name() string { return "anthropic" }
func (blockingAdapter) Capabilities(model string) provider.Capabilities {
	return provider.Capabilities{SupportsStreaming: true}
}
func (blockingAdapter) Execute(ctx context.Context, req *provider.CompletionRequest) (<-chan *provider.Chunk, error) {
	// Never sends and never closes: the only way streamPhase can
	// observe an event on this channel is via ctx.Done(), exercising
	// the cancellation path deterministically.
	ch := make(chan *provider.Chunk)
	return ch, nil
}

func lastEvent(events <-chan *Event) *Event {
	var last *Event
	for e := range events {
		last = e
	}
	return last
}
