package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/workflowai/runengine/internal/assembler"
	"github.com/workflowai/runengine/internal/cache"
	"github.com/workflowai/runengine/internal/catalog"
	"github.com/workflowai/runengine/internal/engine"
	"github.com/workflowai/runengine/internal/provider"
	"github.com/workflowai/runengine/internal/router"
)

type scriptedAdapter struct {
	chunks []*provider.Chunk
	calls  atomic.Int32
}

func (a *scriptedAdapter) Name() string { return "test-provider" }
func (a *scriptedAdapter) Capabilities(model string) provider.Capabilities {
	return provider.Capabilities{SupportsStreaming: true, SupportsTools: true}
}
func (a *scriptedAdapter) Execute(ctx context.Context, req *provider.CompletionRequest) (<-chan *provider.Chunk, error) {
	a.calls.Add(1)
	ch := make(chan *provider.Chunk, len(a.chunks))
	for _, c := range a.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type stubStore struct{}

func (stubStore) Save(run *engine.Run) error { return nil }

type stubSigner struct{}

func (stubSigner) Sign(runID string) (string, error) { return "token_" + runID, nil }

func buildEngineWithAdapter(t *testing.T) (*engine.Engine, *scriptedAdapter) {
	t.Helper()
	cat := catalog.New()
	cat.Register(&catalog.Model{
		ID:            "test-model",
		Provider:      "test-provider",
		ContextWindow: 1000,
		Capabilities:  []catalog.Capability{catalog.CapTools, catalog.CapStreaming},
		InputPrice:    1,
		OutputPrice:   2,
	})
	adapter := &scriptedAdapter{chunks: []*provider.Chunk{
		{Kind: provider.ChunkTextDelta, Text: "hello "},
		{Kind: provider.ChunkTextDelta, Text: "world"},
		{Kind: provider.ChunkFinish},
	}}
	rtr := router.New(cat, map[catalog.Provider]provider.Adapter{"test-provider": adapter}, router.NewHealthTracker())
	return engine.New(rtr, nil, stubStore{}, stubSigner{}, cat, engine.DefaultConfig(), nil), adapter
}

func buildEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, _ := buildEngineWithAdapter(t)
	return eng
}

func buildHandler(t *testing.T) *handler {
	t.Helper()
	asm := assembler.New(nil, nil, nil)
	return &handler{deps: Deps{
		Assembler: asm,
		Engine:    buildEngine(t),
		Catalog:   catalog.New(),
	}}
}

func buildHandlerWithCache(t *testing.T) (*handler, *scriptedAdapter) {
	t.Helper()
	asm := assembler.New(nil, nil, nil)
	eng, adapter := buildEngineWithAdapter(t)
	return &handler{deps: Deps{
		Assembler: asm,
		Engine:    eng,
		Catalog:   catalog.New(),
		Cache:     cache.New(time.Minute),
	}}, adapter
}

func TestHandleChatCompletionsNonStreaming(t *testing.T) {
	h := buildHandler(t)
	mux := newMux(h.deps)

	body := strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Choices[0].Message.Content != "hello world" {
		t.Fatalf("unexpected content: %q", resp.Choices[0].Message.Content)
	}
	if resp.Choices[0].FeedbackToken == "" {
		t.Fatalf("expected a feedback token")
	}
	if resp.ID == "" {
		t.Fatalf("expected a run id")
	}
}

func TestHandleChatCompletionsStreaming(t *testing.T) {
	h := buildHandler(t)
	mux := newMux(h.deps)

	body := strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := rec.Body.String()
	if !strings.Contains(out, "hello ") || !strings.Contains(out, "world") {
		t.Fatalf("expected streamed text deltas, got %q", out)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "data: [DONE]") {
		t.Fatalf("expected stream to end with [DONE], got %q", out)
	}
}

func TestHandleChatCompletionsStreamingOmitsUsageByDefault(t *testing.T) {
	h := buildHandler(t)
	mux := newMux(h.deps)

	body := strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"stream":true}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), `"usage"`) {
		t.Fatalf("expected no usage block without stream_options.include_usage, got %q", rec.Body.String())
	}
}

func TestHandleChatCompletionsStreamingIncludesUsageWhenRequested(t *testing.T) {
	h := buildHandler(t)
	mux := newMux(h.deps)

	body := strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"stream":true,"stream_options":{"include_usage":true}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"usage"`) {
		t.Fatalf("expected a usage block with stream_options.include_usage=true, got %q", rec.Body.String())
	}
}

func TestHandleChatCompletionsMaxTokensBelowFloorIsInvalidRequest(t *testing.T) {
	h := buildHandler(t)
	mux := newMux(h.deps)

	body := strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"max_tokens":-5}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for max_tokens below the provider floor, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleChatCompletionsMaxTokensExceedsContextWindow(t *testing.T) {
	h := buildHandler(t)
	mux := newMux(h.deps)

	body := strings.NewReader(`{"model":"test-model","messages":[{"role":"user","content":"hi"}],"max_tokens":5000}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for max_tokens exceeding the context window, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleChatCompletionsUseCacheServesSecondRequestFromCache(t *testing.T) {
	h, adapter := buildHandlerWithCache(t)
	mux := newMux(h.deps)

	body := `{"model":"test-model","messages":[{"role":"user","content":"hi"}],"temperature":0}`

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	if adapter.calls.Load() != 1 {
		t.Fatalf("expected the provider to be called once with a cache hit on the second request, got %d calls", adapter.calls.Load())
	}
}

func TestHandleChatCompletionsUseCacheNeverBypassesCache(t *testing.T) {
	h, adapter := buildHandlerWithCache(t)
	mux := newMux(h.deps)

	body := `{"model":"test-model","messages":[{"role":"user","content":"hi"}],"temperature":0,"extra_body":{"use_cache":"never"}}`

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	if adapter.calls.Load() != 2 {
		t.Fatalf("expected use_cache=never to bypass the cache on both requests, got %d calls", adapter.calls.Load())
	}
}

func TestHandleChatCompletionsUseCacheSkippedForNonZeroTemperature(t *testing.T) {
	h, adapter := buildHandlerWithCache(t)
	mux := newMux(h.deps)

	body := `{"model":"test-model","messages":[{"role":"user","content":"hi"}],"temperature":0.7}`

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	if adapter.calls.Load() != 2 {
		t.Fatalf("expected a non-zero temperature to bypass caching, got %d calls", adapter.calls.Load())
	}
}

func TestHandleChatCompletionsRejectsUnknownFields(t *testing.T) {
	h := buildHandler(t)
	mux := newMux(h.deps)

	body := strings.NewReader(`{"model":"test-model","bogus_field":true}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown field, got %d", rec.Code)
	}
}
