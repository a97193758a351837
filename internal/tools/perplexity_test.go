package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testPerplexityClient(t *testing.T, srv *httptest.Server) *PerplexityClient {
	t.Helper()
	c := NewPerplexityClient("key")
	c.endpoint = srv.URL
	c.httpClient = srv.Client()
	return c
}

func TestPerplexityClientQuery(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req perplexityRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"the answer"}}],"citations":["https://example.com"]}`))
	}))
	defer srv.Close()

	answer, citations, err := testPerplexityClient(t, srv).Query(context.Background(), "sonar-pro", "what is go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "the answer" {
		t.Fatalf("unexpected answer: %s", answer)
	}
	if len(citations) != 1 || citations[0] != "https://example.com" {
		t.Fatalf("unexpected citations: %v", citations)
	}
	if gotModel != "sonar-pro" {
		t.Fatalf("expected model sonar-pro to reach upstream, got %s", gotModel)
	}
}

func TestNewPerplexitySonarToolsHaveDistinctModelsAndSharedClient(t *testing.T) {
	client := NewPerplexityClient("key")
	tools := NewPerplexitySonarTools(client)
	if len(tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(tools))
	}

	names := map[string]bool{}
	models := map[string]bool{}
	for _, tool := range tools {
		if tool.client != client {
			t.Fatalf("expected tool %s to share the given client", tool.name)
		}
		names[tool.name] = true
		models[tool.model] = true
	}
	for _, want := range []string{"perplexity-sonar", "perplexity-sonar-pro", "perplexity-sonar-reasoning"} {
		if !names[want] {
			t.Fatalf("expected tool named %s", want)
		}
	}
	if len(models) != 3 {
		t.Fatalf("expected 3 distinct models, got %v", models)
	}
}

func TestPerplexityToolExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"answer"}}],"citations":[]}`))
	}))
	defer srv.Close()

	tools := NewPerplexitySonarTools(testPerplexityClient(t, srv))
	result, isError, err := tools[0].Execute(context.Background(), json.RawMessage(`{"query":"hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isError {
		t.Fatalf("expected isError=false, result=%s", result)
	}
}

func TestPerplexityToolExecuteMissingQuery(t *testing.T) {
	tools := NewPerplexitySonarTools(NewPerplexityClient("key"))
	_, isError, err := tools[0].Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isError {
		t.Fatalf("expected isError=true for missing query")
	}
}

func TestPerplexityToolExecuteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tools := NewPerplexitySonarTools(testPerplexityClient(t, srv))
	_, isError, err := tools[0].Execute(context.Background(), json.RawMessage(`{"query":"hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isError {
		t.Fatalf("expected isError=true on upstream failure")
	}
}
