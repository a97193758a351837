package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testGoogleBackend(t *testing.T, srv *httptest.Server) *GoogleSearchBackend {
	t.Helper()
	b := NewGoogleSearchBackend("key", "cx")
	b.baseURL = srv.URL
	b.httpClient = srv.Client()
	return b
}

func TestGoogleSearchBackendSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"title":"Example","link":"https://example.com","snippet":"an example"}]}`))
	}))
	defer srv.Close()

	results, err := testGoogleBackend(t, srv).Search(context.Background(), "example query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Example" || results[0].URL != "https://example.com" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestGoogleSearchBackendSearchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testGoogleBackend(t, srv).Search(context.Background(), "x")
	if err == nil {
		t.Fatalf("expected an error for a non-200 upstream response")
	}
}

func TestWebSearchToolExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"title":"Example","link":"https://example.com","snippet":"an example"}]}`))
	}))
	defer srv.Close()

	tool := NewWebSearchTool(testGoogleBackend(t, srv))

	result, isError, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if isError {
		t.Fatalf("expected isError=false, result=%s", result)
	}

	var decoded []SearchResult
	if err := json.Unmarshal([]byte(result), &decoded); err != nil {
		t.Fatalf("result is not a SearchResult list: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Title != "Example" {
		t.Fatalf("unexpected decoded results: %+v", decoded)
	}
}

func TestWebSearchToolExecuteMissingQuery(t *testing.T) {
	tool := NewWebSearchTool(NewGoogleSearchBackend("key", "cx"))

	result, isError, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isError {
		t.Fatalf("expected isError=true for missing query, got result=%s", result)
	}
}

func TestWebSearchToolExecuteInvalidArgs(t *testing.T) {
	tool := NewWebSearchTool(NewGoogleSearchBackend("key", "cx"))

	_, isError, err := tool.Execute(context.Background(), json.RawMessage(`not json`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isError {
		t.Fatalf("expected isError=true for invalid arguments")
	}
}

func TestWebSearchToolExecuteBackendError(t *testing.T) {
	tool := NewWebSearchTool(failingBackend{})

	_, isError, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isError {
		t.Fatalf("expected isError=true when the backend fails")
	}
}

type failingBackend struct{}

func (failingBackend) Search(ctx context.Context, query string) ([]SearchResult, error) {
	return nil, context.DeadlineExceeded
}

func TestWebSearchToolName(t *testing.T) {
	tool := NewWebSearchTool(NewGoogleSearchBackend("key", "cx"))
	if tool.Name() != "web-search" {
		t.Fatalf("unexpected name: %s", tool.Name())
	}
}
