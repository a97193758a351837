package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// SearchResult is one entry in a web-search response.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchBackend abstracts the provider behind the web-search tool. One
// concrete backend is registered at process startup, selected by
// whether tool_search_api_key is configured.
type SearchBackend interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

const googleSearchBaseURL = "https://www.googleapis.com/customsearch/v1"

// GoogleSearchBackend queries the Google Custom Search JSON API.
type GoogleSearchBackend struct {
	APIKey         string
	SearchEngineID string
	baseURL        string
	httpClient     *http.Client
}

// NewGoogleSearchBackend builds a backend against Google's Custom Search
// API. searchEngineID is the "cx" parameter of a configured Programmable
// Search Engine.
func NewGoogleSearchBackend(apiKey, searchEngineID string) *GoogleSearchBackend {
	return &GoogleSearchBackend{
		APIKey:         apiKey,
		SearchEngineID: searchEngineID,
		baseURL:        googleSearchBaseURL,
		httpClient:     &http.Client{Timeout: httpTimeout},
	}
}

type googleSearchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (b *GoogleSearchBackend) Search(ctx context.Context, query string) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("key", b.APIKey)
	q.Set("cx", b.SearchEngineID)
	q.Set("q", query)

	reqURL := b.baseURL + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google custom search: unexpected status %d", resp.StatusCode)
	}

	var parsed googleSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("google custom search: decode response: %w", err)
	}

	results := make([]SearchResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, SearchResult{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

// WebSearchTool is the "web-search" hosted tool. It is only constructed
// when tool_search_api_key is present; callers that have no API key
// configured must omit it from both the Orchestrator and
// GET /v1/tools/hosted rather than registering it in a disabled state.
type WebSearchTool struct {
	backend SearchBackend
}

// NewWebSearchTool wraps backend as the "web-search" hosted tool.
func NewWebSearchTool(backend SearchBackend) *WebSearchTool {
	return &WebSearchTool{backend: backend}
}

func (t *WebSearchTool) Name() string { return "web-search" }

func (t *WebSearchTool) Description() string {
	return "Search the web and return a list of matching pages with title, URL and snippet."
}

type webSearchArgs struct {
	Query string `json:"query"`
}

func (t *WebSearchTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, bool, error) {
	var args webSearchArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(fmt.Errorf("invalid arguments: %w", err))
	}
	if args.Query == "" {
		return errorResult(fmt.Errorf("query is required"))
	}

	results, err := t.backend.Search(ctx, args.Query)
	if err != nil {
		return errorResult(err)
	}
	return okResult(results)
}
