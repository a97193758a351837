package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// perplexityEndpoint is Perplexity's chat-completions-compatible API.
const perplexityEndpoint = "https://api.perplexity.ai/chat/completions"

// PerplexityClient is the shared HTTP client the three perplexity-sonar*
// tools dispatch through, differing only in which model they request.
type PerplexityClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewPerplexityClient builds a client authenticated with apiKey.
func NewPerplexityClient(apiKey string) *PerplexityClient {
	return &PerplexityClient{apiKey: apiKey, endpoint: perplexityEndpoint, httpClient: &http.Client{Timeout: httpTimeout}}
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Query asks model the given question and returns its answer plus any
// source citations Perplexity attaches to the response.
func (c *PerplexityClient) Query(ctx context.Context, model, query string) (answer string, citations []string, err error) {
	body, err := json.Marshal(perplexityRequest{
		Model:    model,
		Messages: []perplexityMessage{{Role: "user", Content: query}},
	})
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("perplexity: unexpected status %d", resp.StatusCode)
	}

	var parsed perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", nil, fmt.Errorf("perplexity: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", nil, fmt.Errorf("perplexity: empty response")
	}
	return parsed.Choices[0].Message.Content, parsed.Citations, nil
}

// PerplexityTool is one of perplexity-sonar, perplexity-sonar-pro or
// perplexity-sonar-reasoning; they share a PerplexityClient and differ
// only in the model name they request.
type PerplexityTool struct {
	client *PerplexityClient
	name   string
	model  string
	desc   string
}

// NewPerplexitySonarTools builds the three perplexity-sonar* hosted
// tools against the given client.
func NewPerplexitySonarTools(client *PerplexityClient) []*PerplexityTool {
	return []*PerplexityTool{
		{client: client, name: "perplexity-sonar", model: "sonar",
			desc: "Ask Perplexity's sonar model a question and get a cited answer."},
		{client: client, name: "perplexity-sonar-pro", model: "sonar-pro",
			desc: "Ask Perplexity's sonar-pro model a question and get a cited answer, with deeper search."},
		{client: client, name: "perplexity-sonar-reasoning", model: "sonar-reasoning",
			desc: "Ask Perplexity's sonar-reasoning model a question that benefits from multi-step reasoning, and get a cited answer."},
	}
}

func (t *PerplexityTool) Name() string        { return t.name }
func (t *PerplexityTool) Description() string { return t.desc }

type perplexityArgs struct {
	Query string `json:"query"`
}

type perplexityResult struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
}

func (t *PerplexityTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, bool, error) {
	var args perplexityArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return errorResult(fmt.Errorf("invalid arguments: %w", err))
	}
	if args.Query == "" {
		return errorResult(fmt.Errorf("query is required"))
	}

	answer, citations, err := t.client.Query(ctx, t.model, args.Query)
	if err != nil {
		return errorResult(err)
	}
	return okResult(perplexityResult{Answer: answer, Citations: citations})
}
