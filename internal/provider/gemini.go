package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Gemini adapts the chat-completions protocol to Google's genai client.
type Gemini struct {
	Base
	client *genai.Client
}

// NewGemini builds a Gemini adapter against the public Gemini API.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{Base: NewBase("gemini", 3, time.Second), client: client}, nil
}

func (p *Gemini) Capabilities(model string) Capabilities {
	return Capabilities{SupportsTools: true, SupportsVision: true, SupportsStreaming: true}
}

func (p *Gemini) Execute(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	contents, err := convertGeminiMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("gemini: convert messages: %w", err)
	}
	config := buildGeminiConfig(req)

	if err := p.Admit(ctx); err != nil {
		return nil, err
	}

	chunks := make(chan *Chunk)
	go func() {
		defer close(chunks)
		defer p.Release()

		retryErr := p.Retry(ctx, func(err error) bool {
			return ClassifyError("gemini", req.Model, err).Reason.IsRetryable()
		}, func() error {
			streamIter := p.client.Models.GenerateContentStream(ctx, req.Model, contents, config)
			return processGeminiStream(ctx, streamIter, chunks)
		})
		if retryErr != nil {
			chunks <- &Chunk{Kind: ChunkFinish, Err: ClassifyError("gemini", req.Model, retryErr), Done: true}
			return
		}
		chunks <- &Chunk{Kind: ChunkFinish, Done: true}
	}()

	return chunks, nil
}

func processGeminiStream(ctx context.Context, streamIter func(func(*genai.GenerateContentResponse, error) bool), chunks chan<- *Chunk) error {
	var streamErr error
	toolIndex := 0
	streamIter(func(resp *genai.GenerateContentResponse, err error) bool {
		select {
		case <-ctx.Done():
			streamErr = ctx.Err()
			return false
		default:
		}
		if err != nil {
			streamErr = err
			return false
		}
		if resp == nil {
			return true
		}
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					chunks <- &Chunk{Kind: ChunkTextDelta, Text: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					chunks <- &Chunk{
						Kind:          ChunkToolCallDelta,
						ToolCallIndex: toolIndex,
						ToolCall: &ToolCall{
							ID:    generateToolCallID(part.FunctionCall.Name),
							Name:  part.FunctionCall.Name,
							Input: argsJSON,
						},
						ToolCallDone: true,
					}
					toolIndex++
				}
			}
		}
		return true
	})
	return streamErr
}

func convertGeminiMessages(messages []Message) ([]*genai.Content, error) {
	var result []*genai.Content
	for _, msg := range messages {
		content := &genai.Content{}
		switch msg.Role {
		case "user", "tool":
			content.Role = genai.RoleUser
		case "assistant":
			content.Role = genai.RoleModel
		default:
			return nil, fmt.Errorf("gemini: unsupported message role %q", msg.Role)
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal(tc.Input, &args)
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		for _, tr := range msg.ToolResults {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     tr.ToolCallID,
					Response: map[string]any{"content": tr.Content},
				},
			})
		}
		result = append(result, content)
	}
	return result, nil
}

func buildGeminiConfig(req *CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}
	if len(req.Tools) > 0 {
		var fns []*genai.FunctionDeclaration
		for _, t := range req.Tools {
			var schema map[string]any
			_ = json.Unmarshal(t.Schema, &schema)
			fns = append(fns, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: fns}}
	}
	return config
}

func generateToolCallID(name string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s-%s", name, hex.EncodeToString(b))
}
