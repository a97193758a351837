package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI adapts the chat-completions wire protocol to an OpenAI-compatible
// backend via sashabaranov/go-openai.
type OpenAI struct {
	Base
	client *openai.Client
}

// NewOpenAI builds an OpenAI adapter. baseURL overrides the default
// api.openai.com endpoint when set, so the same driver also serves any
// OpenAI-compatible gateway.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{Base: NewBase("openai", 3, time.Second), client: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAI) Capabilities(model string) Capabilities {
	return Capabilities{
		SupportsTools:     true,
		SupportsVision:    true,
		SupportsStreaming: true,
		SupportsJSONMode:  true,
	}
}

func (p *OpenAI) Execute(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	if p.client == nil {
		return nil, errors.New("openai: client not configured")
	}
	if err := p.Admit(ctx); err != nil {
		return nil, err
	}
	admitted := true
	defer func() {
		if admitted {
			p.Release()
		}
	}()

	messages, err := convertOpenAIMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("openai: convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}
	if req.IncludeUsage {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	var stream *openai.ChatCompletionStream
	retryErr := p.Retry(ctx, isOpenAIRetryable, func() error {
		s, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if retryErr != nil {
		return nil, ClassifyError("openai", req.Model, retryErr)
	}

	admitted = false
	chunks := make(chan *Chunk)
	go func() {
		defer p.Release()
		processOpenAIStream(ctx, req.Model, stream, chunks)
	}()
	return chunks, nil
}

func isOpenAIRetryable(err error) bool {
	ce := ClassifyError("openai", "", err)
	return ce.Reason.IsRetryable()
}

func processOpenAIStream(ctx context.Context, model string, stream *openai.ChatCompletionStream, chunks chan<- *Chunk) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := make(map[int]*ToolCall)
	emitToolCalls := func() {
		for idx, tc := range toolCalls {
			if tc.ID != "" && tc.Name != "" {
				chunks <- &Chunk{Kind: ChunkToolCallDelta, ToolCallIndex: idx, ToolCall: tc, ToolCallDone: true}
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &Chunk{Kind: ChunkFinish, Err: ctx.Err(), Done: true}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				emitToolCalls()
				chunks <- &Chunk{Kind: ChunkFinish, Done: true}
				return
			}
			chunks <- &Chunk{Kind: ChunkFinish, Err: ClassifyError("openai", model, err), Done: true}
			return
		}

		if resp.Usage != nil {
			chunks <- &Chunk{Kind: ChunkUsage, InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			chunks <- &Chunk{Kind: ChunkTextDelta, Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if toolCalls[idx] == nil {
				toolCalls[idx] = &ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Input = json.RawMessage(string(toolCalls[idx].Input) + tc.Function.Arguments)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			emitToolCalls()
			toolCalls = make(map[int]*ToolCall)
			chunks <- &Chunk{Kind: ChunkFinish, FinishReason: "tool_calls"}
		} else if choice.FinishReason != "" {
			chunks <- &Chunk{Kind: ChunkFinish, FinishReason: string(choice.FinishReason)}
		}
	}
}

func convertOpenAIMessages(messages []Message, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "user", "system":
			if len(msg.Attachments) > 0 {
				parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: msg.Content}}
				for _, a := range msg.Attachments {
					if a.Kind != "image" {
						continue
					}
					url := a.URL
					if url == "" && len(a.Data) > 0 {
						url = fmt.Sprintf("data:%s;base64,%s", a.MimeType, base64.StdEncoding.EncodeToString(a.Data))
					}
					parts = append(parts, openai.ChatMessagePart{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: url},
					})
				}
				result = append(result, openai.ChatCompletionMessage{Role: msg.Role, MultiContent: parts})
			} else {
				result = append(result, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
			}
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			result = append(result, oaiMsg)
		case "tool":
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}

func convertOpenAITools(tools []Tool) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &params); err != nil {
				params = map[string]any{"type": "object", "properties": map[string]any{}}
			}
		} else {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return result
}
