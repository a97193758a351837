package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// maxEmptyStreamEvents bounds how many consecutive events a stream may
// produce with no observable effect (no text, no tool delta, no usage)
// before it is treated as malformed and the Attempt is failed.
const maxEmptyStreamEvents = 50

// Anthropic adapts the chat-completions protocol to Claude's native
// Messages API via anthropic-sdk-go.
type Anthropic struct {
	Base
	client *anthropic.Client
}

// NewAnthropic builds an Anthropic adapter.
func NewAnthropic(apiKey, baseURL string) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{Base: NewBase("anthropic", 3, time.Second), client: &client}
}

func (p *Anthropic) Capabilities(model string) Capabilities {
	return Capabilities{
		SupportsTools:     true,
		SupportsVision:    true,
		SupportsStreaming: true,
		SupportsJSONMode:  false,
	}
}

func (p *Anthropic) Execute(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	if p.client == nil {
		return nil, errors.New("anthropic: client not configured")
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

	messages, err := convertAnthropicMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("anthropic: convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}
	if req.MaxTokens <= 0 {
		params.MaxTokens = 4096
	}

	var stream interface {
		Next() bool
		Current() anthropic.MessageStreamEventUnion
		Err() error
	}
	retryErr := p.Retry(ctx, func(err error) bool {
		return ClassifyError("anthropic", req.Model, err).Reason.IsRetryable()
	}, func() error {
		s := p.client.Messages.NewStreaming(ctx, params)
		stream = s
		return nil
	})
	if retryErr != nil {
		return nil, ClassifyError("anthropic", req.Model, retryErr)
	}

	admitted = false
	chunks := make(chan *Chunk)
	go func() {
		defer p.Release()
		processAnthropicStream(stream, req.Model, chunks)
	}()
	return chunks, nil
}

func processAnthropicStream(stream interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
}, model string, chunks chan<- *Chunk) {
	defer close(chunks)

	var currentToolCall *ToolCall
	var currentToolInput strings.Builder
	emptyEventCount := 0
	toolIndex := 0

	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- &Chunk{Kind: ChunkTextDelta, Text: delta.Text}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentToolInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.Input = json.RawMessage(currentToolInput.String())
				chunks <- &Chunk{Kind: ChunkToolCallDelta, ToolCallIndex: toolIndex, ToolCall: currentToolCall, ToolCallDone: true}
				toolIndex++
				currentToolCall = nil
				processed = true
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
			processed = true

		case "message_stop":
			chunks <- &Chunk{Kind: ChunkUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
			chunks <- &Chunk{Kind: ChunkFinish, Done: true}
			return

		case "error":
			chunks <- &Chunk{Kind: ChunkFinish, Err: ClassifyError("anthropic", model, errors.New("anthropic stream error")), Done: true}
			return
		}

		if processed {
			emptyEventCount = 0
		} else {
			emptyEventCount++
			if emptyEventCount >= maxEmptyStreamEvents {
				chunks <- &Chunk{
					Kind: ChunkFinish,
					Err: ClassifyError("anthropic", model,
						fmt.Errorf("stream appears malformed: %d consecutive empty events", emptyEventCount)),
					Done: true,
				}
				return
			}
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- &Chunk{Kind: ChunkFinish, Err: ClassifyError("anthropic", model, err), Done: true}
	}
}

func convertAnthropicMessages(messages []Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)}
			for _, a := range msg.Attachments {
				if a.Kind != "image" {
					continue
				}
				if len(a.Data) > 0 {
					blocks = append(blocks, anthropic.NewImageBlockBase64(a.MimeType, base64.StdEncoding.EncodeToString(a.Data)))
				} else if a.URL != "" {
					blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: a.URL}))
				}
			}
			result = append(result, anthropic.NewUserMessage(blocks...))
		case "assistant":
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input any
				_ = json.Unmarshal(tc.Input, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			for _, tr := range msg.ToolResults {
				result = append(result, anthropic.NewUserMessage(
					anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError),
				))
			}
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}

func convertAnthropicTools(tools []Tool) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema anthropic.ToolInputSchemaParam
		if len(t.Schema) > 0 {
			var raw map[string]any
			if err := json.Unmarshal(t.Schema, &raw); err == nil {
				if props, ok := raw["properties"]; ok {
					schema.Properties = props
				}
			}
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: schema,
			},
		})
	}
	return result
}
