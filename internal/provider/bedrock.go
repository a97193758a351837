package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// Bedrock adapts the chat-completions protocol to AWS Bedrock's Converse
// streaming API, giving the Router access to foundation models (Claude,
// Titan, Llama) hosted on Bedrock without a separate driver per model
// family.
type Bedrock struct {
	Base
	client *bedrockruntime.Client
}

// NewBedrock builds a Bedrock adapter from explicit credentials, or the
// default AWS credential chain when accessKeyID is empty.
func NewBedrock(ctx context.Context, region, accessKeyID, secretAccessKey string) (*Bedrock, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	if accessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &Bedrock{Base: NewBase("bedrock", 3, time.Second), client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (p *Bedrock) Capabilities(model string) Capabilities {
	return Capabilities{SupportsTools: true, SupportsVision: true, SupportsStreaming: true}
}

func (p *Bedrock) Execute(ctx context.Context, req *CompletionRequest) (<-chan *Chunk, error) {
	if p.client == nil {
		return nil, errors.New("bedrock: client not configured")
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

	messages, err := convertBedrockMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("bedrock: convert messages: %w", err)
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(req.Model),
		Messages: messages,
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		converseReq.InferenceConfig = &types.InferenceConfiguration{
			// #nosec G115 -- bounded above
			MaxTokens: aws.Int32(int32(maxTokens)),
		}
	}
	if len(req.Tools) > 0 {
		converseReq.ToolConfig = convertBedrockTools(req.Tools)
	}

	var stream *bedrockruntime.ConverseStreamOutput
	retryErr := p.Retry(ctx, func(err error) bool {
		return ClassifyError("bedrock", req.Model, err).Reason.IsRetryable()
	}, func() error {
		s, err := p.client.ConverseStream(ctx, converseReq)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if retryErr != nil {
		return nil, ClassifyError("bedrock", req.Model, retryErr)
	}

	admitted = false
	chunks := make(chan *Chunk)
	go func() {
		defer p.Release()
		processBedrockStream(ctx, stream, req.Model, chunks)
	}()
	return chunks, nil
}

func processBedrockStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, model string, chunks chan<- *Chunk) {
	defer close(chunks)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var currentToolCall *ToolCall
	var toolInput strings.Builder
	toolIndex := 0

	events := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			chunks <- &Chunk{Kind: ChunkFinish, Err: ctx.Err(), Done: true}
			return
		case event, ok := <-events:
			if !ok {
				if currentToolCall != nil && currentToolCall.ID != "" {
					currentToolCall.Input = json.RawMessage(toolInput.String())
					chunks <- &Chunk{Kind: ChunkToolCallDelta, ToolCallIndex: toolIndex, ToolCall: currentToolCall, ToolCallDone: true}
				}
				if err := eventStream.Err(); err != nil {
					chunks <- &Chunk{Kind: ChunkFinish, Err: ClassifyError("bedrock", model, err), Done: true}
				} else {
					chunks <- &Chunk{Kind: ChunkFinish, Done: true}
				}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					currentToolCall = &ToolCall{ID: aws.ToString(toolUse.Value.ToolUseId), Name: aws.ToString(toolUse.Value.Name)}
					toolInput.Reset()
				}
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						chunks <- &Chunk{Kind: ChunkTextDelta, Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						toolInput.WriteString(*delta.Value.Input)
					}
				}
			case *types.ConverseStreamOutputMemberContentBlockStop:
				if currentToolCall != nil && currentToolCall.ID != "" {
					currentToolCall.Input = json.RawMessage(toolInput.String())
					chunks <- &Chunk{Kind: ChunkToolCallDelta, ToolCallIndex: toolIndex, ToolCall: currentToolCall, ToolCallDone: true}
					toolIndex++
					currentToolCall = nil
					toolInput.Reset()
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				chunks <- &Chunk{Kind: ChunkFinish, Done: true}
				return
			}
		}
	}
}

func convertBedrockMessages(messages []Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			blocks := []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Content}}
			result = append(result, types.Message{Role: types.ConversationRoleUser, Content: blocks})
		case "assistant":
			blocks := []types.ContentBlock{}
			if msg.Content != "" {
				blocks = append(blocks, &types.ContentBlockMemberText{Value: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var parsed any
				_ = json.Unmarshal(tc.Input, &parsed)
				blocks = append(blocks, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{ToolUseId: aws.String(tc.ID), Name: aws.String(tc.Name), Input: document.NewLazyDocument(parsed)},
				})
			}
			result = append(result, types.Message{Role: types.ConversationRoleAssistant, Content: blocks})
		case "tool":
			var blocks []types.ContentBlock
			for _, tr := range msg.ToolResults {
				status := types.ToolResultStatusSuccess
				if tr.IsError {
					status = types.ToolResultStatusError
				}
				blocks = append(blocks, &types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(tr.ToolCallID),
						Status:    status,
						Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
					},
				})
			}
			result = append(result, types.Message{Role: types.ConversationRoleUser, Content: blocks})
		default:
			return nil, fmt.Errorf("bedrock: unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}

func convertBedrockTools(tools []Tool) *types.ToolConfiguration {
	specs := make([]types.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Schema, &schema)
		specs = append(specs, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(t.Name),
				Description: aws.String(t.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: specs}
}
