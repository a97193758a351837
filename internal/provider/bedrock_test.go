package provider

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

func TestConvertBedrockMessagesUser(t *testing.T) {
	msgs, err := convertBedrockMessages([]Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("convertBedrockMessages() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != types.ConversationRoleUser {
		t.Errorf("msgs = %+v, want one user message", msgs)
	}
}

func TestConvertBedrockMessagesAssistantWithToolCall(t *testing.T) {
	msgs, err := convertBedrockMessages([]Message{
		{Role: "assistant", Content: "checking", ToolCalls: []ToolCall{
			{ID: "tool_1", Name: "search", Input: json.RawMessage(`{"q":"go"}`)},
		}},
	})
	if err != nil {
		t.Fatalf("convertBedrockMessages() error = %v", err)
	}
	if len(msgs) != 1 || len(msgs[0].Content) != 2 {
		t.Fatalf("msgs = %+v, want one message with text + tool use blocks", msgs)
	}
}

func TestConvertBedrockMessagesToolResult(t *testing.T) {
	msgs, err := convertBedrockMessages([]Message{
		{Role: "tool", ToolResults: []ToolResult{{ToolCallID: "tool_1", Content: "42"}}},
	})
	if err != nil {
		t.Fatalf("convertBedrockMessages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
}

func TestConvertBedrockMessagesRejectsUnknownRole(t *testing.T) {
	if _, err := convertBedrockMessages([]Message{{Role: "narrator"}}); err == nil {
		t.Error("expected error for unsupported role")
	}
}

func TestConvertBedrockTools(t *testing.T) {
	config := convertBedrockTools([]Tool{
		{Name: "search", Description: "web search", Schema: json.RawMessage(`{"type":"object"}`)},
	})
	if config == nil || len(config.Tools) != 1 {
		t.Fatalf("config.Tools = %+v, want one entry", config)
	}
}
