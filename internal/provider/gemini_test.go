package provider

import (
	"encoding/json"
	"testing"

	"google.golang.org/genai"
)

func TestConvertGeminiMessagesUser(t *testing.T) {
	contents, err := convertGeminiMessages([]Message{{Role: "user", Content: "hello"}})
	if err != nil {
		t.Fatalf("convertGeminiMessages() error = %v", err)
	}
	if len(contents) != 1 || contents[0].Role != genai.RoleUser {
		t.Errorf("contents = %+v, want one user content", contents)
	}
}

func TestConvertGeminiMessagesAssistantWithFunctionCall(t *testing.T) {
	contents, err := convertGeminiMessages([]Message{
		{Role: "assistant", ToolCalls: []ToolCall{
			{Name: "search", Input: json.RawMessage(`{"q":"go"}`)},
		}},
	})
	if err != nil {
		t.Fatalf("convertGeminiMessages() error = %v", err)
	}
	if len(contents) != 1 || contents[0].Role != genai.RoleModel {
		t.Errorf("contents = %+v, want one model content", contents)
	}
	if len(contents[0].Parts) != 1 || contents[0].Parts[0].FunctionCall == nil {
		t.Fatalf("expected a function call part, got %+v", contents[0].Parts)
	}
}

func TestConvertGeminiMessagesToolResult(t *testing.T) {
	contents, err := convertGeminiMessages([]Message{
		{Role: "tool", ToolResults: []ToolResult{{ToolCallID: "search", Content: "42"}}},
	})
	if err != nil {
		t.Fatalf("convertGeminiMessages() error = %v", err)
	}
	if len(contents) != 1 || len(contents[0].Parts) != 1 || contents[0].Parts[0].FunctionResponse == nil {
		t.Fatalf("expected a function response part, got %+v", contents)
	}
}

func TestConvertGeminiMessagesRejectsUnknownRole(t *testing.T) {
	if _, err := convertGeminiMessages([]Message{{Role: "narrator"}}); err == nil {
		t.Error("expected error for unsupported role")
	}
}

func TestBuildGeminiConfigSetsSystemAndTools(t *testing.T) {
	req := &CompletionRequest{
		System:    "be helpful",
		MaxTokens: 256,
		Tools: []Tool{
			{Name: "search", Description: "web search", Schema: json.RawMessage(`{"type":"object"}`)},
		},
	}
	config := buildGeminiConfig(req)
	if config.SystemInstruction == nil {
		t.Error("expected SystemInstruction to be set")
	}
	if config.MaxOutputTokens != 256 {
		t.Errorf("MaxOutputTokens = %d, want 256", config.MaxOutputTokens)
	}
	if len(config.Tools) != 1 || len(config.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("expected one tool with one function declaration, got %+v", config.Tools)
	}
}

func TestGenerateToolCallIDIsUnique(t *testing.T) {
	a := generateToolCallID("search")
	b := generateToolCallID("search")
	if a == b {
		t.Error("expected distinct IDs across calls")
	}
}
