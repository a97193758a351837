package provider

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

func TestConvertAnthropicMessagesUser(t *testing.T) {
	msgs, err := convertAnthropicMessages([]Message{
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("convertAnthropicMessages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
}

func TestConvertAnthropicMessagesAssistantWithToolCall(t *testing.T) {
	msgs, err := convertAnthropicMessages([]Message{
		{Role: "assistant", Content: "let me check", ToolCalls: []ToolCall{
			{ID: "toolu_1", Name: "search", Input: json.RawMessage(`{"q":"go"}`)},
		}},
	})
	if err != nil {
		t.Fatalf("convertAnthropicMessages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
}

func TestConvertAnthropicMessagesToolResult(t *testing.T) {
	msgs, err := convertAnthropicMessages([]Message{
		{Role: "tool", ToolResults: []ToolResult{
			{ToolCallID: "toolu_1", Content: "42"},
		}},
	})
	if err != nil {
		t.Fatalf("convertAnthropicMessages() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
}

func TestConvertAnthropicMessagesRejectsUnknownRole(t *testing.T) {
	if _, err := convertAnthropicMessages([]Message{{Role: "narrator"}}); err == nil {
		t.Error("expected error for unsupported role")
	}
}

func TestConvertAnthropicTools(t *testing.T) {
	tools := convertAnthropicTools([]Tool{
		{Name: "search", Description: "web search", Schema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}}}`)},
	})
	if len(tools) != 1 {
		t.Fatalf("len(tools) = %d, want 1", len(tools))
	}
	if tools[0].OfTool == nil || tools[0].OfTool.Name != "search" {
		t.Errorf("tools[0].OfTool = %+v, want name search", tools[0].OfTool)
	}
}

// fakeAnthropicStream emits a run of empty (zero-value) events, which
// carry no text/tool-call/usage payload, to exercise the malformed-stream
// guard in processAnthropicStream.
type fakeAnthropicStream struct {
	remaining int
}

func (f *fakeAnthropicStream) Next() bool {
	if f.remaining <= 0 {
		return false
	}
	f.remaining--
	return true
}

func (f *fakeAnthropicStream) Current() anthropic.MessageStreamEventUnion {
	return anthropic.MessageStreamEventUnion{}
}

func (f *fakeAnthropicStream) Err() error { return nil }

func TestProcessAnthropicStreamMalformedStreamStopsEarly(t *testing.T) {
	stream := &fakeAnthropicStream{remaining: maxEmptyStreamEvents + 5}
	chunks := make(chan *Chunk, maxEmptyStreamEvents+10)

	// processAnthropicStream closes chunks itself before returning.
	processAnthropicStream(stream, "claude-3", chunks)

	var sawErr bool
	for c := range chunks {
		if c.Kind == ChunkFinish && c.Err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Error("expected a Finish chunk with an error after too many empty events")
	}
}
