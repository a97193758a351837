package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/workflowai/runengine/internal/assembler"
	"github.com/workflowai/runengine/internal/engine"
	"github.com/workflowai/runengine/internal/provider"
	"github.com/workflowai/runengine/internal/store"
)

func toProviderMessages(in []ChatMessage) []provider.Message {
	out := make([]provider.Message, len(in))
	for i, m := range in {
		out[i] = provider.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func fromProviderMessages(in []provider.Message) []ChatMessage {
	out := make([]ChatMessage, len(in))
	for i, m := range in {
		out[i] = ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func toProviderTools(in []ToolDef) []provider.Tool {
	out := make([]provider.Tool, 0, len(in))
	for _, t := range in {
		out = append(out, provider.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Schema:      t.Function.Parameters,
		})
	}
	return out
}

func fromProviderToolCall(tc *provider.ToolCall) ToolCall {
	if tc == nil {
		return ToolCall{}
	}
	return ToolCall{
		ID:   tc.ID,
		Type: "function",
		Function: ToolCallFunc{
			Name:      tc.Name,
			Arguments: string(tc.Input),
		},
	}
}

func runSummaryView(s store.RunSummary) RunSummaryView {
	return RunSummaryView{
		ID:                        s.ID,
		Tenant:                    s.Tenant,
		AgentID:                   s.AgentID,
		Model:                     s.Model,
		Provider:                  s.Provider,
		Status:                    string(s.Status),
		CostUSD:                   s.CostUSD,
		InputTokens:               s.InputTokens,
		OutputTokens:              s.OutputTokens,
		ContextWindowUsagePercent: s.ContextWindowUsagePercent,
		Metadata:                  s.Metadata,
		CreatedAt:                 s.CreatedAt.Format(timeLayout),
	}
}

func runView(r *engine.Run) RunView {
	return RunView{
		ID:                        r.ID,
		Tenant:                    r.Tenant,
		AgentID:                   r.AgentID,
		VersionID:                 r.VersionID,
		SchemaID:                  r.SchemaID,
		Model:                     r.Model,
		Provider:                  r.Provider,
		Messages:                  fromProviderMessages(r.RequestMessages),
		Response:                  fromProviderMessages(r.ResponseMessages),
		InputTokens:               r.InputTokens,
		OutputTokens:              r.OutputTokens,
		CostUSD:                   r.CostUSD,
		ContextWindowUsagePercent: r.ContextWindowUsagePercent,
		Status:                    string(r.Status),
		ErrorKind:                 string(r.ErrorKind),
		ErrorText:                 r.ErrorText,
		Metadata:                  r.Metadata,
		CreatedAt:                 r.CreatedAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// estimateTokens is a rough chars/4 heuristic used only to rank Router
// candidates before the provider reports real usage.
func estimateTokens(messages []provider.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}

// cacheFingerprint identifies a use_cache=auto candidate: the resolved
// schema fingerprint (already a hash of the referenced input keys and
// output schema) plus a hash of the fully-rendered messages and the
// sampling parameters that affect output, so two requests only collide
// when everything the model actually sees is identical.
func cacheFingerprint(result *assembler.Result, maxTokens int, temperature float64) string {
	h := sha256.New()
	h.Write([]byte(result.SchemaFingerprint))
	h.Write([]byte{0})
	h.Write([]byte(result.Model))
	h.Write([]byte{0})
	for _, m := range result.Messages {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%d|%g", maxTokens, temperature)
	return hex.EncodeToString(h.Sum(nil))
}
