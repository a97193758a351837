package engine

import "github.com/workflowai/runengine/internal/catalog"

// computeCost applies a model's per-million-token prices to the token
// counts accumulated over a Run's completions.
func computeCost(m *catalog.Model, inputTokens, outputTokens int) float64 {
	if m == nil {
		return 0
	}
	return float64(inputTokens)*m.InputPrice/1_000_000 + float64(outputTokens)*m.OutputPrice/1_000_000
}

// contextWindowUsagePercent is min(100, floor((input+output)*100/window)),
// or 0 when the window is unknown.
func contextWindowUsagePercent(inputTokens, outputTokens, contextWindow int) float64 {
	if contextWindow <= 0 {
		return 0
	}
	pct := (inputTokens + outputTokens) * 100 / contextWindow
	if pct > 100 {
		pct = 100
	}
	return float64(pct)
}
