// Package tools implements the Tool Orchestrator: the registry of
// server-side "hosted" tools the Run Engine can dispatch a tool call to,
// and the @tool-name registry the Prompt Assembler expands against.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/workflowai/runengine/internal/assembler"
)

// Tool is one hosted tool the Orchestrator can dispatch a call to.
// Execute never returns a non-nil error for an ordinary tool failure
// (a bad URL, an upstream 500, …): those become isError=true results so
// the model can recover mid-run. A non-nil error means the tool itself
// could not run at all (unknown tool, disabled backend).
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, argsJSON json.RawMessage) (resultJSON string, isError bool, err error)
}

// ErrUnknownTool is returned by Invoke when no registered tool matches
// the requested name.
type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// Orchestrator dispatches tool calls by name and doubles as the hosted
// tool registry the Prompt Assembler consults for @tool-name expansion.
// It satisfies both engine.ToolInvoker and assembler.HostedToolRegistry.
type Orchestrator struct {
	tools map[string]Tool
}

// New builds an Orchestrator from the given tools, keyed by their own
// Name(). Tools with a disabled backend (e.g. web-search with no API
// key configured) should simply be omitted by the caller rather than
// registered in a disabled state.
func New(registered ...Tool) *Orchestrator {
	o := &Orchestrator{tools: make(map[string]Tool, len(registered))}
	for _, t := range registered {
		o.tools[t.Name()] = t
	}
	return o
}

// Invoke implements engine.ToolInvoker.
func (o *Orchestrator) Invoke(ctx context.Context, name string, argsJSON json.RawMessage) (string, bool, error) {
	t, ok := o.tools[name]
	if !ok {
		return "", false, &ErrUnknownTool{Name: name}
	}
	return t.Execute(ctx, argsJSON)
}

// Lookup implements assembler.HostedToolRegistry.
func (o *Orchestrator) Lookup(name string) (assembler.HostedTool, bool) {
	t, ok := o.tools[name]
	if !ok {
		return assembler.HostedTool{}, false
	}
	return assembler.HostedTool{Name: t.Name(), Description: t.Description()}, true
}

// Hosted lists every registered tool's name and description, sorted by
// name, for the GET /v1/tools/hosted endpoint.
func (o *Orchestrator) Hosted() []assembler.HostedTool {
	out := make([]assembler.HostedTool, 0, len(o.tools))
	for _, t := range o.tools {
		out = append(out, assembler.HostedTool{Name: t.Name(), Description: t.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// errorResult marshals a {"error": "..."} tool-result body, the shape
// every hosted tool returns on a recoverable failure instead of
// propagating a Go error up through Invoke.
func errorResult(err error) (string, bool, error) {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b), true, nil
}

// okResult marshals v as the tool-result body of a successful call.
func okResult(v any) (string, bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResult(err)
	}
	return string(b), false, nil
}

// httpTimeout is the shared default for hosted tools' outbound HTTP
// clients; per-call cancellation still comes from ctx via
// engine.Config.ToolTimeout.
const httpTimeout = 15 * time.Second
