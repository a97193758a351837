package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type stubTool struct {
	name    string
	desc    string
	result  string
	isError bool
	err     error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.desc }
func (s *stubTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, bool, error) {
	return s.result, s.isError, s.err
}

func TestOrchestratorInvokeDispatchesByName(t *testing.T) {
	o := New(&stubTool{name: "web-search", desc: "search the web", result: `{"ok":true}`})

	result, isError, err := o.Invoke(context.Background(), "web-search", json.RawMessage(`{"query":"x"}`))
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if isError {
		t.Fatalf("expected isError=false")
	}
	if result != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestOrchestratorInvokeUnknownTool(t *testing.T) {
	o := New()
	_, _, err := o.Invoke(context.Background(), "does-not-exist", nil)
	if err == nil {
		t.Fatalf("expected an error for an unregistered tool")
	}
	var unk *ErrUnknownTool
	if !errors.As(err, &unk) {
		t.Fatalf("expected *ErrUnknownTool, got %T: %v", err, err)
	}
	if unk.Name != "does-not-exist" {
		t.Fatalf("unexpected name on error: %s", unk.Name)
	}
}

func TestOrchestratorLookupSatisfiesHostedToolRegistry(t *testing.T) {
	o := New(&stubTool{name: "browser-text", desc: "fetch a page"})

	hosted, ok := o.Lookup("browser-text")
	if !ok {
		t.Fatalf("expected browser-text to be registered")
	}
	if hosted.Name != "browser-text" || hosted.Description != "fetch a page" {
		t.Fatalf("unexpected hosted tool: %+v", hosted)
	}

	if _, ok := o.Lookup("nope"); ok {
		t.Fatalf("expected Lookup to report false for an unregistered name")
	}
}

func TestOrchestratorHostedIsSortedByName(t *testing.T) {
	o := New(
		&stubTool{name: "perplexity-sonar-pro", desc: "b"},
		&stubTool{name: "browser-text", desc: "a"},
		&stubTool{name: "web-search", desc: "c"},
	)

	hosted := o.Hosted()
	if len(hosted) != 3 {
		t.Fatalf("expected 3 hosted tools, got %d", len(hosted))
	}
	for i := 1; i < len(hosted); i++ {
		if hosted[i-1].Name > hosted[i].Name {
			t.Fatalf("hosted tools not sorted: %v", hosted)
		}
	}
}
