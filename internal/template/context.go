package template

import "fmt"

// evalContext resolves dotted variable paths against a stack of scopes,
// innermost (for-loop locals) first. The outermost scope is the run's
// variable bag assembled by the Prompt Assembler.
type evalContext struct {
	scopes []map[string]any
}

func newEvalContext(vars map[string]any) *evalContext {
	return &evalContext{scopes: []map[string]any{vars}}
}

func (c *evalContext) push(scope map[string]any) {
	c.scopes = append(c.scopes, scope)
}

func (c *evalContext) pop() {
	c.scopes = c.scopes[:len(c.scopes)-1]
}

func (c *evalContext) lookup(parts []string) (any, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("template: empty variable path")
	}

	var root any
	found := false
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][parts[0]]; ok {
			root, found = v, true
			break
		}
	}
	if !found {
		return nil, nil
	}

	cur := root
	for _, p := range parts[1:] {
		switch m := cur.(type) {
		case map[string]any:
			cur = m[p]
		default:
			return nil, nil
		}
	}
	return cur, nil
}
