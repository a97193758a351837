package template

import (
	"fmt"
	"strings"
)

// Template is a parsed prompt template, ready for repeated rendering
// against different variable bags.
type Template struct {
	nodes  []node
	source string
}

// Render executes the template against vars and returns the resulting
// text. vars is typically the Prompt Assembler's resolved variable bag
// (deployment defaults overlaid with run-supplied input).
func (t *Template) Render(vars map[string]any) (string, error) {
	var out strings.Builder
	ctx := newEvalContext(vars)
	for _, n := range t.nodes {
		if err := n.render(ctx, &out); err != nil {
			return "", err
		}
	}
	return out.String(), nil
}

// Variables returns the set of top-level variable names referenced
// anywhere in the template (output expressions, conditions and for-loop
// sources), used by the Prompt Assembler to validate that all referenced
// input keys are present before rendering. A for-loop's own variable is
// not an input and is not listed.
func (t *Template) Variables() []string {
	seen := make(map[string]struct{})
	bound := make(map[string]int)
	var names []string
	var walk func(nodes []node)
	collect := func(e expr) {
		if p, ok := e.(pathExpr); ok && len(p.parts) > 0 && bound[p.parts[0]] == 0 {
			if _, ok := seen[p.parts[0]]; !ok {
				seen[p.parts[0]] = struct{}{}
				names = append(names, p.parts[0])
			}
		}
	}
	walk = func(nodes []node) {
		for _, n := range nodes {
			switch v := n.(type) {
			case outputNode:
				collect(v.expr)
				for _, f := range v.filters {
					for _, a := range f.args {
						collect(a)
					}
				}
			case ifNode:
				for _, b := range v.branches {
					collectExprTree(b.cond, collect)
					walk(b.body)
				}
				walk(v.elseBody)
			case forNode:
				collect(v.listVar)
				bound[v.varName]++
				walk(v.body)
				bound[v.varName]--
			}
		}
	}
	walk(t.nodes)
	return names
}

// RequiredVariables returns the top-level variable names the Prompt
// Assembler must find in the input map before rendering: those referenced
// by an output expression with no `default(...)` filter in its pipeline,
// by an if/elif condition, or as a for-loop source. A for-loop's own
// variable is not an input and is not listed.
func (t *Template) RequiredVariables() []string {
	seen := make(map[string]struct{})
	bound := make(map[string]int)
	var names []string
	record := func(name string) {
		if _, ok := seen[name]; !ok && bound[name] == 0 {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	recordPath := func(e expr) {
		if p, ok := e.(pathExpr); ok && len(p.parts) > 0 {
			record(p.parts[0])
		}
	}

	var walk func(nodes []node)
	walk = func(nodes []node) {
		for _, n := range nodes {
			switch v := n.(type) {
			case outputNode:
				if hasDefaultFilter(v.filters) {
					continue
				}
				if p, ok := v.expr.(pathExpr); ok && len(p.parts) > 0 {
					record(p.parts[0])
				}
			case ifNode:
				for _, b := range v.branches {
					collectExprTree(b.cond, recordPath)
					walk(b.body)
				}
				walk(v.elseBody)
			case forNode:
				recordPath(v.listVar)
				bound[v.varName]++
				walk(v.body)
				bound[v.varName]--
			}
		}
	}
	walk(t.nodes)
	return names
}

func hasDefaultFilter(filters []filterCall) bool {
	for _, f := range filters {
		if f.name == "default" {
			return true
		}
	}
	return false
}

func collectExprTree(e expr, fn func(expr)) {
	switch v := e.(type) {
	case pathExpr:
		fn(v)
	case notExpr:
		collectExprTree(v.inner, fn)
	case binaryExpr:
		collectExprTree(v.left, fn)
		collectExprTree(v.right, fn)
	}
}

func (n textNode) render(_ *evalContext, out *strings.Builder) error {
	out.WriteString(n.text)
	return nil
}

func (n outputNode) render(ctx *evalContext, out *strings.Builder) error {
	v, err := n.expr.eval(ctx)
	if err != nil {
		return err
	}
	for _, f := range n.filters {
		v, err = applyFilter(v, f, ctx)
		if err != nil {
			return err
		}
	}
	out.WriteString(toString(v))
	return nil
}

func (n ifNode) render(ctx *evalContext, out *strings.Builder) error {
	for _, b := range n.branches {
		v, err := b.cond.eval(ctx)
		if err != nil {
			return err
		}
		if truthy(v) {
			return renderAll(b.body, ctx, out)
		}
	}
	if n.elseBody != nil {
		return renderAll(n.elseBody, ctx, out)
	}
	return nil
}

func (n forNode) render(ctx *evalContext, out *strings.Builder) error {
	listVal, err := n.listVar.eval(ctx)
	if err != nil {
		return err
	}
	items, ok := listVal.([]any)
	if !ok {
		if listVal == nil {
			return nil
		}
		return fmt.Errorf("template: for loop source is not a list (got %T)", listVal)
	}
	for _, item := range items {
		ctx.push(map[string]any{n.varName: item})
		err := renderAll(n.body, ctx, out)
		ctx.pop()
		if err != nil {
			return err
		}
	}
	return nil
}

func renderAll(nodes []node, ctx *evalContext, out *strings.Builder) error {
	for _, n := range nodes {
		if err := n.render(ctx, out); err != nil {
			return err
		}
	}
	return nil
}
