package template

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// applyFilter runs one named filter over v, following the filter design
// in the deployment-config templating engine this package supersedes
// (default/upper/title/join/first/last carried forward; truncate and
// length added for prompt rendering).
func applyFilter(v any, call filterCall, ctx *evalContext) (any, error) {
	switch call.name {
	case "default":
		if v == nil || v == "" {
			if len(call.args) == 0 {
				return nil, fmt.Errorf("template: default filter requires one argument")
			}
			return call.args[0].eval(ctx)
		}
		return v, nil
	case "upper":
		return strings.ToUpper(toString(v)), nil
	case "lower":
		return strings.ToLower(toString(v)), nil
	case "title":
		return cases.Title(language.English).String(toString(v)), nil
	case "trim":
		return strings.TrimSpace(toString(v)), nil
	case "length":
		return float64(length(v)), nil
	case "truncate":
		n := 80
		if len(call.args) > 0 {
			if arg, err := call.args[0].eval(ctx); err == nil {
				if f, ok := arg.(float64); ok {
					n = int(f)
				}
			}
		}
		s := toString(v)
		if len(s) <= n {
			return s, nil
		}
		return s[:n] + "...", nil
	case "join":
		sep := ", "
		if len(call.args) > 0 {
			if arg, err := call.args[0].eval(ctx); err == nil {
				sep = toString(arg)
			}
		}
		items, ok := v.([]any)
		if !ok {
			return toString(v), nil
		}
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = toString(it)
		}
		return strings.Join(parts, sep), nil
	case "first":
		items, ok := v.([]any)
		if !ok || len(items) == 0 {
			return nil, nil
		}
		return items[0], nil
	case "last":
		items, ok := v.([]any)
		if !ok || len(items) == 0 {
			return nil, nil
		}
		return items[len(items)-1], nil
	default:
		return nil, fmt.Errorf("template: unknown filter %q", call.name)
	}
}

func length(v any) int {
	switch val := v.(type) {
	case string:
		return len(val)
	case []any:
		return len(val)
	case map[string]any:
		return len(val)
	default:
		return 0
	}
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
