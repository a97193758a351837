package store

import (
	"fmt"
	"strings"
)

// hotFieldColumns maps a FieldQuery's Field to its runs-table column,
// for every field that isn't a metadata.<key> predicate.
var hotFieldColumns = map[string]string{
	"created_at":                   "created_at",
	"model":                        "model",
	"provider":                     "provider",
	"status":                       "status",
	"cost":                         "cost_usd",
	"input_tokens":                 "input_tokens",
	"output_tokens":                "output_tokens",
	"context_window_usage_percent": "context_window_usage_percent",
}

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

// compileWhere turns tenant/agentID plus a conjunction of FieldQuery
// predicates into a single parameterized WHERE clause (without the
// leading "WHERE") and its positional arguments, starting numbering at
// startArg (Postgres placeholders are global to the statement, so a
// caller embedding this into a larger query controls where numbering
// begins).
func compileWhere(tenant, agentID string, queries []FieldQuery, startArg int) (string, []any, error) {
	var clauses []string
	var args []any
	arg := startArg

	nextPlaceholder := func(v any) string {
		args = append(args, v)
		p := fmt.Sprintf("$%d", arg)
		arg++
		return p
	}

	clauses = append(clauses, fmt.Sprintf("tenant = %s", nextPlaceholder(tenant)))
	if agentID != "" {
		clauses = append(clauses, fmt.Sprintf("agent_id = %s", nextPlaceholder(agentID)))
	}

	for _, q := range queries {
		clause, err := compileFieldQuery(q, nextPlaceholder)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
	}

	return strings.Join(clauses, " AND "), args, nil
}

func compileFieldQuery(q FieldQuery, placeholder func(any) string) (string, error) {
	if key, ok := strings.CutPrefix(q.Field, "metadata."); ok {
		return compileMetadataQuery(key, q, placeholder)
	}

	column, ok := hotFieldColumns[q.Field]
	if !ok {
		return "", fmt.Errorf("store: unsupported search field %q", q.Field)
	}

	switch q.Op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		return fmt.Sprintf("%s %s %s", column, sqlOps[q.Op], placeholder(q.Value)), nil
	case OpContains:
		return fmt.Sprintf("%s LIKE %s", column, placeholder("%"+fmt.Sprint(q.Value)+"%")), nil
	case OpIn:
		values, ok := q.Value.([]any)
		if !ok {
			return "", fmt.Errorf("store: %q requires a list value for op=in", q.Field)
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = placeholder(v)
		}
		return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")), nil
	default:
		return "", fmt.Errorf("store: unsupported operator %q for field %q", q.Op, q.Field)
	}
}

// compileMetadataQuery builds an EXISTS subquery joining run_metadata,
// since metadata predicates narrow a side table rather than a runs
// column.
func compileMetadataQuery(key string, q FieldQuery, placeholder func(any) string) (string, error) {
	keyPlaceholder := placeholder(key)

	var valueClause string
	switch q.Op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		valueClause = fmt.Sprintf("value %s %s", sqlOps[q.Op], placeholder(fmt.Sprint(q.Value)))
	case OpContains:
		valueClause = fmt.Sprintf("value LIKE %s", placeholder("%"+fmt.Sprint(q.Value)+"%"))
	case OpIn:
		values, ok := q.Value.([]any)
		if !ok {
			return "", fmt.Errorf("store: metadata.%s requires a list value for op=in", key)
		}
		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = placeholder(fmt.Sprint(v))
		}
		valueClause = fmt.Sprintf("value IN (%s)", strings.Join(placeholders, ", "))
	default:
		return "", fmt.Errorf("store: unsupported operator %q for metadata.%s", q.Op, key)
	}

	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM run_metadata WHERE run_metadata.run_id = runs.id AND run_metadata.key = %s AND %s)",
		keyPlaceholder, valueClause,
	), nil
}
