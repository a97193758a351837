package assembler

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/workflowai/runengine/internal/engine"
	"github.com/workflowai/runengine/internal/provider"
	"github.com/workflowai/runengine/internal/template"
)

var deploymentAliasPattern = regexp.MustCompile(`^([^/]+)/#(\d+)/(development|staging|production)$`)

var hostedToolRefPattern = regexp.MustCompile(`@([a-zA-Z0-9_-]+)`)

// ErrMissingInput marks a run-failing condition: a template referenced a
// variable with no default() filter that was not present in the request's
// input map.
type ErrMissingInput struct {
	Variable string
}

func (e *ErrMissingInput) Error() string {
	return fmt.Sprintf("assembler: missing required input %q", e.Variable)
}

// ErrUnknownHostedTool marks an @name reference, or an explicit
// HostedToolNames entry, that the registry does not recognize.
type ErrUnknownHostedTool struct {
	Name string
}

func (e *ErrUnknownHostedTool) Error() string {
	return fmt.Sprintf("assembler: unknown hosted tool %q", e.Name)
}

// ErrDeploymentNotFound marks an alias that parsed but has no matching
// deployment in the store.
type ErrDeploymentNotFound struct {
	Agent       string
	SchemaID    int
	Environment Environment
}

func (e *ErrDeploymentNotFound) Error() string {
	return fmt.Sprintf("assembler: no deployment for %s/#%d/%s", e.Agent, e.SchemaID, e.Environment)
}

// ErrRunNotFound marks a reply_to_run_id that does not resolve to a run
// owned by the requesting tenant, whether because no such run exists or
// because it belongs to a different tenant.
type ErrRunNotFound struct {
	RunID string
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("assembler: no run %q for this tenant", e.RunID)
}

// Assembler turns a Request into a Result ready for the Router: it
// resolves deployment aliases, prepends reply-to history, renders every
// message through the Template Renderer, expands hosted-tool references
// and fingerprints the resolved (template, schema) pair.
type Assembler struct {
	deployments DeploymentStore
	history     HistoryStore
	hostedTools HostedToolRegistry
}

// New builds an Assembler. history and hostedTools may be nil for callers
// that never use reply_to_run_id or @tool-name references.
func New(deployments DeploymentStore, history HistoryStore, hostedTools HostedToolRegistry) *Assembler {
	return &Assembler{deployments: deployments, history: history, hostedTools: hostedTools}
}

// ParseDeploymentAlias reports whether model has the deployment-alias
// shape "agent-name/#schema_id/environment", returning its parts when it
// does.
func ParseDeploymentAlias(model string) (agent string, schemaID int, env Environment, ok bool) {
	m := deploymentAliasPattern.FindStringSubmatch(model)
	if m == nil {
		return "", 0, "", false
	}
	id, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, "", false
	}
	return m[1], id, Environment(m[3]), true
}

// Assemble runs the full resolution pipeline: alias resolution, reply-to
// history, template rendering, hosted tool expansion and schema
// fingerprinting.
func (a *Assembler) Assemble(req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("assembler: request is nil")
	}

	model := req.Model
	var (
		versionID    string
		schemaID     int
		outputSchema json.RawMessage
		messages     []provider.Message
		tools        = append([]provider.Tool{}, req.Tools...)
	)

	agent, aliasSchemaID, env, isAlias := ParseDeploymentAlias(req.Model)
	if isAlias {
		version, found := a.deployments.ResolveDeployment(agent, aliasSchemaID, env)
		if !found {
			return nil, &ErrDeploymentNotFound{Agent: agent, SchemaID: aliasSchemaID, Environment: env}
		}
		model = version.Model
		versionID = version.ID
		schemaID = version.SchemaID
		outputSchema = version.OutputSchema
		tools = append(tools, version.Tools...)
		messages = version.Messages
	} else {
		messages = req.Messages
	}

	if req.ReplyToRunID != "" {
		// The deployment's stored template is not re-applied on this
		// path: continue from the caller's raw messages, prefixed with
		// the prior run's history.
		messages = req.Messages
		if a.history == nil {
			return nil, &ErrRunNotFound{RunID: req.ReplyToRunID}
		}
		hist, ok := a.history.Messages(req.Tenant, req.ReplyToRunID)
		if !ok {
			return nil, &ErrRunNotFound{RunID: req.ReplyToRunID}
		}
		messages = append(append([]provider.Message{}, hist...), messages...)
	}

	rendered, referencedInputs, err := a.renderMessages(messages, req.Input)
	if err != nil {
		return nil, err
	}

	rendered, hosted, err := a.expandHostedTools(rendered, req.HostedToolNames)
	if err != nil {
		return nil, err
	}

	fingerprint, err := SchemaFingerprint(referencedInputs, outputSchema)
	if err != nil {
		return nil, err
	}

	return &Result{
		Model:             model,
		Messages:          rendered,
		Tools:             tools,
		VersionID:         versionID,
		SchemaID:          schemaID,
		SchemaFingerprint: fingerprint,
		HostedTools:       hosted,
	}, nil
}

// renderMessages parses and renders every message's Content against
// input, returning the rendered messages plus the sorted union of every
// variable name referenced anywhere (used for the schema fingerprint). It
// fails with ErrMissingInput if a variable with no default() filter is
// absent from input.
func (a *Assembler) renderMessages(messages []provider.Message, input map[string]any) ([]provider.Message, []string, error) {
	rendered := make([]provider.Message, len(messages))
	seen := make(map[string]struct{})
	var referenced []string

	for i, msg := range messages {
		rendered[i] = msg
		if msg.Content == "" {
			continue
		}

		tmpl, err := template.Parse(msg.Content)
		if err != nil {
			return nil, nil, &engine.RunError{Kind: engine.ErrTemplateInvalid, Message: fmt.Sprintf("invalid template in message %d: %v", i, err)}
		}

		for _, v := range tmpl.RequiredVariables() {
			if _, ok := input[v]; !ok {
				return nil, nil, &ErrMissingInput{Variable: v}
			}
		}

		for _, v := range tmpl.Variables() {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				referenced = append(referenced, v)
			}
		}

		out, err := tmpl.Render(input)
		if err != nil {
			return nil, nil, &engine.RunError{Kind: engine.ErrTemplateInvalid, Message: fmt.Sprintf("render message %d: %v", i, err)}
		}
		rendered[i].Content = out
	}

	sort.Strings(referenced)
	return rendered, referenced, nil
}

// expandHostedTools replaces every "@tool-name" reference in a system
// message with a descriptive inline note and collects the referenced
// tools (plus any explicitly requested by name) into the returned slice.
func (a *Assembler) expandHostedTools(messages []provider.Message, extraNames []string) ([]provider.Message, []HostedTool, error) {
	registered := make(map[string]HostedTool)

	register := func(name string) error {
		if _, ok := registered[name]; ok {
			return nil
		}
		if a.hostedTools == nil {
			return &ErrUnknownHostedTool{Name: name}
		}
		tool, ok := a.hostedTools.Lookup(name)
		if !ok {
			return &ErrUnknownHostedTool{Name: name}
		}
		registered[name] = tool
		return nil
	}

	for _, name := range extraNames {
		if err := register(name); err != nil {
			return nil, nil, err
		}
	}

	result := make([]provider.Message, len(messages))
	for i, msg := range messages {
		result[i] = msg
		if msg.Role != "system" || !strings.Contains(msg.Content, "@") {
			continue
		}

		var expandErr error
		expanded := hostedToolRefPattern.ReplaceAllStringFunc(msg.Content, func(match string) string {
			if expandErr != nil {
				return match
			}
			name := strings.TrimPrefix(match, "@")
			if err := register(name); err != nil {
				expandErr = err
				return match
			}
			return fmt.Sprintf("%s (tool: %s)", registered[name].Description, name)
		})
		if expandErr != nil {
			return nil, nil, expandErr
		}
		result[i].Content = expanded
	}

	hosted := make([]HostedTool, 0, len(registered))
	for _, t := range registered {
		hosted = append(hosted, t)
	}
	sort.Slice(hosted, func(i, j int) bool { return hosted[i].Name < hosted[j].Name })

	return result, hosted, nil
}
