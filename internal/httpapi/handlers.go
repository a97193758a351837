package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/workflowai/runengine/internal/assembler"
	"github.com/workflowai/runengine/internal/engine"
	"github.com/workflowai/runengine/internal/store"
)

// handleModels implements GET /v1/models.
func (h *handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if h.deps.Catalog == nil {
		writeJSON(w, http.StatusOK, []ModelDescriptor{})
		return
	}
	models := h.deps.Catalog.List(nil)
	out := make([]ModelDescriptor, 0, len(models))
	for _, m := range models {
		caps := make([]string, 0, len(m.Capabilities))
		for _, c := range m.Capabilities {
			caps = append(caps, string(c))
		}
		out = append(out, ModelDescriptor{
			ID:              m.ID,
			Provider:        string(m.Provider),
			Tier:            string(m.Tier),
			ContextWindow:   m.ContextWindow,
			MaxOutputTokens: m.MaxOutputTokens,
			Capabilities:    caps,
			InputPrice:      m.InputPrice,
			OutputPrice:     m.OutputPrice,
			Deprecated:      m.Deprecated,
			ReplacedBy:      m.ReplacedBy,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// handleHostedTools implements GET /v1/tools/hosted. Unauthenticated.
func (h *handler) handleHostedTools(w http.ResponseWriter, r *http.Request) {
	if h.deps.Tools == nil {
		writeJSON(w, http.StatusOK, []HostedToolDescriptor{})
		return
	}
	hosted := h.deps.Tools.Hosted()
	out := make([]HostedToolDescriptor, 0, len(hosted))
	for _, t := range hosted {
		out = append(out, HostedToolDescriptor{Name: t.Name, Description: t.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleFeedback implements POST /v1/feedback. Unauthenticated: the
// feedback_token itself is the only authorization required.
func (h *handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Signer == nil || h.deps.Feedback == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInternal), Message: "feedback is not configured", RequestID: requestID,
		}})
		return
	}

	var req FeedbackRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, status, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInvalidRequest), Message: err.Error(), RequestID: requestID,
		}})
		return
	}

	runID, err := h.deps.Signer.Verify(req.FeedbackToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrAuthFailed), Message: "invalid feedback token", RequestID: requestID,
		}})
		return
	}

	outcome := store.FeedbackOutcome(req.Outcome)
	if outcome != store.FeedbackPositive && outcome != store.FeedbackNegative {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInvalidRequest), Message: "outcome must be positive or negative", RequestID: requestID,
		}})
		return
	}

	if err := h.deps.Feedback.SaveFeedback(&store.Feedback{
		RunID:   runID,
		UserID:  req.UserID,
		Outcome: outcome,
		Comment: req.Comment,
	}); err != nil {
		writeErrorResponse(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleTenantScoped dispatches the /v1/{tenant}/agents/{agent_id}/...
// family of routes, which http.ServeMux's pattern matching can't express
// directly since tenant and agent_id are both wildcard segments.
func (h *handler) handleTenantScoped(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	segments := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/"), "/"), "/")
	// tenant/agents/{agent_id}/...
	if len(segments) < 3 || segments[1] != "agents" {
		http.NotFound(w, r)
		return
	}
	tenant, agentID, rest := segments[0], segments[2], segments[3:]

	switch {
	case len(rest) == 3 && rest[0] == "schemas" && rest[2] == "versions" && r.Method == http.MethodPost:
		schemaID, err := strconv.Atoi(rest[1])
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
				Kind: string(engine.ErrInvalidRequest), Message: "invalid schema id", RequestID: requestID,
			}})
			return
		}
		h.handleCreateVersion(w, r, agentID, schemaID)

	case len(rest) == 3 && rest[0] == "versions" && rest[2] == "deploy" && r.Method == http.MethodPost:
		h.handleDeploy(w, r, agentID, rest[1])

	case len(rest) == 2 && rest[0] == "runs" && r.Method == http.MethodGet:
		h.handleGetRun(w, r, tenant, agentID, rest[1])

	case len(rest) == 2 && rest[0] == "runs" && rest[1] == "search" && r.Method == http.MethodPost:
		h.handleSearchRuns(w, r, tenant, agentID)

	default:
		http.NotFound(w, r)
	}
}

func (h *handler) handleCreateVersion(w http.ResponseWriter, r *http.Request, agentID string, schemaID int) {
	requestID := requestIDFrom(r.Context())
	if h.deps.Versions == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInternal), Message: "version management is not configured", RequestID: requestID,
		}})
		return
	}

	var req CreateVersionRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, status, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInvalidRequest), Message: err.Error(), RequestID: requestID,
		}})
		return
	}

	v := &assembler.Version{
		Agent:        agentID,
		SchemaID:     schemaID,
		Messages:     toProviderMessages(req.Messages),
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		Tools:        toProviderTools(req.Tools),
		InputSchema:  req.InputSchema,
		OutputSchema: req.OutputSchema,
	}
	created, err := h.deps.Versions.CreateVersion(v)
	if err != nil {
		writeErrorResponse(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateVersionResponse{
		VersionID: created.ID, Major: created.Major, Minor: created.Minor,
	})
}

func (h *handler) handleDeploy(w http.ResponseWriter, r *http.Request, agentID, versionID string) {
	requestID := requestIDFrom(r.Context())
	if h.deps.Versions == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInternal), Message: "version management is not configured", RequestID: requestID,
		}})
		return
	}

	var req DeployRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, status, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInvalidRequest), Message: err.Error(), RequestID: requestID,
		}})
		return
	}
	env := assembler.Environment(req.Environment)
	if env != assembler.EnvDevelopment && env != assembler.EnvStaging && env != assembler.EnvProduction {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInvalidRequest), Message: "environment must be development, staging or production", RequestID: requestID,
		}})
		return
	}

	// A version's own schema_id is authoritative for the deployment
	// triple; resolve it rather than trusting a caller-suppliable field.
	version, ok := resolveVersion(h.deps.Versions, versionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInvalidRequest), Message: "unknown version", RequestID: requestID,
		}})
		return
	}
	if err := h.deps.Versions.Deploy(agentID, version.SchemaID, env, versionID); err != nil {
		writeErrorResponse(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// versionResolver narrows VersionManager to GetVersion, implemented by
// *store.Postgres alongside CreateVersion/Deploy.
type versionResolver interface {
	GetVersion(versionID string) (*assembler.Version, bool)
}

func resolveVersion(vm VersionManager, versionID string) (*assembler.Version, bool) {
	resolver, ok := vm.(versionResolver)
	if !ok {
		return nil, false
	}
	return resolver.GetVersion(versionID)
}

func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request, tenant, agentID, runID string) {
	requestID := requestIDFrom(r.Context())
	if h.deps.Runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInternal), Message: "run storage is not configured", RequestID: requestID,
		}})
		return
	}
	run, err := h.deps.Runs.Get(tenant, agentID, runID)
	if err != nil {
		if err == store.ErrNotFound {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: ErrorBody{
				Kind: string(engine.ErrInvalidRequest), Message: "run not found", RequestID: requestID,
			}})
			return
		}
		writeErrorResponse(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, runView(run))
}

func (h *handler) handleSearchRuns(w http.ResponseWriter, r *http.Request, tenant, agentID string) {
	requestID := requestIDFrom(r.Context())
	if h.deps.Search == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: ErrorBody{
			Kind: string(engine.ErrInternal), Message: "run search is not configured", RequestID: requestID,
		}})
		return
	}

	var queries []store.FieldQuery
	if r.ContentLength > 0 {
		if status, err := decodeJSON(w, r, &queries); err != nil {
			writeJSON(w, status, ErrorResponse{Error: ErrorBody{
				Kind: string(engine.ErrInvalidRequest), Message: err.Error(), RequestID: requestID,
			}})
			return
		}
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	page, err := h.deps.Search.Search(tenant, agentID, queries, limit, offset)
	if err != nil {
		writeErrorResponse(w, requestID, err)
		return
	}

	views := make([]RunSummaryView, 0, len(page.Runs))
	for _, s := range page.Runs {
		views = append(views, runSummaryView(s))
	}
	writeJSON(w, http.StatusOK, SearchResponse{Runs: views, Total: page.Total, NextOffset: page.NextOffset})
}
