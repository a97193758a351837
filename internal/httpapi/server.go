package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/workflowai/runengine/internal/assembler"
	"github.com/workflowai/runengine/internal/cache"
	"github.com/workflowai/runengine/internal/catalog"
	"github.com/workflowai/runengine/internal/engine"
	"github.com/workflowai/runengine/internal/feedback"
	"github.com/workflowai/runengine/internal/observability"
	"github.com/workflowai/runengine/internal/router"
	"github.com/workflowai/runengine/internal/store"
	"github.com/workflowai/runengine/internal/tools"
)

// RunGetter fetches one persisted Run. Backed by *store.Postgres.
type RunGetter interface {
	Get(tenant, agentID, runID string) (*engine.Run, error)
}

// RunSearcher runs a field-query search over persisted Runs.
type RunSearcher interface {
	Search(tenant, agentID string, queries []store.FieldQuery, limit, offset int) (store.Page, error)
}

// FeedbackRecorder persists one Feedback verdict.
type FeedbackRecorder interface {
	SaveFeedback(fb *store.Feedback) error
}

// VersionManager creates Versions and swaps Deployments.
type VersionManager interface {
	CreateVersion(v *assembler.Version) (*assembler.Version, error)
	Deploy(agent string, schemaID int, env assembler.Environment, versionID string) error
}

// TokenVerifier recovers the run_id a feedback token was signed for.
type TokenVerifier interface {
	Verify(token string) (runID string, err error)
}

// Deps bundles every collaborator the HTTP Boundary dispatches to. Only
// Assembler, Engine and Catalog are required; the rest may be nil for a
// boundary that never needs that surface (e.g. a read-only mirror).
type Deps struct {
	Assembler *assembler.Assembler
	Engine    *engine.Engine
	Catalog   *catalog.Catalog

	Runs     RunGetter
	Search   RunSearcher
	Feedback FeedbackRecorder
	Versions VersionManager
	Signer   TokenVerifier
	Tools    *tools.Orchestrator

	// TenantPolicies maps a tenant to the Router overrides (allowed
	// providers, fallback order, bring-your-own-key providers) it should
	// use in place of the Router's defaults. A tenant absent from this
	// map gets the zero TenantPolicy, i.e. no override.
	TenantPolicies map[string]router.TenantPolicy

	// Cache backs extra_body.use_cache; nil disables caching entirely.
	Cache *cache.ResponseCache

	Log     *observability.Logger
	Metrics *observability.Metrics
}

// Server is the HTTP Boundary: it owns the *http.Server lifecycle and
// dispatches to Deps.
type Server struct {
	deps     Deps
	addr     string
	server   *http.Server
	listener net.Listener
}

// NewServer builds a Server bound to addr (host:port), wiring its mux
// from deps.
func NewServer(addr string, deps Deps) *Server {
	return &Server{deps: deps, addr: addr, server: &http.Server{
		Addr:              addr,
		Handler:           newMux(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

func newMux(deps Deps) http.Handler {
	s := &handler{deps: deps}
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/v1/tools/hosted", s.handleHostedTools)
	mux.HandleFunc("/v1/feedback", s.handleFeedback)
	mux.HandleFunc("/v1/", s.handleTenantScoped)

	return requestIDMiddleware(mux)
}

// Start begins serving in the background. It returns once the listener is
// bound; Serve errors other than a graceful Shutdown are logged.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.deps.Log != nil {
				s.deps.Log.Error("http server error", "error", err)
			}
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, bounded by a 5s default timeout
// when ctx carries none.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return s.server.Shutdown(ctx)
}

type requestIDKeyType struct{}

var requestIDKey requestIDKeyType

// requestIDMiddleware assigns a request_id to every inbound call, used
// in error bodies and log correlation.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil && s.deps.Log != nil {
		s.deps.Log.Error("healthz encode error", "error", err)
	}
}

// handler carries Deps plus per-request helpers; it is unexported so
// only this package's mux can dispatch to it.
type handler struct {
	deps Deps
}

func (h *handler) logger() *observability.Logger { return h.deps.Log }
