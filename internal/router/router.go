// Package router selects an ordered list of (provider, model) Attempts for
// a request, combining capability matching, tenant overrides, the live
// health score and estimated cost. The Run Engine consumes the Attempts in
// order, moving to the next on a retryable failure.
package router

import (
	"errors"
	"sort"

	"github.com/workflowai/runengine/internal/catalog"
	"github.com/workflowai/runengine/internal/provider"
)

// ErrNoCandidates is returned when no (provider, model) pair can serve a
// request at all (no capability match, or every match was filtered by
// tenant policy or health).
var ErrNoCandidates = errors.New("router: no candidate providers for request")

// DefaultMaxAttempts bounds how many Attempts Plan returns.
const DefaultMaxAttempts = 4

// Request is the normalized request the Prompt Assembler hands to the
// Router. Model is a catalog ID or alias; when empty the Router picks
// purely on capability, health and cost.
type Request struct {
	Model                string
	RequiredCapabilities []catalog.Capability
	Tools                []provider.Tool
	EstimatedInputTokens  int
	EstimatedOutputTokens int

	Tenant TenantPolicy
}

// TenantPolicy carries the per-tenant overrides the Router respects: an
// allow-list of providers and a preferred fallback order. OwnKeyProviders
// records which providers the tenant has supplied its own API key for;
// Plan does not read it, so it has no effect on Attempt order.
type TenantPolicy struct {
	AllowedProviders []catalog.Provider
	FallbackOrder    []catalog.Provider
	OwnKeyProviders  map[catalog.Provider]bool
}

// Attempt is one (provider, model) pair the Run Engine may call, in the
// order the Router wants them tried.
type Attempt struct {
	Provider         catalog.Provider
	Model            string
	Adapter          provider.Adapter
	EstimatedCostUSD float64
	HealthScore      float64
}

// Router produces Attempt lists from the catalog, the configured adapters
// and live health data.
type Router struct {
	catalog     *catalog.Catalog
	adapters    map[catalog.Provider]provider.Adapter
	health      *HealthTracker
	maxAttempts int
}

// New builds a Router over cat, dispatching Attempts to the given adapters
// (one per catalog.Provider actually configured with credentials).
func New(cat *catalog.Catalog, adapters map[catalog.Provider]provider.Adapter, health *HealthTracker) *Router {
	if health == nil {
		health = NewHealthTracker()
	}
	return &Router{catalog: cat, adapters: adapters, health: health, maxAttempts: DefaultMaxAttempts}
}

// WithMaxAttempts overrides the default Attempt cap.
func (r *Router) WithMaxAttempts(n int) *Router {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

// Health exposes the tracker. The Run Engine does not report Attempt
// outcomes to it, so scores change only through direct Record calls.
func (r *Router) Health() *HealthTracker { return r.health }

// Plan returns an ordered Attempt list for req, per the selection algorithm:
// capability filter → tenant allow-list (own-key providers are not
// consulted) → sort by
// (explicit model match, tenant fallback order, health, cost) → cap at N
// attempts across distinct providers where possible.
func (r *Router) Plan(req *Request) ([]Attempt, error) {
	if req == nil {
		return nil, errors.New("router: request is nil")
	}

	caps := append([]catalog.Capability{}, req.RequiredCapabilities...)
	if len(req.Tools) > 0 {
		caps = append(caps, catalog.CapTools)
	}

	models := r.catalog.List(&catalog.Filter{
		Providers:            req.Tenant.AllowedProviders,
		RequiredCapabilities: caps,
	})

	var candidates []Attempt
	for _, m := range models {
		adapter, ok := r.adapters[m.Provider]
		if !ok {
			continue
		}
		effectiveID := r.catalog.EffectiveModel(m.ID)
		if !r.health.IsAvailable(string(m.Provider), effectiveID) {
			continue
		}
		candidates = append(candidates, Attempt{
			Provider:         m.Provider,
			Model:            effectiveID,
			Adapter:          adapter,
			EstimatedCostUSD: estimateCost(m, req.EstimatedInputTokens, req.EstimatedOutputTokens),
			HealthScore:      r.health.Score(string(m.Provider), effectiveID),
		})
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	requestedModel := ""
	if req.Model != "" {
		if m, ok := r.catalog.Get(req.Model); ok {
			requestedModel = r.catalog.EffectiveModel(m.ID)
		}
	}
	fallbackRank := fallbackRankIndex(req.Tenant.FallbackOrder)
	unranked := len(req.Tenant.FallbackOrder)

	rankOf := func(p catalog.Provider) int {
		if rank, ok := fallbackRank[p]; ok {
			return rank
		}
		return unranked
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		aExact, bExact := a.Model == requestedModel, b.Model == requestedModel
		if aExact != bExact {
			return aExact
		}

		aRank, bRank := rankOf(a.Provider), rankOf(b.Provider)
		if aRank != bRank {
			return aRank < bRank
		}

		if a.HealthScore != b.HealthScore {
			return a.HealthScore > b.HealthScore
		}

		return a.EstimatedCostUSD < b.EstimatedCostUSD
	})

	return capByDistinctProvider(candidates, r.maxAttempts), nil
}

// fallbackRankIndex maps each provider in order to its position; providers
// absent from the tenant's fallback order all rank after the configured
// ones, in catalog order (stable sort preserves that).
func fallbackRankIndex(order []catalog.Provider) map[catalog.Provider]int {
	ranks := make(map[catalog.Provider]int, len(order))
	for i, p := range order {
		ranks[p] = i
	}
	return ranks
}

// capByDistinctProvider returns up to max candidates, preferring to spread
// across distinct providers before admitting a second model from the same
// provider, so a single unhealthy provider doesn't consume the whole
// Attempt budget.
func capByDistinctProvider(candidates []Attempt, max int) []Attempt {
	if len(candidates) <= max {
		return candidates
	}

	var result []Attempt
	seen := make(map[catalog.Provider]bool)
	for _, c := range candidates {
		if len(result) >= max {
			break
		}
		if seen[c.Provider] {
			continue
		}
		seen[c.Provider] = true
		result = append(result, c)
	}
	for _, c := range candidates {
		if len(result) >= max {
			break
		}
		duplicate := false
		for _, r := range result {
			if r.Provider == c.Provider && r.Model == c.Model {
				duplicate = true
				break
			}
		}
		if !duplicate {
			result = append(result, c)
		}
	}
	return result
}

func estimateCost(m *catalog.Model, inputTokens, outputTokens int) float64 {
	const perMillion = 1_000_000.0
	return float64(inputTokens)*m.InputPrice/perMillion + float64(outputTokens)*m.OutputPrice/perMillion
}
