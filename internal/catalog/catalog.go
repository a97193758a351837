// Package catalog holds the registry of models the Router and Prompt
// Assembler can target: capability flags, context window, per-million-
// token pricing and the deprecated/replacement lifecycle.
package catalog

import (
	"sort"
	"strings"
	"sync"
)

// Provider identifies an LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderBedrock   Provider = "bedrock"
	ProviderGemini    Provider = "gemini"
)

// Capability identifies a model capability the Router and Prompt
// Assembler can require or branch on.
type Capability string

const (
	CapVision      Capability = "vision"
	CapTools       Capability = "tools"
	CapStreaming   Capability = "streaming"
	CapJSON        Capability = "json"
	CapReasoning   Capability = "reasoning"
	CapAudioIn     Capability = "audio_in"
	CapImageIn     Capability = "image_in"
	CapLongContext Capability = "long_context"
	CapCaching     Capability = "caching"
)

// Tier is a model's quality/cost tier, used to order fallback candidates
// within a deployment's allowed model set.
type Tier string

const (
	TierFlagship Tier = "flagship"
	TierStandard Tier = "standard"
	TierFast     Tier = "fast"
	TierMini     Tier = "mini"
)

// Model is one entry in the catalog.
type Model struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Provider        Provider     `json:"provider" yaml:"provider"`
	Tier            Tier         `json:"tier" yaml:"tier"`
	ContextWindow   int          `json:"context_window" yaml:"context_window"`
	MaxOutputTokens int          `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`
	Capabilities    []Capability `json:"capabilities" yaml:"capabilities"`
	Aliases         []string     `json:"aliases,omitempty" yaml:"aliases,omitempty"`

	Deprecated bool   `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	ReplacedBy string `json:"replaced_by,omitempty" yaml:"replaced_by,omitempty"`

	ReleaseDate string `json:"release_date,omitempty" yaml:"release_date,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// InputPrice and OutputPrice are USD per million tokens.
	InputPrice  float64 `json:"input_price,omitempty" yaml:"input_price,omitempty"`
	OutputPrice float64 `json:"output_price,omitempty" yaml:"output_price,omitempty"`

	// ImagePricePerUnit is USD per image, billed separately from
	// InputPrice when set and the model carries CapImageIn; when zero,
	// image cost is folded into the adapter's input-token estimate.
	ImagePricePerUnit float64 `json:"image_price_per_unit,omitempty" yaml:"image_price_per_unit,omitempty"`

	// AudioPrice is USD per million audio tokens. Always zero in this
	// catalog: audio generation is out of scope, so audio-capable
	// models are billed on text tokens only.
	AudioPrice float64 `json:"audio_price,omitempty" yaml:"audio_price,omitempty"`
}

// HasCapability reports whether m carries cap.
func (m *Model) HasCapability(cap Capability) bool {
	for _, c := range m.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// SupportsVision reports whether m can take image input.
func (m *Model) SupportsVision() bool { return m.HasCapability(CapVision) }

// SupportsTools reports whether m supports function calling.
func (m *Model) SupportsTools() bool { return m.HasCapability(CapTools) }

// EffectiveModel follows ReplacedBy chains (capped to avoid a cycle)
// and returns the terminal, non-deprecated model ID.
func (c *Catalog) EffectiveModel(id string) string {
	seen := make(map[string]bool)
	cur := id
	for i := 0; i < 8; i++ {
		if seen[cur] {
			return cur
		}
		seen[cur] = true
		m, ok := c.Get(cur)
		if !ok || !m.Deprecated || m.ReplacedBy == "" {
			return cur
		}
		cur = m.ReplacedBy
	}
	return cur
}

// Catalog manages the set of known models, looked up by ID or alias.
type Catalog struct {
	mu      sync.RWMutex
	models  map[string]*Model
	aliases map[string]string
}

// New returns a catalog pre-populated with the built-in model set.
func New() *Catalog {
	c := &Catalog{models: make(map[string]*Model), aliases: make(map[string]string)}
	c.registerBuiltins()
	return c
}

// Register adds or replaces a model entry, indexing its aliases.
func (c *Catalog) Register(m *Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[m.ID] = m
	for _, alias := range m.Aliases {
		c.aliases[strings.ToLower(alias)] = m.ID
	}
}

// Get resolves id (a catalog ID or alias) to a Model.
func (c *Catalog) Get(id string) (*Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.models[id]; ok {
		return m, true
	}
	if real, ok := c.aliases[strings.ToLower(id)]; ok {
		return c.models[real], true
	}
	return nil, false
}

// Filter narrows a List call.
type Filter struct {
	Providers            []Provider
	Tiers                []Tier
	RequiredCapabilities []Capability
	MinContextWindow     int
	IncludeDeprecated    bool
}

// Matches reports whether m satisfies f. A nil Filter matches everything.
func (f *Filter) Matches(m *Model) bool {
	if f == nil {
		return true
	}
	if len(f.Providers) > 0 && !containsProvider(f.Providers, m.Provider) {
		return false
	}
	if len(f.Tiers) > 0 && !containsTier(f.Tiers, m.Tier) {
		return false
	}
	for _, cap := range f.RequiredCapabilities {
		if !m.HasCapability(cap) {
			return false
		}
	}
	if f.MinContextWindow > 0 && m.ContextWindow < f.MinContextWindow {
		return false
	}
	if !f.IncludeDeprecated && m.Deprecated {
		return false
	}
	return true
}

func containsProvider(ps []Provider, p Provider) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}

func containsTier(ts []Tier, t Tier) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

// List returns models matching filter, sorted by provider, then tier,
// then name.
func (c *Catalog) List(filter *Filter) []*Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Model
	for _, m := range c.models {
		if filter.Matches(m) {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Provider != result[j].Provider {
			return result[i].Provider < result[j].Provider
		}
		if result[i].Tier != result[j].Tier {
			return tierRank(result[i].Tier) < tierRank(result[j].Tier)
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// ListByProvider returns non-deprecated models for provider.
func (c *Catalog) ListByProvider(p Provider) []*Model {
	return c.List(&Filter{Providers: []Provider{p}})
}

func tierRank(t Tier) int {
	switch t {
	case TierFlagship:
		return 0
	case TierStandard:
		return 1
	case TierFast:
		return 2
	case TierMini:
		return 3
	default:
		return 4
	}
}
