package catalog

// registerBuiltins seeds the catalog with the models reachable through
// the configured provider adapters. Pricing is USD per million tokens,
// matching each provider's published rate card at the time this catalog
// entry was written.
func (c *Catalog) registerBuiltins() {
	c.Register(&Model{
		ID:              "claude-opus-4",
		Name:            "Claude Opus 4",
		Provider:        ProviderAnthropic,
		Tier:            TierFlagship,
		ContextWindow:   200000,
		MaxOutputTokens: 32000,
		Capabilities: []Capability{
			CapVision, CapImageIn, CapTools, CapStreaming, CapJSON,
			CapLongContext, CapCaching,
		},
		Aliases:     []string{"claude-opus-4-5-20251101", "opus"},
		ReleaseDate: "2025-11-01",
		InputPrice:  15.0,
		OutputPrice: 75.0,
	})

	c.Register(&Model{
		ID:              "claude-3-5-sonnet-latest",
		Name:            "Claude 3.5 Sonnet",
		Provider:        ProviderAnthropic,
		Tier:            TierStandard,
		ContextWindow:   200000,
		MaxOutputTokens: 8192,
		Capabilities: []Capability{
			CapVision, CapImageIn, CapTools, CapStreaming, CapJSON,
			CapLongContext, CapCaching,
		},
		Aliases:     []string{"claude-3-5-sonnet", "sonnet"},
		ReleaseDate: "2024-10-22",
		InputPrice:  3.0,
		OutputPrice: 15.0,
	})

	c.Register(&Model{
		ID:              "claude-3-5-haiku-latest",
		Name:            "Claude 3.5 Haiku",
		Provider:        ProviderAnthropic,
		Tier:            TierFast,
		ContextWindow:   200000,
		MaxOutputTokens: 8192,
		Capabilities: []Capability{
			CapVision, CapImageIn, CapTools, CapStreaming, CapJSON,
			CapLongContext, CapCaching,
		},
		Aliases:     []string{"claude-3-5-haiku", "haiku"},
		ReleaseDate: "2024-11-04",
		InputPrice:  0.8,
		OutputPrice: 4.0,
	})

	c.Register(&Model{
		ID:              "gpt-4o",
		Name:            "GPT-4o",
		Provider:        ProviderOpenAI,
		Tier:            TierStandard,
		ContextWindow:   128000,
		MaxOutputTokens: 16384,
		Capabilities: []Capability{
			CapVision, CapImageIn, CapTools, CapStreaming, CapJSON,
			CapLongContext, CapAudioIn,
		},
		Aliases:           []string{"gpt-4o-2024-11-20"},
		ReleaseDate:       "2024-05-13",
		InputPrice:        2.5,
		OutputPrice:       10.0,
		ImagePricePerUnit: 0.003613,
	})

	c.Register(&Model{
		ID:              "gpt-4o-mini",
		Name:            "GPT-4o Mini",
		Provider:        ProviderOpenAI,
		Tier:            TierFast,
		ContextWindow:   128000,
		MaxOutputTokens: 16384,
		Capabilities: []Capability{
			CapVision, CapImageIn, CapTools, CapStreaming, CapJSON, CapLongContext,
		},
		Aliases:     []string{"gpt-4o-mini-2024-07-18"},
		ReleaseDate: "2024-07-18",
		InputPrice:  0.15,
		OutputPrice: 0.6,
	})

	c.Register(&Model{
		ID:              "o3-mini",
		Name:            "o3-mini",
		Provider:        ProviderOpenAI,
		Tier:            TierStandard,
		ContextWindow:   200000,
		MaxOutputTokens: 100000,
		Capabilities: []Capability{
			CapTools, CapReasoning, CapJSON, CapLongContext,
		},
		Aliases:     []string{"o3-mini-2025-01-31"},
		ReleaseDate: "2025-01-31",
		InputPrice:  1.1,
		OutputPrice: 4.4,
	})

	c.Register(&Model{
		ID:              "anthropic.claude-3-5-sonnet-20241022-v2:0",
		Name:            "Claude 3.5 Sonnet (Bedrock)",
		Provider:        ProviderBedrock,
		Tier:            TierStandard,
		ContextWindow:   200000,
		MaxOutputTokens: 8192,
		Capabilities: []Capability{
			CapVision, CapImageIn, CapTools, CapStreaming, CapJSON, CapLongContext,
		},
		Aliases:     []string{"bedrock-claude-3-5-sonnet"},
		ReleaseDate: "2024-10-22",
		InputPrice:  3.0,
		OutputPrice: 15.0,
	})

	c.Register(&Model{
		ID:              "gemini-2.0-flash",
		Name:            "Gemini 2.0 Flash",
		Provider:        ProviderGemini,
		Tier:            TierFast,
		ContextWindow:   1048576,
		MaxOutputTokens: 8192,
		Capabilities: []Capability{
			CapVision, CapImageIn, CapTools, CapStreaming, CapJSON,
			CapLongContext, CapAudioIn,
		},
		Aliases:     []string{"gemini-2.0-flash-exp"},
		ReleaseDate: "2024-12-11",
		InputPrice:  0.1,
		OutputPrice: 0.4,
	})

	c.Register(&Model{
		ID:              "gemini-1.5-pro-latest",
		Name:            "Gemini 1.5 Pro",
		Provider:        ProviderGemini,
		Tier:            TierStandard,
		ContextWindow:   2097152,
		MaxOutputTokens: 8192,
		Capabilities: []Capability{
			CapVision, CapImageIn, CapTools, CapStreaming, CapJSON,
			CapLongContext, CapAudioIn,
		},
		Deprecated:  true,
		ReplacedBy:  "gemini-2.0-flash",
		Aliases:     []string{"gemini-1.5-pro"},
		ReleaseDate: "2024-05-14",
		InputPrice:  1.25,
		OutputPrice: 5.0,
	})
}
