package catalog

import (
	"sort"
)

// ModelBaseline is the static cost/latency/quality estimate used when too
// little history exists for a (provider, model) pair.
type ModelBaseline struct {
	Model        string  `yaml:"model" json:"model"`
	Cost         float64 `yaml:"cost" json:"cost"`                   // USD per request
	ResponseTime float64 `yaml:"response_time" json:"response_time"` // milliseconds
	Quality      float64 `yaml:"quality" json:"quality"`             // 0-1
}

// Catalog holds the fixed model lists per provider plus their baseline
// estimates. Read-only after construction.
type Catalog struct {
	providers map[string][]ModelBaseline
	names     []string
	fallback  ModelBaseline
}

// New builds a catalog from provider→models tables. Provider names are kept
// in sorted order so iteration is deterministic.
func New(providers map[string][]ModelBaseline) *Catalog {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Catalog{
		providers: providers,
		names:     names,
		fallback: ModelBaseline{
			Model:        "default",
			Cost:         0.005,
			ResponseTime: 1500,
			Quality:      0.7,
		},
	}
}

// Default returns the built-in catalog covering the commonly routed models.
func Default() *Catalog {
	return New(map[string][]ModelBaseline{
		"openai": {
			{Model: "gpt-4o", Cost: 0.01, ResponseTime: 1800, Quality: 0.92},
			{Model: "gpt-4o-mini", Cost: 0.0008, ResponseTime: 900, Quality: 0.78},
			{Model: "gpt-3.5-turbo", Cost: 0.002, ResponseTime: 800, Quality: 0.72},
		},
		"anthropic": {
			{Model: "claude-3-5-sonnet-20241022", Cost: 0.009, ResponseTime: 2000, Quality: 0.93},
			{Model: "claude-3-haiku-20240307", Cost: 0.0008, ResponseTime: 700, Quality: 0.75},
		},
	})
}

// Providers returns all provider names in deterministic order.
func (c *Catalog) Providers() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

// Models returns the fixed model list for a provider. Unknown providers get
// a single generic model so prediction never dead-ends.
func (c *Catalog) Models(provider string) []ModelBaseline {
	models, ok := c.providers[provider]
	if !ok || len(models) == 0 {
		return []ModelBaseline{c.fallback}
	}
	out := make([]ModelBaseline, len(models))
	copy(out, models)
	return out
}

// Baseline returns the static estimate for a (provider, model) pair, falling
// back to a generic baseline for unknown pairs.
func (c *Catalog) Baseline(provider, model string) ModelBaseline {
	for _, m := range c.providers[provider] {
		if m.Model == model {
			return m
		}
	}
	return c.fallback
}

// First returns the first provider and its first model, used for
// deterministic fallback routing when nothing else is available.
func (c *Catalog) First() (string, string) {
	if len(c.names) == 0 {
		return "unknown", c.fallback.Model
	}
	provider := c.names[0]
	models := c.providers[provider]
	if len(models) == 0 {
		return provider, c.fallback.Model
	}
	return provider, models[0].Model
}
