package catalog

import (
	"testing"
)

func TestProvidersDeterministicOrder(t *testing.T) {
	c := New(map[string][]ModelBaseline{
		"zeta":  {{Model: "z1", Cost: 0.01, ResponseTime: 1000, Quality: 0.8}},
		"alpha": {{Model: "a1", Cost: 0.01, ResponseTime: 1000, Quality: 0.8}},
	})

	providers := c.Providers()
	if len(providers) != 2 || providers[0] != "alpha" || providers[1] != "zeta" {
		t.Errorf("Expected sorted provider names, got %v", providers)
	}
}

func TestUnknownProviderGetsFallbackModel(t *testing.T) {
	c := Default()

	models := c.Models("mystery")
	if len(models) != 1 {
		t.Fatalf("Expected single fallback model, got %d", len(models))
	}
	if models[0].Model != "default" {
		t.Errorf("Expected fallback model, got %s", models[0].Model)
	}
}

func TestBaselineLookup(t *testing.T) {
	c := Default()

	b := c.Baseline("openai", "gpt-4o")
	if b.Cost != 0.01 {
		t.Errorf("Expected gpt-4o baseline cost 0.01, got %v", b.Cost)
	}

	fallback := c.Baseline("openai", "no-such-model")
	if fallback.Model != "default" {
		t.Errorf("Expected fallback baseline for unknown model, got %s", fallback.Model)
	}
}

func TestFirstIsDeterministic(t *testing.T) {
	c := Default()

	provider, model := c.First()
	if provider != "anthropic" {
		t.Errorf("Expected first provider anthropic (sorted), got %s", provider)
	}
	if model != "claude-3-5-sonnet-20241022" {
		t.Errorf("Unexpected first model %s", model)
	}

	empty := New(map[string][]ModelBaseline{})
	provider, model = empty.First()
	if provider != "unknown" || model != "default" {
		t.Errorf("Expected generic fallback from empty catalog, got %s/%s", provider, model)
	}
}
