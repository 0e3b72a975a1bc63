package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func loadTestRegistries(t *testing.T) (*ModelRegistry, *LoraRegistry) {
	t.Helper()
	models, err := ParseModelRegistry([]byte(modelConfigJSON))
	require.NoError(t, err)
	loras, err := ParseLoraRegistry([]byte(loraConfigJSON))
	require.NoError(t, err)
	return models, loras
}

func TestResolveDirectKey(t *testing.T) {
	// Scenario A: the default simple model declares flux-schnell and gets
	// exactly that group's adapters, unmodified.
	models, loras := loadTestRegistries(t)
	resolver := NewResolver(loras)

	def, err := models.GetDefault("simple")
	require.NoError(t, err)

	group, warnings := resolver.ResolveLoraGroupForModel(def)
	require.Empty(t, warnings)
	require.Equal(t, "flux-schnell", group.Key)

	want, err := loras.Group("flux-schnell")
	require.NoError(t, err)
	require.Equal(t, want.Adapters, group.Adapters)
}

func TestResolveMissingKeyFallsBackToCategory(t *testing.T) {
	// Scenario B: a vpred model with no key falls back to
	// illustrious-vpred and emits a warning.
	_, loras := loadTestRegistries(t)
	resolver := NewResolver(loras)

	model := ModelProfile{Name: "new-vpred", Category: "vpred", Checkpoint: "x", Steps: 28}
	group, warnings := resolver.ResolveLoraGroupForModel(model)
	require.Equal(t, "illustrious-vpred", group.Key)
	require.Len(t, warnings, 1)
	require.Equal(t, WarnMissingGroupKey, warnings[0].Code)
}

func TestResolveDanglingKeyFallsBack(t *testing.T) {
	_, loras := loadTestRegistries(t)
	resolver := NewResolver(loras)

	model := ModelProfile{Name: "m", Category: "simple", LoraGroupKey: "nonexistent"}
	group, warnings := resolver.ResolveLoraGroupForModel(model)
	require.Equal(t, "flux-schnell", group.Key)
	require.Len(t, warnings, 1)
	require.Equal(t, WarnDanglingGroupKey, warnings[0].Code)
}

func TestResolveDegradesToEmptyGroup(t *testing.T) {
	// Scenario C: dangling key and no usable category fallback yields an
	// empty adapter set with warnings, never an error.
	loras, err := ParseLoraRegistry([]byte(`{
  "_model_mapping": {"simple": "also-missing"},
  "other": {"description": "d", "loras": {"1": {"name": "a", "file": "a.safetensors"}}}
}`))
	require.NoError(t, err)
	resolver := NewResolver(loras)

	model := ModelProfile{Name: "m", Category: "simple", LoraGroupKey: "nonexistent"}
	group, warnings := resolver.ResolveLoraGroupForModel(model)
	require.True(t, group.Empty())
	// The dangling key must not leak into the degraded result.
	require.Empty(t, group.Key)
	require.Len(t, warnings, 2)
	require.Equal(t, WarnDanglingGroupKey, warnings[0].Code)
	require.Equal(t, WarnNoFallbackGroup, warnings[1].Code)

	// No mapping entry at all degrades the same way.
	model.Category = "uncharted"
	group, warnings = resolver.ResolveLoraGroupForModel(model)
	require.True(t, group.Empty())
	require.Empty(t, group.Key)
	require.Len(t, warnings, 2)
}

func TestResolveIdempotent(t *testing.T) {
	models, loras := loadTestRegistries(t)
	resolver := NewResolver(loras)

	def, err := models.GetDefault("simple")
	require.NoError(t, err)

	first, firstWarnings := resolver.ResolveLoraGroupForModel(def)
	second, secondWarnings := resolver.ResolveLoraGroupForModel(def)
	require.Equal(t, first, second)
	require.Equal(t, firstWarnings, secondWarnings)
}

func TestCandidatesStableAndWithoutPaths(t *testing.T) {
	models, loras := loadTestRegistries(t)
	resolver := NewResolver(loras)

	def, err := models.GetDefault("simple")
	require.NoError(t, err)

	candidates, warnings := resolver.Candidates(def)
	require.Empty(t, warnings)
	require.Len(t, candidates, 3)
	require.Equal(t, "Pixel Art Style", candidates[0].Name)
	require.Equal(t, []string{"pixel art"}, candidates[0].RequiredTriggers)
	require.Equal(t, []string{"8-bit"}, candidates[0].OptionalTriggers)

	again, _ := resolver.Candidates(def)
	require.Equal(t, candidates, again)
}
