package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const modelConfigJSON = `{
  "simple": {
    "description": "Flux family workflows",
    "models": [
      {"name": "flux-schnell", "checkpoint": "flux1-schnell-fp8.safetensors", "steps": 4, "cfg": 1, "sampler": "euler", "scheduler": "simple", "denoise": 1, "lora_group_key": "flux-schnell", "default": true},
      {"name": "flux-dev", "checkpoint": "flux1-dev-fp8.safetensors", "steps": 20, "cfg": 3.5, "sampler": "euler", "scheduler": "simple", "denoise": 1, "lora_group_key": "flux-schnell"}
    ]
  },
  "vpred": {
    "description": "v-prediction workflows",
    "models": [
      {"name": "noob-vpred", "checkpoint": "noobaiXLNAIXL_vPred10Version.safetensors", "steps": 28, "cfg": 5, "sampler": "euler_ancestral", "scheduler": "normal", "denoise": 1}
    ]
  }
}`

const loraConfigJSON = `{
  "_model_mapping": {"simple": "flux-schnell", "vpred": "illustrious-vpred"},
  "flux-schnell": {
    "description": "LoRAs for the Flux Schnell family",
    "loras": {
      "1": {"name": "Pixel Art Style", "description": "Retro pixel aesthetics", "file": "pixel-art-flux.safetensors", "trigger_words": {"required": ["pixel art"], "optional": ["8-bit"]}, "strength_model": 1.0, "strength_clip": 1.0, "download_source": "https://civitai.com/models/pixel"},
      "2": {"name": "Watercolor", "description": "Soft watercolor washes", "file": "watercolor-flux.safetensors", "trigger_words": {"required": ["watercolor"], "optional": []}, "strength_model": 0.8, "strength_clip": 0.9},
      "10": {"name": "Ink Wash", "description": "East-asian ink painting", "file": "ink-wash-flux.safetensors", "trigger_words": {"required": ["ink wash painting"], "optional": ["sumi-e"]}, "strength_model": 0.9, "strength_clip": 0.9}
    }
  },
  "illustrious-vpred": {
    "description": "LoRAs for Illustrious v-pred models",
    "loras": {
      "1": {"name": "Anime Detail", "description": "Sharper anime linework", "file": "anime-detail-vpred.safetensors", "trigger_words": {"required": [], "optional": ["detailed"]}, "strength_model": 0.7, "strength_clip": 0.7}
    }
  }
}`

func TestParseModelRegistry(t *testing.T) {
	reg, err := ParseModelRegistry([]byte(modelConfigJSON))
	require.NoError(t, err)
	require.Equal(t, []string{"simple", "vpred"}, reg.Categories())
	require.Equal(t, 3, reg.ModelCount())

	models, err := reg.ListModels("simple")
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, "flux-schnell", models[0].Name)
	require.Equal(t, "simple", models[0].Category)

	_, err = reg.ListModels("unknown")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetDefaultDeterministic(t *testing.T) {
	reg, err := ParseModelRegistry([]byte(modelConfigJSON))
	require.NoError(t, err)

	first, err := reg.GetDefault("simple")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := reg.GetDefault("simple")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	require.Equal(t, "flux-schnell", first.Name)
}

func TestGetDefaultFirstLoadedFallback(t *testing.T) {
	reg, err := ParseModelRegistry([]byte(modelConfigJSON))
	require.NoError(t, err)

	// vpred marks nothing default, so the first-loaded model wins and a
	// warning is recorded during load.
	def, err := reg.GetDefault("vpred")
	require.NoError(t, err)
	require.Equal(t, "noob-vpred", def.Name)

	var codes []string
	for _, w := range reg.Warnings() {
		codes = append(codes, w.Code)
	}
	require.Contains(t, codes, WarnNoDefaultModel)
}

func TestDuplicateDefaultFirstWins(t *testing.T) {
	doc := `{
  "simple": {"models": [
    {"name": "a", "checkpoint": "a.safetensors", "steps": 4, "default": true},
    {"name": "b", "checkpoint": "b.safetensors", "steps": 4, "default": true}
  ]}
}`
	reg, err := ParseModelRegistry([]byte(doc))
	require.NoError(t, err)

	def, err := reg.GetDefault("simple")
	require.NoError(t, err)
	require.Equal(t, "a", def.Name)

	require.Len(t, reg.Warnings(), 1)
	require.Equal(t, WarnDuplicateDefault, reg.Warnings()[0].Code)
}

func TestParseModelRegistryStructuralErrors(t *testing.T) {
	cases := map[string]string{
		"unparseable":   `{not json`,
		"empty":         `{}`,
		"no name":       `{"simple": {"models": [{"checkpoint": "x", "steps": 4}]}}`,
		"no checkpoint": `{"simple": {"models": [{"name": "x", "steps": 4}]}}`,
		"zero steps":    `{"simple": {"models": [{"name": "x", "checkpoint": "x", "steps": 0}]}}`,
		"bad denoise":   `{"simple": {"models": [{"name": "x", "checkpoint": "x", "steps": 4, "denoise": 1.5}]}}`,
	}
	for name, doc := range cases {
		_, err := ParseModelRegistry([]byte(doc))
		require.ErrorIs(t, err, ErrConfiguration, name)
	}
}

func TestParseLoraRegistry(t *testing.T) {
	reg, err := ParseLoraRegistry([]byte(loraConfigJSON))
	require.NoError(t, err)
	require.Equal(t, []string{"flux-schnell", "illustrious-vpred"}, reg.Keys())

	group, err := reg.Group("flux-schnell")
	require.NoError(t, err)
	require.Equal(t, "LoRAs for the Flux Schnell family", group.Description)
	// Local ids sort numerically: 1, 2, 10.
	require.Equal(t, []string{"Pixel Art Style", "Watercolor", "Ink Wash"}, group.AdapterNames())
	require.Equal(t, []string{"pixel art"}, group.Adapters[0].TriggerWords.Required)

	_, err = reg.Group("nonexistent")
	require.ErrorIs(t, err, ErrNotFound)

	key, ok := reg.FallbackKey("vpred")
	require.True(t, ok)
	require.Equal(t, "illustrious-vpred", key)
}

func TestLoraRegistryRoundTrip(t *testing.T) {
	reg, err := ParseLoraRegistry([]byte(loraConfigJSON))
	require.NoError(t, err)

	encoded, err := reg.MarshalConfig()
	require.NoError(t, err)

	again, err := ParseLoraRegistry(encoded)
	require.NoError(t, err)
	require.Equal(t, reg.Keys(), again.Keys())
	for _, key := range reg.Keys() {
		want, err := reg.Group(key)
		require.NoError(t, err)
		got, err := again.Group(key)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseLoraRegistryStructuralErrors(t *testing.T) {
	cases := map[string]string{
		"unparseable":  `{not json`,
		"mapping only": `{"_model_mapping": {"simple": "x"}}`,
		"no name":      `{"g": {"description": "d", "loras": {"1": {"file": "x.safetensors"}}}}`,
		"no file":      `{"g": {"description": "d", "loras": {"1": {"name": "x"}}}}`,
	}
	for name, doc := range cases {
		_, err := ParseLoraRegistry([]byte(doc))
		require.ErrorIs(t, err, ErrConfiguration, name)
	}
}
