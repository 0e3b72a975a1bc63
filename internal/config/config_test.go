package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	configYAML := `
version: "0.1.0"
providers:
  openai:
    type: openai
    base_url: https://api.openai.com
    api_key: dummy
    timeout: 30s
models:
  main:
    provider: openai
    model: gpt-4o
    temperature: 0.2
    max_tokens: 2048
    default: true
comfyui:
  address: 10.0.0.5:8188
generation:
  max_scenes: 4
  lora_mode: group
`

	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.Models["main"].Provider)
	require.Equal(t, "10.0.0.5:8188", cfg.ComfyUI.Address)
	require.Equal(t, 4, cfg.Generation.MaxScenes)
	require.Equal(t, "group", cfg.Generation.LoraMode)
	// Defaults fill the rest.
	require.Equal(t, "configs/loras.json", cfg.Registry.Loras)
	require.Equal(t, 600, cfg.Video.MaxWaitSeconds)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	configYAML := `
providers:
  deepseek:
    type: openai
    base_url: https://api.deepseek.com
    api_key: dummy
models:
  planner:
    provider: deepseek
    model: deepseek-chat
    default: true
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(configYAML), 0o644))

	t.Setenv("YKGEN_GENERATION_MAX_SCENES", "9")
	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Generation.MaxScenes)
}

func TestValidateFailsOnUnknownProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Models["broken"] = ModelConfig{Provider: "missing", Default: true}

	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateLoraMode(t *testing.T) {
	cfg := validConfig()
	cfg.Generation.LoraMode = "sometimes"
	require.Error(t, cfg.Validate())

	cfg.Generation.LoraMode = "none"
	require.NoError(t, cfg.Validate())
}

func TestValidateVideoNeedsKey(t *testing.T) {
	cfg := validConfig()
	cfg.Video.Enabled = true
	cfg.Video.APIKey = ""
	require.Error(t, cfg.Validate())

	cfg.Video.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())
}

func TestValidateStrategyReferences(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.SelectorModel = "missing"
	require.Error(t, cfg.Validate())
}

func validConfig() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"openai": {Type: "openai"},
		},
		Models: map[string]ModelConfig{
			"main": {Provider: "openai", Model: "gpt-4o", Default: true},
		},
		Registry: RegistryConfig{
			ImageModels: "configs/image_models.json",
			Loras:       "configs/loras.json",
		},
		ComfyUI: ComfyUIConfig{
			Address:        "127.0.0.1:8188",
			TimeoutSeconds: 300,
			ImageWidth:     1024,
			ImageHeight:    1024,
		},
		Video: VideoConfig{
			Provider:            "siliconflow",
			MaxWaitSeconds:      600,
			PollIntervalSeconds: 5,
		},
		Audio: AudioConfig{
			Checkpoint:      "ace_step_v1_3.5b.safetensors",
			SecondsPerScene: 5,
		},
		Generation: GenerationConfig{
			MaxScenes:      6,
			ImagesPerScene: 1,
			LoraMode:       "all",
			OutputDir:      "output",
		},
	}
}
