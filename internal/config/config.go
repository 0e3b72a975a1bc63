package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config describes the top-level application configuration loaded from YAML and ENV.
type Config struct {
	Version    string                    `mapstructure:"version"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Models     map[string]ModelConfig    `mapstructure:"models"`
	Strategy   StrategyConfig            `mapstructure:"strategy"`
	Registry   RegistryConfig            `mapstructure:"registry"`
	ComfyUI    ComfyUIConfig             `mapstructure:"comfyui"`
	Video      VideoConfig               `mapstructure:"video"`
	Audio      AudioConfig               `mapstructure:"audio"`
	Generation GenerationConfig          `mapstructure:"generation"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Server     ServerConfig              `mapstructure:"server"`
}

// ProviderConfig represents LLM provider configuration such as OpenAI, Ollama, or custom gateways.
type ProviderConfig struct {
	Type      string        `mapstructure:"type"`       // openai, openrouter, ollama, siliconflow, custom
	Model     string        `mapstructure:"model"`      // default model for the provider
	BaseURL   string        `mapstructure:"base_url"`   // API base URL
	APIKey    string        `mapstructure:"api_key"`    // optional API key
	Timeout   time.Duration `mapstructure:"timeout"`    // request timeout
	MaxTokens int           `mapstructure:"max_tokens"` // optional provider-level token cap
}

// ModelConfig binds a logical LLM model name to a provider entry and model parameters.
type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Default     bool    `mapstructure:"default"`
	Expensive   bool    `mapstructure:"expensive"`
}

// RegistryConfig points at the JSON documents defining image models and LoRA groups.
type RegistryConfig struct {
	ImageModels string `mapstructure:"image_models"` // path to image model config JSON
	Loras       string `mapstructure:"loras"`        // path to LoRA config JSON
}

// ComfyUIConfig describes the image/audio generation server connection.
type ComfyUIConfig struct {
	Address        string `mapstructure:"address"` // host:port of the ComfyUI server
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	ImageWidth     int    `mapstructure:"image_width"`
	ImageHeight    int    `mapstructure:"image_height"`
}

// VideoConfig controls optional image-to-video conversion.
type VideoConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Provider            string `mapstructure:"provider"` // siliconflow
	APIKey              string `mapstructure:"api_key"`
	BaseURL             string `mapstructure:"base_url"`
	Model               string `mapstructure:"model"`
	Size                string `mapstructure:"size"`
	MaxWaitSeconds      int    `mapstructure:"max_wait_seconds"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	MaxRetries          int    `mapstructure:"max_retries"`
	RetryDelaySeconds   int    `mapstructure:"retry_delay_seconds"`
}

// AudioConfig controls optional song/narration generation through the ComfyUI audio workflow.
type AudioConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Checkpoint      string  `mapstructure:"checkpoint"`
	SecondsPerScene int     `mapstructure:"seconds_per_scene"`
	Steps           int     `mapstructure:"steps"`
	CFG             float64 `mapstructure:"cfg"`
	LyricsStrength  float64 `mapstructure:"lyrics_strength"`
}

// GenerationConfig describes pipeline-level knobs for a story run.
type GenerationConfig struct {
	MaxScenes         int    `mapstructure:"max_scenes"`
	ImagesPerScene    int    `mapstructure:"images_per_scene"`
	LoraMode          string `mapstructure:"lora_mode"`           // all, group, none
	PerSceneSelection bool   `mapstructure:"per_scene_selection"` // group mode: one selector call per scene
	OutputDir         string `mapstructure:"output_dir"`
	RecordEnabled     bool   `mapstructure:"record_enabled"`
}

// LoggingConfig controls logger behaviour.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// ServerConfig describes daemon settings.
type ServerConfig struct {
	Addr           string `mapstructure:"addr"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	Transport      string `mapstructure:"transport"` // connect or ndjson
}

// Load reads configuration from the provided path or defaults to configs/config.yaml.
// Environment variables override file values (prefix: YKGEN_, dots replaced with underscores).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("YKGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
	} else {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			v.SetConfigName("config.example")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults populates sensible defaults for optional fields.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("registry.image_models", "configs/image_models.json")
	v.SetDefault("registry.loras", "configs/loras.json")

	v.SetDefault("comfyui.address", "127.0.0.1:8188")
	v.SetDefault("comfyui.timeout_seconds", 300)
	v.SetDefault("comfyui.image_width", 1024)
	v.SetDefault("comfyui.image_height", 1024)

	v.SetDefault("video.enabled", false)
	v.SetDefault("video.provider", "siliconflow")
	v.SetDefault("video.base_url", "https://api.siliconflow.cn")
	v.SetDefault("video.model", "Wan-AI/Wan2.1-I2V-14B-720P")
	v.SetDefault("video.size", "1280x720")
	v.SetDefault("video.max_wait_seconds", 600)
	v.SetDefault("video.poll_interval_seconds", 5)
	v.SetDefault("video.max_retries", 3)
	v.SetDefault("video.retry_delay_seconds", 5)

	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.checkpoint", "ace_step_v1_3.5b.safetensors")
	v.SetDefault("audio.seconds_per_scene", 5)
	v.SetDefault("audio.steps", 50)
	v.SetDefault("audio.cfg", 5)
	v.SetDefault("audio.lyrics_strength", 0.99)

	v.SetDefault("generation.max_scenes", 6)
	v.SetDefault("generation.images_per_scene", 1)
	v.SetDefault("generation.lora_mode", "all")
	v.SetDefault("generation.per_scene_selection", false)
	v.SetDefault("generation.output_dir", "output")
	v.SetDefault("generation.record_enabled", true)

	v.SetDefault("strategy.default_model", "")
	v.SetDefault("strategy.planner_model", "")
	v.SetDefault("strategy.selector_model", "")
	v.SetDefault("strategy.fallbacks", []string{})
	v.SetDefault("strategy.max_expensive", 0)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_enabled", true)
	v.SetDefault("server.transport", "connect")
}

// Validate performs basic sanity checks on configuration values.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider must be configured")
	}

	if len(c.Models) == 0 {
		return errors.New("at least one model must be defined")
	}

	var defaultFound bool
	for name, p := range c.Providers {
		if p.Type == "" {
			return fmt.Errorf("provider %q must define type", name)
		}
	}

	for name, m := range c.Models {
		if m.Provider == "" {
			return fmt.Errorf("model %q must reference provider", name)
		}

		if _, ok := c.Providers[m.Provider]; !ok {
			return fmt.Errorf("model %q references unknown provider %q", name, m.Provider)
		}

		if m.Temperature < 0 || m.Temperature > 2 {
			return fmt.Errorf("model %q temperature must be within [0,2]", name)
		}

		if m.MaxTokens < 0 {
			return fmt.Errorf("model %q max_tokens cannot be negative", name)
		}

		if m.Default {
			defaultFound = true
		}
	}

	if !defaultFound {
		return errors.New("at least one model should be marked as default")
	}

	if strings.TrimSpace(c.Registry.ImageModels) == "" {
		return errors.New("registry.image_models path must be set")
	}
	if strings.TrimSpace(c.Registry.Loras) == "" {
		return errors.New("registry.loras path must be set")
	}

	if strings.TrimSpace(c.ComfyUI.Address) == "" {
		return errors.New("comfyui.address must be set")
	}
	if c.ComfyUI.TimeoutSeconds <= 0 {
		return errors.New("comfyui.timeout_seconds must be > 0")
	}
	if c.ComfyUI.ImageWidth <= 0 || c.ComfyUI.ImageHeight <= 0 {
		return errors.New("comfyui image dimensions must be positive")
	}

	if c.Video.Enabled {
		if strings.ToLower(strings.TrimSpace(c.Video.Provider)) != "siliconflow" {
			return fmt.Errorf("video.provider must be siliconflow, got %q", c.Video.Provider)
		}
		if strings.TrimSpace(c.Video.APIKey) == "" {
			return errors.New("video.api_key must be set when video is enabled")
		}
	}
	if c.Video.MaxWaitSeconds <= 0 {
		return errors.New("video.max_wait_seconds must be > 0")
	}
	if c.Video.PollIntervalSeconds <= 0 {
		return errors.New("video.poll_interval_seconds must be > 0")
	}
	if c.Video.MaxRetries < 0 {
		return errors.New("video.max_retries must be >= 0")
	}

	if c.Audio.Enabled && strings.TrimSpace(c.Audio.Checkpoint) == "" {
		return errors.New("audio.checkpoint must be set when audio is enabled")
	}
	if c.Audio.SecondsPerScene <= 0 {
		return errors.New("audio.seconds_per_scene must be > 0")
	}

	if c.Generation.MaxScenes <= 0 {
		return errors.New("generation.max_scenes must be > 0")
	}
	if c.Generation.ImagesPerScene <= 0 {
		return errors.New("generation.images_per_scene must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Generation.LoraMode)) {
	case "all", "group", "none":
	default:
		return fmt.Errorf("generation.lora_mode must be one of all, group, none, got %q", c.Generation.LoraMode)
	}

	for _, modelID := range []string{
		c.Strategy.DefaultModel, c.Strategy.PlannerModel, c.Strategy.SelectorModel,
	} {
		if strings.TrimSpace(modelID) == "" {
			continue
		}
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy references unknown model %q", modelID)
		}
	}
	for _, modelID := range c.Strategy.Fallbacks {
		if _, ok := c.Models[modelID]; !ok {
			return fmt.Errorf("strategy fallback references unknown model %q", modelID)
		}
	}
	if c.Strategy.MaxExpensive < 0 {
		return fmt.Errorf("strategy.max_expensive must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "", "connect", "ndjson":
	default:
		return fmt.Errorf("server.transport must be one of connect or ndjson, got %q", c.Server.Transport)
	}

	return nil
}
