package config

// StrategyConfig defines per-role LLM model selections and fallbacks.
// Roles: planner drives story/scene planning, selector drives group-mode
// LoRA selection.
type StrategyConfig struct {
	DefaultModel  string   `mapstructure:"default_model"`
	PlannerModel  string   `mapstructure:"planner_model"`
	SelectorModel string   `mapstructure:"selector_model"`
	Fallbacks     []string `mapstructure:"fallbacks"`     // ordered fallback model ids
	MaxExpensive  int      `mapstructure:"max_expensive"` // limit expensive model uses per run (0=unlimited)
}
