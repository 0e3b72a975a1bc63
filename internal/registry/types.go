package registry

// TriggerWords splits a LoRA's activation tokens into the set that must
// appear in the prompt and the set that merely enhances it.
type TriggerWords struct {
	Required []string `json:"required"`
	Optional []string `json:"optional"`
}

// LoraAdapter describes a single low-rank adapter entry within a group.
type LoraAdapter struct {
	ID              string       `json:"-"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	File            string       `json:"file"`
	TriggerWords    TriggerWords `json:"trigger_words"`
	DisplayTrigger  string       `json:"display_trigger,omitempty"`
	StrengthModel   float64      `json:"strength_model"`
	StrengthClip    float64      `json:"strength_clip"`
	DownloadSource  string       `json:"download_source,omitempty"`
	EssentialTraits []string     `json:"essential_traits,omitempty"`
	Notes           string       `json:"notes,omitempty"`
}

// LoraGroup is a named, ordered set of adapters compatible with one family
// of base models.
type LoraGroup struct {
	Key         string
	Description string
	Adapters    []LoraAdapter
}

// Empty reports whether the group carries no adapters.
func (g LoraGroup) Empty() bool {
	return len(g.Adapters) == 0
}

// AdapterNames returns adapter display names in group order.
func (g LoraGroup) AdapterNames() []string {
	names := make([]string, 0, len(g.Adapters))
	for _, a := range g.Adapters {
		names = append(names, a.Name)
	}
	return names
}

// ModelProfile is an image-generation model entry: checkpoint reference plus
// the sampling parameters a workflow needs to drive it.
type ModelProfile struct {
	Name         string  `json:"name"`
	Category     string  `json:"-"`
	Checkpoint   string  `json:"checkpoint"`
	Steps        int     `json:"steps"`
	CFG          float64 `json:"cfg"`
	Sampler      string  `json:"sampler"`
	Scheduler    string  `json:"scheduler"`
	Denoise      float64 `json:"denoise"`
	LoraGroupKey string  `json:"lora_group_key,omitempty"`
	Default      bool    `json:"default,omitempty"`
}

// Candidate is the selection-facing view of an adapter: names and triggers
// only, so a chooser can reason about style without touching file paths.
type Candidate struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	RequiredTriggers []string `json:"required_triggers,omitempty"`
	OptionalTriggers []string `json:"optional_triggers,omitempty"`
}
