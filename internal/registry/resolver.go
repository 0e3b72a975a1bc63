package registry

// Resolver maps a chosen model profile to its compatible adapter set,
// degrading through the category fallback table to an empty group rather
// than failing. A misconfigured mapping costs styling, not the pipeline.
type Resolver struct {
	loras *LoraRegistry
}

// NewResolver builds a resolver over a loaded LoRA registry.
func NewResolver(loras *LoraRegistry) *Resolver {
	return &Resolver{loras: loras}
}

// ResolveLoraGroupForModel returns the adapter group for a model profile.
//
// Resolution order: the model's own lora_group_key, then the category's
// _model_mapping fallback, then an empty group. Fallback hops are reported
// as warnings; the call never fails.
func (r *Resolver) ResolveLoraGroupForModel(model ModelProfile) (LoraGroup, []Warning) {
	var warnings []Warning

	if model.LoraGroupKey != "" {
		if g, err := r.loras.Group(model.LoraGroupKey); err == nil {
			return g, nil
		}
		warnings = append(warnings, warnf(WarnDanglingGroupKey,
			"model %q references missing lora group %q", model.Name, model.LoraGroupKey))
	} else {
		warnings = append(warnings, warnf(WarnMissingGroupKey,
			"model %q declares no lora group key", model.Name))
	}

	if fallback, ok := r.loras.FallbackKey(model.Category); ok {
		if g, err := r.loras.Group(fallback); err == nil {
			return g, warnings
		}
		warnings = append(warnings, warnf(WarnNoFallbackGroup,
			"category %q fallback group %q does not exist", model.Category, fallback))
	} else {
		warnings = append(warnings, warnf(WarnNoFallbackGroup,
			"category %q has no fallback group mapping", model.Category))
	}

	// Generation proceeds unstyled; the empty key marks that no group
	// applied, rather than echoing the dangling one into records.
	return LoraGroup{}, warnings
}

// Candidates returns the stable, ordered, deduplicated selection pool for a
// model: adapter names, descriptions, and trigger words without file paths.
func (r *Resolver) Candidates(model ModelProfile) ([]Candidate, []Warning) {
	group, warnings := r.ResolveLoraGroupForModel(model)

	seen := make(map[string]bool, len(group.Adapters))
	candidates := make([]Candidate, 0, len(group.Adapters))
	for _, a := range group.Adapters {
		if seen[a.Name] {
			continue
		}
		seen[a.Name] = true
		candidates = append(candidates, Candidate{
			Name:             a.Name,
			Description:      a.Description,
			RequiredTriggers: append([]string(nil), a.TriggerWords.Required...),
			OptionalTriggers: append([]string(nil), a.TriggerWords.Optional...),
		})
	}
	return candidates, warnings
}
