package registry

import "fmt"

// ModelRegistry holds image model profiles grouped by category. It is built
// once at load and read-only afterwards, so concurrent reads need no locking.
type ModelRegistry struct {
	categories []string
	models     map[string][]ModelProfile
	warnings   []Warning
}

// Categories returns all category names in stable order.
func (r *ModelRegistry) Categories() []string {
	out := make([]string, len(r.categories))
	copy(out, r.categories)
	return out
}

// ListModels returns the ordered model profiles of a category.
func (r *ModelRegistry) ListModels(category string) ([]ModelProfile, error) {
	models, ok := r.models[category]
	if !ok {
		return nil, fmt.Errorf("category %q: %w", category, ErrNotFound)
	}
	out := make([]ModelProfile, len(models))
	copy(out, models)
	return out, nil
}

// GetDefault returns the category's default profile. When no profile is
// marked default the first-loaded one is used; the load step has already
// recorded a warning for that case.
func (r *ModelRegistry) GetDefault(category string) (ModelProfile, error) {
	models, ok := r.models[category]
	if !ok || len(models) == 0 {
		return ModelProfile{}, fmt.Errorf("category %q: %w", category, ErrNotFound)
	}
	for _, m := range models {
		if m.Default {
			return m, nil
		}
	}
	return models[0], nil
}

// FindModel locates a profile by name across all categories.
func (r *ModelRegistry) FindModel(name string) (ModelProfile, error) {
	for _, category := range r.categories {
		for _, m := range r.models[category] {
			if m.Name == name {
				return m, nil
			}
		}
	}
	return ModelProfile{}, fmt.Errorf("model %q: %w", name, ErrNotFound)
}

// ModelCount returns the total number of profiles across categories.
func (r *ModelRegistry) ModelCount() int {
	n := 0
	for _, models := range r.models {
		n += len(models)
	}
	return n
}

// Warnings returns inconsistencies recovered during load (duplicate or
// missing default flags).
func (r *ModelRegistry) Warnings() []Warning {
	out := make([]Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}
