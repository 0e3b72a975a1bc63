package registry

import (
	"encoding/json"
	"fmt"
)

// LoraRegistry holds adapter groups keyed by compatibility key plus the
// category -> group fallback table. Read-only after load.
type LoraRegistry struct {
	keys    []string
	groups  map[string]LoraGroup
	mapping map[string]string
}

// Keys returns all group keys in stable order.
func (r *LoraRegistry) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Group returns the group for a key.
func (r *LoraRegistry) Group(key string) (LoraGroup, error) {
	g, ok := r.groups[key]
	if !ok {
		return LoraGroup{}, fmt.Errorf("lora group %q: %w", key, ErrNotFound)
	}
	return g, nil
}

// AdaptersInGroup returns the ordered adapters of a group.
func (r *LoraRegistry) AdaptersInGroup(key string) ([]LoraAdapter, error) {
	g, err := r.Group(key)
	if err != nil {
		return nil, err
	}
	out := make([]LoraAdapter, len(g.Adapters))
	copy(out, g.Adapters)
	return out, nil
}

// FallbackKey returns the _model_mapping entry for a category.
func (r *LoraRegistry) FallbackKey(category string) (string, bool) {
	key, ok := r.mapping[category]
	return key, ok
}

// MarshalConfig serializes the registry back into its configuration
// document form. Re-parsing the output yields identical groups.
func (r *LoraRegistry) MarshalConfig() ([]byte, error) {
	doc := make(map[string]any, len(r.groups)+1)
	if len(r.mapping) > 0 {
		doc[modelMappingKey] = r.mapping
	}
	for key, g := range r.groups {
		loras := make(map[string]LoraAdapter, len(g.Adapters))
		for _, a := range g.Adapters {
			loras[a.ID] = a
		}
		doc[key] = loraGroupDoc{Description: g.Description, Loras: loras}
	}
	return json.MarshalIndent(doc, "", "  ")
}
