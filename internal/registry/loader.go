package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// modelMappingKey is the reserved entry in the LoRA document holding the
// category -> fallback group key table.
const modelMappingKey = "_model_mapping"

type modelCategoryDoc struct {
	Description string         `json:"description,omitempty"`
	Models      []ModelProfile `json:"models"`
}

type loraGroupDoc struct {
	Description string                 `json:"description"`
	Loras       map[string]LoraAdapter `json:"loras"`
}

// LoadModelRegistry reads and validates the image model configuration file.
func LoadModelRegistry(path string) (*ModelRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image model config %s: %w", path, err)
	}
	reg, err := ParseModelRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("image model config %s: %w", path, err)
	}
	return reg, nil
}

// ParseModelRegistry builds a ModelRegistry from a JSON document mapping
// category names to ordered model lists.
func ParseModelRegistry(data []byte) (*ModelRegistry, error) {
	var doc map[string]modelCategoryDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: no model categories defined", ErrConfiguration)
	}

	categories := make([]string, 0, len(doc))
	for category := range doc {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	reg := &ModelRegistry{
		categories: categories,
		models:     make(map[string][]ModelProfile, len(doc)),
	}

	for _, category := range categories {
		entry := doc[category]
		if len(entry.Models) == 0 {
			return nil, fmt.Errorf("%w: category %q has no models", ErrConfiguration, category)
		}
		defaultSeen := false
		models := make([]ModelProfile, 0, len(entry.Models))
		for i, m := range entry.Models {
			m.Category = category
			if err := validateModel(category, i, m); err != nil {
				return nil, err
			}
			if m.Default {
				if defaultSeen {
					// First wins; demote the extra flag instead of failing.
					reg.warnings = append(reg.warnings, warnf(WarnDuplicateDefault,
						"category %q marks %q default but an earlier model already is", category, m.Name))
					m.Default = false
				}
				defaultSeen = true
			}
			models = append(models, m)
		}
		if !defaultSeen {
			reg.warnings = append(reg.warnings, warnf(WarnNoDefaultModel,
				"category %q has no default model, treating %q as default", category, models[0].Name))
		}
		reg.models[category] = models
	}

	return reg, nil
}

func validateModel(category string, idx int, m ModelProfile) error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: category %q model #%d has no name", ErrConfiguration, category, idx+1)
	}
	if strings.TrimSpace(m.Checkpoint) == "" {
		return fmt.Errorf("%w: model %q has no checkpoint", ErrConfiguration, m.Name)
	}
	if m.Steps <= 0 {
		return fmt.Errorf("%w: model %q steps must be positive", ErrConfiguration, m.Name)
	}
	if m.CFG < 0 {
		return fmt.Errorf("%w: model %q cfg cannot be negative", ErrConfiguration, m.Name)
	}
	if m.Denoise < 0 || m.Denoise > 1 {
		return fmt.Errorf("%w: model %q denoise must be within [0,1]", ErrConfiguration, m.Name)
	}
	return nil
}

// LoadLoraRegistry reads and validates the LoRA configuration file.
func LoadLoraRegistry(path string) (*LoraRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lora config %s: %w", path, err)
	}
	reg, err := ParseLoraRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("lora config %s: %w", path, err)
	}
	return reg, nil
}

// ParseLoraRegistry builds a LoraRegistry from a JSON document holding the
// reserved _model_mapping entry plus one entry per group key.
func ParseLoraRegistry(data []byte) (*LoraRegistry, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	mapping := make(map[string]string)
	if rawMapping, ok := raw[modelMappingKey]; ok {
		if err := json.Unmarshal(rawMapping, &mapping); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfiguration, modelMappingKey, err)
		}
		delete(raw, modelMappingKey)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no lora groups defined", ErrConfiguration)
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groups := make(map[string]LoraGroup, len(raw))
	for _, key := range keys {
		var doc loraGroupDoc
		if err := json.Unmarshal(raw[key], &doc); err != nil {
			return nil, fmt.Errorf("%w: group %q: %v", ErrConfiguration, key, err)
		}
		group, err := buildGroup(key, doc)
		if err != nil {
			return nil, err
		}
		groups[key] = group
	}

	return &LoraRegistry{keys: keys, groups: groups, mapping: mapping}, nil
}

func buildGroup(key string, doc loraGroupDoc) (LoraGroup, error) {
	ids := make([]string, 0, len(doc.Loras))
	for id := range doc.Loras {
		ids = append(ids, id)
	}
	sortAdapterIDs(ids)

	adapters := make([]LoraAdapter, 0, len(ids))
	for _, id := range ids {
		a := doc.Loras[id]
		a.ID = id
		if strings.TrimSpace(a.Name) == "" {
			return LoraGroup{}, fmt.Errorf("%w: group %q lora %q has no name", ErrConfiguration, key, id)
		}
		if strings.TrimSpace(a.File) == "" {
			return LoraGroup{}, fmt.Errorf("%w: group %q lora %q has no file", ErrConfiguration, key, id)
		}
		adapters = append(adapters, a)
	}

	return LoraGroup{Key: key, Description: doc.Description, Adapters: adapters}, nil
}

// sortAdapterIDs orders local ids numerically when they parse as integers,
// lexically otherwise, so "10" sorts after "2".
func sortAdapterIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		if errA == nil {
			return true
		}
		if errB == nil {
			return false
		}
		return ids[i] < ids[j]
	})
}
