// Package selection chooses a LoRA subset for a story from the candidate
// pool the resolver produced. The chooser is pluggable: an LLM-backed
// implementation for group mode, a static one for fixed or test setups.
package selection

import (
	"context"
	"fmt"

	"github.com/IAMD3/ykgen/internal/registry"
	"github.com/IAMD3/ykgen/internal/story"
)

// Request carries the candidate pool and the scenes to choose for.
// Candidates is the name/trigger view handed to the chooser; Group holds the
// full adapter records the chosen names map back to. Required names are
// always part of the result.
type Request struct {
	Group      registry.LoraGroup
	Candidates []registry.Candidate
	Scenes     []story.Scene
	Required   []string
	MaxPicks   int
}

// Selection is a chosen adapter subset with the chooser's reasoning.
type Selection struct {
	Adapters  []registry.LoraAdapter
	Reasoning string
}

// Names returns the chosen adapter names in order.
func (s Selection) Names() []string {
	names := make([]string, 0, len(s.Adapters))
	for _, a := range s.Adapters {
		names = append(names, a.Name)
	}
	return names
}

// TriggerText returns the combined required trigger words of the selection.
func (s Selection) TriggerText() string {
	return registry.CombinedTriggers(s.Adapters, false)
}

// Selector chooses an adapter subset for a set of scenes.
type Selector interface {
	Select(ctx context.Context, req Request) (Selection, error)
}

// Static is a deterministic Selector returning a fixed name list (plus the
// request's required names). It backs "all" mode and the test suite.
type Static struct {
	Names     []string
	Reasoning string
}

// Select resolves the configured names against the pool, preserving pool
// order and dropping unknowns.
func (s Static) Select(_ context.Context, req Request) (Selection, error) {
	picked := resolveNames(req.Group, append(append([]string{}, req.Required...), s.Names...))
	return Selection{Adapters: picked, Reasoning: s.Reasoning}, nil
}

// All returns every adapter of the pool, the behaviour of "all" mode.
func All(group registry.LoraGroup) Selection {
	adapters := make([]registry.LoraAdapter, len(group.Adapters))
	copy(adapters, group.Adapters)
	return Selection{Adapters: adapters, Reasoning: "all adapters applied"}
}

// None returns an empty selection, the behaviour of "none" mode and of an
// empty resolved group.
func None() Selection {
	return Selection{}
}

// PerScene runs the chooser once per scene, each call seeing only that
// scene. Costs one model call per scene but lets the adapter set follow the
// story beat by beat.
func PerScene(ctx context.Context, s Selector, req Request) ([]Selection, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	sels := make([]Selection, 0, len(req.Scenes))
	for i, sc := range req.Scenes {
		sel, err := s.Select(ctx, Request{
			Group:      req.Group,
			Candidates: req.Candidates,
			Scenes:     []story.Scene{sc},
			Required:   req.Required,
			MaxPicks:   req.MaxPicks,
		})
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i, err)
		}
		sels = append(sels, sel)
	}
	return sels, nil
}

// Union collapses per-scene selections into one adapter set in pool order,
// for recording and trigger-word summaries.
func Union(group registry.LoraGroup, sels []Selection) Selection {
	var names []string
	for _, s := range sels {
		names = append(names, s.Names()...)
	}
	return Selection{Adapters: resolveNames(group, names), Reasoning: "per-scene selection"}
}

// resolveNames maps names back to pool adapters, deduplicated, in pool order.
func resolveNames(group registry.LoraGroup, names []string) []registry.LoraAdapter {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var picked []registry.LoraAdapter
	for _, a := range group.Adapters {
		if wanted[a.Name] {
			picked = append(picked, a)
		}
	}
	return picked
}

func validateRequest(req Request) error {
	if len(req.Scenes) == 0 {
		return fmt.Errorf("selection needs at least one scene")
	}
	return nil
}
