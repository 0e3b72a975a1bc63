package llm

import (
	"strings"

	"github.com/IAMD3/ykgen/internal/config"
)

// StrategyEngine chooses LLM models for pipeline roles (story planning,
// LoRA selection).
type StrategyEngine struct {
	registry *Registry
	cfg      config.StrategyConfig
}

// NewStrategyEngine builds a strategy selector.
func NewStrategyEngine(reg *Registry, cfg config.StrategyConfig) *StrategyEngine {
	return &StrategyEngine{registry: reg, cfg: cfg}
}

// ResolveModel picks a model id based on role/override; falls back to the
// configured fallback chain and finally the registry default.
func (s *StrategyEngine) ResolveModel(role string, override string) (Provider, ModelRoute, error) {
	if s == nil || s.registry == nil {
		return nil, ModelRoute{}, nil
	}
	role = strings.ToLower(strings.TrimSpace(role))
	modelID := firstNonEmpty(
		override,
		roleModel(role, s.cfg),
		s.cfg.DefaultModel,
	)
	if modelID != "" {
		if p, route, err := s.registry.Resolve(modelID); err == nil {
			return p, route, nil
		}
	}
	for _, fb := range s.cfg.Fallbacks {
		if p, route, err := s.registry.Resolve(fb); err == nil {
			return p, route, nil
		}
	}
	return s.registry.Resolve("")
}

// PickWithBudget chooses a model honoring max_expensive; expensiveUsed is the count so far.
func (s *StrategyEngine) PickWithBudget(role, override string, expensiveUsed int) (Provider, ModelRoute, string, bool, error) {
	prov, route, err := s.ResolveModel(role, override)
	if err != nil {
		return nil, ModelRoute{}, "", false, err
	}
	if prov == nil {
		return nil, ModelRoute{}, "", false, nil
	}
	chosen := route.Name
	isExp := s.registry.IsExpensive(chosen)
	if s.cfg.MaxExpensive > 0 && isExp && expensiveUsed >= s.cfg.MaxExpensive {
		for _, fb := range s.cfg.Fallbacks {
			p, r, err := s.registry.Resolve(fb)
			if err != nil {
				continue
			}
			chosen = r.Name
			prov = p
			route = r
			isExp = s.registry.IsExpensive(chosen)
			break
		}
	}
	if s.cfg.MaxExpensive > 0 && isExp && expensiveUsed >= s.cfg.MaxExpensive && s.cfg.DefaultModel != "" {
		if p, r, err := s.registry.Resolve(s.cfg.DefaultModel); err == nil {
			chosen = r.Name
			prov = p
			route = r
			isExp = s.registry.IsExpensive(chosen)
		}
	}
	return prov, route, chosen, isExp, nil
}

func roleModel(role string, cfg config.StrategyConfig) string {
	switch role {
	case "planner":
		return cfg.PlannerModel
	case "selector":
		return cfg.SelectorModel
	default:
		return cfg.DefaultModel
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
