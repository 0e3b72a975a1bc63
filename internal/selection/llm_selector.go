package selection

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IAMD3/ykgen/internal/llm"
)

// LLMSelector asks a language model to pick the adapter subset that best
// fits the whole story. One call covers all scenes, keeping the choice
// consistent across the narrative and the API spend bounded.
type LLMSelector struct {
	Provider llm.Provider
	Route    llm.ModelRoute
}

// Select prompts the model with scene summaries and the candidate list, then
// maps the reply back onto the pool. Names the model invents are dropped;
// required names are always included. An empty or fully-invalid reply yields
// the required set only, not an error.
func (s *LLMSelector) Select(ctx context.Context, req Request) (Selection, error) {
	if err := validateRequest(req); err != nil {
		return Selection{}, err
	}
	if len(req.Candidates) == 0 {
		return None(), nil
	}

	chatReq := llm.ChatRequest{
		Model: s.Route.Model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: selectionSystemPrompt()},
			{Role: llm.RoleUser, Content: selectionUserPrompt(req)},
		},
		MaxTokens:   s.Route.MaxTokens,
		Temperature: s.Route.Temperature,
	}

	resp, err := s.Provider.Chat(ctx, chatReq)
	if err != nil {
		return Selection{}, fmt.Errorf("select loras: %w", err)
	}

	names, reasoning := parseSelection(resp.Message.Content)
	if req.MaxPicks > 0 && len(names) > req.MaxPicks {
		names = names[:req.MaxPicks]
	}
	names = append(append([]string{}, req.Required...), names...)

	return Selection{
		Adapters:  resolveNames(req.Group, names),
		Reasoning: reasoning,
	}, nil
}

type selectionDocument struct {
	Selected  []string `json:"selected"`
	Reasoning string   `json:"reasoning"`
}

func parseSelection(content string) ([]string, string) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, ""
	}

	var doc selectionDocument
	if err := json.Unmarshal([]byte(content[start:end+1]), &doc); err != nil {
		return nil, ""
	}
	return doc.Selected, doc.Reasoning
}

func selectionSystemPrompt() string {
	return `You are an expert in visual style selection for illustrated stories.
Given the scenes of a story and a list of candidate style adapters, choose the adapters that best fit the whole story: favour visual consistency across scenes, match adapter trigger words against recurring style keywords in the image prompts, and avoid conflicting styles. Choose at most three, or none if nothing fits.
Respond with a single JSON object: {"selected": ["..."], "reasoning": "..."}.
Use adapter names exactly as listed.`
}

func selectionUserPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Story scenes:\n")
	for i, sc := range req.Scenes {
		fmt.Fprintf(&b, "Scene %d: %s", i+1, sc.Action)
		if sc.Location != "" {
			fmt.Fprintf(&b, " (%s", sc.Location)
			if sc.Time != "" {
				fmt.Fprintf(&b, ", %s", sc.Time)
			}
			b.WriteString(")")
		}
		if sc.PromptPositive != "" {
			fmt.Fprintf(&b, "\n  visual: %s", sc.PromptPositive)
		}
		if sc.PromptNegative != "" {
			fmt.Fprintf(&b, "\n  avoid: %s", sc.PromptNegative)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nCandidate adapters:\n")
	for i, c := range req.Candidates {
		fmt.Fprintf(&b, "%d. %s: %s", i+1, c.Name, c.Description)
		if len(c.RequiredTriggers) > 0 {
			fmt.Fprintf(&b, " (triggers: %s)", strings.Join(c.RequiredTriggers, ", "))
		}
		b.WriteString("\n")
	}

	if len(req.Required) > 0 {
		fmt.Fprintf(&b, "\nAlways included (do not repeat): %s\n", strings.Join(req.Required, ", "))
	}

	return b.String()
}
