package story

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"

	"github.com/IAMD3/ykgen/internal/llm"
)

// Planner turns a user prompt into a story with a bounded scene plan by
// calling the configured LLM.
type Planner struct {
	provider  llm.Provider
	route     llm.ModelRoute
	maxScenes int
}

// NewPlanner builds a planner bound to a resolved provider/route.
func NewPlanner(provider llm.Provider, route llm.ModelRoute, maxScenes int) *Planner {
	if maxScenes <= 0 {
		maxScenes = 6
	}
	return &Planner{provider: provider, route: route, maxScenes: maxScenes}
}

// Plan generates the story and scene list for a prompt. A response that
// cannot be parsed degrades to a single-scene story built from the raw text
// rather than failing the run.
func (p *Planner) Plan(ctx context.Context, prompt, style string) (Story, error) {
	if strings.TrimSpace(prompt) == "" {
		return Story{}, fmt.Errorf("prompt is required")
	}

	req := llm.ChatRequest{
		Model: p.route.Model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: planSystemPrompt(p.maxScenes)},
			{Role: llm.RoleUser, Content: planUserPrompt(prompt, style)},
		},
		MaxTokens:   p.route.MaxTokens,
		Temperature: p.route.Temperature,
	}

	resp, err := p.provider.Chat(ctx, req)
	if err != nil {
		return Story{}, fmt.Errorf("plan story: %w", err)
	}

	s, parseErr := parsePlan(resp.Message.Content)
	if parseErr != nil {
		s = fallbackStory(resp.Message.Content, prompt)
	}
	s.Prompt = prompt
	if s.Style == "" {
		s.Style = style
	}
	if len(s.Scenes) > p.maxScenes {
		s.Scenes = s.Scenes[:p.maxScenes]
	}
	if len(s.Scenes) == 0 {
		return Story{}, fmt.Errorf("planner produced no scenes")
	}
	return s, nil
}

// AssignSeeds gives every scene and character a deterministic seed derived
// from base. Images within a scene reuse the scene seed.
func AssignSeeds(s *Story, base int64) {
	rng := rand.New(rand.NewSource(base))
	for i := range s.Characters {
		s.Characters[i].Seed = rng.Int63()
	}
	for i := range s.Scenes {
		s.Scenes[i].Seed = rng.Int63()
		for j := range s.Scenes[i].Characters {
			s.Scenes[i].Characters[j].Seed = seedForCharacter(s.Characters, s.Scenes[i].Characters[j].Name)
		}
	}
}

func seedForCharacter(chars []Character, name string) int64 {
	for _, c := range chars {
		if c.Name == name {
			return c.Seed
		}
	}
	return 0
}

type planDocument struct {
	Story      string      `json:"story"`
	Style      string      `json:"style"`
	Characters []Character `json:"characters"`
	Scenes     []Scene     `json:"scenes"`
}

// parsePlan extracts the JSON plan from a model reply, tolerating fenced
// code blocks and leading prose.
func parsePlan(content string) (Story, error) {
	raw := extractJSON(content)
	if raw == "" {
		return Story{}, fmt.Errorf("no JSON object in response")
	}

	var doc planDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Story{}, fmt.Errorf("decode plan: %w", err)
	}
	if len(doc.Scenes) == 0 {
		return Story{}, fmt.Errorf("plan has no scenes")
	}
	for i, sc := range doc.Scenes {
		if strings.TrimSpace(sc.PromptPositive) == "" {
			return Story{}, fmt.Errorf("scene %d has no positive prompt", i+1)
		}
	}

	return Story{
		Full:       doc.Story,
		Style:      doc.Style,
		Characters: doc.Characters,
		Scenes:     doc.Scenes,
	}, nil
}

// extractJSON returns the outermost {...} span of content, stripping
// markdown fences first.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// fallbackStory wraps an unparseable reply into a single scene so generation
// can still proceed. An empty reply falls back to the user prompt, keeping
// the scene's image prompt non-empty for the workflow builder.
func fallbackStory(content, prompt string) Story {
	text := strings.TrimSpace(content)
	if text == "" {
		text = strings.TrimSpace(prompt)
	}
	return Story{
		Full: text,
		Scenes: []Scene{{
			Action:         "the story unfolds",
			PromptPositive: text,
		}},
	}
}

func planSystemPrompt(maxScenes int) string {
	return fmt.Sprintf(`You are a visual storyteller. Given a prompt, write a short story and split it into at most %d scenes.
Respond with a single JSON object:
{"story": "...", "style": "...", "characters": [{"name": "...", "description": "..."}], "scenes": [{"location": "...", "time": "...", "action": "...", "characters": [{"name": "...", "description": "..."}], "image_prompt_positive": "...", "image_prompt_negative": "..."}]}
Every scene needs a detailed image_prompt_positive suitable for an image generation model.`, maxScenes)
}

func planUserPrompt(prompt, style string) string {
	var b strings.Builder
	b.WriteString("Prompt: ")
	b.WriteString(prompt)
	if strings.TrimSpace(style) != "" {
		b.WriteString("\nVisual style: ")
		b.WriteString(style)
	}
	return b.String()
}
