package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/IAMD3/ykgen/internal/llm"
	"github.com/IAMD3/ykgen/internal/story"
)

// Songwriter asks an LLM for lyrics and style tags matched to a story.
type Songwriter struct {
	provider llm.Provider
	route    llm.ModelRoute
}

// NewSongwriter binds a songwriter to a resolved provider/route.
func NewSongwriter(provider llm.Provider, route llm.ModelRoute) *Songwriter {
	return &Songwriter{provider: provider, route: route}
}

// WriteLyrics produces lyrics covering the story, sized to the song length
// at a singing pace of roughly two words per second.
func (s *Songwriter) WriteLyrics(ctx context.Context, st story.Story, seconds int) (string, error) {
	if seconds <= 0 {
		return "", fmt.Errorf("songwriter: duration must be positive")
	}

	var scenes strings.Builder
	for i, scene := range st.Scenes {
		fmt.Fprintf(&scenes, "Scene %d: %s at %s during %s\n", i+1, scene.Action, scene.Location, scene.Time)
	}

	minWords := seconds * 3 / 2
	maxWords := seconds * 5 / 2

	prompt := fmt.Sprintf(`Based on the following story and scenes, write song lyrics that capture the narrative and emotions.

Story:
%s

Scenes:
%s
Song Duration: %d seconds

Requirements:
- The lyrics should tell the story in a musical way
- Include a chorus that captures the main theme
- Keep it between %d-%d words to fit the duration
- Start with vocals immediately, no long instrumental intro

Write only the lyrics, no explanations or formatting markers.`, st.Full, scenes.String(), seconds, minWords, maxWords)

	resp, err := s.provider.Chat(ctx, llm.ChatRequest{
		Model: s.route.Model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: "You are a talented songwriter who creates catchy, emotional songs based on stories."},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   s.route.MaxTokens,
		Temperature: s.route.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("write lyrics: %w", err)
	}

	lyrics := strings.TrimSpace(resp.Message.Content)
	if lyrics == "" {
		return "", fmt.Errorf("songwriter: model returned empty lyrics")
	}
	return lyrics, nil
}

// WriteTags produces comma-separated music style tags for the story mood.
// On any model failure it falls back to the default tag set: a song with
// generic styling beats no song.
func (s *Songwriter) WriteTags(ctx context.Context, st story.Story) string {
	prompt := fmt.Sprintf(`Based on this story, suggest appropriate music style tags:

Story: %s

Return only a comma-separated list of tags (10-15 tags maximum) covering
genre, mood, instruments, and tempo. Include tags that emphasize immediate
vocal entry such as "immediate vocals" or "vocal-driven".`, st.Full)

	resp, err := s.provider.Chat(ctx, llm.ChatRequest{
		Model: s.route.Model,
		Messages: []llm.ChatMessage{
			{Role: llm.RoleSystem, Content: "You are a music producer who selects musical styles and instruments based on story content and mood."},
			{Role: llm.RoleUser, Content: prompt},
		},
		MaxTokens:   s.route.MaxTokens,
		Temperature: s.route.Temperature,
	})
	if err != nil {
		return defaultTags
	}

	tags := strings.TrimSpace(resp.Message.Content)
	if tags == "" || strings.ContainsAny(tags, "{}") {
		return defaultTags
	}
	return tags
}
