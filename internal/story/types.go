package story

// Character is a recurring figure in the story. The seed keeps its depiction
// consistent across the scenes it appears in.
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Seed        int64  `json:"seed,omitempty"`
}

// Scene is one illustrated beat of the story. Every image generated for a
// scene shares Seed, so reruns with a different adapter set vary only style.
type Scene struct {
	Location       string      `json:"location"`
	Time           string      `json:"time"`
	Characters     []Character `json:"characters,omitempty"`
	Action         string      `json:"action"`
	PromptPositive string      `json:"image_prompt_positive"`
	PromptNegative string      `json:"image_prompt_negative,omitempty"`
	Seed           int64       `json:"seed,omitempty"`
}

// Story is the planner's output: full narrative text plus the scene plan.
type Story struct {
	Prompt     string      `json:"prompt"`
	Full       string      `json:"story_full"`
	Style      string      `json:"style,omitempty"`
	Characters []Character `json:"characters,omitempty"`
	Scenes     []Scene     `json:"scenes"`
}

// SceneCount returns the number of planned scenes.
func (s Story) SceneCount() int {
	return len(s.Scenes)
}
