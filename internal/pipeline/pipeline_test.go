package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IAMD3/ykgen/internal/assemble"
	"github.com/IAMD3/ykgen/internal/config"
	"github.com/IAMD3/ykgen/internal/llm"
	"github.com/IAMD3/ykgen/internal/llm/mock"
	"github.com/IAMD3/ykgen/internal/observability"
	"github.com/IAMD3/ykgen/internal/registry"
	"github.com/IAMD3/ykgen/internal/story"
	"github.com/IAMD3/ykgen/internal/video"
)

const modelFixture = `{
  "flux": {
    "models": [
      {"name": "flux-schnell", "checkpoint": "flux1-schnell-fp8.safetensors",
       "steps": 4, "cfg": 1, "sampler": "euler", "scheduler": "simple",
       "denoise": 1, "lora_group_key": "watercolor", "default": true}
    ]
  }
}`

const loraFixture = `{
  "_model_mapping": {"flux": "watercolor"},
  "watercolor": {
    "description": "Soft watercolor styles",
    "loras": {
      "1": {"name": "Watercolor Wash", "description": "washed-out tones",
            "file": "watercolor_wash.safetensors",
            "trigger_words": {"required": ["watercolor"], "optional": []},
            "strength_model": 0.8, "strength_clip": 0.7}
    }
  }
}`

const planReply = `{
  "story": "A fox finds a lantern and carries it home.",
  "style": "watercolor",
  "characters": [{"name": "Fox", "description": "a small red fox"}],
  "scenes": [
    {"location": "forest", "time": "dusk", "action": "fox spots the lantern",
     "characters": [{"name": "Fox", "description": "a small red fox"}],
     "image_prompt_positive": "a fox beside a glowing lantern",
     "image_prompt_negative": "blurry"},
    {"location": "path", "time": "night", "action": "fox carries the lantern home",
     "characters": [{"name": "Fox", "description": "a small red fox"}],
     "image_prompt_positive": "a fox carrying a lantern down a mossy path",
     "image_prompt_negative": "blurry"}
  ]
}`

const selectReply = `{"selected": ["Watercolor Wash"], "reasoning": "matches the style"}`

type fakeRenderer struct {
	calls []story.Scene
	fail  bool
}

func (f *fakeRenderer) GenerateScene(_ context.Context, _ registry.ModelProfile, _ []registry.LoraAdapter, scene story.Scene, count int) ([][]byte, error) {
	if f.fail {
		return nil, errors.New("render failed")
	}
	f.calls = append(f.calls, scene)
	images := make([][]byte, count)
	for i := range images {
		images[i] = []byte("png")
	}
	return images, nil
}

type fakeClips struct {
	seeds []int64
}

func (f *fakeClips) Generate(_ context.Context, req video.Request) ([]byte, error) {
	f.seeds = append(f.seeds, req.Seed)
	return []byte("mp4"), nil
}

type fakeSong struct{}

func (fakeSong) GenerateSong(_ context.Context, st story.Story, _ int64) ([]byte, string, error) {
	return []byte("mp3"), "la la la", nil
}

type nopExec struct{}

func (nopExec) Run(context.Context, assemble.Command) error { return nil }

func testPipeline(t *testing.T, renderer SceneRenderer) *Pipeline {
	t.Helper()

	provider := &mock.Provider{
		ChatFn: func(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			content := selectReply
			if strings.Contains(req.Messages[0].Content, "storyteller") {
				content = planReply
			}
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: content}}, nil
		},
	}

	reg := llm.NewRegistry()
	reg.RegisterProvider("mock", provider)
	reg.RegisterModel("story-model", llm.ModelRoute{Name: "story-model", Provider: "mock", Model: "story-model"}, true)

	models, err := registry.ParseModelRegistry([]byte(modelFixture))
	require.NoError(t, err)
	loras, err := registry.ParseLoraRegistry([]byte(loraFixture))
	require.NoError(t, err)

	return &Pipeline{
		Strategy:  llm.NewStrategyEngine(reg, config.StrategyConfig{DefaultModel: "story-model"}),
		Models:    models,
		Loras:     loras,
		Images:    renderer,
		Assembler: assemble.NewAssembler(nopExec{}, nil),
		Metrics:   observability.NewMetrics(),
		Gen: config.GenerationConfig{
			MaxScenes:      4,
			ImagesPerScene: 1,
			LoraMode:       "all",
			RecordEnabled:  true,
		},
	}
}

func TestRunAllMode(t *testing.T) {
	renderer := &fakeRenderer{}
	p := testPipeline(t, renderer)

	dir := t.TempDir()
	var events []Event
	rec, err := p.Run(context.Background(), Request{
		ID:        "run-1",
		Prompt:    "a fox finds a lantern",
		OutputDir: dir,
		Seed:      7,
	}, func(ev Event) { events = append(events, ev) })
	require.NoError(t, err)

	require.Equal(t, "flux-schnell", rec.Model)
	require.Equal(t, "watercolor", rec.LoraGroupKey)
	require.Len(t, rec.Adapters, 1)
	require.Len(t, rec.Scenes, 2)
	require.Len(t, renderer.calls, 2)

	// Scene seeds are assigned and distinct between scenes.
	require.NotZero(t, rec.Scenes[0].Seed)
	require.NotEqual(t, rec.Scenes[0].Seed, rec.Scenes[1].Seed)

	// Images land on disk and the record is saved.
	_, err = os.Stat(filepath.Join(dir, "scene_000_0.png"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "generation_run-1.json"))
	require.NoError(t, err)

	stages := make(map[string]bool)
	for _, ev := range events {
		stages[ev.Stage] = true
	}
	for _, want := range []string{"model", "plan", "select", "scene", "image", "assemble", "record"} {
		require.True(t, stages[want], "missing stage %s", want)
	}
}

func TestRunGroupModeSelectsAdapters(t *testing.T) {
	renderer := &fakeRenderer{}
	p := testPipeline(t, renderer)

	rec, err := p.Run(context.Background(), Request{
		ID:        "run-2",
		Prompt:    "a fox finds a lantern",
		LoraMode:  "group",
		OutputDir: t.TempDir(),
		Seed:      7,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"Watercolor Wash"}, []string{rec.Adapters[0].Name})
	require.Equal(t, "matches the style", rec.Reasoning)
}

func TestRunGroupModePerScene(t *testing.T) {
	renderer := &fakeRenderer{}
	p := testPipeline(t, renderer)
	p.Gen.PerSceneSelection = true

	rec, err := p.Run(context.Background(), Request{
		ID:        "run-2b",
		Prompt:    "a fox finds a lantern",
		LoraMode:  "group",
		OutputDir: t.TempDir(),
		Seed:      7,
	}, nil)
	require.NoError(t, err)
	// The mock selector picks the same adapter for every scene, so the
	// recorded union is that single adapter.
	require.Equal(t, []string{"Watercolor Wash"}, []string{rec.Adapters[0].Name})
	require.Equal(t, "per-scene selection", rec.Reasoning)
	require.Len(t, renderer.calls, 2)
}

func TestRunBudgetLimitsExpensiveModel(t *testing.T) {
	renderer := &fakeRenderer{}

	var modelsUsed []string
	provider := &mock.Provider{
		ChatFn: func(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
			modelsUsed = append(modelsUsed, req.Model)
			content := selectReply
			if strings.Contains(req.Messages[0].Content, "storyteller") {
				content = planReply
			}
			return llm.ChatResponse{Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: content}}, nil
		},
	}

	reg := llm.NewRegistry()
	reg.RegisterProvider("mock", provider)
	reg.RegisterModel("story-model", llm.ModelRoute{Name: "story-model", Provider: "mock", Model: "story-model"}, true)
	reg.RegisterModel("cheap-model", llm.ModelRoute{Name: "cheap-model", Provider: "mock", Model: "cheap-model"}, false)
	reg.MarkExpensive("story-model", true)

	models, err := registry.ParseModelRegistry([]byte(modelFixture))
	require.NoError(t, err)
	loras, err := registry.ParseLoraRegistry([]byte(loraFixture))
	require.NoError(t, err)

	p := &Pipeline{
		Strategy: llm.NewStrategyEngine(reg, config.StrategyConfig{
			DefaultModel: "story-model",
			Fallbacks:    []string{"cheap-model"},
			MaxExpensive: 1,
		}),
		Models:    models,
		Loras:     loras,
		Images:    renderer,
		Assembler: assemble.NewAssembler(nopExec{}, nil),
		Metrics:   observability.NewMetrics(),
		Gen: config.GenerationConfig{
			MaxScenes:         4,
			ImagesPerScene:    1,
			LoraMode:          "group",
			PerSceneSelection: true,
		},
	}

	_, err = p.Run(context.Background(), Request{
		ID:        "run-budget",
		Prompt:    "a fox finds a lantern",
		LoraMode:  "group",
		OutputDir: t.TempDir(),
		Seed:      7,
	}, nil)
	require.NoError(t, err)

	// The planner spends the single expensive use; both per-scene selector
	// calls drop to the fallback model.
	require.Equal(t, []string{"story-model", "cheap-model", "cheap-model"}, modelsUsed)
}

func TestRunNoneModeSkipsAdapters(t *testing.T) {
	renderer := &fakeRenderer{}
	p := testPipeline(t, renderer)

	rec, err := p.Run(context.Background(), Request{
		ID:        "run-3",
		Prompt:    "a fox finds a lantern",
		LoraMode:  "none",
		OutputDir: t.TempDir(),
		Seed:      7,
	}, nil)
	require.NoError(t, err)
	require.Empty(t, rec.Adapters)
}

func TestRunWithVideoAndAudio(t *testing.T) {
	renderer := &fakeRenderer{}
	p := testPipeline(t, renderer)
	clips := &fakeClips{}
	p.Video = clips
	p.Audio = fakeSong{}

	dir := t.TempDir()
	rec, err := p.Run(context.Background(), Request{
		ID:          "run-4",
		Prompt:      "a fox finds a lantern",
		EnableVideo: true,
		EnableAudio: true,
		OutputDir:   dir,
		Seed:        7,
	}, nil)
	require.NoError(t, err)

	require.Len(t, clips.seeds, 2)
	require.Equal(t, rec.Scenes[0].Seed, clips.seeds[0])
	require.NotEmpty(t, rec.Scenes[0].VideoPath)
	require.Equal(t, filepath.Join(dir, "song.mp3"), rec.AudioPath)
	require.Equal(t, "la la la", rec.Lyrics)
	require.Equal(t, filepath.Join(dir, "final.mp4"), rec.OutputPath)
}

func TestRunEmptyPromptFails(t *testing.T) {
	p := testPipeline(t, &fakeRenderer{})
	_, err := p.Run(context.Background(), Request{OutputDir: t.TempDir()}, nil)
	require.Error(t, err)
}

func TestRunRenderFailure(t *testing.T) {
	p := testPipeline(t, &fakeRenderer{fail: true})
	_, err := p.Run(context.Background(), Request{
		ID:        "run-5",
		Prompt:    "a fox finds a lantern",
		OutputDir: t.TempDir(),
		Seed:      7,
	}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "render failed")
}

func TestRunUnknownModel(t *testing.T) {
	p := testPipeline(t, &fakeRenderer{})
	_, err := p.Run(context.Background(), Request{
		ID:        "run-6",
		Prompt:    "a fox",
		Model:     "no-such-model",
		OutputDir: t.TempDir(),
	}, nil)
	require.ErrorIs(t, err, registry.ErrNotFound)
}
