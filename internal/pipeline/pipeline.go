// Package pipeline runs one story generation end to end: plan the story,
// resolve the model's adapter group, choose adapters, render scene images,
// then optionally video clips and a song, and assemble the final output.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/IAMD3/ykgen/internal/assemble"
	"github.com/IAMD3/ykgen/internal/config"
	"github.com/IAMD3/ykgen/internal/llm"
	"github.com/IAMD3/ykgen/internal/observability"
	"github.com/IAMD3/ykgen/internal/record"
	"github.com/IAMD3/ykgen/internal/registry"
	"github.com/IAMD3/ykgen/internal/selection"
	"github.com/IAMD3/ykgen/internal/story"
	"github.com/IAMD3/ykgen/internal/video"
)

// Event is one progress notification from a run.
type Event struct {
	Stage      string
	Message    string
	SceneIndex int
	SceneCount int
	Model      string
	Adapters   []string
	Warning    string
	Path       string
}

// EmitFunc receives progress events. A nil emitter is allowed.
type EmitFunc func(Event)

// SceneRenderer renders the images for one scene.
type SceneRenderer interface {
	GenerateScene(ctx context.Context, profile registry.ModelProfile, adapters []registry.LoraAdapter, scene story.Scene, count int) ([][]byte, error)
}

// ClipMaker turns a scene frame into a video clip.
type ClipMaker interface {
	Generate(ctx context.Context, req video.Request) ([]byte, error)
}

// SongMaker writes and renders a song for the story.
type SongMaker interface {
	GenerateSong(ctx context.Context, st story.Story, seed int64) ([]byte, string, error)
}

// Pipeline wires the generation stages together. Video and Audio are
// optional; a nil client skips that stage regardless of the request.
type Pipeline struct {
	Strategy  *llm.StrategyEngine
	Models    *registry.ModelRegistry
	Loras     *registry.LoraRegistry
	Images    SceneRenderer
	Video     ClipMaker
	Audio     SongMaker
	Assembler *assemble.Assembler
	Metrics   *observability.Metrics
	Log       *zap.Logger
	Gen       config.GenerationConfig
}

// Request describes one run.
type Request struct {
	ID             string
	Prompt         string
	Style          string
	Model          string
	LoraMode       string
	MaxScenes      int
	ImagesPerScene int
	EnableVideo    bool
	EnableAudio    bool
	Seed           int64
	OutputDir      string
}

// Run executes the request and returns the generation record.
func (p *Pipeline) Run(ctx context.Context, req Request, emit EmitFunc) (*record.Record, error) {
	start := time.Now()
	rec, err := p.run(ctx, req, emit)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	p.Metrics.RecordGeneration(outcome, time.Since(start))
	return rec, err
}

func (p *Pipeline) run(ctx context.Context, req Request, emit EmitFunc) (*record.Record, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("pipeline: prompt is empty")
	}
	if req.ID == "" {
		req.ID = fmt.Sprintf("%d", time.Now().UnixNano())
	}
	req = p.applyDefaults(req)

	log := p.logger().With(zap.String("run_id", req.ID))

	// Model resolution.
	profile, err := p.resolveProfile(req.Model)
	if err != nil {
		return nil, err
	}
	emit(Event{Stage: "model", Model: profile.Name, Message: "resolved model " + profile.Name})

	// Adapter group resolution never fails; degradations surface as warnings.
	resolver := registry.NewResolver(p.Loras)
	group, warnings := resolver.ResolveLoraGroupForModel(profile)
	for _, w := range warnings {
		p.Metrics.RecordResolverFallback(string(w.Code))
		emit(Event{Stage: "resolve", Warning: w.Message})
		log.Warn("adapter resolution warning", zap.String("code", string(w.Code)), zap.String("message", w.Message))
	}

	// Story planning. One expensive-model budget spans every LLM call of
	// the run: the planner first, then each selector call.
	var expensiveUsed int
	st, err := p.plan(ctx, req, &expensiveUsed)
	if err != nil {
		return nil, err
	}
	seed := req.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	story.AssignSeeds(&st, seed)
	p.Metrics.RecordScenes(st.SceneCount())
	emit(Event{Stage: "plan", SceneCount: st.SceneCount(), Message: fmt.Sprintf("planned %d scenes", st.SceneCount())})

	// Adapter choice. perScene is non-nil only for per-scene group mode.
	sel, perScene, err := p.choose(ctx, req, resolver, profile, group, st, &expensiveUsed, emit)
	if err != nil {
		return nil, err
	}
	emit(Event{Stage: "select", Adapters: sel.Names(), Message: sel.Reasoning})

	runDir := req.OutputDir
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	rec := record.New(req.ID, req.Prompt, req.LoraMode, profile, group.Key, sel.Adapters, warnings)
	rec.Reasoning = sel.Reasoning

	// Scene rendering.
	var clipPaths, stillPaths []string
	for i, scene := range st.Scenes {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		emit(Event{Stage: "scene", SceneIndex: i, SceneCount: st.SceneCount(), Message: scene.Action})

		adapters := sel.Adapters
		if perScene != nil {
			adapters = perScene[i].Adapters
		}
		images, err := p.Images.GenerateScene(ctx, profile, adapters, scene, req.ImagesPerScene)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", i, err)
		}
		p.Metrics.RecordImages(len(images))

		var imagePaths []string
		for j, img := range images {
			path := filepath.Join(runDir, fmt.Sprintf("scene_%03d_%d.png", i, j))
			if err := os.WriteFile(path, img, 0o644); err != nil {
				return nil, fmt.Errorf("write image: %w", err)
			}
			imagePaths = append(imagePaths, path)
			emit(Event{Stage: "image", SceneIndex: i, Path: path})
		}
		stillPaths = append(stillPaths, imagePaths[0])

		clipPath := ""
		if req.EnableVideo && p.Video != nil {
			clip, err := p.Video.Generate(ctx, video.Request{
				Image:    images[0],
				Prompt:   scene.Action,
				Negative: scene.PromptNegative,
				Seed:     scene.Seed,
			})
			if err != nil {
				return nil, fmt.Errorf("scene %d video: %w", i, err)
			}
			clipPath = filepath.Join(runDir, fmt.Sprintf("scene_%03d.mp4", i))
			if err := os.WriteFile(clipPath, clip, 0o644); err != nil {
				return nil, fmt.Errorf("write clip: %w", err)
			}
			clipPaths = append(clipPaths, clipPath)
			p.Metrics.RecordClip()
			emit(Event{Stage: "video", SceneIndex: i, Path: clipPath})
		}

		rec.AddScene(i, scene, imagePaths, clipPath)
	}

	// Song.
	audioPath := ""
	if req.EnableAudio && p.Audio != nil {
		song, lyrics, err := p.Audio.GenerateSong(ctx, st, seed)
		if err != nil {
			return nil, fmt.Errorf("song: %w", err)
		}
		audioPath = filepath.Join(runDir, "song.mp3")
		if err := os.WriteFile(audioPath, song, 0o644); err != nil {
			return nil, fmt.Errorf("write song: %w", err)
		}
		rec.AudioPath = audioPath
		rec.Lyrics = lyrics
		emit(Event{Stage: "audio", Path: audioPath})
	}

	// Final assembly. Stills stand in for scenes without clips.
	if p.Assembler != nil {
		in := assemble.Input{
			AudioPath:  audioPath,
			WorkDir:    runDir,
			OutputPath: filepath.Join(runDir, "final.mp4"),
		}
		if len(clipPaths) == len(st.Scenes) {
			in.ClipPaths = clipPaths
		} else {
			in.ClipPaths = clipPaths
			in.ImagePaths = stillPaths[len(clipPaths):]
		}
		out, err := p.Assembler.Assemble(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("assemble: %w", err)
		}
		rec.OutputPath = out
		emit(Event{Stage: "assemble", Path: out})
	}

	if p.Gen.RecordEnabled {
		path, err := rec.Save(runDir)
		if err != nil {
			return nil, err
		}
		emit(Event{Stage: "record", Path: path})
	}

	log.Info("generation finished",
		zap.Int("scenes", st.SceneCount()),
		zap.Int("clips", len(clipPaths)),
		zap.String("model", profile.Name))
	return rec, nil
}

func (p *Pipeline) applyDefaults(req Request) Request {
	if req.LoraMode == "" {
		req.LoraMode = p.Gen.LoraMode
	}
	if req.LoraMode == "" {
		req.LoraMode = "all"
	}
	if req.MaxScenes <= 0 {
		req.MaxScenes = p.Gen.MaxScenes
	}
	if req.ImagesPerScene <= 0 {
		req.ImagesPerScene = p.Gen.ImagesPerScene
	}
	if req.ImagesPerScene <= 0 {
		req.ImagesPerScene = 1
	}
	if req.OutputDir == "" {
		base := p.Gen.OutputDir
		if base == "" {
			base = "output"
		}
		req.OutputDir = filepath.Join(base, req.ID)
	}
	return req
}

func (p *Pipeline) resolveProfile(name string) (registry.ModelProfile, error) {
	if name != "" {
		return p.Models.FindModel(name)
	}
	for _, category := range p.Models.Categories() {
		if profile, err := p.Models.GetDefault(category); err == nil {
			return profile, nil
		}
	}
	return registry.ModelProfile{}, fmt.Errorf("pipeline: no model available: %w", registry.ErrNotFound)
}

func (p *Pipeline) plan(ctx context.Context, req Request, expensiveUsed *int) (story.Story, error) {
	provider, route, _, isExpensive, err := p.Strategy.PickWithBudget("planner", "", *expensiveUsed)
	if err != nil {
		return story.Story{}, fmt.Errorf("resolve planner model: %w", err)
	}
	if isExpensive {
		*expensiveUsed++
	}
	p.Metrics.RecordModelUsage("planner", route.Model)

	planner := story.NewPlanner(provider, route, req.MaxScenes)
	st, err := planner.Plan(ctx, req.Prompt, req.Style)
	if err != nil {
		p.Metrics.RecordModelFailure("planner", route.Model)
		return story.Story{}, err
	}
	return st, nil
}

// choose picks adapters per mode. In group mode a selector failure degrades
// to applying the whole group rather than failing the run. The second result
// is non-nil only when per-scene selection produced a set per scene; the
// first is then the union, used for the record and the progress stream.
func (p *Pipeline) choose(ctx context.Context, req Request, resolver *registry.Resolver, profile registry.ModelProfile, group registry.LoraGroup, st story.Story, expensiveUsed *int, emit EmitFunc) (selection.Selection, []selection.Selection, error) {
	switch req.LoraMode {
	case "none":
		return selection.None(), nil, nil
	case "group":
		candidates, _ := resolver.Candidates(profile)
		if len(candidates) == 0 {
			return selection.None(), nil, nil
		}

		chooser := budgetedSelector{strategy: p.Strategy, metrics: p.Metrics, used: expensiveUsed}
		selReq := selection.Request{
			Group:      group,
			Candidates: candidates,
			Scenes:     st.Scenes,
		}

		if p.Gen.PerSceneSelection {
			sels, err := selection.PerScene(ctx, chooser, selReq)
			if err != nil {
				emit(Event{Stage: "select", Warning: "adapter selection failed, applying full group: " + err.Error()})
				return selection.All(group), nil, nil
			}
			return selection.Union(group, sels), sels, nil
		}

		sel, err := chooser.Select(ctx, selReq)
		if err != nil {
			emit(Event{Stage: "select", Warning: "adapter selection failed, applying full group: " + err.Error()})
			return selection.All(group), nil, nil
		}
		return sel, nil, nil
	default: // all
		return selection.All(group), nil, nil
	}
}

// budgetedSelector resolves the selector model per call through the
// expensive-model budget, so later calls of a per-scene run drop to a
// fallback model once the budget is spent.
type budgetedSelector struct {
	strategy *llm.StrategyEngine
	metrics  *observability.Metrics
	used     *int
}

func (b budgetedSelector) Select(ctx context.Context, req selection.Request) (selection.Selection, error) {
	provider, route, _, isExpensive, err := b.strategy.PickWithBudget("selector", "", *b.used)
	if err != nil {
		return selection.Selection{}, fmt.Errorf("resolve selector model: %w", err)
	}
	if isExpensive {
		*b.used++
	}
	b.metrics.RecordModelUsage("selector", route.Model)

	chooser := &selection.LLMSelector{Provider: provider, Route: route}
	sel, err := chooser.Select(ctx, req)
	if err != nil {
		b.metrics.RecordModelFailure("selector", route.Model)
	}
	return sel, err
}

func (p *Pipeline) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
