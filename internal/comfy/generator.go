package comfy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/IAMD3/ykgen/internal/registry"
	"github.com/IAMD3/ykgen/internal/story"
)

// Generator renders scene images through a ComfyUI server.
type Generator struct {
	client *Client
	log    *zap.Logger
	width  int
	height int
}

// NewGenerator wires a generator to a client and output dimensions.
func NewGenerator(client *Client, width, height int, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}
	return &Generator{client: client, log: log, width: width, height: height}
}

// GenerateScene renders count images for one scene. All images of a scene
// share the scene seed so recurring characters keep a consistent look; the
// seed varies between scenes because the planner assigns per-scene seeds.
func (g *Generator) GenerateScene(ctx context.Context, profile registry.ModelProfile, adapters []registry.LoraAdapter, scene story.Scene, count int) ([][]byte, error) {
	if count <= 0 {
		count = 1
	}

	wf, err := BuildImageWorkflow(ImageRequest{
		Model:     profile,
		Adapters:  adapters,
		Positive:  scene.PromptPositive,
		Negative:  scene.PromptNegative,
		Width:     g.width,
		Height:    g.height,
		BatchSize: count,
		Seed:      scene.Seed,
	})
	if err != nil {
		return nil, err
	}

	g.log.Debug("queueing scene workflow",
		zap.String("model", profile.Name),
		zap.Int("adapters", len(adapters)),
		zap.Int64("seed", scene.Seed),
		zap.Int("count", count))

	images, err := g.client.Run(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("scene render: %w", err)
	}
	return images, nil
}
