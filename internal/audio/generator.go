package audio

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/IAMD3/ykgen/internal/comfy"
	"github.com/IAMD3/ykgen/internal/story"
)

// Generator renders a story song end to end: lyrics, tags, then audio.
type Generator struct {
	client     *comfy.Client
	songwriter *Songwriter
	log        *zap.Logger

	Checkpoint      string
	SecondsPerScene int
	Steps           int
	CFG             float64
	LyricsStrength  float64
}

// NewGenerator wires the generator to a ComfyUI client and a songwriter.
func NewGenerator(client *comfy.Client, songwriter *Songwriter, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{client: client, songwriter: songwriter, log: log, SecondsPerScene: 5}
}

// GenerateSong writes and renders a song whose length tracks the scene
// count. Returns the mp3 bytes and the lyrics used.
func (g *Generator) GenerateSong(ctx context.Context, st story.Story, seed int64) ([]byte, string, error) {
	if st.SceneCount() == 0 {
		return nil, "", fmt.Errorf("audio: story has no scenes")
	}

	perScene := g.SecondsPerScene
	if perScene <= 0 {
		perScene = 5
	}
	seconds := st.SceneCount() * perScene

	lyrics, err := g.songwriter.WriteLyrics(ctx, st, seconds)
	if err != nil {
		return nil, "", err
	}
	tags := g.songwriter.WriteTags(ctx, st)

	wf, err := BuildSongWorkflow(SongRequest{
		Lyrics:         lyrics,
		Tags:           tags,
		Seconds:        seconds,
		Seed:           seed,
		Checkpoint:     g.Checkpoint,
		Steps:          g.Steps,
		CFG:            g.CFG,
		LyricsStrength: g.LyricsStrength,
	})
	if err != nil {
		return nil, "", err
	}

	g.log.Info("rendering song",
		zap.Int("seconds", seconds),
		zap.Int("scenes", st.SceneCount()),
		zap.Int64("seed", seed))

	outputs, err := g.client.Run(ctx, wf)
	if err != nil {
		return nil, "", fmt.Errorf("render song: %w", err)
	}
	return outputs[0], lyrics, nil
}
