package assemble

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
)

// Executor runs one command. The real implementation shells out to FFmpeg;
// tests substitute a recorder.
type Executor interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner executes commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, cmd Command) error {
	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	out, err := c.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", cmd.Path, err, string(out))
	}
	return nil
}

// Assembler combines scene clips and an optional song into the final video.
type Assembler struct {
	exec Executor
	log  *zap.Logger

	// SecondsPerImage is the display time for still frames promoted to
	// clips when no video provider ran.
	SecondsPerImage int
	Width           int
	Height          int
}

// NewAssembler builds an assembler; a nil executor gets the real FFmpeg
// runner.
func NewAssembler(exec Executor, log *zap.Logger) *Assembler {
	if exec == nil {
		exec = ExecRunner{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Assembler{exec: exec, log: log, SecondsPerImage: 5, Width: 1024, Height: 1024}
}

// Input names the material for one assembly run. ClipPaths are used as-is;
// ImagePaths are promoted to clips first. At least one of the two must be
// non-empty.
type Input struct {
	ClipPaths  []string
	ImagePaths []string
	AudioPath  string
	WorkDir    string
	OutputPath string
}

// Assemble produces the final video file and returns its path.
func (a *Assembler) Assemble(ctx context.Context, in Input) (string, error) {
	if len(in.ClipPaths) == 0 && len(in.ImagePaths) == 0 {
		return "", fmt.Errorf("assemble: no clips or images to combine")
	}
	if in.OutputPath == "" {
		return "", fmt.Errorf("assemble: output path is empty")
	}
	if in.WorkDir == "" {
		in.WorkDir = filepath.Dir(in.OutputPath)
	}

	clips := append([]string(nil), in.ClipPaths...)
	for i, img := range in.ImagePaths {
		clip := filepath.Join(in.WorkDir, fmt.Sprintf("still_%03d.mp4", i))
		if err := a.exec.Run(ctx, ImageClip(img, clip, a.SecondsPerImage, a.Width, a.Height)); err != nil {
			return "", fmt.Errorf("render still %s: %w", img, err)
		}
		clips = append(clips, clip)
	}

	listPath := filepath.Join(in.WorkDir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(ConcatList(clips)), 0o644); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}

	combined := in.OutputPath
	if in.AudioPath != "" {
		combined = filepath.Join(in.WorkDir, "combined.mp4")
	}

	if err := a.exec.Run(ctx, ConcatClips(listPath, combined)); err != nil {
		a.log.Warn("concat re-encode failed, falling back to stream copy", zap.Error(err))
		if err := a.exec.Run(ctx, ConcatClipsCopy(listPath, combined)); err != nil {
			return "", fmt.Errorf("concat clips: %w", err)
		}
	}

	if in.AudioPath != "" {
		if err := a.exec.Run(ctx, MuxAudio(combined, in.AudioPath, in.OutputPath)); err != nil {
			return "", fmt.Errorf("mux audio: %w", err)
		}
	}

	a.log.Info("assembled video",
		zap.String("output", in.OutputPath),
		zap.Int("clips", len(clips)),
		zap.Bool("audio", in.AudioPath != ""))
	return in.OutputPath, nil
}
