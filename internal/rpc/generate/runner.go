// Package generate exposes the generation pipeline over the daemon's
// transports: an NDJSON streaming handler and a Connect bidi stream.
package generate

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/IAMD3/ykgen/internal/pipeline"
	"github.com/IAMD3/ykgen/internal/rpc"
)

// Runner starts a generation and yields streamed events.
type Runner interface {
	Run(r *http.Request, req rpc.GenerateRequest) (<-chan rpc.GenerateEvent, error)
}

// PipelineRunner bridges transport requests onto the pipeline.
type PipelineRunner struct {
	Pipeline *pipeline.Pipeline
	Logger   *zap.Logger
}

// Run launches the pipeline in a goroutine and streams its events. The
// channel closes after the terminal done or error event.
func (pr *PipelineRunner) Run(r *http.Request, req rpc.GenerateRequest) (<-chan rpc.GenerateEvent, error) {
	out := make(chan rpc.GenerateEvent, 16)

	go func() {
		defer close(out)
		ctx := r.Context()

		emit := func(ev pipeline.Event) {
			out <- rpc.GenerateEvent{
				Type:          eventType(ev),
				SessionID:     req.SessionID,
				CorrelationID: req.CorrelationID,
				Stage:         ev.Stage,
				Message:       ev.Message,
				SceneIndex:    ev.SceneIndex,
				SceneCount:    ev.SceneCount,
				Model:         ev.Model,
				Adapters:      ev.Adapters,
				Warning:       ev.Warning,
				Path:          ev.Path,
			}
		}

		rec, err := pr.Pipeline.Run(ctx, pipeline.Request{
			ID:             req.SessionID,
			Prompt:         req.Prompt,
			Style:          req.Style,
			Model:          req.Model,
			LoraMode:       req.LoraMode,
			MaxScenes:      req.MaxScenes,
			ImagesPerScene: req.ImagesPer,
			EnableVideo:    req.EnableVideo,
			EnableAudio:    req.EnableAudio,
			Seed:           req.Seed,
			OutputDir:      req.OutputDir,
		}, emit)
		if err != nil {
			if pr.Logger != nil {
				pr.Logger.Warn("generation failed",
					zap.String("session_id", req.SessionID),
					zap.Error(err))
			}
			out <- rpc.GenerateEvent{
				Type:          "error",
				SessionID:     req.SessionID,
				CorrelationID: req.CorrelationID,
				Error:         err.Error(),
			}
			return
		}

		out <- rpc.GenerateEvent{
			Type:          "done",
			SessionID:     req.SessionID,
			CorrelationID: req.CorrelationID,
			Path:          rec.OutputPath,
			Done:          true,
		}
	}()

	return out, nil
}

// EchoRunner is a stub runner that acknowledges the request without
// generating anything. It backs transport tests and dry-run setups.
type EchoRunner struct{}

func (EchoRunner) Run(_ *http.Request, req rpc.GenerateRequest) (<-chan rpc.GenerateEvent, error) {
	out := make(chan rpc.GenerateEvent, 4)
	go func() {
		defer close(out)
		out <- rpc.GenerateEvent{
			Type:          "stage",
			SessionID:     req.SessionID,
			CorrelationID: req.CorrelationID,
			Stage:         "echo",
			Message:       req.Prompt,
		}
		out <- rpc.GenerateEvent{
			Type:          "done",
			SessionID:     req.SessionID,
			CorrelationID: req.CorrelationID,
			Done:          true,
		}
	}()
	return out, nil
}

func eventType(ev pipeline.Event) string {
	switch {
	case ev.Warning != "":
		return "warning"
	case ev.Path != "":
		return "artifact"
	case ev.Stage == "scene":
		return "scene"
	default:
		return "stage"
	}
}
