// Package audio generates a backing song for a story through the ComfyUI
// ACE Step workflow: an LLM writes lyrics and style tags, ComfyUI renders
// them to an mp3.
package audio

import (
	"fmt"

	"github.com/IAMD3/ykgen/internal/comfy"
)

// defaultTags lean on immediate vocal entry so short clips are not all intro.
const defaultTags = "immediate vocals, vocal-driven, soft female vocals, anime, kawaii pop, j-pop, piano, guitar, synthesizer, fast, happy, cheerful, lighthearted, voice-first, early vocals"

// SongRequest describes one song render.
type SongRequest struct {
	Lyrics         string
	Tags           string
	Seconds        int
	Seed           int64
	Checkpoint     string
	Steps          int
	CFG            float64
	LyricsStrength float64
}

func (r *SongRequest) fill() {
	if r.Tags == "" {
		r.Tags = defaultTags
	}
	if r.Seconds <= 0 {
		r.Seconds = 120
	}
	if r.Checkpoint == "" {
		r.Checkpoint = "ace_step_v1_3.5b.safetensors"
	}
	if r.Steps <= 0 {
		r.Steps = 50
	}
	if r.CFG <= 0 {
		r.CFG = 5
	}
	if r.LyricsStrength <= 0 {
		r.LyricsStrength = 0.99
	}
}

// Node ids match the ACE Step reference graph so the workflow stays
// recognizable in the ComfyUI editor.
const (
	nodeEncode     = "14"
	nodeLatent     = "17"
	nodeDecode     = "18"
	nodeCheckpoint = "40"
	nodeZeroOut    = "44"
	nodeCFGApply   = "49"
	nodeTonemap    = "50"
	nodeSampling   = "51"
	nodeSampler    = "52"
	nodeSave       = "59"
)

// BuildSongWorkflow assembles the ACE Step prompt graph.
func BuildSongWorkflow(req SongRequest) (comfy.Workflow, error) {
	if req.Lyrics == "" {
		return nil, fmt.Errorf("song workflow: lyrics are empty")
	}
	req.fill()

	return comfy.Workflow{
		nodeCheckpoint: {
			ClassType: "CheckpointLoaderSimple",
			Inputs:    map[string]any{"ckpt_name": req.Checkpoint},
		},
		nodeEncode: {
			ClassType: "TextEncodeAceStepAudio",
			Inputs: map[string]any{
				"tags":            req.Tags,
				"lyrics":          req.Lyrics,
				"lyrics_strength": req.LyricsStrength,
				"clip":            ref(nodeCheckpoint, 1),
			},
		},
		nodeLatent: {
			ClassType: "EmptyAceStepLatentAudio",
			Inputs:    map[string]any{"seconds": req.Seconds, "batch_size": 1},
		},
		nodeZeroOut: {
			ClassType: "ConditioningZeroOut",
			Inputs:    map[string]any{"conditioning": ref(nodeEncode, 0)},
		},
		nodeSampling: {
			ClassType: "ModelSamplingSD3",
			Inputs:    map[string]any{"shift": 5.0, "model": ref(nodeCheckpoint, 0)},
		},
		nodeTonemap: {
			ClassType: "LatentOperationTonemapReinhard",
			Inputs:    map[string]any{"multiplier": 1.0},
		},
		nodeCFGApply: {
			ClassType: "LatentApplyOperationCFG",
			Inputs:    map[string]any{"model": ref(nodeSampling, 0), "operation": ref(nodeTonemap, 0)},
		},
		nodeSampler: {
			ClassType: "KSampler",
			Inputs: map[string]any{
				"seed":         req.Seed,
				"steps":        req.Steps,
				"cfg":          req.CFG,
				"sampler_name": "euler",
				"scheduler":    "simple",
				"denoise":      1,
				"model":        ref(nodeCFGApply, 0),
				"positive":     ref(nodeEncode, 0),
				"negative":     ref(nodeZeroOut, 0),
				"latent_image": ref(nodeLatent, 0),
			},
		},
		nodeDecode: {
			ClassType: "VAEDecodeAudio",
			Inputs:    map[string]any{"samples": ref(nodeSampler, 0), "vae": ref(nodeCheckpoint, 2)},
		},
		nodeSave: {
			ClassType: "SaveAudioMP3",
			Inputs: map[string]any{
				"filename_prefix": "ykgen/song",
				"quality":         "V0",
				"audio":           ref(nodeDecode, 0),
			},
		},
	}, nil
}

func ref(nodeID string, output int) []any {
	return []any{nodeID, output}
}
