package comfy

import (
	"fmt"
	"strings"

	"github.com/IAMD3/ykgen/internal/registry"
)

// Node is one entry in a ComfyUI workflow graph. Inputs reference other
// nodes as [nodeID, outputIndex] pairs.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Workflow is a ComfyUI prompt graph keyed by node id.
type Workflow map[string]Node

// Style selects the node layout for a model family.
type Style int

const (
	// StyleStandard is the plain SD checkpoint layout.
	StyleStandard Style = iota
	// StyleFlux adds FluxGuidance and uses the SD3 latent node.
	StyleFlux
	// StyleVPred inserts v-prediction sampling and CFG rescale nodes.
	StyleVPred
)

// StyleForCategory maps a registry category to a workflow style.
func StyleForCategory(category string) Style {
	switch {
	case strings.Contains(category, "vpred"):
		return StyleVPred
	case strings.Contains(category, "flux"):
		return StyleFlux
	default:
		return StyleStandard
	}
}

// ImageRequest describes one image generation job.
type ImageRequest struct {
	Model     registry.ModelProfile
	Adapters  []registry.LoraAdapter
	Positive  string
	Negative  string
	Width     int
	Height    int
	BatchSize int
	Seed      int64
}

// Node ids follow the conventional ComfyUI export numbering so graphs stay
// readable when pasted back into the UI.
const (
	nodeSampler    = "3"
	nodeCheckpoint = "4"
	nodeLatent     = "5"
	nodePositive   = "6"
	nodeNegative   = "7"
	nodeDecode     = "8"
	nodeSave       = "9"
	nodeSampling   = "10"
	nodeRescale    = "11"
	nodeGuidance   = "12"
)

// BuildImageWorkflow assembles the prompt graph for one request. Adapters
// are chained in order between the checkpoint and the sampler, and their
// trigger words are prepended to the positive prompt.
func BuildImageWorkflow(req ImageRequest) (Workflow, error) {
	if req.Model.Checkpoint == "" {
		return nil, fmt.Errorf("image workflow: model checkpoint is empty")
	}
	if req.Positive == "" {
		return nil, fmt.Errorf("image workflow: positive prompt is empty")
	}
	if req.Width <= 0 || req.Height <= 0 {
		return nil, fmt.Errorf("image workflow: invalid dimensions %dx%d", req.Width, req.Height)
	}
	if req.BatchSize <= 0 {
		req.BatchSize = 1
	}

	style := StyleForCategory(req.Model.Category)
	wf := Workflow{}

	wf[nodeCheckpoint] = Node{
		ClassType: "CheckpointLoaderSimple",
		Inputs:    map[string]any{"ckpt_name": req.Model.Checkpoint},
	}

	// Model chain starts at the checkpoint; vpred models route through the
	// sampling and rescale nodes before any adapter.
	model := ref(nodeCheckpoint, 0)
	clip := ref(nodeCheckpoint, 1)

	if style == StyleVPred {
		wf[nodeSampling] = Node{
			ClassType: "ModelSamplingDiscrete",
			Inputs: map[string]any{
				"sampling": "v_prediction",
				"zsnr":     true,
				"model":    model,
			},
		}
		wf[nodeRescale] = Node{
			ClassType: "RescaleCFG",
			Inputs: map[string]any{
				"multiplier": 0.6,
				"model":      ref(nodeSampling, 0),
			},
		}
		model = ref(nodeRescale, 0)
	}

	for i, adapter := range req.Adapters {
		id := fmt.Sprintf("lora_%d", i)
		wf[id] = Node{
			ClassType: "LoraLoader",
			Inputs: map[string]any{
				"lora_name":      adapter.File,
				"strength_model": adapter.StrengthModel,
				"strength_clip":  adapter.StrengthClip,
				"model":          model,
				"clip":           clip,
			},
		}
		model = ref(id, 0)
		clip = ref(id, 1)
	}

	positive := req.Positive
	if triggers := registry.CombinedTriggers(req.Adapters, true); triggers != "" {
		positive = triggers + ", " + positive
	}

	wf[nodePositive] = Node{
		ClassType: "CLIPTextEncode",
		Inputs:    map[string]any{"text": positive, "clip": clip},
	}
	wf[nodeNegative] = Node{
		ClassType: "CLIPTextEncode",
		Inputs:    map[string]any{"text": req.Negative, "clip": clip},
	}

	positiveRef := ref(nodePositive, 0)
	if style == StyleFlux {
		wf[nodeGuidance] = Node{
			ClassType: "FluxGuidance",
			Inputs: map[string]any{
				"guidance":     3.5,
				"conditioning": positiveRef,
			},
		}
		positiveRef = ref(nodeGuidance, 0)
	}

	latentClass := "EmptyLatentImage"
	if style == StyleFlux {
		latentClass = "EmptySD3LatentImage"
	}
	wf[nodeLatent] = Node{
		ClassType: latentClass,
		Inputs: map[string]any{
			"width":      req.Width,
			"height":     req.Height,
			"batch_size": req.BatchSize,
		},
	}

	wf[nodeSampler] = Node{
		ClassType: "KSampler",
		Inputs: map[string]any{
			"seed":         req.Seed,
			"steps":        req.Model.Steps,
			"cfg":          req.Model.CFG,
			"sampler_name": req.Model.Sampler,
			"scheduler":    req.Model.Scheduler,
			"denoise":      req.Model.Denoise,
			"model":        model,
			"positive":     positiveRef,
			"negative":     ref(nodeNegative, 0),
			"latent_image": ref(nodeLatent, 0),
		},
	}
	wf[nodeDecode] = Node{
		ClassType: "VAEDecode",
		Inputs: map[string]any{
			"samples": ref(nodeSampler, 0),
			"vae":     ref(nodeCheckpoint, 2),
		},
	}
	wf[nodeSave] = Node{
		ClassType: "SaveImage",
		Inputs: map[string]any{
			"filename_prefix": "ykgen",
			"images":          ref(nodeDecode, 0),
		},
	}

	return wf, nil
}

func ref(nodeID string, output int) []any {
	return []any{nodeID, output}
}
