package comfy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/IAMD3/ykgen/internal/registry"
)

func fluxProfile() registry.ModelProfile {
	return registry.ModelProfile{
		Name:       "flux-schnell",
		Category:   "flux",
		Checkpoint: "flux1-schnell-fp8.safetensors",
		Steps:      4,
		CFG:        1,
		Sampler:    "euler",
		Scheduler:  "simple",
		Denoise:    1,
	}
}

func vpredProfile() registry.ModelProfile {
	return registry.ModelProfile{
		Name:       "illustrious-vpred",
		Category:   "illustrious_vpred",
		Checkpoint: "noobaiXLNAIXL_vPred10Version.safetensors",
		Steps:      26,
		CFG:        5,
		Sampler:    "euler_ancestral",
		Scheduler:  "normal",
		Denoise:    1,
	}
}

func testAdapters() []registry.LoraAdapter {
	return []registry.LoraAdapter{
		{
			Name:          "Watercolor Wash",
			File:          "watercolor_wash.safetensors",
			StrengthModel: 0.8,
			StrengthClip:  0.7,
			TriggerWords:  registry.TriggerWords{Required: []string{"watercolor"}},
		},
		{
			Name:          "Soft Light",
			File:          "soft_light.safetensors",
			StrengthModel: 1.0,
			StrengthClip:  1.0,
			TriggerWords:  registry.TriggerWords{Required: []string{"soft lighting"}, Optional: []string{"bloom"}},
		},
	}
}

func TestBuildImageWorkflowChainsAdapters(t *testing.T) {
	wf, err := BuildImageWorkflow(ImageRequest{
		Model:    fluxProfile(),
		Adapters: testAdapters(),
		Positive: "a fox in the forest",
		Width:    1024,
		Height:   1024,
		Seed:     42,
	})
	require.NoError(t, err)

	first, ok := wf["lora_0"]
	require.True(t, ok)
	require.Equal(t, "LoraLoader", first.ClassType)
	require.Equal(t, "watercolor_wash.safetensors", first.Inputs["lora_name"])
	require.Equal(t, 0.8, first.Inputs["strength_model"])
	require.Equal(t, 0.7, first.Inputs["strength_clip"])
	require.Equal(t, []any{nodeCheckpoint, 0}, first.Inputs["model"])

	second, ok := wf["lora_1"]
	require.True(t, ok)
	require.Equal(t, []any{"lora_0", 0}, second.Inputs["model"])
	require.Equal(t, []any{"lora_0", 1}, second.Inputs["clip"])

	// Sampler and text encoders hang off the end of the chain.
	require.Equal(t, []any{"lora_1", 0}, wf[nodeSampler].Inputs["model"])
	require.Equal(t, []any{"lora_1", 1}, wf[nodePositive].Inputs["clip"])
	require.Equal(t, []any{"lora_1", 1}, wf[nodeNegative].Inputs["clip"])
}

func TestBuildImageWorkflowPrependsTriggers(t *testing.T) {
	wf, err := BuildImageWorkflow(ImageRequest{
		Model:    fluxProfile(),
		Adapters: testAdapters(),
		Positive: "a fox in the forest",
		Width:    512,
		Height:   512,
		Seed:     7,
	})
	require.NoError(t, err)

	text := wf[nodePositive].Inputs["text"].(string)
	require.Equal(t, "watercolor, soft lighting, bloom, a fox in the forest", text)
}

func TestBuildImageWorkflowWithoutAdapters(t *testing.T) {
	wf, err := BuildImageWorkflow(ImageRequest{
		Model:    fluxProfile(),
		Positive: "a fox in the forest",
		Width:    512,
		Height:   512,
	})
	require.NoError(t, err)

	for id := range wf {
		require.NotContains(t, id, "lora_")
	}
	require.Equal(t, []any{nodeCheckpoint, 0}, wf[nodeSampler].Inputs["model"])
	require.Equal(t, "a fox in the forest", wf[nodePositive].Inputs["text"])
}

func TestBuildImageWorkflowFluxNodes(t *testing.T) {
	wf, err := BuildImageWorkflow(ImageRequest{
		Model:    fluxProfile(),
		Positive: "a fox",
		Width:    512,
		Height:   512,
	})
	require.NoError(t, err)

	require.Equal(t, "EmptySD3LatentImage", wf[nodeLatent].ClassType)
	require.Equal(t, "FluxGuidance", wf[nodeGuidance].ClassType)
	require.Equal(t, []any{nodeGuidance, 0}, wf[nodeSampler].Inputs["positive"])
}

func TestBuildImageWorkflowVPredNodes(t *testing.T) {
	wf, err := BuildImageWorkflow(ImageRequest{
		Model:    vpredProfile(),
		Adapters: testAdapters()[:1],
		Positive: "a fox",
		Width:    832,
		Height:   1216,
	})
	require.NoError(t, err)

	require.Equal(t, "ModelSamplingDiscrete", wf[nodeSampling].ClassType)
	require.Equal(t, "v_prediction", wf[nodeSampling].Inputs["sampling"])
	require.Equal(t, "RescaleCFG", wf[nodeRescale].ClassType)

	// Adapters attach after the rescale node, clip still comes from the
	// checkpoint.
	require.Equal(t, []any{nodeRescale, 0}, wf["lora_0"].Inputs["model"])
	require.Equal(t, []any{nodeCheckpoint, 1}, wf["lora_0"].Inputs["clip"])
	require.Equal(t, "EmptyLatentImage", wf[nodeLatent].ClassType)
}

func TestBuildImageWorkflowSeedAndSampler(t *testing.T) {
	wf, err := BuildImageWorkflow(ImageRequest{
		Model:     vpredProfile(),
		Positive:  "a fox",
		Width:     1024,
		Height:    1024,
		BatchSize: 3,
		Seed:      1234,
	})
	require.NoError(t, err)

	sampler := wf[nodeSampler].Inputs
	require.Equal(t, int64(1234), sampler["seed"])
	require.Equal(t, 26, sampler["steps"])
	require.Equal(t, float64(5), sampler["cfg"])
	require.Equal(t, "euler_ancestral", sampler["sampler_name"])
	require.Equal(t, 3, wf[nodeLatent].Inputs["batch_size"])

	// Same request yields the same graph, so repeated renders of a scene
	// stay reproducible.
	again, err := BuildImageWorkflow(ImageRequest{
		Model:     vpredProfile(),
		Positive:  "a fox",
		Width:     1024,
		Height:    1024,
		BatchSize: 3,
		Seed:      1234,
	})
	require.NoError(t, err)
	require.Equal(t, wf, again)
}

func TestBuildImageWorkflowValidation(t *testing.T) {
	_, err := BuildImageWorkflow(ImageRequest{Model: fluxProfile(), Width: 512, Height: 512})
	require.Error(t, err)

	_, err = BuildImageWorkflow(ImageRequest{Model: fluxProfile(), Positive: "x"})
	require.Error(t, err)

	profile := fluxProfile()
	profile.Checkpoint = ""
	_, err = BuildImageWorkflow(ImageRequest{Model: profile, Positive: "x", Width: 512, Height: 512})
	require.Error(t, err)
}

func TestStyleForCategory(t *testing.T) {
	require.Equal(t, StyleFlux, StyleForCategory("flux"))
	require.Equal(t, StyleVPred, StyleForCategory("illustrious_vpred"))
	require.Equal(t, StyleStandard, StyleForCategory("sdxl"))
}
