// Package record persists a JSON account of one generation run so a result
// can be traced back to the exact model, adapters, and seeds that produced it.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/IAMD3/ykgen/internal/registry"
	"github.com/IAMD3/ykgen/internal/story"
)

// AdapterUse captures one applied adapter with its effective strengths.
type AdapterUse struct {
	Name          string  `json:"name"`
	File          string  `json:"file"`
	StrengthModel float64 `json:"strength_model"`
	StrengthClip  float64 `json:"strength_clip"`
	Trigger       string  `json:"trigger,omitempty"`
}

// SceneRecord captures what one scene rendered with.
type SceneRecord struct {
	Index      int      `json:"index"`
	Action     string   `json:"action"`
	Seed       int64    `json:"seed"`
	ImagePaths []string `json:"image_paths,omitempty"`
	VideoPath  string   `json:"video_path,omitempty"`
}

// Record is the full account of one run.
type Record struct {
	ID           string        `json:"id"`
	CreatedAt    time.Time     `json:"created_at"`
	Prompt       string        `json:"prompt"`
	Model        string        `json:"model"`
	Checkpoint   string        `json:"checkpoint"`
	LoraGroupKey string        `json:"lora_group_key,omitempty"`
	LoraMode     string        `json:"lora_mode"`
	Adapters     []AdapterUse  `json:"adapters,omitempty"`
	Reasoning    string        `json:"reasoning,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Scenes       []SceneRecord `json:"scenes"`
	AudioPath    string        `json:"audio_path,omitempty"`
	Lyrics       string        `json:"lyrics,omitempty"`
	OutputPath   string        `json:"output_path,omitempty"`
}

// New seeds a record from the resolved inputs of a run.
func New(id, prompt, loraMode string, profile registry.ModelProfile, groupKey string, adapters []registry.LoraAdapter, warnings []registry.Warning) *Record {
	rec := &Record{
		ID:           id,
		CreatedAt:    time.Now().UTC(),
		Prompt:       prompt,
		Model:        profile.Name,
		Checkpoint:   profile.Checkpoint,
		LoraGroupKey: groupKey,
		LoraMode:     loraMode,
	}
	for _, a := range adapters {
		rec.Adapters = append(rec.Adapters, AdapterUse{
			Name:          a.Name,
			File:          a.File,
			StrengthModel: a.StrengthModel,
			StrengthClip:  a.StrengthClip,
			Trigger:       registry.CombinedTriggers([]registry.LoraAdapter{a}, true),
		})
	}
	for _, w := range warnings {
		rec.Warnings = append(rec.Warnings, w.Message)
	}
	return rec
}

// AddScene appends one scene outcome.
func (r *Record) AddScene(index int, scene story.Scene, imagePaths []string, videoPath string) {
	r.Scenes = append(r.Scenes, SceneRecord{
		Index:      index,
		Action:     scene.Action,
		Seed:       scene.Seed,
		ImagePaths: imagePaths,
		VideoPath:  videoPath,
	})
}

// Save writes the record as indented JSON under dir and returns the path.
func (r *Record) Save(dir string) (string, error) {
	if r.ID == "" {
		return "", fmt.Errorf("record: id is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create record dir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("generation_%s.json", r.ID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write record: %w", err)
	}
	return path, nil
}

// Load reads a record back from disk.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse record %s: %w", path, err)
	}
	return &rec, nil
}
