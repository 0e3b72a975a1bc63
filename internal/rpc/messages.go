package rpc

// GenerateRequest starts one story generation run.
type GenerateRequest struct {
	SessionID     string `json:"session_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Prompt        string `json:"prompt"`
	Style         string `json:"style,omitempty"`
	Model         string `json:"model,omitempty"`
	LoraMode      string `json:"lora_mode,omitempty"` // all|group|none
	MaxScenes     int    `json:"max_scenes,omitempty"`
	ImagesPer     int    `json:"images_per_scene,omitempty"`
	EnableVideo   bool   `json:"enable_video,omitempty"`
	EnableAudio   bool   `json:"enable_audio,omitempty"`
	Seed          int64  `json:"seed,omitempty"`
	OutputDir     string `json:"output_dir,omitempty"`
}

// GenerateEvent streams progress back from the daemon.
type GenerateEvent struct {
	Type          string   `json:"type"` // stage|scene|warning|artifact|error|done
	SessionID     string   `json:"session_id,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Stage         string   `json:"stage,omitempty"`
	Message       string   `json:"message,omitempty"`
	SceneIndex    int      `json:"scene_index,omitempty"`
	SceneCount    int      `json:"scene_count,omitempty"`
	Model         string   `json:"model,omitempty"`
	Adapters      []string `json:"adapters,omitempty"`
	Warning       string   `json:"warning,omitempty"`
	Path          string   `json:"path,omitempty"`
	Error         string   `json:"error,omitempty"`
	Done          bool     `json:"done,omitempty"`
}

// GenerateStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must carry the Generate request; later messages can
// carry control signals.
type GenerateStreamRequest struct {
	Generate      *GenerateRequest `json:"generate,omitempty"`
	Cancel        bool             `json:"cancel,omitempty"`
	SessionID     string           `json:"session_id,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}
