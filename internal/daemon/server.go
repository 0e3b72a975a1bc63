// Package daemon hosts the generation service: health and metrics endpoints
// plus the Generate RPC over Connect and NDJSON transports.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IAMD3/ykgen/internal/assemble"
	"github.com/IAMD3/ykgen/internal/audio"
	"github.com/IAMD3/ykgen/internal/comfy"
	"github.com/IAMD3/ykgen/internal/config"
	"github.com/IAMD3/ykgen/internal/llm"
	"github.com/IAMD3/ykgen/internal/llm/configbuilder"
	"github.com/IAMD3/ykgen/internal/observability"
	"github.com/IAMD3/ykgen/internal/pipeline"
	"github.com/IAMD3/ykgen/internal/registry"
	generaterpc "github.com/IAMD3/ykgen/internal/rpc/generate"
	"github.com/IAMD3/ykgen/internal/video"
)

// Server wires the pipeline behind HTTP transports.
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  generaterpc.Runner
	metrics *observability.Metrics
}

// NewServer constructs a daemon instance from configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	llmRegistry, err := configbuilder.BuildRegistryFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build llm registry: %w", err)
	}

	models, err := registry.LoadModelRegistry(cfg.Registry.ImageModels)
	if err != nil {
		return nil, err
	}
	loras, err := registry.LoadLoraRegistry(cfg.Registry.Loras)
	if err != nil {
		return nil, err
	}
	for _, w := range models.Warnings() {
		logger.Warn("model registry warning", zap.String("code", string(w.Code)), zap.String("message", w.Message))
	}

	metrics := observability.NewMetrics()
	strategy := llm.NewStrategyEngine(llmRegistry, cfg.Strategy)

	comfyClient := comfy.NewClient(cfg.ComfyUI.Address, time.Duration(cfg.ComfyUI.TimeoutSeconds)*time.Second)
	images := comfy.NewGenerator(comfyClient, cfg.ComfyUI.ImageWidth, cfg.ComfyUI.ImageHeight, logger)

	p := &pipeline.Pipeline{
		Strategy:  strategy,
		Models:    models,
		Loras:     loras,
		Images:    images,
		Assembler: assemble.NewAssembler(nil, logger),
		Metrics:   metrics,
		Log:       logger,
		Gen:       cfg.Generation,
	}

	if cfg.Video.Enabled {
		clips, err := video.NewClient(video.Options{
			APIKey:       cfg.Video.APIKey,
			BaseURL:      cfg.Video.BaseURL,
			Model:        cfg.Video.Model,
			Size:         cfg.Video.Size,
			MaxWait:      time.Duration(cfg.Video.MaxWaitSeconds) * time.Second,
			PollInterval: time.Duration(cfg.Video.PollIntervalSeconds) * time.Second,
			MaxRetries:   cfg.Video.MaxRetries,
			RetryDelay:   time.Duration(cfg.Video.RetryDelaySeconds) * time.Second,
			OnRetry:      metrics.RecordVideoRetry,
		}, logger)
		if err != nil {
			return nil, err
		}
		p.Video = clips
	}

	if cfg.Audio.Enabled {
		provider, route, err := strategy.ResolveModel("planner", "")
		if err != nil {
			return nil, fmt.Errorf("resolve songwriter model: %w", err)
		}
		songs := audio.NewGenerator(comfyClient, audio.NewSongwriter(provider, route), logger)
		songs.Checkpoint = cfg.Audio.Checkpoint
		songs.SecondsPerScene = cfg.Audio.SecondsPerScene
		songs.Steps = cfg.Audio.Steps
		songs.CFG = cfg.Audio.CFG
		songs.LyricsStrength = cfg.Audio.LyricsStrength
		p.Audio = songs
	}

	runner := &generaterpc.PipelineRunner{Pipeline: p, Logger: logger}
	return &Server{cfg: cfg, logger: logger, runner: runner, metrics: metrics}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// error.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/metrics", s.metricsHandler)

	transport := strings.ToLower(strings.TrimSpace(s.cfg.Server.Transport))
	switch transport {
	case "ndjson":
		mux.Handle("/generate", generaterpc.NewHandler(s.runner, s.metrics))
	default:
		path, handler := generaterpc.NewConnectHandler(s.runner, s.metrics)
		mux.Handle(path, handler)
		// keep the NDJSON path available for plain HTTP clients
		mux.Handle("/generate", generaterpc.NewHandler(s.runner, s.metrics))
	}

	handler := http.Handler(mux)
	if transport != "ndjson" {
		handler = h2c.NewHandler(handler, &http2.Server{})
	}

	server := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting ykgen daemon", zap.String("addr", s.cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down ykgen daemon")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Server.MetricsEnabled {
		http.NotFound(w, r)
		return
	}
	promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}
