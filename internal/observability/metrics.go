package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the generation daemon.
type Metrics struct {
	registry         *prometheus.Registry
	Generations      *prometheus.CounterVec
	GenerationTime   *prometheus.HistogramVec
	ScenesPlanned    prometheus.Counter
	ImagesRendered   prometheus.Counter
	ClipsRendered    prometheus.Counter
	ResolverFallback *prometheus.CounterVec
	VideoRetries     prometheus.Counter
	ActiveSession    *prometheus.GaugeVec
	TransportErrs    *prometheus.CounterVec
	ModelUsage       *prometheus.CounterVec
	ModelFailures    *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with pipeline collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	gens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ykgen_generations_total",
		Help: "Total generation runs by outcome",
	}, []string{"outcome"})

	genTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ykgen_generation_duration_seconds",
		Help:    "End-to-end generation duration in seconds",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"outcome"})

	scenes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ykgen_scenes_planned_total",
		Help: "Scenes produced by the story planner",
	})

	images := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ykgen_images_rendered_total",
		Help: "Images rendered through ComfyUI",
	})

	clips := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ykgen_video_clips_total",
		Help: "Video clips produced by the video provider",
	})

	fallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ykgen_resolver_fallback_total",
		Help: "Adapter group resolutions that fell back, by warning code",
	}, []string{"code"})

	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ykgen_video_retries_total",
		Help: "Retried video status checks",
	})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ykgen_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ykgen_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	modelUsage := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ykgen_model_usage_total",
		Help: "LLM model selections by role",
	}, []string{"role", "model"})

	modelFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ykgen_model_failures_total",
		Help: "LLM model failures by role and model",
	}, []string{"role", "model"})

	reg.MustRegister(gens, genTime, scenes, images, clips, fallback, retries, active, trErrors, modelUsage, modelFailures)

	return &Metrics{
		registry:         reg,
		Generations:      gens,
		GenerationTime:   genTime,
		ScenesPlanned:    scenes,
		ImagesRendered:   images,
		ClipsRendered:    clips,
		ResolverFallback: fallback,
		VideoRetries:     retries,
		ActiveSession:    active,
		TransportErrs:    trErrors,
		ModelUsage:       modelUsage,
		ModelFailures:    modelFailures,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordGeneration records one finished run.
func (m *Metrics) RecordGeneration(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Generations.WithLabelValues(outcome).Inc()
	m.GenerationTime.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordScenes adds to the planned-scene counter.
func (m *Metrics) RecordScenes(count int) {
	if m == nil {
		return
	}
	m.ScenesPlanned.Add(float64(count))
}

// RecordImages adds to the rendered-image counter.
func (m *Metrics) RecordImages(count int) {
	if m == nil {
		return
	}
	m.ImagesRendered.Add(float64(count))
}

// RecordClip counts one produced video clip.
func (m *Metrics) RecordClip() {
	if m == nil {
		return
	}
	m.ClipsRendered.Inc()
}

// RecordResolverFallback counts a resolution warning by code.
func (m *Metrics) RecordResolverFallback(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.ResolverFallback.WithLabelValues(code).Inc()
}

// RecordVideoRetry counts one retried status check.
func (m *Metrics) RecordVideoRetry() {
	if m == nil {
		return
	}
	m.VideoRetries.Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}

// RecordModelUsage increments the usage counter for a role/model selection.
func (m *Metrics) RecordModelUsage(role, model string) {
	if m == nil {
		return
	}
	m.ModelUsage.WithLabelValues(role, model).Inc()
}

// RecordModelFailure increments the failure counter for a role/model.
func (m *Metrics) RecordModelFailure(role, model string) {
	if m == nil {
		return
	}
	m.ModelFailures.WithLabelValues(role, model).Inc()
}
