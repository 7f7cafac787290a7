package enrich

import (
	"context"
	"time"

	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
)

// Stage is a single pluggable enrichment step. Stages are best-effort: an
// error means "no enrichment available", never "drop the event".
type Stage interface {
	// Name identifies the stage; it keys the stage's writes inside its
	// enrichment namespace.
	Name() string
	// Enrich attaches context to the event. The passed context carries the
	// per-stage timeout.
	Enrich(ctx context.Context, event *core.SecurityEvent) error
}

// Pipeline runs enrichment stages in a fixed configured order. Enrichment is
// purely additive: a stage writes only under its own key, so a later stage
// can never remove or overwrite an earlier stage's output.
type Pipeline struct {
	stages       []Stage
	stageTimeout time.Duration
	logger       *zap.SugaredLogger
}

// NewPipeline creates an enrichment pipeline. Stage order is preserved.
func NewPipeline(stages []Stage, stageTimeout time.Duration, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		stages:       stages,
		stageTimeout: stageTimeout,
		logger:       logger,
	}
}

// Process runs every stage against the event. A failing or timed-out stage
// logs, records the error under its own metadata key, and the pipeline
// continues; the event always comes back usable.
func (p *Pipeline) Process(ctx context.Context, event *core.SecurityEvent) *core.SecurityEvent {
	for _, stage := range p.stages {
		stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
		err := stage.Enrich(stageCtx, event)
		cancel()

		if err != nil {
			p.logger.Warnw("Enrichment stage failed",
				"stage", stage.Name(),
				"event_id", event.EventID,
				"error", err)
			event.ApplyEnrichment(core.NamespaceMetadata, stage.Name(), map[string]interface{}{
				"error": err.Error(),
			})
			metrics.EnrichmentsApplied.WithLabelValues(stage.Name(), "error").Inc()
			continue
		}
		metrics.EnrichmentsApplied.WithLabelValues(stage.Name(), "ok").Inc()
	}
	return event
}

// Stages returns the configured stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}
