package core

import (
	"context"
	"fmt"
	"time"

	"github.com/sliink/eventd/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/sliink/eventd"

// PipelineOptions wires the collaborators of a Pipeline
type PipelineOptions struct {
	SyncDelay    time.Duration
	TriggerDelay time.Duration
	// Syncer may be nil, in which case the sync stage only waits.
	Syncer    model.Syncer
	Notifiers []model.Notifier
	Recorder  LatencyRecorder
	// Tracer defaults to the global tracer provider.
	Tracer trace.Tracer
}

// Pipeline runs the two ordered stages of event processing
type Pipeline struct {
	syncDelay    time.Duration
	triggerDelay time.Duration
	syncer       model.Syncer
	notifiers    []model.Notifier
	recorder     LatencyRecorder
	tracer       trace.Tracer
	BaseComponent
}

// NewPipeline creates a processing pipeline
func NewPipeline(opts PipelineOptions) *Pipeline {
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Pipeline{
		syncDelay:     opts.SyncDelay,
		triggerDelay:  opts.TriggerDelay,
		syncer:        opts.Syncer,
		notifiers:     append([]model.Notifier(nil), opts.Notifiers...),
		recorder:      opts.Recorder,
		tracer:        tracer,
		BaseComponent: NewBaseComponent("pipeline", "Processing Pipeline"),
	}
}

// Sync reconciles event with external state. A failure is returned as a
// *StageError and must stop the event before Trigger.
func (p *Pipeline) Sync(ctx context.Context, event model.Event) error {
	return p.runStage(ctx, StageSync, p.syncDelay, event, func(ctx context.Context) error {
		if p.syncer == nil {
			return nil
		}
		return p.syncer.Sync(ctx, event)
	})
}

// Trigger notifies every notifier in order and stops at the first failure
func (p *Pipeline) Trigger(ctx context.Context, event model.Event) error {
	return p.runStage(ctx, StageTrigger, p.triggerDelay, event, func(ctx context.Context) error {
		for i, notifier := range p.notifiers {
			if err := notifier.Notify(ctx, event); err != nil {
				return fmt.Errorf("notifier %d: %w", i, err)
			}
		}
		return nil
	})
}

// runStage waits delay, runs fn and records the stage latency whatever the
// outcome
func (p *Pipeline) runStage(ctx context.Context, stage string, delay time.Duration, event model.Event, fn func(context.Context) error) (err error) {
	ctx, span := p.tracer.Start(ctx, "eventd."+stage, trace.WithAttributes(
		attribute.String("event.kind", event.Kind),
	))
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			err = &StageError{Stage: stage, EventKind: event.Kind, Err: panicError(v)}
		}
		if p.recorder != nil {
			p.recorder.RecordLatency(stage, event.Kind, time.Since(start))
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := sleepContext(ctx, delay); err != nil {
		return &StageError{Stage: stage, EventKind: event.Kind, Err: err}
	}
	if err := fn(ctx); err != nil {
		return &StageError{Stage: stage, EventKind: event.Kind, Err: err}
	}
	return nil
}

// sleepContext waits d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
