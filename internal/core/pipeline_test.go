package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sliink/eventd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// latencyLog keeps stage recordings in arrival order
type latencyLog struct {
	mu      sync.Mutex
	entries []latencyEntry
}

type latencyEntry struct {
	stage    string
	kind     string
	duration time.Duration
	at       time.Time
}

func (l *latencyLog) RecordLatency(stage, kind string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, latencyEntry{stage: stage, kind: kind, duration: d, at: time.Now()})
}

func (l *latencyLog) Stages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	stages := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		stages = append(stages, e.stage)
	}
	return stages
}

func TestPipelineStages(t *testing.T) {
	event := model.NewEvent("message", "hello", time.Now())

	t.Run("Sync latency is recorded before trigger latency", func(t *testing.T) {
		latencies := &latencyLog{}
		syncer := newMockSyncer("sync", nil)
		notifier := newMockNotifier("out", nil)
		pipeline := NewPipeline(PipelineOptions{
			SyncDelay:    5 * time.Millisecond,
			TriggerDelay: 5 * time.Millisecond,
			Syncer:       syncer,
			Notifiers:    []model.Notifier{notifier},
			Recorder:     latencies,
		})

		require.NoError(t, pipeline.Sync(context.Background(), event))
		require.NoError(t, pipeline.Trigger(context.Background(), event))

		require.Equal(t, []string{StageSync, StageTrigger}, latencies.Stages())
		assert.False(t, latencies.entries[1].at.Before(latencies.entries[0].at))
		assert.Equal(t, "message", latencies.entries[0].kind)
		assert.GreaterOrEqual(t, latencies.entries[0].duration, 5*time.Millisecond)
		assert.Len(t, syncer.synced, 1)
		assert.Len(t, notifier.Notified(), 1)
	})

	t.Run("Sync failure is a stage error and still records latency", func(t *testing.T) {
		latencies := &latencyLog{}
		pipeline := NewPipeline(PipelineOptions{
			Syncer:   newMockSyncer("sync", errors.New("unique violation")),
			Recorder: latencies,
		})

		err := pipeline.Sync(context.Background(), event)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageSync, stageErr.Stage)
		assert.Equal(t, "message", stageErr.EventKind)
		assert.Contains(t, err.Error(), "unique violation")
		assert.Equal(t, []string{StageSync}, latencies.Stages())
	})

	t.Run("Trigger stops at the first failing notifier", func(t *testing.T) {
		latencies := &latencyLog{}
		failing := newMockNotifier("failing", errors.New("503"))
		after := newMockNotifier("after", nil)
		pipeline := NewPipeline(PipelineOptions{
			Notifiers: []model.Notifier{failing, after},
			Recorder:  latencies,
		})

		err := pipeline.Trigger(context.Background(), event)

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageTrigger, stageErr.Stage)
		assert.Empty(t, after.Notified())
		assert.Equal(t, []string{StageTrigger}, latencies.Stages())
	})

	t.Run("Panicking syncer becomes a stage error", func(t *testing.T) {
		pipeline := NewPipeline(PipelineOptions{Syncer: panicSyncer{}})

		var stageErr *StageError
		assert.ErrorAs(t, pipeline.Sync(context.Background(), event), &stageErr)
	})

	t.Run("No syncer is a no-op", func(t *testing.T) {
		pipeline := NewPipeline(PipelineOptions{})
		assert.NoError(t, pipeline.Sync(context.Background(), event))
		assert.NoError(t, pipeline.Trigger(context.Background(), event))
	})

	t.Run("Cancellation interrupts the stage delay", func(t *testing.T) {
		pipeline := NewPipeline(PipelineOptions{SyncDelay: time.Hour})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := pipeline.Sync(ctx, event)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestPipelineSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	pipeline := NewPipeline(PipelineOptions{
		Notifiers: []model.Notifier{newMockNotifier("failing", errors.New("refused"))},
		Tracer:    provider.Tracer("test"),
	})
	event := model.NewEvent("alert", "", time.Now())

	require.NoError(t, pipeline.Sync(context.Background(), event))
	require.Error(t, pipeline.Trigger(context.Background(), event))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "eventd.sync", spans[0].Name())
	assert.Equal(t, "eventd.trigger", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

type panicSyncer struct{}

func (panicSyncer) Sync(ctx context.Context, event model.Event) error {
	panic("nil map")
}
