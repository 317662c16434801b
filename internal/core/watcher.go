package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sliink/eventd/internal/model"
)

// SourceErrorRecorder counts failed source scans
type SourceErrorRecorder interface {
	RecordSourceError(sourceID string)
}

// Watcher fans a scan out to every source and gathers the results
type Watcher struct {
	sources  []model.Source
	recorder SourceErrorRecorder
	bus      *EventBus
	logger   *slog.Logger
	BaseComponent
}

// NewWatcher creates a watcher over sources. The slice is copied.
func NewWatcher(sources []model.Source, recorder SourceErrorRecorder, bus *EventBus, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		sources:       append([]model.Source(nil), sources...),
		recorder:      recorder,
		bus:           bus,
		logger:        logger.With("component", "watcher"),
		BaseComponent: NewBaseComponent("watcher", "Event Watcher"),
	}
}

type scanResult struct {
	events []model.Event
	err    error
}

// Scan queries every source concurrently. A source that fails or panics is
// logged once and contributes nothing; events from the others are returned
// concatenated in source order.
func (w *Watcher) Scan(ctx context.Context) []model.Event {
	results := make([]scanResult, len(w.sources))

	var wg sync.WaitGroup
	for i, source := range w.sources {
		wg.Add(1)
		go func(i int, source model.Source) {
			defer wg.Done()
			results[i] = w.scanOne(ctx, source)
		}(i, source)
	}
	wg.Wait()

	var events []model.Event
	for i, result := range results {
		if result.err != nil {
			w.reportFailure(ctx, w.sources[i].ID(), result.err)
			continue
		}
		for _, event := range result.events {
			if err := event.Validate(); err != nil {
				w.logger.WarnContext(ctx, "dropping invalid event", "source", w.sources[i].ID(), "error", err)
				continue
			}
			events = append(events, event)
		}
	}
	return events
}

func (w *Watcher) scanOne(ctx context.Context, source model.Source) (result scanResult) {
	defer func() {
		if v := recover(); v != nil {
			result = scanResult{err: panicError(v)}
		}
	}()
	events, err := source.Scan(ctx)
	return scanResult{events: events, err: err}
}

func (w *Watcher) reportFailure(ctx context.Context, sourceID string, err error) {
	scanErr := &SourceScanError{SourceID: sourceID, Err: err}
	w.logger.WarnContext(ctx, "source scan failed", "source", sourceID, "error", err)
	if w.recorder != nil {
		w.recorder.RecordSourceError(sourceID)
	}
	w.bus.Publish(model.NewNotice(model.NoticeSourceFailure, sourceID, scanErr))
}

// SourceIDs returns the ids of the watched sources in scan order
func (w *Watcher) SourceIDs() []string {
	ids := make([]string, 0, len(w.sources))
	for _, source := range w.sources {
		ids = append(ids, source.ID())
	}
	return ids
}
