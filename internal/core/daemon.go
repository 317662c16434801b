package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sliink/eventd/internal/model"
)

// Scanner yields the candidate events of one cycle
type Scanner interface {
	Scan(ctx context.Context) []model.Event
}

// EventProcessor runs the ordered processing stages for one event
type EventProcessor interface {
	Sync(ctx context.Context, event model.Event) error
	Trigger(ctx context.Context, event model.Event) error
}

// DaemonMetrics is the part of Metrics the loop writes to
type DaemonMetrics interface {
	RecordEvent(kind string)
	RecordRecovery()
	SetLoopState(state model.LoopState)
}

// DaemonOptions carries everything built during startup. The daemon holds
// these for its whole life and never rebuilds them.
type DaemonOptions struct {
	Config   *Config
	Identity Identity
	Hooks    *HookRegistry
	Scanner  Scanner
	Pipeline EventProcessor
	Metrics  DaemonMetrics
	Bus      *EventBus
	Health   *HealthMonitor
	Logger   *slog.Logger
}

// DaemonStatus is a point-in-time view of the loop
type DaemonStatus struct {
	State         model.LoopState `json:"state"`
	Cycles        uint64          `json:"cycles"`
	Processed     uint64          `json:"processed"`
	Recoveries    uint64          `json:"recoveries"`
	LastFailure   string          `json:"last_failure,omitempty"`
	LastFailureAt *time.Time      `json:"last_failure_at,omitempty"`
}

// Daemon is the scheduling loop. It scans, processes each event through
// sync, trigger and the hooks, and restarts itself after a stage failure.
type Daemon struct {
	config   *Config
	identity Identity
	hooks    *HookRegistry
	scanner  Scanner
	pipeline EventProcessor
	metrics  DaemonMetrics
	bus      *EventBus
	health   *HealthMonitor
	logger   *slog.Logger

	mu     sync.RWMutex
	status DaemonStatus
	BaseComponent
}

// NewDaemon creates a daemon in the STARTING state
func NewDaemon(opts DaemonOptions) (*Daemon, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("daemon: config is required")
	case opts.Scanner == nil:
		return nil, errors.New("daemon: scanner is required")
	case opts.Pipeline == nil:
		return nil, errors.New("daemon: pipeline is required")
	}

	hooks := opts.Hooks
	if hooks == nil {
		hooks = NewHookRegistry(HookRegistryOptions{Logger: opts.Logger})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Daemon{
		config:        opts.Config,
		identity:      opts.Identity,
		hooks:         hooks,
		scanner:       opts.Scanner,
		pipeline:      opts.Pipeline,
		metrics:       opts.Metrics,
		bus:           opts.Bus,
		health:        opts.Health,
		logger:        logger.With("component", "daemon"),
		BaseComponent: NewBaseComponent("daemon", "Event Daemon"),
	}
	d.setState(context.Background(), model.StateStarting)
	return d, nil
}

// Run drives the loop until ctx is cancelled. It always returns nil after a
// clean shutdown; stage failures are recovered in place.
func (d *Daemon) Run(ctx context.Context) error {
	d.SetStatus(model.StatusRunning)
	d.logger.InfoContext(ctx, "daemon running",
		"instance_id", d.identity.InstanceID,
		"scan_interval", d.config.ScanInterval,
		"hooks", d.hooks.Len())
	d.setState(ctx, model.StateRunning)

	for {
		err := d.runLoop(ctx)
		if err == nil {
			break
		}

		d.recordFailure(err)
		d.setState(ctx, model.StateRecovering)
		d.logger.ErrorContext(ctx, "loop failed, recovering",
			"error", err,
			"backoff", d.config.RecoveryBackoff)
		if d.metrics != nil {
			d.metrics.RecordRecovery()
		}
		d.bus.Publish(model.NewNotice(model.NoticeStageFailure, d.ID(), err))

		if sleepContext(ctx, d.config.RecoveryBackoff) != nil {
			break
		}
		d.setState(ctx, model.StateRunning)
	}

	d.setState(ctx, model.StateShuttingDown)
	d.logger.InfoContext(ctx, "shutdown requested, stopping loop")
	d.SetStatus(model.StatusStopped)
	d.setState(ctx, model.StateTerminated)
	return nil
}

// runLoop returns nil on cancellation and an error when a cycle fails
func (d *Daemon) runLoop(ctx context.Context) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = panicError(v)
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		events := d.scanner.Scan(ctx)
		if err := d.processBatch(ctx, events); err != nil {
			return err
		}

		d.mu.Lock()
		d.status.Cycles++
		d.mu.Unlock()

		if sleepContext(ctx, d.config.ScanInterval) != nil {
			return nil
		}
	}
}

// processBatch handles events one at a time in scan order. Processing is
// detached from ctx so an event that has started always finishes; once ctx
// is cancelled no further event of the batch is started.
func (d *Daemon) processBatch(ctx context.Context, events []model.Event) error {
	work := context.WithoutCancel(ctx)
	for i, event := range events {
		if ctx.Err() != nil {
			d.logger.InfoContext(ctx, "shutdown during batch, skipping remaining events",
				"skipped", len(events)-i)
			return nil
		}
		if err := d.processEvent(work, event); err != nil {
			return err
		}
	}
	return nil
}

func (d *Daemon) processEvent(ctx context.Context, event model.Event) error {
	if err := d.pipeline.Sync(ctx, event); err != nil {
		return err
	}
	if err := d.pipeline.Trigger(ctx, event); err != nil {
		return err
	}
	d.hooks.Dispatch(ctx, event)
	if d.metrics != nil {
		d.metrics.RecordEvent(event.Kind)
	}

	d.mu.Lock()
	d.status.Processed++
	d.mu.Unlock()
	return nil
}

func (d *Daemon) setState(ctx context.Context, state model.LoopState) {
	d.mu.Lock()
	previous := d.status.State
	d.status.State = state
	d.mu.Unlock()

	if previous != state {
		d.logger.DebugContext(ctx, "loop state changed", "from", previous, "to", state)
	}
	if d.metrics != nil {
		d.metrics.SetLoopState(state)
	}
	if d.health != nil {
		d.health.AddMetric("loop_state", string(state), nil)
	}
	d.bus.Publish(model.NewNotice(model.NoticeStateChange, d.ID(), state))
}

func (d *Daemon) recordFailure(err error) {
	now := time.Now().UTC()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Recoveries++
	d.status.LastFailure = err.Error()
	d.status.LastFailureAt = &now
}

// State returns the current loop state
func (d *Daemon) State() model.LoopState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status.State
}

// Snapshot returns a copy of the loop counters and last failure
func (d *Daemon) Snapshot() DaemonStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Config returns the configuration the daemon was built with
func (d *Daemon) Config() *Config {
	return d.config
}

// Identity returns the process identity
func (d *Daemon) Identity() Identity {
	return d.identity
}

// Hooks returns the hook registry the daemon was built with
func (d *Daemon) Hooks() *HookRegistry {
	return d.hooks
}
