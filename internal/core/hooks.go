package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sliink/eventd/internal/model"
)

// HookLoader turns one plugin file into a hook. It returns ErrNoHook when the
// file loads but does not define on_event.
type HookLoader interface {
	Extensions() []string
	Load(path string) (model.Hook, error)
}

// HookErrorRecorder counts failed hook invocations
type HookErrorRecorder interface {
	RecordHookError(hook string)
}

// HookRegistryOptions carries the collaborators shared by every hook
type HookRegistryOptions struct {
	Logger   *slog.Logger
	Recorder HookErrorRecorder
	Bus      *EventBus
}

// HookRegistry holds the hooks loaded at startup. The hook list never
// changes after construction.
type HookRegistry struct {
	hooks    []model.Hook
	logger   *slog.Logger
	recorder HookErrorRecorder
	bus      *EventBus
}

// NewHookRegistry builds a registry from compiled-in hooks
func NewHookRegistry(opts HookRegistryOptions, hooks ...model.Hook) *HookRegistry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HookRegistry{
		hooks:    append([]model.Hook(nil), hooks...),
		logger:   logger.With("component", "hooks"),
		recorder: opts.Recorder,
		bus:      opts.Bus,
	}
}

// LoadHookRegistry loads every plugin file in dir that loader accepts, in
// lexical order. A disabled or missing directory yields an empty registry.
// Files without on_event are skipped silently and files that fail to load
// are logged and skipped.
func LoadHookRegistry(dir string, enabled bool, loader HookLoader, opts HookRegistryOptions) *HookRegistry {
	registry := NewHookRegistry(opts)
	if !enabled {
		registry.logger.Debug("plugins disabled")
		return registry
	}
	if loader == nil {
		registry.logger.Warn("plugins enabled but no loader configured", "path", dir)
		return registry
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			registry.logger.Warn("plugin directory does not exist", "path", dir)
		} else {
			registry.logger.Warn("plugin directory unreadable", "path", dir, "error", err)
		}
		return registry
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !hasExtension(entry.Name(), loader.Extensions()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		hook, err := loader.Load(path)
		switch {
		case errors.Is(err, ErrNoHook):
			registry.logger.Debug("plugin has no on_event, skipping", "file", entry.Name())
			continue
		case err != nil:
			registry.logger.Warn("plugin failed to load", "file", entry.Name(), "error", err)
			continue
		}

		registry.hooks = append(registry.hooks, hook)
		registry.logger.Info("plugin loaded", "file", entry.Name(), "hook", hook.Name())
	}
	return registry
}

func hasExtension(name string, extensions []string) bool {
	ext := filepath.Ext(name)
	for _, want := range extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// Dispatch calls every hook with event in registration order. Failures and
// panics are logged, counted and never returned.
func (r *HookRegistry) Dispatch(ctx context.Context, event model.Event) {
	for _, hook := range r.hooks {
		if err := r.invoke(ctx, hook, event); err != nil {
			pluginErr := &PluginError{Hook: hook.Name(), EventKind: event.Kind, Err: err}
			r.logger.WarnContext(ctx, "hook failed",
				"hook", hook.Name(),
				"kind", event.Kind,
				"occurred_at", event.OccurredAt,
				"error", err)
			if r.recorder != nil {
				r.recorder.RecordHookError(hook.Name())
			}
			r.bus.Publish(model.NewNotice(model.NoticeHookFailure, hook.Name(), pluginErr))
		}
	}
}

func (r *HookRegistry) invoke(ctx context.Context, hook model.Hook, event model.Event) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = panicError(v)
		}
	}()
	if err := hook.OnEvent(ctx, event); err != nil {
		return fmt.Errorf("on_event: %w", err)
	}
	return nil
}

// Names returns the hook names in dispatch order
func (r *HookRegistry) Names() []string {
	names := make([]string, 0, len(r.hooks))
	for _, hook := range r.hooks {
		names = append(names, hook.Name())
	}
	return names
}

// Len returns the number of registered hooks
func (r *HookRegistry) Len() int {
	return len(r.hooks)
}
