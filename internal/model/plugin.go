package model

import "context"

// Plugin is the base interface for all plugins
type Plugin interface {
	// Initialize prepares the plugin for operation
	Initialize() bool

	// Start begins plugin operation
	Start() bool

	// Stop halts plugin operation
	Stop() bool

	// GetStatus returns the current plugin status
	GetStatus() ComponentStatus

	// SetStatus updates the plugin status
	SetStatus(status ComponentStatus)

	// Configure applies configuration to the plugin
	Configure(config map[string]interface{}) bool

	// ID returns the plugin's unique identifier
	ID() string

	// Name returns the plugin's human-readable name
	Name() string

	// GetType returns the plugin type
	GetType() PluginType

	// Validate checks if the plugin is properly configured
	Validate() bool
}

// Source produces candidate events. An empty result is normal.
type Source interface {
	ID() string
	Scan(ctx context.Context) ([]Event, error)
}

// SourcePlugin is a source with a managed lifecycle
type SourcePlugin interface {
	Plugin
	Source
}

// Syncer reconciles an event with external state
type Syncer interface {
	Sync(ctx context.Context, event Event) error
}

// SyncPlugin is a syncer with a managed lifecycle
type SyncPlugin interface {
	Plugin
	Syncer
}

// Notifier tells downstream systems about a synchronized event
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifyPlugin is a notifier with a managed lifecycle
type NotifyPlugin interface {
	Plugin
	Notifier
}

// Hook reacts to every processed event. Kind filtering is the hook's job.
type Hook interface {
	Name() string
	OnEvent(ctx context.Context, event Event) error
}

// HookFunc adapts a function into a named Hook
type HookFunc struct {
	HookName string
	Fn       func(ctx context.Context, event Event) error
}

// Name returns the hook's name
func (h HookFunc) Name() string {
	return h.HookName
}

// OnEvent calls the wrapped function
func (h HookFunc) OnEvent(ctx context.Context, event Event) error {
	return h.Fn(ctx, event)
}
