package core

import (
	"errors"
	"fmt"
)

// ErrNoHook is returned by a HookLoader when a plugin module loads cleanly
// but does not define an on_event handler. Such modules are skipped silently.
var ErrNoHook = errors.New("plugin does not define on_event")

// ConfigError reports the first invalid configuration field
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// SourceScanError reports a single source failing to scan
type SourceScanError struct {
	SourceID string
	Err      error
}

func (e *SourceScanError) Error() string {
	return fmt.Sprintf("source %s: scan failed: %v", e.SourceID, e.Err)
}

func (e *SourceScanError) Unwrap() error {
	return e.Err
}

// PluginError reports a hook failing for one event
type PluginError struct {
	Hook      string
	EventKind string
	Err       error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("hook %s: event %s: %v", e.Hook, e.EventKind, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// StageError reports a pipeline stage failing for one event.
// It escalates to loop-level recovery.
type StageError struct {
	Stage     string
	EventKind string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: event %s: %v", e.Stage, e.EventKind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// panicError converts a recovered panic value into an error
func panicError(v interface{}) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
