package model

import "time"

// ComponentStatus represents the current status of a component
type ComponentStatus string

const (
	// StatusUninitialized indicates the component has not been initialized
	StatusUninitialized ComponentStatus = "UNINITIALIZED"
	// StatusInitialized indicates the component has been initialized but not started
	StatusInitialized ComponentStatus = "INITIALIZED"
	// StatusRunning indicates the component is currently running
	StatusRunning ComponentStatus = "RUNNING"
	// StatusStopped indicates the component has been stopped
	StatusStopped ComponentStatus = "STOPPED"
	// StatusError indicates the component is in an error state
	StatusError ComponentStatus = "ERROR"
)

// PluginType represents the type of plugin
type PluginType string

const (
	// SourcePluginType represents plugins that produce events
	SourcePluginType PluginType = "SOURCE"
	// SyncPluginType represents plugins that reconcile events with external state
	SyncPluginType PluginType = "SYNC"
	// NotifyPluginType represents plugins that notify downstream systems
	NotifyPluginType PluginType = "NOTIFY"
)

// LoopState is a state of the daemon's scheduling loop
type LoopState string

const (
	StateStarting     LoopState = "STARTING"
	StateRunning      LoopState = "RUNNING"
	StateRecovering   LoopState = "RECOVERING"
	StateShuttingDown LoopState = "SHUTTING_DOWN"
	StateTerminated   LoopState = "TERMINATED"
)

// AllLoopStates lists every loop state in lifecycle order
var AllLoopStates = []LoopState{
	StateStarting,
	StateRunning,
	StateRecovering,
	StateShuttingDown,
	StateTerminated,
}

// NoticeType represents the type of internal notice published on the bus
type NoticeType string

const (
	// NoticeStateChange indicates the loop state has changed
	NoticeStateChange NoticeType = "STATE_CHANGE"
	// NoticeStageFailure indicates a pipeline stage failed for an event
	NoticeStageFailure NoticeType = "STAGE_FAILURE"
	// NoticeSourceFailure indicates a source failed to scan
	NoticeSourceFailure NoticeType = "SOURCE_FAILURE"
	// NoticeHookFailure indicates a plugin hook failed for an event
	NoticeHookFailure NoticeType = "HOOK_FAILURE"
)

// HealthStatus represents the health status of the system or a component
type HealthStatus struct {
	Status     ComponentStatus         `json:"status"`
	Timestamp  time.Time               `json:"timestamp"`
	Message    string                  `json:"message,omitempty"`
	Details    map[string]any          `json:"details,omitempty"`
	Components map[string]HealthStatus `json:"components,omitempty"`
}

// BufferStatus represents the status of a buffer
type BufferStatus struct {
	BufferID   string    `json:"buffer_id"`
	QueueSize  int       `json:"queue_size"`
	Dropped    int       `json:"dropped"`
	IsFull     bool      `json:"is_full"`
	LastUpdate time.Time `json:"last_update"`
}

// PluginSpec declares one plugin instance in the configuration file
type PluginSpec struct {
	ID     string                 `yaml:"id" json:"id"`
	Type   string                 `yaml:"type" json:"type"`
	Config map[string]interface{} `yaml:"config" json:"config,omitempty"`
}
