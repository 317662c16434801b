package plugin

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sliink/eventd/internal/model"
)

// BasePlugin provides common functionality for all plugins
type BasePlugin struct {
	id         string
	name       string
	pluginType model.PluginType
	status     model.ComponentStatus
	statusMu   sync.RWMutex
	Config     map[string]interface{}
	Logger     *slog.Logger
}

// NewBasePlugin creates a new base plugin
func NewBasePlugin(id, name string, pluginType model.PluginType) BasePlugin {
	return BasePlugin{
		id:         id,
		name:       name,
		pluginType: pluginType,
		status:     model.StatusUninitialized,
		Config:     make(map[string]interface{}),
		Logger:     slog.New(slog.DiscardHandler),
	}
}

// ID returns the plugin's unique identifier
func (p *BasePlugin) ID() string {
	return p.id
}

// Name returns the plugin's human-readable name
func (p *BasePlugin) Name() string {
	return p.name
}

// GetType returns the plugin type
func (p *BasePlugin) GetType() model.PluginType {
	return p.pluginType
}

// GetStatus returns the current plugin status
func (p *BasePlugin) GetStatus() model.ComponentStatus {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

// SetStatus updates the plugin status
func (p *BasePlugin) SetStatus(status model.ComponentStatus) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status = status
}

// Configure applies configuration to the plugin
func (p *BasePlugin) Configure(config map[string]interface{}) bool {
	if config == nil {
		return false
	}
	p.Config = config
	return true
}

// SetLogger replaces the plugin logger, tagging it with the plugin id
func (p *BasePlugin) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	p.Logger = logger.With("plugin", p.id, "plugin_type", string(p.pluginType))
}

// Validate checks if the plugin is properly configured
func (p *BasePlugin) Validate() bool {
	// Base implementation assumes valid, derived plugins should override
	return true
}

// Initialize marks the plugin initialized
func (p *BasePlugin) Initialize() bool {
	p.SetStatus(model.StatusInitialized)
	return true
}

// Start marks the plugin running
func (p *BasePlugin) Start() bool {
	p.SetStatus(model.StatusRunning)
	return true
}

// Stop marks the plugin stopped
func (p *BasePlugin) Stop() bool {
	p.SetStatus(model.StatusStopped)
	return true
}

// ConfigString reads a string option
func (p *BasePlugin) ConfigString(key, def string) string {
	if v, ok := p.Config[key].(string); ok && v != "" {
		return v
	}
	return def
}

// ConfigInt reads an integer option. YAML and JSON numbers are both accepted.
func (p *BasePlugin) ConfigInt(key string, def int) int {
	switch v := p.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// ConfigBool reads a boolean option
func (p *BasePlugin) ConfigBool(key string, def bool) bool {
	if v, ok := p.Config[key].(bool); ok {
		return v
	}
	return def
}

// ConfigMillis reads a millisecond option as a duration
func (p *BasePlugin) ConfigMillis(key string, def time.Duration) time.Duration {
	if _, ok := p.Config[key]; !ok {
		return def
	}
	return time.Duration(p.ConfigInt(key, 0)) * time.Millisecond
}

// ConfigStrings reads a list of strings. A single string is a one-item list.
func (p *BasePlugin) ConfigStrings(key string) []string {
	switch v := p.Config[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		result := make([]string, 0, len(v))
		for _, item := range v {
			result = append(result, fmt.Sprint(item))
		}
		return result
	}
	return nil
}

// ConfigStringMap reads a map of string values, e.g. HTTP headers
func (p *BasePlugin) ConfigStringMap(key string) map[string]string {
	raw, ok := p.Config[key].(map[string]interface{})
	if !ok {
		return nil
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		result[k] = fmt.Sprint(v)
	}
	return result
}
