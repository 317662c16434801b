package core

import (
	"fmt"
	"sync"

	"github.com/sliink/eventd/internal/model"
)

// PluginRegistry keeps track of the source, sync and notify plugin
// instances built from the configuration, in registration order
type PluginRegistry struct {
	plugins map[string]model.Plugin
	order   []string
	mutex   sync.RWMutex
	BaseComponent
}

// NewPluginRegistry creates a new plugin registry
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		plugins:       make(map[string]model.Plugin),
		BaseComponent: NewBaseComponent("plugin_registry", "Plugin Registry"),
	}
}

// Initialize initializes every registered plugin
func (r *PluginRegistry) Initialize() bool {
	for _, p := range r.GetAllPlugins() {
		if !p.Initialize() {
			r.SetStatus(model.StatusError)
			return false
		}
	}
	r.SetStatus(model.StatusInitialized)
	return true
}

// Start starts every registered plugin
func (r *PluginRegistry) Start() bool {
	for _, p := range r.GetAllPlugins() {
		if !p.Start() {
			r.SetStatus(model.StatusError)
			return false
		}
	}
	r.SetStatus(model.StatusRunning)
	return true
}

// StartAll initializes and starts every plugin and names the first one
// that refuses
func (r *PluginRegistry) StartAll() error {
	plugins := r.GetAllPlugins()
	for _, p := range plugins {
		if !p.Initialize() {
			r.SetStatus(model.StatusError)
			return fmt.Errorf("plugin %s failed to initialize", p.ID())
		}
	}
	for _, p := range plugins {
		if !p.Start() {
			r.SetStatus(model.StatusError)
			return fmt.Errorf("plugin %s failed to start", p.ID())
		}
	}
	r.SetStatus(model.StatusRunning)
	return nil
}

// Stop halts all plugins in reverse registration order
func (r *PluginRegistry) Stop() bool {
	plugins := r.GetAllPlugins()
	for i := len(plugins) - 1; i >= 0; i-- {
		plugins[i].Stop()
	}

	r.SetStatus(model.StatusStopped)
	return true
}

// RegisterPlugin adds a plugin to the registry
func (r *PluginRegistry) RegisterPlugin(p model.Plugin) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.plugins[p.ID()]; exists {
		return false
	}

	r.plugins[p.ID()] = p
	r.order = append(r.order, p.ID())
	return true
}

// UnregisterPlugin removes a plugin from the registry
func (r *PluginRegistry) UnregisterPlugin(pluginID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.plugins[pluginID]; !exists {
		return false
	}

	delete(r.plugins, pluginID)
	for i, id := range r.order {
		if id == pluginID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// GetPlugin retrieves a plugin by ID
func (r *PluginRegistry) GetPlugin(pluginID string) (model.Plugin, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, exists := r.plugins[pluginID]
	return p, exists
}

// GetPluginsByType retrieves all plugins of a specific type
func (r *PluginRegistry) GetPluginsByType(pluginType model.PluginType) []model.Plugin {
	var result []model.Plugin
	for _, p := range r.GetAllPlugins() {
		if p.GetType() == pluginType {
			result = append(result, p)
		}
	}
	return result
}

// Sources returns the source plugins
func (r *PluginRegistry) Sources() []model.SourcePlugin {
	var result []model.SourcePlugin
	for _, p := range r.GetPluginsByType(model.SourcePluginType) {
		if source, ok := p.(model.SourcePlugin); ok {
			result = append(result, source)
		}
	}
	return result
}

// Syncer returns the first sync plugin, or nil when none is configured
func (r *PluginRegistry) Syncer() model.SyncPlugin {
	for _, p := range r.GetPluginsByType(model.SyncPluginType) {
		if syncer, ok := p.(model.SyncPlugin); ok {
			return syncer
		}
	}
	return nil
}

// Notifiers returns the notify plugins
func (r *PluginRegistry) Notifiers() []model.NotifyPlugin {
	var result []model.NotifyPlugin
	for _, p := range r.GetPluginsByType(model.NotifyPluginType) {
		if notifier, ok := p.(model.NotifyPlugin); ok {
			result = append(result, notifier)
		}
	}
	return result
}

// GetAllPlugins retrieves all registered plugins in registration order
func (r *PluginRegistry) GetAllPlugins() []model.Plugin {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]model.Plugin, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.plugins[id])
	}
	return result
}
