package plugin

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/sliink/eventd/internal/model"
)

// PluginFactory creates plugins based on their type and name
type PluginFactory struct {
	sourceCreators   map[string]func(id string) model.SourcePlugin
	syncCreators     map[string]func(id string) model.SyncPlugin
	notifierCreators map[string]func(id string) model.NotifyPlugin
	logger           *slog.Logger
}

// NewPluginFactory creates a new plugin factory. Created plugins log
// through logger when they support it.
func NewPluginFactory(logger *slog.Logger) *PluginFactory {
	return &PluginFactory{
		sourceCreators:   make(map[string]func(id string) model.SourcePlugin),
		syncCreators:     make(map[string]func(id string) model.SyncPlugin),
		notifierCreators: make(map[string]func(id string) model.NotifyPlugin),
		logger:           logger,
	}
}

// RegisterSourcePlugin registers a source plugin creator
func (f *PluginFactory) RegisterSourcePlugin(name string, creator func(id string) model.SourcePlugin) {
	f.sourceCreators[name] = creator
}

// RegisterSyncPlugin registers a sync plugin creator
func (f *PluginFactory) RegisterSyncPlugin(name string, creator func(id string) model.SyncPlugin) {
	f.syncCreators[name] = creator
}

// RegisterNotifyPlugin registers a notify plugin creator
func (f *PluginFactory) RegisterNotifyPlugin(name string, creator func(id string) model.NotifyPlugin) {
	f.notifierCreators[name] = creator
}

// CreatePlugin creates a plugin based on its type and name
func (f *PluginFactory) CreatePlugin(pluginType model.PluginType, name, id string) (model.Plugin, error) {
	var plugin model.Plugin
	switch pluginType {
	case model.SourcePluginType:
		creator, exists := f.sourceCreators[name]
		if !exists {
			return nil, fmt.Errorf("unknown source plugin: %s", name)
		}
		plugin = creator(id)

	case model.SyncPluginType:
		creator, exists := f.syncCreators[name]
		if !exists {
			return nil, fmt.Errorf("unknown sync plugin: %s", name)
		}
		plugin = creator(id)

	case model.NotifyPluginType:
		creator, exists := f.notifierCreators[name]
		if !exists {
			return nil, fmt.Errorf("unknown notify plugin: %s", name)
		}
		plugin = creator(id)

	default:
		return nil, fmt.Errorf("unknown plugin type: %s", pluginType)
	}

	if setter, ok := plugin.(interface{ SetLogger(*slog.Logger) }); ok && f.logger != nil {
		setter.SetLogger(f.logger)
	}
	return plugin, nil
}

// Names lists the registered plugin names of a type, sorted
func (f *PluginFactory) Names(pluginType model.PluginType) []string {
	var names []string
	switch pluginType {
	case model.SourcePluginType:
		for name := range f.sourceCreators {
			names = append(names, name)
		}
	case model.SyncPluginType:
		for name := range f.syncCreators {
			names = append(names, name)
		}
	case model.NotifyPluginType:
		for name := range f.notifierCreators {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
