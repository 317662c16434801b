package plugin

import (
	"fmt"

	"github.com/sliink/eventd/internal/model"
)

// Specs groups the plugin instances declared in the configuration
type Specs struct {
	Sources   []model.PluginSpec
	Sync      *model.PluginSpec
	Notifiers []model.PluginSpec
}

// CreatePlugins builds, configures and validates every declared plugin in
// declaration order: sources, then the sync plugin, then notifiers. The
// first failure is returned and no partial set is.
func CreatePlugins(factory *PluginFactory, specs Specs) ([]model.Plugin, error) {
	var plugins []model.Plugin

	build := func(pluginType model.PluginType, spec model.PluginSpec) error {
		plugin, err := factory.CreatePlugin(pluginType, spec.Type, spec.ID)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", spec.ID, err)
		}
		config := spec.Config
		if config == nil {
			config = make(map[string]interface{})
		}
		if !plugin.Configure(config) {
			return fmt.Errorf("plugin %s: configuration rejected", spec.ID)
		}
		if !plugin.Validate() {
			return fmt.Errorf("plugin %s: invalid %s configuration", spec.ID, spec.Type)
		}
		plugins = append(plugins, plugin)
		return nil
	}

	for _, spec := range specs.Sources {
		if err := build(model.SourcePluginType, spec); err != nil {
			return nil, err
		}
	}
	if specs.Sync != nil {
		if err := build(model.SyncPluginType, *specs.Sync); err != nil {
			return nil, err
		}
	}
	for _, spec := range specs.Notifiers {
		if err := build(model.NotifyPluginType, spec); err != nil {
			return nil, err
		}
	}

	return plugins, nil
}
