package core

import (
	"testing"

	"github.com/sliink/eventd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPluginRegistry(t *testing.T) {
	registry := NewPluginRegistry()

	assert.NotNil(t, registry)
	assert.NotNil(t, registry.plugins)
	assert.Equal(t, "plugin_registry", registry.ID())
	assert.Equal(t, "Plugin Registry", registry.Name())
}

func TestPluginRegistryLifecycle(t *testing.T) {
	registry := NewPluginRegistry()
	source := staticSource("source")
	notifier := newMockNotifier("notifier", nil)
	registry.RegisterPlugin(source)
	registry.RegisterPlugin(notifier)

	t.Run("Initialize initializes every plugin", func(t *testing.T) {
		assert.True(t, registry.Initialize())
		assert.Equal(t, model.StatusInitialized, registry.GetStatus())
		assert.Equal(t, model.StatusInitialized, source.GetStatus())
	})

	t.Run("Start starts every plugin", func(t *testing.T) {
		assert.True(t, registry.Start())
		assert.Equal(t, model.StatusRunning, registry.GetStatus())
		assert.Equal(t, model.StatusRunning, notifier.GetStatus())
	})

	t.Run("Stop calls stop on all plugins", func(t *testing.T) {
		assert.True(t, registry.Stop())
		assert.Equal(t, model.StatusStopped, registry.GetStatus())
		assert.Equal(t, model.StatusStopped, source.GetStatus())
		assert.Equal(t, model.StatusStopped, notifier.GetStatus())
	})
}

func TestPluginRegistryStartAll(t *testing.T) {
	t.Run("Starts every plugin", func(t *testing.T) {
		registry := NewPluginRegistry()
		source := staticSource("source")
		registry.RegisterPlugin(source)

		require.NoError(t, registry.StartAll())
		assert.Equal(t, model.StatusRunning, source.GetStatus())
	})

	t.Run("Names the plugin that fails to start", func(t *testing.T) {
		registry := NewPluginRegistry()
		broken := staticSource("broken")
		broken.failStart = true
		registry.RegisterPlugin(broken)

		err := registry.StartAll()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
		assert.Equal(t, model.StatusError, registry.GetStatus())
	})
}

func TestRegisterPlugin(t *testing.T) {
	registry := NewPluginRegistry()

	t.Run("RegisterPlugin adds plugin to registry", func(t *testing.T) {
		assert.True(t, registry.RegisterPlugin(staticSource("source1")))
		assert.True(t, registry.RegisterPlugin(newMockSyncer("sync1", nil)))
		assert.Len(t, registry.plugins, 2)
		assert.Contains(t, registry.plugins, "source1")
	})

	t.Run("RegisterPlugin fails for duplicate ID", func(t *testing.T) {
		duplicate := staticSource("source1")
		duplicate.name = "Duplicate"

		assert.False(t, registry.RegisterPlugin(duplicate))

		plugin, exists := registry.GetPlugin("source1")
		assert.True(t, exists)
		assert.Equal(t, "Source source1", plugin.Name())
	})

	t.Run("UnregisterPlugin removes existing plugin", func(t *testing.T) {
		assert.True(t, registry.UnregisterPlugin("source1"))
		assert.NotContains(t, registry.plugins, "source1")
		assert.Len(t, registry.GetAllPlugins(), 1)
	})

	t.Run("UnregisterPlugin fails for nonexistent plugin", func(t *testing.T) {
		assert.False(t, registry.UnregisterPlugin("nonexistent"))
	})
}

func TestGetTypedPlugins(t *testing.T) {
	registry := NewPluginRegistry()
	registry.RegisterPlugin(staticSource("b"))
	registry.RegisterPlugin(newMockNotifier("out", nil))
	registry.RegisterPlugin(staticSource("a"))
	registry.RegisterPlugin(newMockSyncer("sync", nil))

	t.Run("Sources keep registration order", func(t *testing.T) {
		sources := registry.Sources()
		require.Len(t, sources, 2)
		assert.Equal(t, "b", sources[0].ID())
		assert.Equal(t, "a", sources[1].ID())
	})

	t.Run("Syncer returns the sync plugin", func(t *testing.T) {
		require.NotNil(t, registry.Syncer())
		assert.Equal(t, "sync", registry.Syncer().ID())
	})

	t.Run("Notifiers returns notify plugins", func(t *testing.T) {
		assert.Len(t, registry.Notifiers(), 1)
	})

	t.Run("GetPluginsByType returns empty slice for nonexistent type", func(t *testing.T) {
		assert.Empty(t, registry.GetPluginsByType("nonexistent"))
	})

	t.Run("Syncer is nil when none is registered", func(t *testing.T) {
		assert.Nil(t, NewPluginRegistry().Syncer())
	})
}
