package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sliink/eventd/internal/core"
	"github.com/sliink/eventd/internal/model"
)

func writeScript(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func jsonLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		lines = append(lines, entry)
	}
	return lines
}

const recorderScript = `
local seen = 0

function on_event(event)
  seen = seen + 1
  if event.kind == "bad" then
    error("refusing " .. event.payload)
  end
  eventd.log(event.kind .. "|" .. event.payload .. "|" .. tostring(event.occurred_at) .. "|" .. seen, "warn")
end
`

func TestLuaLoaderLoad(t *testing.T) {
	loader := NewLuaLoader(nil)
	assert.Equal(t, []string{".lua"}, loader.Extensions())

	t.Run("Binds on_event and names the hook after the file", func(t *testing.T) {
		hook, err := loader.Load(writeScript(t, t.TempDir(), "alerts.lua", recorderScript))
		require.NoError(t, err)
		assert.Equal(t, "alerts", hook.Name())
	})

	t.Run("Script without on_event has no hook", func(t *testing.T) {
		_, err := loader.Load(writeScript(t, t.TempDir(), "helpers.lua", `x = 1`))
		assert.ErrorIs(t, err, core.ErrNoHook)
	})

	t.Run("on_event that is not a function has no hook", func(t *testing.T) {
		_, err := loader.Load(writeScript(t, t.TempDir(), "odd.lua", `on_event = 42`))
		assert.ErrorIs(t, err, core.ErrNoHook)
	})

	t.Run("Syntax error fails to load", func(t *testing.T) {
		_, err := loader.Load(writeScript(t, t.TempDir(), "broken.lua", `function on_event(event`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, core.ErrNoHook)
		assert.Contains(t, err.Error(), "broken.lua")
	})

	t.Run("Error raised at load time fails to load", func(t *testing.T) {
		_, err := loader.Load(writeScript(t, t.TempDir(), "raises.lua", `error("boom")`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, core.ErrNoHook)
	})

	t.Run("Missing file fails to load", func(t *testing.T) {
		_, err := loader.Load(filepath.Join(t.TempDir(), "absent.lua"))
		assert.Error(t, err)
	})
}

func TestLuaHookOnEvent(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Passes the event as a table and keeps state between calls", func(t *testing.T) {
		logger, buf := jsonLogger()
		hook, err := NewLuaLoader(logger).Load(writeScript(t, t.TempDir(), "alerts.lua", recorderScript))
		require.NoError(t, err)

		require.NoError(t, hook.OnEvent(ctx, model.NewEvent("deploy", "api", at)))
		require.NoError(t, hook.OnEvent(ctx, model.NewEvent("deploy", "web", at)))

		lines := logLines(t, buf)
		require.Len(t, lines, 2)
		assert.Equal(t, "deploy|api|1714564800|1", lines[0]["msg"])
		assert.Equal(t, "deploy|web|1714564800|2", lines[1]["msg"])
		assert.Equal(t, "WARN", lines[0]["level"])
		assert.Equal(t, "alerts", lines[0]["hook"])
	})

	t.Run("Lua error becomes a Go error and the hook stays usable", func(t *testing.T) {
		hook, err := NewLuaLoader(nil).Load(writeScript(t, t.TempDir(), "alerts.lua", recorderScript))
		require.NoError(t, err)

		err = hook.OnEvent(ctx, model.NewEvent("bad", "payload-x", at))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refusing payload-x")

		assert.NoError(t, hook.OnEvent(ctx, model.NewEvent("deploy", "api", at)))
	})

	t.Run("Cancelled context skips the call", func(t *testing.T) {
		hook, err := NewLuaLoader(nil).Load(writeScript(t, t.TempDir(), "alerts.lua", recorderScript))
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, hook.OnEvent(cancelled, model.NewEvent("deploy", "api", at)), context.Canceled)
	})
}

func TestLuaHooksInRegistry(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "10_alerts.lua", recorderScript)
	writeScript(t, dir, "20_helpers.lua", `local x = 1`)
	writeScript(t, dir, "30_broken.lua", `function on_event(`)
	writeScript(t, dir, "40_audit.lua", `function on_event(event) end`)
	writeScript(t, dir, "notes.txt", `function on_event(event) end`)

	registry := core.LoadHookRegistry(dir, true, NewLuaLoader(nil), core.HookRegistryOptions{})

	assert.Equal(t, []string{"10_alerts", "40_audit"}, registry.Names())

	// A failing hook does not stop the others or escape Dispatch
	assert.NotPanics(t, func() {
		registry.Dispatch(context.Background(), model.NewEvent("bad", "x", time.Now()))
	})
}
