package outputs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sliink/eventd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStdoutOutput(t *testing.T) {
	t.Run("Creates StdoutOutput with correct properties", func(t *testing.T) {
		output := NewStdoutOutput("stdout_output")

		assert.Equal(t, "stdout_output", output.ID())
		assert.Equal(t, "Stdout Output", output.Name())
		assert.Equal(t, model.NotifyPluginType, output.GetType())
		assert.Equal(t, model.StatusUninitialized, output.GetStatus())
		assert.False(t, output.colorize)
		assert.Equal(t, "text", output.format)
	})
}

func TestStdoutOutputLifecycle(t *testing.T) {
	output := NewStdoutOutput("stdout_output")

	t.Run("Initialize sets default values", func(t *testing.T) {
		assert.True(t, output.Initialize())
		assert.Equal(t, model.StatusInitialized, output.GetStatus())
		assert.False(t, output.colorize)
		assert.Equal(t, "text", output.format)
	})

	t.Run("Initialize applies configuration", func(t *testing.T) {
		output := NewStdoutOutput("stdout_output")
		output.Configure(map[string]interface{}{
			"colorize": true,
			"format":   "json",
		})

		assert.True(t, output.Initialize())
		assert.True(t, output.colorize)
		assert.Equal(t, "json", output.format)
	})

	t.Run("Start sets correct status", func(t *testing.T) {
		assert.True(t, output.Start())
		assert.Equal(t, model.StatusRunning, output.GetStatus())
	})

	t.Run("Stop sets correct status", func(t *testing.T) {
		assert.True(t, output.Stop())
		assert.Equal(t, model.StatusStopped, output.GetStatus())
	})
}

func TestStdoutOutputValidate(t *testing.T) {
	t.Run("Text and json are accepted", func(t *testing.T) {
		for _, format := range []string{"text", "json"} {
			output := NewStdoutOutput("stdout_output")
			output.Configure(map[string]interface{}{"format": format})
			assert.True(t, output.Validate(), format)
		}
	})

	t.Run("Unknown format is rejected", func(t *testing.T) {
		output := NewStdoutOutput("stdout_output")
		output.Configure(map[string]interface{}{"format": "xml"})
		assert.False(t, output.Validate())
	})
}

func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func startedStdout(t *testing.T, config map[string]interface{}) *StdoutOutput {
	t.Helper()
	output := NewStdoutOutput("stdout_output")
	output.Configure(config)
	require.True(t, output.Initialize())
	require.True(t, output.Start())
	return output
}

func TestStdoutOutputNotify(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := model.NewEvent("deploy", "api v2 rolled out", at)

	t.Run("Fails when not running", func(t *testing.T) {
		output := NewStdoutOutput("stdout_output")
		output.Initialize()

		assert.Error(t, output.Notify(ctx, event))
	})

	t.Run("Writes text to stdout by default", func(t *testing.T) {
		output := startedStdout(t, map[string]interface{}{"format": "text"})

		captured := captureStdout(func() {
			require.NoError(t, output.Notify(ctx, event))
		})

		assert.Equal(t, "[2024-05-01T12:00:00Z] DEPLOY: api v2 rolled out\n", captured)
	})

	t.Run("Writes JSON", func(t *testing.T) {
		output := startedStdout(t, map[string]interface{}{"format": "json"})
		var buf bytes.Buffer
		output.SetWriter(&buf)

		require.NoError(t, output.Notify(ctx, event))

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &result))
		assert.Equal(t, "deploy", result["kind"])
		assert.Equal(t, "api v2 rolled out", result["payload"])
		assert.Equal(t, "2024-05-01T12:00:00Z", result["occurred_at"])
	})

	t.Run("Colorizes by kind", func(t *testing.T) {
		output := startedStdout(t, map[string]interface{}{"colorize": true})
		var buf bytes.Buffer
		output.SetWriter(&buf)

		require.NoError(t, output.Notify(ctx, model.NewEvent("disk_alert", "95%", at)))
		require.NoError(t, output.Notify(ctx, model.NewEvent("warning", "slow", at)))
		require.NoError(t, output.Notify(ctx, event))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "\033[31mDISK_ALERT\033[0m")
		assert.Contains(t, lines[1], "\033[33mWARNING\033[0m")
		assert.Contains(t, lines[2], "\033[32mDEPLOY\033[0m")
	})
}
