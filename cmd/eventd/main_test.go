package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sliink/eventd/internal/core"
	"github.com/sliink/eventd/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// baseConfig returns a minimal valid document rooted in dir, followed by
// extra YAML
func baseConfig(dir, extra string) string {
	return fmt.Sprintf(`log:
  level: debug
  file: %s
  max_bytes: 1048576
  backup_count: 1
  console: false
scan_interval_ms: 10
sync_delay_ms: 0
trigger_delay_ms: 0
recovery_backoff_ms: 20
shutdown_timeout_ms: 2000
plugins:
  path: %s
  enabled: true
metrics:
  host: 127.0.0.1
  port: 0
identity:
  namespace: eventd-test
  version: "1.2.3"
%s`, filepath.Join(dir, "logs", "eventd.log"), filepath.Join(dir, "plugins"), extra)
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestNewPluginFactory(t *testing.T) {
	factory := newPluginFactory(nil)

	assert.Equal(t, []string{"command", "file", "http", "redis", "socket"}, factory.Names(model.SourcePluginType))
	assert.Equal(t, []string{"postgres", "redis", "sqlite"}, factory.Names(model.SyncPluginType))
	assert.Equal(t, []string{"redis", "stdout", "webhook"}, factory.Names(model.NotifyPluginType))
}

func TestValidateCommand(t *testing.T) {
	t.Run("Valid configuration reports its plugins", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "eventd.yaml")
		writeFile(t, path, baseConfig(dir, `
sources:
  - type: file
    config:
      paths: ["/var/log/*.log"]
notifiers:
  - type: stdout
`))

		out, err := executeRoot(t, "--config", path, "validate")
		require.NoError(t, err)
		assert.Contains(t, out, "ok (2 plugins)")
	})

	t.Run("Invalid configuration names the field", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "eventd.yaml")
		writeFile(t, path, strings.Replace(baseConfig(dir, ""), "sync_delay_ms: 0", "sync_delay_ms: -1", 1))

		_, err := executeRoot(t, "--config", path, "validate")
		var cfgErr *core.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "sync_delay_ms", cfgErr.Field)
	})

	t.Run("Unknown plugin type fails", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "eventd.yaml")
		writeFile(t, path, baseConfig(dir, `
sources:
  - type: carrier-pigeon
`))

		_, err := executeRoot(t, "--config", path, "validate")
		assert.ErrorContains(t, err, "carrier-pigeon")
	})
}

func TestIdentityCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "eventd.yaml")
	writeFile(t, path, baseConfig(dir, ""))

	out, err := executeRoot(t, "--config", path, "identity")
	require.NoError(t, err)

	var identity core.Identity
	require.NoError(t, json.Unmarshal([]byte(out), &identity))
	assert.Equal(t, "eventd-test", identity.Namespace)
	assert.Equal(t, "1.2.3", identity.Version)
	assert.NoError(t, identity.Verify())
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	writeFile(t, envPath, "EVENTD_TEST_FROM_DOTENV=loaded\n")
	t.Cleanup(func() { os.Unsetenv("EVENTD_TEST_FROM_DOTENV") })

	require.NoError(t, loadEnvFile(envPath))
	assert.Equal(t, "loaded", os.Getenv("EVENTD_TEST_FROM_DOTENV"))

	assert.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env")))
	assert.NoError(t, loadEnvFile(""))
}

func TestAppEndToEnd(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "input", "app.log")
	writeFile(t, logPath, "deploy: api v2\nalert: disk full\n")

	writeFile(t, filepath.Join(dir, "plugins", "audit.lua"), `
function on_event(event)
  if event.kind == "alert" then
    error("alerts are not audited")
  end
end
`)
	writeFile(t, filepath.Join(dir, "plugins", "helpers.lua"), `local x = 1`)

	var notified atomic.Int32
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		notified.Add(1)
	}))
	defer webhook.Close()

	path := filepath.Join(dir, "eventd.yaml")
	writeFile(t, path, baseConfig(dir, fmt.Sprintf(`
sources:
  - id: app
    type: file
    config:
      paths: [%q]
      patterns: ['^(?P<kind>\w+): (?P<payload>.*)$']
sync:
  type: sqlite
  config:
    path: %q
notifiers:
  - type: webhook
    config:
      url: %q
`, logPath, filepath.Join(dir, "state.db"), webhook.URL)))

	cfg, err := core.LoadConfig(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, appOptions{Version: "test", Console: io.Discard})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	scrape := func() string {
		resp, err := http.Get("http://" + a.api.Addr() + "/metrics")
		if err != nil {
			return ""
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	assert.Eventually(t, func() bool {
		body := scrape()
		return strings.Contains(body, `eventd_events_total{kind="deploy"} 1`) &&
			strings.Contains(body, `eventd_events_total{kind="alert"} 1`)
	}, 5*time.Second, 20*time.Millisecond)

	body := scrape()
	assert.Contains(t, body, `eventd_hook_errors_total{hook="audit"} 1`)
	assert.Contains(t, body, `eventd_loop_state{state="RUNNING"} 1`)
	assert.Equal(t, int32(2), notified.Load())
	assert.Equal(t, []string{"audit"}, a.daemon.Hooks().Names())

	resp, err := http.Get("http://" + a.api.Addr() + "/status")
	require.NoError(t, err)
	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, []interface{}{"app"}, status["sources"])
	failure := status["last_failure"].(map[string]interface{})
	assert.Equal(t, "HOOK_FAILURE", failure["type"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}
	assert.Equal(t, model.StateTerminated, a.daemon.State())

	logData, err := os.ReadFile(filepath.Join(dir, "logs", "eventd.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), `"msg":"shutdown complete"`)
	assert.Contains(t, string(logData), `"msg":"hook failed"`)
}

func TestAppStartupFailure(t *testing.T) {
	t.Run("Port already in use is fatal", func(t *testing.T) {
		holder, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer holder.Close()

		dir := t.TempDir()
		path := filepath.Join(dir, "eventd.yaml")
		_, port, _ := strings.Cut(holder.Addr().String(), ":")
		writeFile(t, path, strings.Replace(baseConfig(dir, ""), "port: 0", "port: "+port, 1))

		cfg, err := core.LoadConfig(path)
		require.NoError(t, err)

		_, err = newApp(context.Background(), cfg, appOptions{Version: "test", Console: io.Discard})
		assert.ErrorContains(t, err, "metrics endpoint")
	})

	t.Run("Plugin that cannot start is fatal", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "eventd.yaml")
		writeFile(t, path, baseConfig(dir, `
sync:
  id: cache
  type: redis
  config:
    url: redis://127.0.0.1:1/0
`))

		cfg, err := core.LoadConfig(path)
		require.NoError(t, err)

		_, err = newApp(context.Background(), cfg, appOptions{Version: "test", Console: io.Discard})
		assert.ErrorContains(t, err, "cache")
	})
}
