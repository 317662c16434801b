package core

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sliink/eventd/internal/model"
)

// mockPlugin implements the lifecycle half of model.Plugin for testing
type mockPlugin struct {
	id         string
	name       string
	pluginType model.PluginType
	status     model.ComponentStatus
	failStart  bool
	mu         sync.Mutex
}

func (m *mockPlugin) ID() string                { return m.id }
func (m *mockPlugin) Name() string              { return m.name }
func (m *mockPlugin) GetType() model.PluginType { return m.pluginType }
func (m *mockPlugin) Validate() bool            { return true }

func (m *mockPlugin) GetStatus() model.ComponentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockPlugin) SetStatus(status model.ComponentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

func (m *mockPlugin) Configure(config map[string]interface{}) bool {
	return true
}

func (m *mockPlugin) Initialize() bool {
	m.SetStatus(model.StatusInitialized)
	return true
}

func (m *mockPlugin) Start() bool {
	if m.failStart {
		m.SetStatus(model.StatusError)
		return false
	}
	m.SetStatus(model.StatusRunning)
	return true
}

func (m *mockPlugin) Stop() bool {
	m.SetStatus(model.StatusStopped)
	return true
}

// mockSource returns scripted results from scanFn
type mockSource struct {
	mockPlugin
	scanFn func(ctx context.Context) ([]model.Event, error)
}

func newMockSource(id string, scanFn func(ctx context.Context) ([]model.Event, error)) *mockSource {
	return &mockSource{
		mockPlugin: mockPlugin{id: id, name: "Source " + id, pluginType: model.SourcePluginType},
		scanFn:     scanFn,
	}
}

func (m *mockSource) Scan(ctx context.Context) ([]model.Event, error) {
	return m.scanFn(ctx)
}

// staticSource returns the same events on every scan
func staticSource(id string, events ...model.Event) *mockSource {
	return newMockSource(id, func(ctx context.Context) ([]model.Event, error) {
		return events, nil
	})
}

// mockSyncer records synced events and returns err
type mockSyncer struct {
	mockPlugin
	err    error
	synced []model.Event
}

func newMockSyncer(id string, err error) *mockSyncer {
	return &mockSyncer{
		mockPlugin: mockPlugin{id: id, name: "Syncer " + id, pluginType: model.SyncPluginType},
		err:        err,
	}
}

func (m *mockSyncer) Sync(ctx context.Context, event model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = append(m.synced, event)
	return m.err
}

func (m *mockSyncer) Synced() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Event(nil), m.synced...)
}

// mockNotifier records notified events and returns err
type mockNotifier struct {
	mockPlugin
	err      error
	notified []model.Event
}

func newMockNotifier(id string, err error) *mockNotifier {
	return &mockNotifier{
		mockPlugin: mockPlugin{id: id, name: "Notifier " + id, pluginType: model.NotifyPluginType},
		err:        err,
	}
}

func (m *mockNotifier) Notify(ctx context.Context, event model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, event)
	return m.err
}

func (m *mockNotifier) Notified() []model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Event(nil), m.notified...)
}

// logBuffer collects JSON log records written by a test logger
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Count returns how many records at level contain msg
func (b *logBuffer) Count(level slog.Level, msg string) int {
	count := 0
	for _, line := range strings.Split(b.String(), "\n") {
		if strings.Contains(line, `"level":"`+level.String()+`"`) && strings.Contains(line, msg) {
			count++
		}
	}
	return count
}

func captureLogger() (*slog.Logger, *logBuffer) {
	buf := &logBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// hookErrorCounter records hook failures by name
type hookErrorCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *hookErrorCounter) RecordHookError(hook string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[hook]++
}

func (c *hookErrorCounter) Count(hook string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[hook]
}
