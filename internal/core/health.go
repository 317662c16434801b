package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/sliink/eventd/internal/model"
)

// StatusReporter is anything whose lifecycle status can be monitored.
// Both core components and plugins satisfy it.
type StatusReporter interface {
	ID() string
	Name() string
	GetStatus() model.ComponentStatus
}

// HealthMonitor tracks daemon and component health
type HealthMonitor struct {
	components map[string]StatusReporter
	metrics    map[string]interface{}
	mutex      sync.RWMutex
	BaseComponent
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{
		components:    make(map[string]StatusReporter),
		metrics:       make(map[string]interface{}),
		BaseComponent: NewBaseComponent("health_monitor", "Health Monitor"),
	}
}

// Stop halts health monitor operation
func (h *HealthMonitor) Stop() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	// Clear all metrics
	h.metrics = make(map[string]interface{})

	h.SetStatus(model.StatusStopped)
	return true
}

// RegisterComponent adds a component to be monitored
func (h *HealthMonitor) RegisterComponent(component StatusReporter) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.components[component.ID()] = component
}

// AddMetric adds a metric value with optional metadata
func (h *HealthMonitor) AddMetric(name string, value interface{}, metadata map[string]interface{}) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	entry := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		entry[k] = v
	}
	entry["value"] = value
	entry["timestamp"] = time.Now()

	h.metrics[name] = entry
}

// GetMetric retrieves a metric value
func (h *HealthMonitor) GetMetric(name string) (interface{}, bool) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	metric, exists := h.metrics[name]
	return metric, exists
}

// GetAllMetrics retrieves all metrics
func (h *HealthMonitor) GetAllMetrics() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return h.copyMetrics()
}

func (h *HealthMonitor) copyMetrics() map[string]interface{} {
	metrics := make(map[string]interface{}, len(h.metrics))
	for k, v := range h.metrics {
		metrics[k] = v
	}
	return metrics
}

// GetHealthStatus retrieves the health status of the daemon
func (h *HealthMonitor) GetHealthStatus() model.HealthStatus {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	components := make(map[string]model.HealthStatus, len(h.components))
	statusCounts := make(map[model.ComponentStatus]int)
	for id, component := range h.components {
		status := component.GetStatus()
		components[id] = model.HealthStatus{
			Status:    status,
			Timestamp: time.Now(),
			Message:   component.Name() + " status: " + string(status),
		}
		statusCounts[status]++
	}

	systemStatus := model.StatusRunning
	var statusMessage string

	switch {
	case statusCounts[model.StatusError] > 0:
		systemStatus = model.StatusError
		statusMessage = fmt.Sprintf("System has errors: %d components in ERROR state", statusCounts[model.StatusError])
	case len(components) > 0 && statusCounts[model.StatusStopped] == len(components):
		systemStatus = model.StatusStopped
		statusMessage = "System is stopped"
	case statusCounts[model.StatusRunning] == 0:
		systemStatus = model.StatusInitialized
		statusMessage = "System is initializing"
	case statusCounts[model.StatusRunning] < len(components):
		systemStatus = model.StatusInitialized
		statusMessage = fmt.Sprintf("System is partially running: %d of %d components running",
			statusCounts[model.StatusRunning], len(components))
	default:
		statusMessage = "System is healthy: all components running"
	}

	return model.HealthStatus{
		Status:     systemStatus,
		Timestamp:  time.Now(),
		Message:    statusMessage,
		Components: components,
		Details:    h.copyMetrics(),
	}
}
