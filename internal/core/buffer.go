package core

import (
	"sync"
	"time"

	"github.com/sliink/eventd/internal/model"
)

// BufferManager holds events pushed by push-style sources (sockets) until
// the next scan drains them. Each buffer is bounded; events arriving at a
// full buffer are refused and counted as dropped.
type BufferManager struct {
	buffers      map[string][]model.Event
	maxQueueSize int
	status       map[string]model.BufferStatus
	mutex        sync.RWMutex
	BaseComponent
}

// NewBufferManager creates a new buffer manager
func NewBufferManager(maxQueueSize int) *BufferManager {
	if maxQueueSize <= 0 {
		maxQueueSize = 1000
	}

	return &BufferManager{
		buffers:       make(map[string][]model.Event),
		maxQueueSize:  maxQueueSize,
		status:        make(map[string]model.BufferStatus),
		BaseComponent: NewBaseComponent("buffer_manager", "Buffer Manager"),
	}
}

// Stop halts buffer manager operation and discards anything still queued
func (b *BufferManager) Stop() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.buffers = make(map[string][]model.Event)
	b.status = make(map[string]model.BufferStatus)

	b.SetStatus(model.StatusStopped)
	return true
}

// Buffer appends an event to the named buffer. It returns false when the
// buffer is full or the manager is not running.
func (b *BufferManager) Buffer(bufferID string, event model.Event) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.GetStatus() != model.StatusRunning {
		return false
	}

	status, exists := b.status[bufferID]
	if !exists {
		status = model.BufferStatus{BufferID: bufferID}
	}
	status.LastUpdate = time.Now()

	if len(b.buffers[bufferID]) >= b.maxQueueSize {
		status.IsFull = true
		status.Dropped++
		b.status[bufferID] = status
		return false
	}

	b.buffers[bufferID] = append(b.buffers[bufferID], event)

	status.QueueSize = len(b.buffers[bufferID])
	status.IsFull = status.QueueSize >= b.maxQueueSize
	b.status[bufferID] = status
	return true
}

// Flush removes and returns up to maxEvents events in arrival order.
// maxEvents <= 0 drains the whole buffer.
func (b *BufferManager) Flush(bufferID string, maxEvents int) []model.Event {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.GetStatus() != model.StatusRunning {
		return nil
	}

	queued := b.buffers[bufferID]
	n := len(queued)
	if maxEvents > 0 && maxEvents < n {
		n = maxEvents
	}
	if n == 0 {
		return nil
	}

	result := make([]model.Event, n)
	copy(result, queued[:n])
	b.buffers[bufferID] = queued[n:]

	status := b.status[bufferID]
	status.QueueSize = len(b.buffers[bufferID])
	status.IsFull = false
	status.LastUpdate = time.Now()
	b.status[bufferID] = status

	return result
}

// GetBufferStatus retrieves the status of all buffers
func (b *BufferManager) GetBufferStatus() map[string]model.BufferStatus {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	result := make(map[string]model.BufferStatus, len(b.status))
	for k, v := range b.status {
		result[k] = v
	}
	return result
}
