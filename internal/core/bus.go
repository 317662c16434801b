package core

import (
	"sync"

	"github.com/sliink/eventd/internal/model"
)

// NoticeCallback is a function that is called when a notice is published
type NoticeCallback func(model.Notice)

// EventBus handles notice publication and subscription inside the daemon
type EventBus struct {
	subscribers map[model.NoticeType]map[string]NoticeCallback
	mutex       sync.RWMutex
	BaseComponent
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers:   make(map[model.NoticeType]map[string]NoticeCallback),
		BaseComponent: NewBaseComponent("event_bus", "Event Bus"),
	}
}

// Stop halts event bus operation
func (b *EventBus) Stop() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	// Clear all subscribers
	b.subscribers = make(map[model.NoticeType]map[string]NoticeCallback)

	b.SetStatus(model.StatusStopped)
	return true
}

// Subscribe registers a callback for a specific notice type
func (b *EventBus) Subscribe(noticeType model.NoticeType, listenerID string, callback NoticeCallback) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.subscribers[noticeType] == nil {
		b.subscribers[noticeType] = make(map[string]NoticeCallback)
	}

	b.subscribers[noticeType][listenerID] = callback
}

// Unsubscribe removes a subscriber from a specific notice type
func (b *EventBus) Unsubscribe(noticeType model.NoticeType, listenerID string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.subscribers[noticeType] != nil {
		delete(b.subscribers[noticeType], listenerID)
	}
}

// Publish delivers a notice synchronously to all subscribers of its type.
// A nil bus is valid and drops everything.
func (b *EventBus) Publish(notice model.Notice) {
	if b == nil || b.GetStatus() != model.StatusRunning {
		return
	}

	b.mutex.RLock()
	callbacks := make([]NoticeCallback, 0, len(b.subscribers[notice.Type]))
	for _, callback := range b.subscribers[notice.Type] {
		callbacks = append(callbacks, callback)
	}
	b.mutex.RUnlock()

	for _, callback := range callbacks {
		callback(notice)
	}
}
