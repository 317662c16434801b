package inputs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
)

// RedisInput drains a redis list. Entries that decode as a JSON event keep
// their kind and time; anything else becomes the payload of a default-kind
// event.
type RedisInput struct {
	plugin.BasePlugin
	key         string
	batchSize   int
	defaultKind string
	client      *redis.Client
}

// NewRedisInput creates a new redis list input plugin
func NewRedisInput(id string) *RedisInput {
	return &RedisInput{
		BasePlugin: plugin.NewBasePlugin(id, "Redis Input", model.SourcePluginType),
	}
}

// Validate requires a list key
func (r *RedisInput) Validate() bool {
	return r.ConfigString("key", "") != "" && r.ConfigInt("batch_size", 100) > 0
}

// Initialize reads the list options
func (r *RedisInput) Initialize() bool {
	r.key = r.ConfigString("key", "")
	r.batchSize = r.ConfigInt("batch_size", 100)
	r.defaultKind = r.ConfigString("default_kind", "message")

	r.SetStatus(model.StatusInitialized)
	return r.key != ""
}

// Start connects to redis
func (r *RedisInput) Start() bool {
	client, err := plugin.NewRedisClient(context.Background(), r.ConfigString("url", ""))
	if err != nil {
		r.Logger.Error("cannot connect to redis", "error", err)
		r.SetStatus(model.StatusError)
		return false
	}
	r.client = client
	r.SetStatus(model.StatusRunning)
	return true
}

// Stop closes the redis connection
func (r *RedisInput) Stop() bool {
	if r.client != nil {
		if err := r.client.Close(); err != nil {
			r.Logger.Warn("closing redis client", "error", err)
		}
		r.client = nil
	}
	r.SetStatus(model.StatusStopped)
	return true
}

// Scan pops up to batch_size entries from the head of the list
func (r *RedisInput) Scan(ctx context.Context) ([]model.Event, error) {
	if r.GetStatus() != model.StatusRunning {
		return nil, nil
	}

	entries, err := r.client.LPopCount(ctx, r.key, r.batchSize).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lpop %s: %w", r.key, err)
	}

	events := make([]model.Event, 0, len(entries))
	for _, entry := range entries {
		events = append(events, r.decode(entry))
	}
	return events, nil
}

func (r *RedisInput) decode(entry string) model.Event {
	if strings.HasPrefix(strings.TrimSpace(entry), "{") {
		var w wireEvent
		if err := json.Unmarshal([]byte(entry), &w); err == nil && strings.TrimSpace(w.Kind) != "" {
			return model.NewEvent(w.Kind, w.Payload, w.OccurredAt)
		}
	}
	return model.NewEvent(r.defaultKind, entry, time.Time{})
}
