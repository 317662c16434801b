package outputs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
)

// RedisOutput publishes each event as JSON on a redis channel
type RedisOutput struct {
	plugin.BasePlugin
	channel string
	client  *redis.Client
}

// NewRedisOutput creates a new redis publish notifier plugin
func NewRedisOutput(id string) *RedisOutput {
	return &RedisOutput{
		BasePlugin: plugin.NewBasePlugin(id, "Redis Output", model.NotifyPluginType),
	}
}

// Start connects to redis
func (r *RedisOutput) Start() bool {
	r.channel = r.ConfigString("channel", "eventd:events")
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
func (r *RedisOutput) Stop() bool {
	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
	}
	r.SetStatus(model.StatusStopped)
	return true
}

// Notify publishes the event. Having no subscribers is not an error.
func (r *RedisOutput) Notify(ctx context.Context, event model.Event) error {
	if r.client == nil {
		return fmt.Errorf("redis client is not connected")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}
	return nil
}
