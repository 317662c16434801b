package processors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
)

// RedisSync keeps per-kind state in a redis hash at <prefix>:<kind>
type RedisSync struct {
	plugin.BasePlugin
	prefix string
	client *redis.Client
}

// NewRedisSync creates a new redis sync plugin
func NewRedisSync(id string) *RedisSync {
	return &RedisSync{
		BasePlugin: plugin.NewBasePlugin(id, "Redis Sync", model.SyncPluginType),
	}
}

// Initialize reads the key prefix
func (r *RedisSync) Initialize() bool {
	r.prefix = r.ConfigString("prefix", "eventd:state")
	r.SetStatus(model.StatusInitialized)
	return true
}

// Start connects to redis
func (r *RedisSync) Start() bool {
	if r.prefix == "" {
		r.Initialize()
	}
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
func (r *RedisSync) Stop() bool {
	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
	}
	r.SetStatus(model.StatusStopped)
	return true
}

func (r *RedisSync) key(kind string) string {
	return r.prefix + ":" + kind
}

// Sync bumps the kind's count and records the latest payload atomically
func (r *RedisSync) Sync(ctx context.Context, event model.Event) error {
	if r.client == nil {
		return fmt.Errorf("redis client is not connected")
	}
	key := r.key(event.Kind)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "count", 1)
		pipe.HSet(ctx, key,
			"last_payload", event.Payload,
			"last_occurred_at", event.OccurredAt.UTC().Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	return nil
}

// State returns the stored hash for kind
func (r *RedisSync) State(ctx context.Context, kind string) (EventState, error) {
	if r.client == nil {
		return EventState{}, fmt.Errorf("redis client is not connected")
	}
	fields, err := r.client.HGetAll(ctx, r.key(kind)).Result()
	if err != nil {
		return EventState{}, err
	}
	if len(fields) == 0 {
		return EventState{}, redis.Nil
	}

	state := EventState{Kind: kind, LastPayload: fields["last_payload"]}
	if state.Count, err = strconv.ParseInt(fields["count"], 10, 64); err != nil {
		return EventState{}, fmt.Errorf("count: %w", err)
	}
	if state.LastOccurredAt, err = time.Parse(time.RFC3339Nano, fields["last_occurred_at"]); err != nil {
		return EventState{}, fmt.Errorf("last_occurred_at: %w", err)
	}
	return state, nil
}
