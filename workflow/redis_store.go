package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/codemusic/roverseer-gateway/core"
	"github.com/go-redis/redis/v8"
)

// Store persists Execution snapshots keyed by execution id, so the last
// snapshot of a paused or running execution outlives the process (spec.md
// §4.E "Interactive control"). The Engine only saves snapshots; it never
// loads them back, so an execution is not resumed after a restart. Grounded on itsneelabh-gomind's
// orchestration/hitl_checkpoint_store.go RedisCheckpointStore, narrowed
// from its distributed-claim/expiry-processor machinery (this gateway
// runs a single process, not a multi-pod HITL cluster) down to plain
// save/load of one JSON blob per execution.
type Store interface {
	Save(ctx context.Context, exec Execution) error
	Load(ctx context.Context, id string) (Execution, error)
}

type noopStore struct{}

func (noopStore) Save(context.Context, Execution) error           { return nil }
func (noopStore) Load(context.Context, string) (Execution, error) {
	return Execution{}, core.New("workflow.noopStore.Load", core.KindInputInvalid, "no store configured")
}

// RedisStore implements Store using Redis, one key per execution with a
// TTL so abandoned executions eventually fall out of memory.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore connects to redisURL and verifies it with a ping.
func NewRedisStore(ctx context.Context, redisURL, keyPrefix string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, core.Wrap("workflow.NewRedisStore", core.KindInputInvalid, "parsing redis url", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, core.Wrap("workflow.NewRedisStore", core.KindBackendUnavailable, "connecting to redis", err)
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, ttl: ttl}, nil
}

func (s *RedisStore) key(id string) string { return s.keyPrefix + ":execution:" + id }

// Save marshals exec and writes it under its own key with the store's TTL.
func (s *RedisStore) Save(ctx context.Context, exec Execution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return core.Wrap("workflow.RedisStore.Save", core.KindInternal, "marshaling execution", err)
	}
	if err := s.client.Set(ctx, s.key(exec.ID), data, s.ttl).Err(); err != nil {
		return core.Wrap("workflow.RedisStore.Save", core.KindBackendUnavailable, "writing execution to redis", err)
	}
	return nil
}

// Load retrieves an execution snapshot previously written by Save.
func (s *RedisStore) Load(ctx context.Context, id string) (Execution, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return Execution{}, core.Wrap("workflow.RedisStore.Load", core.KindInputInvalid, id, core.ErrWorkflowNotFound)
	}
	if err != nil {
		return Execution{}, core.Wrap("workflow.RedisStore.Load", core.KindBackendUnavailable, "reading execution from redis", err)
	}
	var exec Execution
	if err := json.Unmarshal(data, &exec); err != nil {
		return Execution{}, core.Wrap("workflow.RedisStore.Load", core.KindInternal, "unmarshaling execution", err)
	}
	return exec, nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }
