package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisStoreSaveThenLoadRoundTrips(t *testing.T) {
	_, client := setupTestRedis(t)
	store := &RedisStore{client: client, keyPrefix: "test:wf", ttl: time.Hour}

	exec := Execution{
		ID: "exec-1", WorkflowName: "research", Status: ExecutionCompleted,
		StepRecords: []StepRecord{{StepIndex: 0, Label: "clarify", Status: RecordSuccess}},
		Output:      "done",
	}

	require.NoError(t, store.Save(context.Background(), exec))

	loaded, err := store.Load(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, exec.ID, loaded.ID)
	assert.Equal(t, exec.WorkflowName, loaded.WorkflowName)
	assert.Equal(t, exec.Status, loaded.Status)
	assert.Len(t, loaded.StepRecords, 1)
	assert.Equal(t, "clarify", loaded.StepRecords[0].Label)
}

func TestRedisStoreLoadMissingReturnsError(t *testing.T) {
	_, client := setupTestRedis(t)
	store := &RedisStore{client: client, keyPrefix: "test:wf", ttl: time.Hour}

	_, err := store.Load(context.Background(), "nonexistent")
	assert.Error(t, err)
}

func TestEngineCheckpointsOnCompletion(t *testing.T) {
	_, client := setupTestRedis(t)
	store := &RedisStore{client: client, keyPrefix: "test:wf", ttl: time.Hour}
	engine := NewEngine(WithStore(store))

	def := Definition{Name: "greet", Steps: []Step{
		{Label: "say", Func: func(ctx context.Context, input any, wfCtx *Context) (any, error) {
			return "hi", nil
		}},
	}}

	exec, err := engine.Run(context.Background(), def, nil)
	require.NoError(t, err)

	loaded, err := store.Load(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, ExecutionCompleted, loaded.Status)
}
