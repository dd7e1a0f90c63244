//go:build integration

package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/lucia-home/lucia/pkg/a2a"
)

// TestStoreAgainstRedis exercises the store against a real Redis instance.
// Run with: go test -tags integration ./pkg/taskstore/...
func TestStoreAgainstRedis(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	store := New(NewRedisKV(client))

	task := a2a.NewTask("task-int", "ctx-int")
	task.AppendHistory(a2a.TextMessage(a2a.RoleUser, "turn the lights on"))
	require.NoError(t, store.SetTask(ctx, task))

	// TTL is set on the task key.
	ttl, err := client.TTL(ctx, "lucia:task:task-int").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 23*time.Hour)
	assert.LessOrEqual(t, ttl, TaskTTL)

	// Round-trip through real serialization.
	loaded, err := store.GetTask(ctx, "task-int")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "ctx-int", loaded.ContextID)
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "turn the lights on", loaded.History[0].Text())

	// Status walk through the state machine, each write refreshing the TTL.
	_, err = store.UpdateStatus(ctx, "task-int", a2a.StateWorking, "")
	require.NoError(t, err)
	updated, err := store.UpdateStatus(ctx, "task-int", a2a.StateCompleted, "done")
	require.NoError(t, err)
	assert.Equal(t, a2a.StateCompleted, updated.Status.State)

	ttl, err = client.TTL(ctx, "lucia:task:task-int").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 23*time.Hour)

	// Push-notification configs share the task TTL policy.
	require.NoError(t, store.SetPushNotificationConfig(ctx, "task-int", "cfg-1", []byte(`{"url":"https://cb"}`)))
	configs, err := store.ListPushNotifications(ctx, "task-int")
	require.NoError(t, err)
	assert.Len(t, configs, 1)
}
