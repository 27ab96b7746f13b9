package lock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *RedisLocker {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, fmt.Sprintf("%s:%s", host, port.Port()), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, "test:", nil)
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	l := setupRedis(t)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "window", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "window", time.Minute)
	assert.True(t, errors.Is(err, ErrNotAcquired))

	require.NoError(t, lease.Release(ctx))

	again, err := l.Acquire(ctx, "window", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedisLocker_ReleaseAfterTakeover(t *testing.T) {
	l := setupRedis(t)
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "window", 50*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	current, err := l.Acquire(ctx, "window", time.Minute)
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))

	_, err = l.Acquire(ctx, "window", time.Minute)
	assert.True(t, errors.Is(err, ErrNotAcquired), "stale release must not drop the new holder")
	require.NoError(t, current.Release(ctx))
}
