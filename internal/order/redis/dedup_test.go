package redis

import (
	"context"
	"testing"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestDedupIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:latest",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	dedup := NewDedup(client)

	first, err := dedup.FirstDelivery(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	// The redelivery is filtered.
	first, err = dedup.FirstDelivery(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, first)

	// After a processing failure the marker is dropped and the retry gets
	// through again.
	require.NoError(t, dedup.Forget(ctx, "evt_1"))
	first, err = dedup.FirstDelivery(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, first)

	// Distinct events never collide.
	first, err = dedup.FirstDelivery(ctx, "evt_2")
	require.NoError(t, err)
	assert.True(t, first)
}
