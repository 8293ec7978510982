//go:build integration

package services

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/redisclient"
)

func TestRateLimiter_RedisIntegration(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	client := redisclient.NewClient(redis.NewClient(opts))
	t.Cleanup(func() { _ = client.Close() })

	rl := NewRateLimiter(client, "it:login:", 2, time.Minute, logging.Logger)
	key := "officer@nis.gov.gy|10.0.0.1"

	for i := 0; i < 2; i++ {
		allowed, _ := rl.Allow(ctx, key)
		require.True(t, allowed, "attempt %d", i+1)
	}

	allowed, retryAfter := rl.Allow(ctx, key)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, time.Minute)

	rl.Reset(ctx, key)
	allowed, _ = rl.Allow(ctx, key)
	assert.True(t, allowed)
}
