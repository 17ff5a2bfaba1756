package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/config"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{
		URL:      "redis://" + mr.Addr(),
		DB:       2,
		PoolSize: 20,
	})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 2, client.Options().DB)
	assert.Equal(t, 20, client.Options().PoolSize)
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.Select(2)
	assert.True(t, mr.Exists("k"))
}

func TestNewRedisClient_Errors(t *testing.T) {
	_, err := NewRedisClient(context.Background(), config.RedisConfig{URL: "not a url"})
	assert.ErrorContains(t, err, "invalid redis URL")

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisClient(context.Background(), config.RedisConfig{URL: "redis://" + addr})
	assert.ErrorContains(t, err, "failed to connect to redis")
}
