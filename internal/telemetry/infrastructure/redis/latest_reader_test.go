package redis

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLatest(t *testing.T) {
	value, err := DecodeLatest("4", []byte(`{"point_id":4,"value":"75","timestamp":1772442020000,"quality":"good"}`))
	require.NoError(t, err)
	assert.Equal(t, "75", value.Value)
	assert.Equal(t, "good", value.Quality)
	assert.Equal(t, time.UnixMilli(1772442020000).UTC(), value.Timestamp)

	value, err = DecodeLatest("4", []byte(`{"value":12.5}`))
	require.NoError(t, err)
	assert.Equal(t, "12.5", value.Value)

	value, err = DecodeLatest("4", []byte(`{"value":null}`))
	require.NoError(t, err)
	assert.Empty(t, value.Value)

	_, err = DecodeLatest("4", []byte(`not json`))
	assert.Error(t, err)
}

func TestLatestKey(t *testing.T) {
	assert.Equal(t, "point:42:latest", LatestKey("42"))
}

func TestLatestReader_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, LatestKey("it-1"), `{"value":"1","quality":"good"}`, time.Minute).Err())
	defer client.Del(ctx, LatestKey("it-1"))

	reader := NewLatestReader(client)
	value, ok, err := reader.ReadCurrentValue(ctx, "it-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", value.Value)

	_, ok, err = reader.ReadCurrentValue(ctx, "it-missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
