package redisad_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisad "landdev/internal/adapters/redis"
)

type row struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func newCache(t *testing.T) (*redisad.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestCache_SetGetDel(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	var got []row
	ok, err := c.Get(ctx, "reviews:*:50", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "reviews:*:50", []row{{1, "Oakwood"}}, 60))
	ok, err = c.Get(ctx, "reviews:*:50", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []row{{1, "Oakwood"}}, got)

	require.NoError(t, c.Del(ctx, "reviews:*:50"))
	ok, err = c.Get(ctx, "reviews:*:50", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_TTLExpires(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "record:regions:7", row{7, "North"}, 30))
	mr.FastForward(31 * time.Second)

	var got row
	ok, err := c.Get(ctx, "record:regions:7", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_BadPayloadIsMiss(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, mr.Set("record:regions:1", "not-json"))

	var got row
	ok, err := c.Get(context.Background(), "record:regions:1", &got)
	assert.Error(t, err)
	assert.False(t, ok)
}
