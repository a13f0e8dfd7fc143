package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Value int `json:"value"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Minute), mr
}

func TestFetchJSONCachesUntilInvalidated(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Value: calls}, nil
	}

	key, err := c.Key(ctx, 7, "stats", "weekly")
	require.NoError(t, err)

	var first payload
	hit, err := c.FetchJSON(ctx, key, &first, loader)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, first.Value)

	var second payload
	hit, err = c.FetchJSON(ctx, key, &second, loader)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, second.Value)

	require.NoError(t, c.Invalidate(ctx, 7))
	bumped, err := c.Key(ctx, 7, "stats", "weekly")
	require.NoError(t, err)
	assert.NotEqual(t, key, bumped)

	var third payload
	hit, err = c.FetchJSON(ctx, bumped, &third, loader)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, third.Value)
}

func TestInvalidateIsPerUser(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	other, err := c.Key(ctx, 8, "stats")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, 7))

	again, err := c.Key(ctx, 8, "stats")
	require.NoError(t, err)
	assert.Equal(t, other, again)
}

func TestEntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	key, err := c.Key(ctx, 1, "stats")
	require.NoError(t, err)
	_, err = c.FetchJSON(ctx, key, &payload{}, func(context.Context) (any, error) { return payload{Value: 1}, nil })
	require.NoError(t, err)
	assert.True(t, mr.Exists(key))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(key))
}

func TestNilClientPassesThrough(t *testing.T) {
	c := New(nil, 0)
	ctx := context.Background()

	key, err := c.Key(ctx, 1, "stats")
	require.NoError(t, err)
	assert.Equal(t, "billbook:report:1:stats", key)

	var out payload
	hit, err := c.FetchJSON(ctx, key, &out, func(context.Context) (any, error) { return payload{Value: 3}, nil })
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, out.Value)
	assert.NoError(t, c.Invalidate(ctx, 1))
}

func TestLoaderErrorIsReturned(t *testing.T) {
	c, _ := newTestCache(t)
	boom := errors.New("boom")

	_, err := c.FetchJSON(context.Background(), "k", &payload{}, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}
