package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

func TestKeyIsStable(t *testing.T) {
	a := Key("eval", "q", "answer ")
	b := Key("eval", "q", "answer")
	c := Key("eval", "qa", "nswer")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "intervue:eval:")
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := DialRedis(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	var got entry
	hit, err := c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, "k", entry{Score: 7, Feedback: "ok"}, time.Minute))
	hit, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, entry{Score: 7, Feedback: "ok"}, got)

	mr.FastForward(2 * time.Minute)
	hit, err = c.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCacheCorruptEntryIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("bad", "{not json"))

	c, err := DialRedis(ctx, mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	var got entry
	hit, err := c.GetJSON(ctx, "bad", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("bad"))
}

func TestDialRedisErrors(t *testing.T) {
	_, err := DialRedis(context.Background(), "")
	assert.Error(t, err)
	_, err = DialRedis(context.Background(), "redis://%zz")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var c Cache = Nop{}
	ctx := context.Background()
	require.NoError(t, c.SetJSON(ctx, "k", 1, time.Minute))
	hit, err := c.GetJSON(ctx, "k", new(int))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.Del(ctx, "k"))
}
