package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemLimiterBurst(t *testing.T) {
	t.Parallel()
	l := newMemLimiter(1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "login:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "login:1.2.3.4")
	assert.False(t, ok)

	// other keys have their own bucket
	ok, _ = l.Allow(ctx, "login:5.6.7.8")
	assert.True(t, ok)

	l.cleanup(0)
	ok, _ = l.Allow(ctx, "login:1.2.3.4")
	assert.True(t, ok, "evicted key starts with a full bucket")
}

// fakeScripter answers EvalSha with a canned reply.
type fakeScripter struct {
	redis.Scripter
	keys  []string
	reply any
	err   error
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, _ ...any) *redis.Cmd {
	f.keys = keys
	return redis.NewCmdResult(f.reply, f.err)
}

func TestRedisLimiter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeScripter{reply: int64(1)}
	l := newRedisLimiter(fake, 30, 10)
	l.now = func() time.Time { return time.Unix(1700000000, 0) }

	ok, err := l.Allow(ctx, "register:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"ratelimit:register:10.0.0.1"}, fake.keys)

	fake.reply = int64(0)
	ok, err = l.Allow(ctx, "register:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	fake.err = errors.New("connection refused")
	_, err = l.Allow(ctx, "register:10.0.0.1")
	assert.Error(t, err)
}
