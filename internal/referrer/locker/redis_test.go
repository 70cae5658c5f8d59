package locker

import (
	"context"
	"testing"
	"time"

	"github.com/SakuraBurst/rewardbot/internal/referrer/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLocker(t *testing.T, cfg config.Submission) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, cfg, zap.NewNop()), mr
}

func TestLockClient(t *testing.T) {
	r, mr := newLocker(t, config.Submission{LockTTL: 10 * time.Second})
	ctx := context.Background()

	unlock, err := r.LockClient(ctx, 1)
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:client:1"))

	// another client is not affected
	unlockOther, err := r.LockClient(ctx, 2)
	require.NoError(t, err)
	unlockOther()

	waitCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = r.LockClient(waitCtx, 1)
	assert.Error(t, err)

	unlock()
	assert.False(t, mr.Exists("lock:client:1"))
	unlock, err = r.LockClient(ctx, 1)
	require.NoError(t, err)
	unlock()
}

func TestAllowSubmission(t *testing.T) {
	r, _ := newLocker(t, config.Submission{PerMinute: 2, LockTTL: time.Second})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := r.AllowSubmission(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := r.AllowSubmission(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// limits are per client
	ok, err = r.AllowSubmission(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowSubmissionUnlimited(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	r := NewRedis(rdb, config.Submission{PerMinute: 0, LockTTL: time.Second}, zap.NewNop())

	ok, err := r.AllowSubmission(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, ok)
}
