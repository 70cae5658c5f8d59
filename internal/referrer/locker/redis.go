package locker

import (
	"context"
	"strconv"
	"time"

	"github.com/SakuraBurst/rewardbot/internal/referrer/config"
	"github.com/go-faster/errors"
	"github.com/go-redis/redis_rate/v10"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis serializes work per client and limits how often a client may submit proofs.
type Redis struct {
	rs        *redsync.Redsync
	limiter   *redis_rate.Limiter
	ttl       time.Duration
	perMinute int
	logger    *zap.Logger
}

func NewRedis(rdb redis.UniversalClient, cfg config.Submission, logger *zap.Logger) *Redis {
	return &Redis{
		rs:        redsync.New(goredis.NewPool(rdb)),
		limiter:   redis_rate.NewLimiter(rdb),
		ttl:       cfg.LockTTL,
		perMinute: cfg.PerMinute,
		logger:    logger.Named("locker"),
	}
}

func lockKeyClient(userID int64) string {
	return "lock:client:" + strconv.FormatInt(userID, 10)
}

func limitKeyClient(userID int64) string {
	return "limit:submission:" + strconv.FormatInt(userID, 10)
}

// LockClient blocks until the client lock is taken. The returned func releases it.
func (r *Redis) LockClient(ctx context.Context, userID int64) (func(), error) {
	mutex := r.rs.NewMutex(lockKeyClient(userID), redsync.WithExpiry(r.ttl))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, errors.Wrap(err, "mutex.LockContext failed: ")
	}
	return func() {
		if _, err := mutex.UnlockContext(context.Background()); err != nil {
			// the lock expires with its ttl
			r.logger.Warn("mutex.UnlockContext failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}, nil
}

// AllowSubmission reports whether the client is still within its per minute budget.
func (r *Redis) AllowSubmission(ctx context.Context, userID int64) (bool, error) {
	if r.perMinute <= 0 {
		return true, nil
	}
	res, err := r.limiter.Allow(ctx, limitKeyClient(userID), redis_rate.PerMinute(r.perMinute))
	if err != nil {
		return false, errors.Wrap(err, "limiter.Allow failed: ")
	}
	return res.Allowed > 0, nil
}
