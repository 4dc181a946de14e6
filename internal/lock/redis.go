package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const defaultExpiry = 10 * time.Second

// Redis is a distributed Locker backed by redsync, for deployments where
// several processes handle turns for the same conversation.
type Redis struct {
	rs     *redsync.Redsync
	expiry time.Duration
	logger *slog.Logger
}

func NewRedis(client redis.UniversalClient, expiry time.Duration, logger *slog.Logger) (*Redis, error) {
	if client == nil {
		return nil, errors.New("lock: redis client must not be nil")
	}
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
		logger: logger,
	}, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	mutex := r.rs.NewMutex("lock:"+key, redsync.WithExpiry(r.expiry))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock: acquire %q: %w", key, err)
	}
	return func() {
		// The turn context may already be done; release on a fresh one.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(unlockCtx); err != nil {
			r.logger.Error("failed to release lock", "key", key, "err", err)
		}
	}, nil
}
