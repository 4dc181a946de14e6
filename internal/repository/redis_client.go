package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// envelope is the value stored under each Redis key.
type envelope struct {
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// RedisStore persists state documents as JSON envelopes and guards writes
// with an optimistic WATCH/MULTI transaction.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. Keys are stored as {prefix}:{key}. A
// non-positive ttl uses 30 days.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, prefix: strings.TrimRight(strings.TrimSpace(prefix), ":"), ttl: ttl}, nil
}

// NewRedisClient builds a client from a comma separated list of redis:// URLs
// or host:port addresses and checks connectivity.
func NewRedisClient(ctx context.Context, raw string) (redis.UniversalClient, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}
		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, fmt.Errorf("repository: parse redis url: %w", err)
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, errors.New("repository: no redis addresses provided")
	}
	if len(opts.Addrs) > 1 {
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("repository: connect to redis: %w", err)
	}
	return client, nil
}

func (c *RedisStore) redisKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *RedisStore) Get(ctx context.Context, key string) (Item, bool, error) {
	raw, err := c.client.Get(ctx, c.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("repository: Get: %w", err)
	}
	env, err := decodeEnvelope(raw)
	if err != nil {
		return Item{}, false, fmt.Errorf("repository: Get: %w", err)
	}
	return Item{Data: []byte(env.Data), Version: env.Version}, true, nil
}

func (c *RedisStore) Put(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	if !json.Valid(data) {
		return 0, errors.New("repository: Put: document is not valid JSON")
	}
	rk := c.redisKey(key)
	next := expectedVersion + 1
	payload, err := json.Marshal(envelope{Version: next, Data: data})
	if err != nil {
		return 0, fmt.Errorf("repository: Put marshal: %w", err)
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		var current int64
		raw, err := tx.Get(ctx, rk).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			env, err := decodeEnvelope(raw)
			if err != nil {
				return err
			}
			current = env.Version
		}
		if current != expectedVersion {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, payload, c.ttl)
			return nil
		})
		return err
	}, rk)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, ErrConflict), errors.Is(err, redis.TxFailedErr):
		return 0, fmt.Errorf("repository: Put %q: %w", key, ErrConflict)
	default:
		return 0, fmt.Errorf("repository: Put: %w", err)
	}
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version <= 0 {
		return envelope{}, fmt.Errorf("decode envelope: invalid version %d", env.Version)
	}
	return env, nil
}
