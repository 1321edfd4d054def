package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tally-network/pollsync/pkg/retry"
	"go.uber.org/zap"
)

// redisHashKey is the single hash holding all cached polls, one field per
// poll id, JSON-encoded record as the value.
const redisHashKey = "pollsync:polls"

// RedisStore persists the cache in a Redis hash. HSET per write gives the
// last-writer-wins upsert the cache contract asks for.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects to the Redis named by dsn (redis://[user:pass@]
// host:port/db) and verifies the connection before returning.
func NewRedisStore(ctx context.Context, logger *zap.Logger, dsn string) (*RedisStore, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse redis dsn: %w", err)
	}

	// Connection pool
	opts.PoolSize = 10
	opts.MinIdleConns = 2

	// Timeouts
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)
	err = retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "redis_connection", func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return rdb.Ping(pingCtx).Err()
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis cache", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return &RedisStore{client: rdb, logger: logger}, nil
}

func (s *RedisStore) Get(ctx context.Context, pollID uint64) (*CacheRecord, error) {
	val, err := s.client.HGet(ctx, redisHashKey, field(pollID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("poll %d: %w", pollID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget poll %d: %w", pollID, err)
	}
	var rec CacheRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("decode cached poll %d: %w", pollID, err)
	}
	return &rec, nil
}

func (s *RedisStore) GetAll(ctx context.Context) ([]CacheRecord, error) {
	fields, err := s.client.HGetAll(ctx, redisHashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]CacheRecord, 0, len(fields))
	for f, val := range fields {
		var rec CacheRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			// A corrupt row should not hide the rest of the cache.
			s.logger.Warn("Skipping undecodable cache row",
				zap.String("field", f),
				zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

func (s *RedisStore) Put(ctx context.Context, rec *CacheRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode poll %d: %w", rec.PollID, err)
	}
	if err := s.client.HSet(ctx, redisHashKey, field(rec.PollID), payload).Err(); err != nil {
		return fmt.Errorf("redis hset poll %d: %w", rec.PollID, err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func field(pollID uint64) string {
	return strconv.FormatUint(pollID, 10)
}
