package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tally-network/pollsync/pkg/utils"
	"go.uber.org/zap"
)

// EventsChannel is the Pub/Sub channel UIs subscribe to for cache updates.
const EventsChannel = "pollsync:events"

// Event types published on EventsChannel.
const (
	EventPollCreated    = "poll.created"
	EventPollsRefreshed = "polls.refreshed"
	EventVoteCast       = "vote.cast"
)

// Event is the payload published after a cache change.
type Event struct {
	Type   string `json:"type"`
	PollID uint64 `json:"pollId,omitempty"`
	At     int64  `json:"at"`
}

// Client wraps the Redis client for real-time event notifications (Pub/Sub).
type Client struct {
	client *redis.Client
	logger *zap.Logger
}

// NewClient creates a new Redis client using environment variables for configuration.
// Environment variables:
//   - REDIS_HOST: Redis host (default: "localhost")
//   - REDIS_PORT: Redis port (default: "6379")
//   - REDIS_PASSWORD: Redis password (default: "")
//   - REDIS_DB: Redis database number (default: "0")
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("REDIS_HOST", "localhost")
	port := utils.Env("REDIS_PORT", "6379")
	password := utils.Env("REDIS_PASSWORD", "")
	db := utils.EnvInt("REDIS_DB", 0)

	addr := fmt.Sprintf("%s:%s", host, port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,

		// Connection pool
		PoolSize:     10,
		MinIdleConns: 2,

		// Timeouts
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", db))

	return &Client{
		client: rdb,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Publish publishes an event to EventsChannel.
// This is a best-effort operation - errors are logged but not returned
// to prevent notification failures from affecting the sync path.
func (c *Client) Publish(ctx context.Context, event Event) {
	if event.At == 0 {
		event.At = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Warn("Failed to encode Redis event",
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}
	if err := c.client.Publish(ctx, EventsChannel, payload).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis event",
			zap.String("channel", EventsChannel),
			zap.String("type", event.Type),
			zap.Error(err))
	}
}

// Health checks if Redis is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
