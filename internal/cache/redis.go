// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list (queue) name for game action logs.
const DefaultQueueName = "scoretracker_actions"

// GameActionRecord holds the minimal info needed by the historian service.
type GameActionRecord struct {
	GameID        string                 `json:"game_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorPlayerID int                    `json:"actor_player_id"`
	ActionType    string                 `json:"action_type"`
	ActionPayload map[string]interface{} `json:"action_payload"`
	Timestamp     int64                  `json:"timestamp"`
}

// Client wraps a Redis connection used both as a snapshot key-value store
// and as the producer side of the historian queue.
type Client struct {
	rdb       *redis.Client
	queueName string
}

// Options configures Connect.
type Options struct {
	Addr      string
	DB        int
	QueueName string
}

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}
	return NewClient(rdb, opts.QueueName), nil
}

// NewClient wraps an existing go-redis client.
func NewClient(rdb *redis.Client, queueName string) *Client {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Client{rdb: rdb, queueName: queueName}
}

// Redis exposes the underlying client, e.g. for the historian consumer.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// QueueName is the list that action records are pushed to.
func (c *Client) QueueName() string {
	return c.queueName
}

// Get reads a string value. The bool is false when the key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	return val, true, nil
}

// Set overwrites a string value with no expiry.
func (c *Client) Set(ctx context.Context, key, value string) error {
	if err := c.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

// PublishGameAction serializes the given record to JSON, then pushes it to the Redis queue.
func (c *Client) PublishGameAction(ctx context.Context, record GameActionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal GameActionRecord: %w", err)
	}
	if err := c.rdb.RPush(ctx, c.queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", c.queueName, err)
	}
	return nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}
