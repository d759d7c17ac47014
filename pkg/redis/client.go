package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Default stream configuration
const (
	DefaultStreamMaxLen = 10000 // Default max entries per stream

	// EventStream keeps a capped history of every run event.
	EventStream = "defi:snapshot.events"
)

// Options configures the connection.
type Options struct {
	Host     string
	Port     string
	Password string
	DB       int
	// StreamMaxLen caps EventStream (0 = unlimited).
	StreamMaxLen int64
}

// Client wraps the Redis client for run event notifications (Pub/Sub and Streams).
type Client struct {
	client       *redis.Client
	logger       *zap.Logger
	streamMaxLen int64
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, logger *zap.Logger, o Options) (*Client, error) {
	addr := fmt.Sprintf("%s:%s", o.Host, o.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: o.Password,
		DB:       o.DB,

		PoolSize:     4,
		MinIdleConns: 1,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", o.DB),
		zap.Int64("streamMaxLen", o.StreamMaxLen))

	return &Client{
		client:       rdb,
		logger:       logger,
		streamMaxLen: o.StreamMaxLen,
	}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// SnapshotEvent is published after a job finishes for a protocol.
type SnapshotEvent struct {
	Protocol string    `json:"protocol"`
	Job      string    `json:"job"`
	Inserted int64     `json:"inserted"`
	Skipped  int       `json:"skipped"`
	Deleted  int64     `json:"deleted"`
	At       time.Time `json:"at"`
}

// SnapshotChannel returns the Pub/Sub channel for a protocol's events.
func SnapshotChannel(protocol string) string {
	return fmt.Sprintf("defi:%s:snapshot.ingested", protocol)
}

// PublishSnapshot publishes ev on the protocol channel and appends it to EventStream.
// This is best-effort: errors are logged, never returned, so a Redis outage cannot
// fail an ETL run.
func (c *Client) PublishSnapshot(ctx context.Context, ev SnapshotEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Warn("Failed to encode snapshot event", zap.Error(err))
		return
	}

	channel := SnapshotChannel(ev.Protocol)
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		c.logger.Warn("Failed to publish Redis message",
			zap.String("channel", channel),
			zap.Error(err))
	}

	args := &redis.XAddArgs{
		Stream: EventStream,
		Values: map[string]interface{}{"protocol": ev.Protocol, "job": ev.Job, "payload": string(payload)},
	}
	// Apply MAXLEN if configured (approximate for performance)
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}
	if err := c.client.XAdd(ctx, args).Err(); err != nil {
		c.logger.Warn("Failed to add to Redis stream",
			zap.String("stream", EventStream),
			zap.Error(err))
	}
}
