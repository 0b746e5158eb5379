package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/scheduling-api/pkg/circuitbreaker"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
)

// RedisBroker appends each message to a Redis stream named after its type.
// Streams keep messages for consumers that were offline, which pub/sub
// would drop.
type RedisBroker struct {
	client *redis.Client
	cb     *circuitbreaker.CircuitBreaker
	config Config
	logger *zerolog.Logger
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
	// StreamPrefix is prepended to the message type to form the stream key.
	StreamPrefix string
	// StreamMaxLen trims each stream approximately to this many entries.
	StreamMaxLen int64
}

func NewRedisBroker(ctx context.Context, config Config, logger *zerolog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newBroker(client, config, logger), nil
}

func newBroker(client *redis.Client, config Config, logger *zerolog.Logger) *RedisBroker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "redis-broker",
		MaxFailures: 5,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		OnStateChange: func(name, from, to string) {
			logger.Warn().Str("breaker", name).Str("from", from).Str("to", to).Msg("circuit breaker state changed")
		},
	})
	return &RedisBroker{client: client, cb: cb, config: config, logger: logger}
}

// Args builds the XADD arguments for msg.
func (b *RedisBroker) Args(msg messaging.Message) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: b.config.StreamPrefix + msg.Type,
		Values: map[string]interface{}{
			"id":      msg.ID,
			"type":    msg.Type,
			"key":     msg.Key,
			"payload": string(msg.Payload),
		},
	}
	if b.config.StreamMaxLen > 0 {
		args.MaxLen = b.config.StreamMaxLen
		args.Approx = true
	}
	return args
}

func (b *RedisBroker) Publish(ctx context.Context, msg messaging.Message) error {
	return b.cb.Execute(func() error {
		if err := b.client.XAdd(ctx, b.Args(msg)).Err(); err != nil {
			return fmt.Errorf("xadd %s: %w", msg.Type, err)
		}
		return nil
	})
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
