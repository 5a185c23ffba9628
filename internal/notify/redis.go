package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/xtrntr/spotexchange/internal/exchange"
)

// redisPublisher is the part of *redis.Client the publisher uses
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher publishes events on Redis pub/sub channels so other
// processes (a websocket gateway, for instance) can relay them
type RedisPublisher struct {
	client redisPublisher
	prefix string
}

// NewRedisClient connects to a Redis server
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
}

// NewRedisPublisher creates a publisher. prefix is prepended to channel names.
func NewRedisPublisher(client redisPublisher, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) OrderBookChanged(ctx context.Context, symbol string) error {
	data, err := encodeOrderBook(symbol)
	if err != nil {
		return err
	}
	channel := p.prefix + OrderBookChannel
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher) TradeOccurred(ctx context.Context, ev exchange.TradeEvent) error {
	data, err := encodeTrade(ev)
	if err != nil {
		return err
	}
	channel := p.prefix + UserChannel(ev.UserID)
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish trade %d to %s: %w", ev.Trade.ID, channel, err)
	}
	return nil
}
