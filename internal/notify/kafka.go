package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/xtrntr/spotexchange/internal/exchange"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher appends every event to a Kafka topic. Book events are keyed
// by symbol and trade events by user channel, keeping per-key ordering.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a synchronous producer for topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) OrderBookChanged(ctx context.Context, symbol string) error {
	data, err := encodeOrderBook(symbol)
	if err != nil {
		return err
	}
	return p.send(ctx, symbol, data)
}

func (p *KafkaPublisher) TradeOccurred(ctx context.Context, ev exchange.TradeEvent) error {
	data, err := encodeTrade(ev)
	if err != nil {
		return err
	}
	return p.send(ctx, UserChannel(ev.UserID), data)
}

func (p *KafkaPublisher) send(ctx context.Context, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message %s: %w", key, err)
	}
	return nil
}

// Close flushes and closes the producer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
