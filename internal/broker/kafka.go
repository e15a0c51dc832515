package broker

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer wraps a Kafka writer
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Kafka producer for the given topic
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Producer{writer: writer}
}

// Publish sends a message with the given key
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
