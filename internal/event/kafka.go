package event

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// Kafka publishes events to one topic, keyed by event name
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka is constructor
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// Publish sends the event as a JSON message
func (k *Kafka) Publish(ctx context.Context, event string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event),
		Value: value,
	})
}

// Close flushes and closes the underlying writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
