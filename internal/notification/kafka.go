package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bher20/flightticker/internal/fares"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes drop events as JSON, keyed by route code, so that
// downstream consumers see one route's events in order.
type KafkaSink struct {
	topic  string
	writer messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	s := &KafkaSink{topic: topic}
	if len(brokers) > 0 && topic != "" {
		s.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		}
	}
	return s
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Enabled() bool { return k.writer != nil }

func (k *KafkaSink) Send(ctx context.Context, ev fares.DropEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka payload: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.RouteCode),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("price_drop")},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", k.topic, err)
	}
	return nil
}

func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
