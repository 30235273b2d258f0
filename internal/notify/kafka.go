package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Compile-time interface check.
var _ Notifier = (*KafkaNotifier)(nil)

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes each channel to the topic <prefix>.<channel>.
type KafkaNotifier struct {
	writer messageWriter
	prefix string
}

// NewKafkaNotifier creates a notifier writing to brokers. Topics are
// created on first use when the cluster allows it.
func NewKafkaNotifier(brokers []string, prefix string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           50 * time.Millisecond,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		prefix: prefix,
	}
}

func (n *KafkaNotifier) topic(channel string) string {
	if n.prefix == "" {
		return channel
	}
	return n.prefix + "." + channel
}

func (n *KafkaNotifier) Publish(ctx context.Context, channel string, payload []byte) error {
	err := n.writer.WriteMessages(ctx, kafka.Message{
		Topic: n.topic(channel),
		Value: payload,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
