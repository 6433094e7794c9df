package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Consumer wraps a kafka.Reader, decoding TaskEvents for a handler.
// Grounded on internal/kafka/consumer.go's Reader-wrapping shape.
type Consumer struct {
	reader *kafka.Reader
	log    *zap.Logger
}

// NewConsumer builds a Consumer against the given brokers, topic and
// consumer group.
func NewConsumer(brokers []string, topic, groupID string, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		log: log,
	}
}

// Consume reads messages until ctx is cancelled, invoking handler for each
// decoded TaskEvent. A handler error is logged and does not stop the loop.
func (c *Consumer) Consume(ctx context.Context, handler func(context.Context, TaskEvent) error) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("notify: read message: %w", err)
		}

		var event TaskEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.log.Warn("dropping malformed task event", zap.Error(err))
			continue
		}
		if err := handler(ctx, event); err != nil {
			c.log.Warn("task event handler failed", zap.Int64("task_id", event.TaskID), zap.Error(err))
		}
	}
}

// Close releases the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
