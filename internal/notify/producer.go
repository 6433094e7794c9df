// Package notify publishes and consumes terminal-state task events over
// Kafka, replacing the teacher's booking-notification pipeline with a
// scheduler-domain equivalent.
//
// Grounded on internal/kafka/producer.go's Writer-wrapping and
// PublishWithRetry backoff helper, and internal/kafka/consumer.go's
// Reader-wrapping Consume(ctx, handler) loop — the teacher's dead
// commented-out implementation and debug log.Printf calls are not carried
// over (see DESIGN.md).
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/aetheric-oss/svc-scheduler/internal/domain"
)

// TaskEvent is published whenever a task reaches a terminal state.
type TaskEvent struct {
	TaskID    int64                `json:"task_id"`
	Action    domain.TaskAction    `json:"action"`
	Status    domain.TaskStatus    `json:"status"`
	Rationale domain.TaskRationale `json:"status_rationale,omitempty"`
	UserID    string               `json:"user_id"`
	Result    string               `json:"result,omitempty"`
}

// Producer publishes TaskEvents to a Kafka topic.
type Producer struct {
	topic  string
	writer *kafka.Writer
	log    *zap.Logger
}

// NewProducer builds a Producer against the given brokers and topic.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

// Publish sends a single TaskEvent, keyed by task id.
func (p *Producer) Publish(ctx context.Context, event TaskEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify: encode event for task %d: %w", event.TaskID, err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(fmt.Sprint(event.TaskID)),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("notify: publish task %d: %w", event.TaskID, err)
	}
	return nil
}

// PublishWithRetry retries Publish with linear backoff, logging each failed
// attempt, matching the teacher's PublishWithRetry shape.
func (p *Producer) PublishWithRetry(ctx context.Context, event TaskEvent, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := p.Publish(ctx, event); err == nil {
			return nil
		} else {
			lastErr = err
			p.log.Warn("publish attempt failed", zap.Int64("task_id", event.TaskID), zap.Int("attempt", attempt+1), zap.Error(err))
		}
		if attempt < maxRetries-1 {
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
		}
	}
	return fmt.Errorf("notify: publish task %d failed after %d attempts: %w", event.TaskID, maxRetries, lastErr)
}

// Close releases the underlying Kafka writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
