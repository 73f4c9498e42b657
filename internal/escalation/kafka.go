package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rogersf/ticketflow/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaSink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes escalation records to a topic, keyed by run ID.
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaSink creates a sink that waits for all in-sync replicas to
// acknowledge each record.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}}
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(w MessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}

// Escalate implements Sink.
func (s *KafkaSink) Escalate(ctx context.Context, rec domain.EscalationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode escalation: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.RunID),
		Value: data,
		Time:  rec.Timestamp,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish escalation: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
