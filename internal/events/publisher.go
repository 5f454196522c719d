package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits dispatch events keyed by job id, so every attempt of a job
// lands on the same partition.
type Publisher struct {
	writer messageWriter
}

// NewPublisher constructs a publisher for the given topic.
func NewPublisher(k *Kafka, topic string) *Publisher {
	return &Publisher{writer: k.NewWriter(topic)}
}

// PublishDispatch writes evt to Kafka.
func (p *Publisher) PublishDispatch(ctx context.Context, evt DispatchEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("dispatch publisher: marshal event: %w", err)
	}
	record := kafka.Message{
		Key:   []byte(evt.JobID),
		Value: value,
		Time:  evt.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, record); err != nil {
		return fmt.Errorf("dispatch publisher: write message: %w", err)
	}
	return nil
}

// Close closes the publisher.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
