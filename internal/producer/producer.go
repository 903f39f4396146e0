package producer

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is implemented by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher writes keyed JSON messages to the writer's topic.
type Publisher struct {
	writer MessageWriter
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

func (p *Publisher) Publish(ctx context.Context, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}
