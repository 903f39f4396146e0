package config

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

func (c KafkaConfig) BrokerURLs() []string {
	brokers := c.Brokers
	if brokers == "" {
		brokers = "localhost:9092,localhost:9093,localhost:9094" // Default brokers
	}
	return strings.Split(brokers, ",")
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // keep one key on one partition
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}
