package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka sink
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" json:"brokers"`
	TopicPrefix  string        `yaml:"topic_prefix" json:"topic_prefix"`
	BatchTimeout time.Duration `yaml:"batch_timeout" json:"batch_timeout"`
}

// Kafka writes each event to the topic named by the event, keyed by id
type Kafka struct {
	writer *kafka.Writer
	prefix string
}

// NewKafka creates a Kafka sink
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           cfg.BatchTimeout,
			AllowAutoTopicCreation: true,
		},
		prefix: cfg.TopicPrefix,
	}, nil
}

func (k *Kafka) Emit(ctx context.Context, event Event) error {
	body, err := event.Encode()
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.prefix + event.Topic,
		Key:   []byte(event.ID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "ir.node", Value: []byte(event.NodeID)},
			{Key: "ir.env", Value: []byte(event.Env)},
		},
		Time: event.Time,
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
