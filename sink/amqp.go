package sink

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig configures the AMQP sink
type AMQPConfig struct {
	URL             string `yaml:"url" json:"url"`
	Exchange        string `yaml:"exchange" json:"exchange"`
	ExchangeType    string `yaml:"exchange_type" json:"exchange_type"`
	ExchangeDeclare bool   `yaml:"exchange_declare" json:"exchange_declare"`
}

// AMQP publishes events to an exchange with the topic as routing key
type AMQP struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewAMQP dials the broker and opens a channel
func NewAMQP(cfg AMQPConfig) (*AMQP, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "topic"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if cfg.ExchangeDeclare && cfg.Exchange != "" {
		if err := channel.ExchangeDeclare(
			cfg.Exchange,
			cfg.ExchangeType,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to declare exchange: %w", err)
		}
	}
	return &AMQP{conn: conn, channel: channel, exchange: cfg.Exchange}, nil
}

func (a *AMQP) Emit(ctx context.Context, event Event) error {
	body, err := event.Encode()
	if err != nil {
		return err
	}
	err = a.channel.PublishWithContext(ctx, a.exchange, event.Topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   event.ID,
		Timestamp:   event.Time,
		Headers: amqp.Table{
			"ir.node": event.NodeID,
			"ir.env":  event.Env,
		},
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (a *AMQP) Close() error {
	return errors.Join(a.channel.Close(), a.conn.Close())
}
