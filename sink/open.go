package sink

import "fmt"

// Config selects and configures a sink
type Config struct {
	Kind  string      `yaml:"kind" json:"kind"` // none, memory, kafka or amqp
	Kafka KafkaConfig `yaml:"kafka" json:"kafka"`
	AMQP  AMQPConfig  `yaml:"amqp" json:"amqp"`
}

// Open creates the sink named by cfg.Kind. "none" returns a nil sink.
func Open(cfg Config) (Sink, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(), nil
	case "kafka":
		return NewKafka(cfg.Kafka)
	case "amqp":
		return NewAMQP(cfg.AMQP)
	default:
		return nil, fmt.Errorf("unknown sink kind: %s", cfg.Kind)
	}
}
