// Package sink delivers events raised by the Act.Emit action to a broker.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
	"github.com/google/uuid"
)

// EmitTag is the action tag bound by Register
const EmitTag = "Act.Emit"

// Event is an emitted message
type Event struct {
	ID      string    `json:"id"`
	Topic   string    `json:"topic"`
	NodeID  string    `json:"node_id"`
	Env     string    `json:"env"`
	Payload any       `json:"payload,omitempty"`
	Time    time.Time `json:"time"`
}

// Encode returns the JSON body of the event
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", e.ID, err)
	}
	return data, nil
}

// Sink accepts events
type Sink interface {
	Emit(ctx context.Context, event Event) error
	Close() error
}

// Register binds Act.Emit to s. The action takes a topic and an optional
// payload operand and returns the event id.
func Register(reg *eval.Registries, s Sink) {
	reg.Actions.Register(EmitTag, EmitAction(s))
}

// EmitAction builds the Act.Emit executor for s
func EmitAction(s Sink) eval.ActionFunc {
	return func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (any, error) {
		if len(node.Args) == 0 || len(node.Args) > 2 {
			return nil, fmt.Errorf("%w: action %s takes a topic and an optional payload", eval.ErrInvalidNode, node.ID)
		}
		v, err := evaluate(ctx, node.Args[0])
		if err != nil {
			return nil, err
		}
		topic, ok := v.(string)
		if !ok || topic == "" {
			return nil, fmt.Errorf("%w: action %s topic must be a non-empty string", eval.ErrInvalidNode, node.ID)
		}
		var payload any
		if len(node.Args) == 2 {
			if payload, err = evaluate(ctx, node.Args[1]); err != nil {
				return nil, err
			}
		}

		event := Event{
			ID:      uuid.NewString(),
			Topic:   topic,
			NodeID:  node.ID,
			Env:     string(ec.Env),
			Payload: payload,
			Time:    time.Now().UTC(),
		}
		if err := s.Emit(ctx, event); err != nil {
			return nil, fmt.Errorf("emitting to %s: %w", topic, err)
		}
		return event.ID, nil
	}
}

// Memory records events in order
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty memory sink
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Emit(ctx context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

func (m *Memory) Close() error {
	return nil
}
