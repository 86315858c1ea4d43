// Package defaults is the standard executor bundle: constant and local-value
// injectors, arithmetic operators, comparison and pattern comparators,
// local-state actions, DOM event names and authorization policies.
package defaults

import (
	"time"

	"github.com/effectus/irkit/eval"
	"go.uber.org/zap"
)

// Option configures the default executors
type Option func(*options)

type options struct {
	log *zap.Logger
	now func() time.Time
}

// WithLogger sets the logger used by Act.Log
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.log = logger
		}
	}
}

// WithClock sets the time source of From.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

type bundle struct {
	injectors   map[string]eval.InjectorFunc
	operators   map[string]eval.OperatorFunc
	comparators map[string]eval.ComparatorFunc
	actions     map[string]eval.ActionFunc
	events      map[string]eval.EventFunc
	policies    map[string]eval.PolicyFunc
}

func newBundle(opts ...Option) *bundle {
	o := &options{log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return &bundle{
		injectors:   injectors(o),
		operators:   operators(),
		comparators: comparators(),
		actions:     actions(o),
		events:      events(),
		policies:    policies(),
	}
}

// Register installs every default executor, replacing existing entries
// with the same tags.
func Register(reg *eval.Registries, opts ...Option) {
	b := newBundle(opts...)
	for tag, fn := range b.injectors {
		reg.Injectors.Register(tag, fn)
	}
	for tag, fn := range b.operators {
		reg.Operators.Register(tag, fn)
	}
	for tag, fn := range b.comparators {
		reg.Comparators.Register(tag, fn)
	}
	for tag, fn := range b.actions {
		reg.Actions.Register(tag, fn)
	}
	for tag, fn := range b.events {
		reg.Events.Register(tag, fn)
	}
	for tag, fn := range b.policies {
		reg.Policies.Register(tag, fn)
	}
}

// Ensure installs the default executors whose tags are not registered yet.
// It is idempotent and never replaces an application's own executors.
func Ensure(reg *eval.Registries, opts ...Option) {
	b := newBundle(opts...)
	for tag, fn := range b.injectors {
		reg.Injectors.RegisterIfAbsent(tag, fn)
	}
	for tag, fn := range b.operators {
		reg.Operators.RegisterIfAbsent(tag, fn)
	}
	for tag, fn := range b.comparators {
		reg.Comparators.RegisterIfAbsent(tag, fn)
	}
	for tag, fn := range b.actions {
		reg.Actions.RegisterIfAbsent(tag, fn)
	}
	for tag, fn := range b.events {
		reg.Events.RegisterIfAbsent(tag, fn)
	}
	for tag, fn := range b.policies {
		reg.Policies.RegisterIfAbsent(tag, fn)
	}
}

// NewEvaluator creates an evaluator with the default executors registered.
func NewEvaluator(logger *zap.Logger, opts ...Option) *eval.Evaluator {
	ev := eval.NewEvaluator(eval.WithLogger(logger))
	Register(ev.Registries(), append([]Option{WithLogger(logger)}, opts...)...)
	return ev
}
