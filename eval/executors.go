package eval

import (
	"context"

	"github.com/effectus/irkit/ir"
	"github.com/effectus/irkit/registry"
)

// EvalFunc evaluates a child node in the caller's context. Executors use it
// to evaluate their operands.
type EvalFunc func(ctx context.Context, node *ir.Node) (any, error)

// InjectorFunc produces a leaf value from a constant or external source
type InjectorFunc func(ctx context.Context, node *ir.Node, ec *Context) (any, error)

// OperatorFunc computes a value from the node's operands
type OperatorFunc func(ctx context.Context, node *ir.Node, eval EvalFunc, ec *Context) (any, error)

// ComparatorFunc computes a boolean from the node's operands
type ComparatorFunc func(ctx context.Context, node *ir.Node, eval EvalFunc, ec *Context) (bool, error)

// ActionFunc performs a side effect
type ActionFunc func(ctx context.Context, node *ir.Node, eval EvalFunc, ec *Context) (any, error)

// EventFunc maps a namespaced event tag to the DOM event type to listen for
type EventFunc func(tag string) string

// PolicyOperation checks a configured policy against an input and the
// ambient local values.
type PolicyOperation func(ctx context.Context, input any, locals map[string]any) Either

// PolicyFunc builds a policy operation from its configuration
type PolicyFunc func(config any) PolicyOperation

// Either is the result shape of a policy check: Left carries a failure,
// Right a value.
type Either struct {
	Left  error
	Right any
}

// Right wraps a successful value
func Right(v any) Either {
	return Either{Right: v}
}

// Left wraps a failure
func Left(err error) Either {
	return Either{Left: err}
}

// Satisfied reports whether the result carries a boolean true on the right.
func (e Either) Satisfied() bool {
	if e.Left != nil {
		return false
	}
	b, ok := e.Right.(bool)
	return ok && b
}

// Registries is the full set of executor tables consulted by the evaluator.
type Registries struct {
	Injectors   *registry.Registry[InjectorFunc]
	Operators   *registry.Registry[OperatorFunc]
	Comparators *registry.Registry[ComparatorFunc]
	Actions     *registry.Registry[ActionFunc]
	Events      *registry.Registry[EventFunc]
	Policies    *registry.Registry[PolicyFunc]
}

// NewRegistries creates an empty set of registries
func NewRegistries() *Registries {
	return &Registries{
		Injectors:   registry.New[InjectorFunc](),
		Operators:   registry.New[OperatorFunc](),
		Comparators: registry.New[ComparatorFunc](),
		Actions:     registry.New[ActionFunc](),
		Events:      registry.New[EventFunc](),
		Policies:    registry.New[PolicyFunc](),
	}
}

// Known reports whether the executor tag of node resolves in the registry
// matching its kind. Comparator tags also resolve through policies.
func (r *Registries) Known(node *ir.Node) bool {
	switch node.Kind {
	case ir.KindInjector:
		return r.Injectors.Has(node.Injector)
	case ir.KindOperator:
		return r.Operators.Has(node.Op)
	case ir.KindComparator:
		return r.Comparators.Has(node.Cmp) || r.Policies.Has(node.Cmp)
	case ir.KindAction:
		return r.Actions.Has(node.Action)
	case ir.KindOn:
		return r.Events.Has(node.Event)
	default:
		return true
	}
}
