// Package eval is the recursive interpreter for IR nodes. Executable node
// kinds dispatch to tag-keyed registries; conditionals and elements follow
// structural rules.
package eval

import (
	"context"
	"fmt"

	"github.com/effectus/irkit/ir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ElementResult is the structural description an evaluated element yields.
type ElementResult struct {
	ID       string
	Tag      string
	Attrs    map[string]any
	Children []any
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithLogger sets the evaluator's logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Evaluator) {
		if logger != nil {
			e.log = logger
		}
	}
}

// WithRegistries makes the evaluator use an existing registry set
func WithRegistries(reg *Registries) Option {
	return func(e *Evaluator) {
		if reg != nil {
			e.reg = reg
		}
	}
}

// Evaluator interprets IR nodes against a registry set
type Evaluator struct {
	reg *Registries
	log *zap.Logger
}

// NewEvaluator creates an evaluator with empty registries unless configured
func NewEvaluator(options ...Option) *Evaluator {
	e := &Evaluator{
		reg: NewRegistries(),
		log: zap.NewNop(),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Registries returns the evaluator's executor tables
func (e *Evaluator) Registries() *Registries {
	return e.reg
}

// Logger returns the evaluator's logger
func (e *Evaluator) Logger() *zap.Logger {
	return e.log
}

// Evaluate interprets node in ec. Lookup failures and executor errors are
// returned to the caller unchanged.
func (e *Evaluator) Evaluate(ctx context.Context, node *ir.Node, ec *Context) (any, error) {
	if node == nil {
		return nil, fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if ec == nil {
		ec = NewContext(Server, nil)
	}

	switch node.Kind {
	case ir.KindInjector:
		fn, ok := e.reg.Injectors.Get(node.Injector)
		if !ok {
			return nil, unregistered(node)
		}
		return fn(ctx, node, ec)

	case ir.KindOperator:
		fn, ok := e.reg.Operators.Get(node.Op)
		if !ok {
			return nil, unregistered(node)
		}
		return fn(ctx, node, e.bind(ec), ec)

	case ir.KindComparator:
		return e.comparator(ctx, node, ec)

	case ir.KindAction:
		fn, ok := e.reg.Actions.Get(node.Action)
		if !ok {
			return nil, unregistered(node)
		}
		return fn(ctx, node, e.bind(ec), ec)

	case ir.KindConditional:
		return e.conditional(ctx, node, ec)

	case ir.KindElement:
		return e.element(ctx, node, ec)

	case ir.KindValidator:
		if node.Rule == nil || node.Rule.Kind != ir.KindComparator {
			return nil, fmt.Errorf("%w: validator %s rule must be a comparator", ErrInvalidNode, node.ID)
		}
		return e.comparator(ctx, node.Rule, ec)

	case ir.KindOn:
		return nil, nil

	case ir.KindText:
		return node.Content, nil

	default:
		return nil, fmt.Errorf("%w: node %s has kind %q", ErrInvalidNode, node.ID, node.Kind)
	}
}

// bind closes the recursive evaluate over ec for executors.
func (e *Evaluator) bind(ec *Context) EvalFunc {
	return func(ctx context.Context, node *ir.Node) (any, error) {
		return e.Evaluate(ctx, node, ec)
	}
}

func (e *Evaluator) comparator(ctx context.Context, node *ir.Node, ec *Context) (any, error) {
	if fn, ok := e.reg.Comparators.Get(node.Cmp); ok {
		return fn(ctx, node, e.bind(ec), ec)
	}

	// A comparator tag without an executor is treated as a policy name.
	policy, ok := e.reg.Policies.Get(node.Cmp)
	if !ok {
		return nil, unregistered(node)
	}

	var config, input any
	var err error
	if len(node.Args) > 0 {
		if config, err = e.Evaluate(ctx, node.Args[0], ec); err != nil {
			return nil, fmt.Errorf("evaluating policy %s config: %w", node.Cmp, err)
		}
	}
	if len(node.Args) > 1 {
		if input, err = e.Evaluate(ctx, node.Args[1], ec); err != nil {
			return nil, fmt.Errorf("evaluating policy %s input: %w", node.Cmp, err)
		}
	}

	op := policy(config)
	if op == nil {
		return false, nil
	}
	result := op(ctx, input, ec.Locals())
	if result.Left != nil {
		e.log.Debug("policy not satisfied",
			zap.String("policy", node.Cmp),
			zap.String("node", node.ID),
			zap.Error(result.Left))
	}
	return result.Satisfied(), nil
}

// Branch evaluates the condition of a conditional node and returns the
// selected branch. The condition must be a comparator.
func (e *Evaluator) Branch(ctx context.Context, node *ir.Node, ec *Context) ([]*ir.Node, error) {
	if node == nil || node.Kind != ir.KindConditional {
		return nil, fmt.Errorf("%w: not a conditional", ErrInvalidNode)
	}
	if node.Condition == nil || node.Condition.Kind != ir.KindComparator {
		return nil, fmt.Errorf("%w: conditional %s condition must be a comparator", ErrInvalidNode, node.ID)
	}
	if ec == nil {
		ec = NewContext(Server, nil)
	}
	cond, err := e.comparator(ctx, node.Condition, ec)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return node.IfTrue, nil
	}
	return node.IfFalse, nil
}

func (e *Evaluator) conditional(ctx context.Context, node *ir.Node, ec *Context) (any, error) {
	branch, err := e.Branch(ctx, node, ec)
	if err != nil {
		return nil, err
	}

	// Branch bodies run strictly in order; each node completes before the
	// next starts.
	var last any
	for _, step := range branch {
		if last, err = e.Evaluate(ctx, step, ec); err != nil {
			return nil, err
		}
	}
	return last, nil
}

func (e *Evaluator) element(ctx context.Context, node *ir.Node, ec *Context) (any, error) {
	children := make([]any, len(node.Children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range node.Children {
		g.Go(func() error {
			v, err := e.Evaluate(gctx, child, ec)
			if err != nil {
				return err
			}
			children[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ElementResult{
		ID:       node.ID,
		Tag:      node.Tag,
		Attrs:    node.Attrs,
		Children: children,
	}, nil
}
