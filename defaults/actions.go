package defaults

import (
	"context"
	"fmt"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
	"go.uber.org/zap"
)

func actions(o *options) map[string]eval.ActionFunc {
	return map[string]eval.ActionFunc{
		"Act.SetLocal": setLocal,
		"Act.Sequence": sequence,
		"Act.Noop": func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (any, error) {
			return nil, nil
		},
		"Act.Log": func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (any, error) {
			values, err := evalArgs(ctx, node, evaluate)
			if err != nil {
				return nil, err
			}
			o.log.Info("ir action",
				zap.String("node", node.ID),
				zap.String("env", string(ec.Env)),
				zap.String("message", join(values)))
			return nil, nil
		},
	}
}

// setLocal stores the second operand under the key given by the first and
// returns the stored value.
func setLocal(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (any, error) {
	values, err := evalArgs(ctx, node, evaluate)
	if err != nil {
		return nil, err
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("%w: action %s takes a key and a value", eval.ErrInvalidNode, node.ID)
	}
	key, ok := values[0].(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("%w: action %s key must be a non-empty string", eval.ErrInvalidNode, node.ID)
	}
	ec.SetLocal(key, values[1])
	return values[1], nil
}

// sequence runs its operands in order and returns the last result.
func sequence(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (any, error) {
	var last any
	for _, arg := range node.Args {
		v, err := evaluate(ctx, arg)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}
