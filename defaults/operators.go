package defaults

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
)

var (
	// ErrDivisionByZero is returned by Op.Divide
	ErrDivisionByZero = errors.New("division by zero")
	// ErrIntegerOverflow is returned when an integer result does not fit in
	// an int64
	ErrIntegerOverflow = errors.New("integer overflow")
)

func operators() map[string]eval.OperatorFunc {
	return map[string]eval.OperatorFunc{
		"Op.Add":      arithmetic(addInt, func(a, b float64) (float64, error) { return a + b, nil }),
		"Op.Subtract": arithmetic(subInt, func(a, b float64) (float64, error) { return a - b, nil }),
		"Op.Multiply": arithmetic(mulInt, func(a, b float64) (float64, error) { return a * b, nil }),
		"Op.Divide": arithmetic(divInt, func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, ErrDivisionByZero
			}
			return a / b, nil
		}),
		"Op.Negate": negate,
		"Op.Concat": concat,
		"Op.Expr":   exprOperator,
	}
}

// evalArgs evaluates the node's operands in order.
func evalArgs(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc) ([]any, error) {
	values := make([]any, len(node.Args))
	for i, arg := range node.Args {
		v, err := evaluate(ctx, arg)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

// arithmetic folds the operands left to right. Integer operands fold in
// int64 with overflow checks when the datatype is Integer, or when it is
// unspecified and the operator is not Op.Divide. Everything else folds in
// float64. Op.Add with a String datatype concatenates instead.
func arithmetic(ints func(a, b int64) (int64, error), floats func(a, b float64) (float64, error)) eval.OperatorFunc {
	return func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (any, error) {
		values, err := evalArgs(ctx, node, evaluate)
		if err != nil {
			return nil, err
		}
		if node.Datatype == ir.String && node.Op == "Op.Add" {
			return join(values), nil
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("%w: operator %s needs at least one operand", eval.ErrInvalidNode, node.ID)
		}

		if node.Datatype == ir.Integer || (node.Datatype == "" && node.Op != "Op.Divide") {
			if nums, ok := intOperands(values, node.Datatype); ok {
				acc := nums[0]
				for _, n := range nums[1:] {
					if acc, err = ints(acc, n); err != nil {
						return nil, fmt.Errorf("operator %s: %w", node.ID, err)
					}
				}
				return acc, nil
			}
		}

		integral := true
		nums := make([]float64, len(values))
		for i, v := range values {
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("operator %s: operand %d is %T, not a number", node.ID, i, v)
			}
			nums[i] = f
			integral = integral && isIntegral(v)
		}

		acc := nums[0]
		for _, n := range nums[1:] {
			if acc, err = floats(acc, n); err != nil {
				return nil, fmt.Errorf("operator %s: %w", node.ID, err)
			}
		}
		v, err := numberResult(acc, node.Datatype, integral && node.Op != "Op.Divide")
		if err != nil {
			return nil, fmt.Errorf("operator %s: %w", node.ID, err)
		}
		return v, nil
	}
}

// intOperands converts every operand to int64. Integral floats count only
// under an Integer datatype.
func intOperands(values []any, datatype ir.Datatype) ([]int64, bool) {
	nums := make([]int64, len(values))
	for i, v := range values {
		n, ok := exactInt(v, datatype == ir.Integer)
		if !ok {
			return nil, false
		}
		nums[i] = n
	}
	return nums, true
}

func exactInt(v any, floats bool) (int64, bool) {
	switch n := v.(type) {
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
	case float64:
		if !floats || n != math.Trunc(n) || !fitsInt64(n) {
			return 0, false
		}
		return int64(n), true
	}
	return toInt(v)
}

func fitsInt64(f float64) bool {
	return f >= -(1<<63) && f < 1<<63
}

func addInt(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrIntegerOverflow
	}
	return a + b, nil
}

func subInt(a, b int64) (int64, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, ErrIntegerOverflow
	}
	return a - b, nil
}

func mulInt(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, ErrIntegerOverflow
	}
	return c, nil
}

func divInt(a, b int64) (int64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	if a == math.MinInt64 && b == -1 {
		return 0, ErrIntegerOverflow
	}
	return a / b, nil
}

func numberResult(v float64, datatype ir.Datatype, integral bool) (any, error) {
	switch datatype {
	case ir.Integer:
		return floatToInt(v)
	case ir.Float:
		return v, nil
	case "":
		if integral {
			return floatToInt(v)
		}
		return v, nil
	default:
		return Coerce(v, datatype)
	}
}

func floatToInt(v float64) (int64, error) {
	if math.IsNaN(v) || !fitsInt64(v) {
		return 0, ErrIntegerOverflow
	}
	return int64(v), nil
}

func negate(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (any, error) {
	values, err := evalArgs(ctx, node, evaluate)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: operator %s takes one operand", eval.ErrInvalidNode, node.ID)
	}
	if node.Datatype == ir.Integer || node.Datatype == "" {
		if i, ok := exactInt(values[0], node.Datatype == ir.Integer); ok {
			if i == math.MinInt64 {
				return nil, fmt.Errorf("operator %s: %w", node.ID, ErrIntegerOverflow)
			}
			return -i, nil
		}
	}
	f, ok := toFloat(values[0])
	if !ok {
		return nil, fmt.Errorf("operator %s: operand is %T, not a number", node.ID, values[0])
	}
	return numberResult(-f, node.Datatype, isIntegral(values[0]))
}

func concat(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (any, error) {
	values, err := evalArgs(ctx, node, evaluate)
	if err != nil {
		return nil, err
	}
	return join(values), nil
}

func join(values []any) string {
	var sb strings.Builder
	for _, v := range values {
		sb.WriteString(Stringify(v))
	}
	return sb.String()
}

// exprOperator evaluates an expr-lang expression given as the first operand.
// The remaining operands are bound as arg1, arg2, ... and the local values
// as locals.
func exprOperator(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (any, error) {
	source, env, err := exprInput(ctx, node, evaluate, ec)
	if err != nil {
		return nil, err
	}
	out, err := RunExpr(source, env)
	if err != nil {
		return nil, fmt.Errorf("operator %s: %w", node.ID, err)
	}
	if node.Datatype == "" {
		return out, nil
	}
	return Coerce(out, node.Datatype)
}

func exprInput(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (string, map[string]any, error) {
	values, err := evalArgs(ctx, node, evaluate)
	if err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("%w: %s has no expression", eval.ErrInvalidNode, node.ID)
	}
	source, ok := values[0].(string)
	if !ok {
		return "", nil, fmt.Errorf("%w: %s expression is %T", eval.ErrInvalidNode, node.ID, values[0])
	}
	env := map[string]any{
		"locals": ec.Locals(),
		"env":    string(ec.Env),
	}
	for i, v := range values[1:] {
		env[fmt.Sprintf("arg%d", i+1)] = v
	}
	return source, env, nil
}
