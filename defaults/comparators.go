package defaults

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
)

func comparators() map[string]eval.ComparatorFunc {
	return map[string]eval.ComparatorFunc{
		"Is.EqualTo":            binary(func(a, b any) bool { return Equal(a, b) }),
		"Is.NotEqualTo":         binary(func(a, b any) bool { return !Equal(a, b) }),
		"Is.GreaterThan":        ordered(func(c int) bool { return c > 0 }),
		"Is.GreaterThanOrEqual": ordered(func(c int) bool { return c >= 0 }),
		"Is.LessThan":           ordered(func(c int) bool { return c < 0 }),
		"Is.LessThanOrEqual":    ordered(func(c int) bool { return c <= 0 }),
		"Is.Contains":           binary(Contains),
		"Is.In":                 binary(func(item, container any) bool { return Contains(container, item) }),
		"Is.Empty":              unary(IsEmpty),
		"Is.True":               unary(eval.Truthy),
		"Is.Not":                unary(func(v any) bool { return !eval.Truthy(v) }),
		"Is.All":                fold(true),
		"Is.Any":                fold(false),
		"Is.Matches":            matches(true),
		"Is.NotMatches":         matches(false),
		"Is.Expr":               exprComparator,
	}
}

func arity(node *ir.Node, values []any, n int) error {
	if len(values) != n {
		return fmt.Errorf("%w: comparator %s takes %d operands, got %d", eval.ErrInvalidNode, node.ID, n, len(values))
	}
	return nil
}

func unary(fn func(any) bool) eval.ComparatorFunc {
	return func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (bool, error) {
		values, err := evalArgs(ctx, node, evaluate)
		if err != nil {
			return false, err
		}
		if err := arity(node, values, 1); err != nil {
			return false, err
		}
		return fn(values[0]), nil
	}
}

func binary(fn func(a, b any) bool) eval.ComparatorFunc {
	return func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (bool, error) {
		values, err := evalArgs(ctx, node, evaluate)
		if err != nil {
			return false, err
		}
		if err := arity(node, values, 2); err != nil {
			return false, err
		}
		return fn(values[0], values[1]), nil
	}
}

// ordered compares two operands; values that cannot be ordered compare false.
func ordered(fn func(c int) bool) eval.ComparatorFunc {
	return binary(func(a, b any) bool {
		c, ok := Compare(a, b)
		return ok && fn(c)
	})
}

// fold implements All (all=true) and Any over the truthiness of every
// operand. Operands are evaluated in order and evaluation stops once the
// result is decided.
func fold(all bool) eval.ComparatorFunc {
	return func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (bool, error) {
		for _, arg := range node.Args {
			v, err := evaluate(ctx, arg)
			if err != nil {
				return false, err
			}
			if eval.Truthy(v) != all {
				return !all, nil
			}
		}
		return all, nil
	}
}

// IsEmpty reports whether v is nil, an empty string, or an empty slice or map.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// matches tests a value against a pattern with optional flags. An invalid
// pattern or flag string makes both Matches and NotMatches false.
func matches(want bool) eval.ComparatorFunc {
	return func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (bool, error) {
		values, err := evalArgs(ctx, node, evaluate)
		if err != nil {
			return false, err
		}
		if len(values) < 2 || len(values) > 3 {
			return false, fmt.Errorf("%w: comparator %s takes a value, a pattern and optional flags", eval.ErrInvalidNode, node.ID)
		}
		pattern, ok := values[1].(string)
		if !ok {
			return false, nil
		}
		flags := ""
		if len(values) == 3 && values[2] != nil {
			if flags, ok = values[2].(string); !ok {
				return false, nil
			}
		}
		re, err := CompilePattern(pattern, flags)
		if err != nil {
			return false, nil
		}
		return re.MatchString(Stringify(values[0])) == want, nil
	}
}

// CompilePattern compiles pattern with flags. i, m and s map to the
// matching Go flags; g, u and y are accepted and have no effect. Any other
// or repeated flag is an error.
func CompilePattern(pattern, flags string) (*regexp.Regexp, error) {
	seen := make(map[rune]bool, len(flags))
	var goFlags strings.Builder
	for _, f := range flags {
		if seen[f] {
			return nil, fmt.Errorf("repeated pattern flag %q", f)
		}
		seen[f] = true
		switch f {
		case 'i', 'm', 's':
			goFlags.WriteRune(f)
		case 'g', 'u', 'y':
		default:
			return nil, fmt.Errorf("unknown pattern flag %q", f)
		}
	}
	if goFlags.Len() > 0 {
		pattern = "(?" + goFlags.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}

func exprComparator(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (bool, error) {
	source, env, err := exprInput(ctx, node, evaluate, ec)
	if err != nil {
		return false, err
	}
	out, err := RunExpr(source, env)
	if err != nil {
		return false, fmt.Errorf("comparator %s: %w", node.ID, err)
	}
	return eval.Truthy(out), nil
}
