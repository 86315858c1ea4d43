package defaults

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluate(t *testing.T, node *ir.Node, locals map[string]any) any {
	t.Helper()
	ev := NewEvaluator(nil)
	v, err := ev.Evaluate(context.Background(), node, eval.NewContext(eval.Server, locals))
	require.NoError(t, err)
	return v
}

func TestAddIntegers(t *testing.T) {
	node := ir.Operator("sum", "Op.Add", ir.Integer,
		ir.Constant("a", ir.Integer, 2),
		ir.Constant("b", ir.Integer, 3))
	assert.Equal(t, int64(5), evaluate(t, node, nil))
}

func TestAddIsCommutative(t *testing.T) {
	pairs := [][2]float64{{0, 0}, {1.5, 2.25}, {-7, 3}, {1e9, -0.001}, {0.1, 0.2}}
	for _, p := range pairs {
		xy := ir.Operator("xy", "Op.Add", ir.Float, ir.Constant("x", ir.Float, p[0]), ir.Constant("y", ir.Float, p[1]))
		yx := ir.Operator("yx", "Op.Add", ir.Float, ir.Constant("y", ir.Float, p[1]), ir.Constant("x", ir.Float, p[0]))
		assert.InDelta(t, evaluate(t, xy, nil), evaluate(t, yx, nil), 1e-9)
	}
}

func TestAddStringConcatenates(t *testing.T) {
	node := ir.Operator("s", "Op.Add", ir.String,
		ir.Constant("a", ir.String, "ir"),
		ir.Constant("b", ir.Integer, 2))
	assert.Equal(t, "ir2", evaluate(t, node, nil))
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       string
		datatype ir.Datatype
		args     []any
		want     any
	}{
		{name: "subtract", op: "Op.Subtract", datatype: ir.Integer, args: []any{10, 4, 1}, want: int64(5)},
		{name: "multiply", op: "Op.Multiply", datatype: ir.Float, args: []any{1.5, 4}, want: 6.0},
		{name: "divide", op: "Op.Divide", datatype: ir.Float, args: []any{9, 2}, want: 4.5},
		{name: "negate", op: "Op.Negate", datatype: ir.Integer, args: []any{3}, want: int64(-3)},
		{name: "concat", op: "Op.Concat", datatype: ir.String, args: []any{"a", "b", "c"}, want: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := make([]*ir.Node, len(tt.args))
			for i, a := range tt.args {
				args[i] = ir.Constant(tt.name+string(rune('a'+i)), "", a)
			}
			node := ir.Operator(tt.name, tt.op, tt.datatype, args...)
			assert.Equal(t, tt.want, evaluate(t, node, nil))
		})
	}
}

func TestDivideByZero(t *testing.T) {
	node := ir.Operator("d", "Op.Divide", ir.Float,
		ir.Constant("a", ir.Float, 1.0),
		ir.Constant("b", ir.Float, 0.0))
	_, err := NewEvaluator(nil).Evaluate(context.Background(), node, nil)
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestIntegerArithmeticIsExact(t *testing.T) {
	big := ir.Operator("big", "Op.Add", ir.Integer,
		ir.Constant("a", ir.Integer, int64(9007199254740993)),
		ir.Constant("b", ir.Integer, 0))
	assert.Equal(t, int64(9007199254740993), evaluate(t, big, nil))

	untyped := ir.Operator("untyped", "Op.Subtract", "",
		ir.Constant("a", "", int64(math.MaxInt64)),
		ir.Constant("b", "", 1))
	assert.Equal(t, int64(math.MaxInt64-1), evaluate(t, untyped, nil))

	div := ir.Operator("div", "Op.Divide", ir.Integer,
		ir.Constant("a", ir.Integer, -7),
		ir.Constant("b", ir.Integer, 2))
	assert.Equal(t, int64(-3), evaluate(t, div, nil))

	mixed := ir.Operator("mixed", "Op.Add", ir.Integer,
		ir.Constant("a", ir.Float, 2.5),
		ir.Constant("b", ir.Integer, 1))
	assert.Equal(t, int64(3), evaluate(t, mixed, nil))
}

func TestIntegerOverflow(t *testing.T) {
	c := func(id string, v any) *ir.Node { return ir.Constant(id, "", v) }
	tests := []struct {
		name     string
		op       string
		datatype ir.Datatype
		args     []*ir.Node
		want     error
	}{
		{"multiply", "Op.Multiply", ir.Integer, []*ir.Node{c("a", int64(1)<<62), c("b", 4)}, ErrIntegerOverflow},
		{"add untyped", "Op.Add", "", []*ir.Node{c("a", int64(math.MaxInt64)), c("b", 1)}, ErrIntegerOverflow},
		{"subtract", "Op.Subtract", ir.Integer, []*ir.Node{c("a", int64(math.MinInt64)), c("b", 1)}, ErrIntegerOverflow},
		{"divide", "Op.Divide", ir.Integer, []*ir.Node{c("a", int64(math.MinInt64)), c("b", -1)}, ErrIntegerOverflow},
		{"divide by zero", "Op.Divide", ir.Integer, []*ir.Node{c("a", 7), c("b", 0)}, ErrDivisionByZero},
		{"negate", "Op.Negate", ir.Integer, []*ir.Node{c("a", int64(math.MinInt64))}, ErrIntegerOverflow},
		{"float result", "Op.Multiply", ir.Integer, []*ir.Node{c("a", 1e300), c("b", 2.5)}, ErrIntegerOverflow},
		{"unsigned", "Op.Add", ir.Integer, []*ir.Node{c("a", uint64(math.MaxUint64)), c("b", 1)}, ErrIntegerOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := ir.Operator(tt.name, tt.op, tt.datatype, tt.args...)
			_, err := NewEvaluator(nil).Evaluate(context.Background(), node, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExprCacheIsBounded(t *testing.T) {
	cache := newProgramCache(4)
	for i := 0; i < 10; i++ {
		_, err := cache.compile(fmt.Sprintf("%d + 1", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, cache.len())

	p, err := cache.compile("9 + 1")
	require.NoError(t, err)
	again, ok := cache.get("9 + 1")
	require.True(t, ok)
	assert.Same(t, p, again)
	_, ok = cache.get("0 + 1")
	assert.False(t, ok)

	_, err = cache.compile("1 +")
	assert.Error(t, err)
	assert.Equal(t, 4, cache.len())
}

func TestEqualTo(t *testing.T) {
	same := ir.Comparator("eq", "Is.EqualTo", ir.Constant("a", ir.String, "x"), ir.Constant("b", ir.String, "x"))
	diff := ir.Comparator("ne", "Is.EqualTo", ir.Constant("a", ir.String, "x"), ir.Constant("b", ir.String, "y"))
	mixed := ir.Comparator("num", "Is.EqualTo", ir.Constant("a", ir.Integer, 1), ir.Constant("b", ir.Float, 1.0))

	assert.Equal(t, true, evaluate(t, same, nil))
	assert.Equal(t, false, evaluate(t, diff, nil))
	assert.Equal(t, true, evaluate(t, mixed, nil))
}

func TestComparators(t *testing.T) {
	c := func(v any) *ir.Node { return ir.Constant("v", "", v) }
	tests := []struct {
		name string
		node *ir.Node
		want bool
	}{
		{"greater", ir.Comparator("x", "Is.GreaterThan", c(3), c(2)), true},
		{"greater equal", ir.Comparator("x", "Is.GreaterThanOrEqual", c(2), c(2)), true},
		{"less", ir.Comparator("x", "Is.LessThan", c("a"), c("b")), true},
		{"less equal", ir.Comparator("x", "Is.LessThanOrEqual", c(3), c(2)), false},
		{"unordered", ir.Comparator("x", "Is.LessThan", c("a"), c(1)), false},
		{"not equal", ir.Comparator("x", "Is.NotEqualTo", c("a"), c("b")), true},
		{"contains", ir.Comparator("x", "Is.Contains", c("hello"), c("ell")), true},
		{"in", ir.Comparator("x", "Is.In", c("b"), c([]any{"a", "b"})), true},
		{"empty", ir.Comparator("x", "Is.Empty", c("")), true},
		{"not empty", ir.Comparator("x", "Is.Empty", c([]any{1})), false},
		{"true", ir.Comparator("x", "Is.True", c(1)), true},
		{"not", ir.Comparator("x", "Is.Not", c(false)), true},
		{"all", ir.Comparator("x", "Is.All", c(true), c("x"), c(1)), true},
		{"all fails", ir.Comparator("x", "Is.All", c(true), c("")), false},
		{"any", ir.Comparator("x", "Is.Any", c(false), c(0), c("y")), true},
		{"any empty", ir.Comparator("x", "Is.Any"), false},
		{"expr", ir.Comparator("x", "Is.Expr", c("arg1 + arg2 == 5"), c(2), c(3)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluate(t, tt.node, nil))
		})
	}
}

func TestMatches(t *testing.T) {
	c := func(v any) *ir.Node { return ir.Constant("v", ir.String, v) }
	tests := []struct {
		name string
		cmp  string
		args []*ir.Node
		want bool
	}{
		{"match", "Is.Matches", []*ir.Node{c("abc"), c("^a.c$")}, true},
		{"case insensitive", "Is.Matches", []*ir.Node{c("ABC"), c("^abc$"), c("i")}, true},
		{"no-op flags", "Is.Matches", []*ir.Node{c("abc"), c("b"), c("gu")}, true},
		{"no match", "Is.Matches", []*ir.Node{c("abc"), c("^b")}, false},
		{"not matches", "Is.NotMatches", []*ir.Node{c("abc"), c("^b")}, true},
		{"invalid pattern", "Is.Matches", []*ir.Node{c("abc"), c("(")}, false},
		{"invalid pattern negated", "Is.NotMatches", []*ir.Node{c("abc"), c("(")}, false},
		{"invalid flags", "Is.Matches", []*ir.Node{c("abc"), c("a"), c("q")}, false},
		{"repeated flags", "Is.Matches", []*ir.Node{c("abc"), c("a"), c("ii")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := ir.Comparator("m", tt.cmp, tt.args...)
			assert.Equal(t, tt.want, evaluate(t, node, nil))
		})
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		datatype ir.Datatype
		want     any
		wantErr  bool
	}{
		{name: "integer from float", in: 42.0, datatype: ir.Integer, want: int64(42)},
		{name: "integer from string", in: " 7 ", datatype: ir.Integer, want: int64(7)},
		{name: "fractional integer", in: 1.5, datatype: ir.Integer, wantErr: true},
		{name: "float", in: 3, datatype: ir.Float, want: 3.0},
		{name: "boolean", in: "true", datatype: ir.Boolean, want: true},
		{name: "string", in: 2.5, datatype: ir.String, want: "2.5"},
		{name: "plain date", in: "2024-03-01", datatype: ir.PlainDate, want: "2024-03-01"},
		{name: "bad plain date", in: "03/01/2024", datatype: ir.PlainDate, wantErr: true},
		{name: "plain date time", in: "2024-03-01T10:30:00", datatype: ir.PlainDateTime, want: "2024-03-01T10:30:00"},
		{name: "zoned", in: "2024-03-01T10:00:00Z[UTC]", datatype: ir.ZonedDateTime,
			want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{name: "unspecified", in: []any{1}, datatype: "", want: []any{1}},
		{name: "unknown datatype", in: 1, datatype: "Decimal", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.in, tt.datatype)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if want, ok := tt.want.(time.Time); ok {
				assert.True(t, want.Equal(got.(time.Time)))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalInjector(t *testing.T) {
	locals := map[string]any{
		"user":  map[string]any{"name": "ada", "tags": []any{"a", "b"}},
		"count": 3,
	}
	tests := []struct {
		name string
		node *ir.Node
		want any
	}{
		{"direct", ir.Injector("l", "From.Local", "", map[string]any{"path": "count"}), 3},
		{"nested", ir.Injector("l", "From.Local", ir.String, map[string]any{"path": "user.name"}), "ada"},
		{"index", ir.Injector("l", "From.Local", "", map[string]any{"path": "user.tags[1]"}), "b"},
		{"default", ir.Injector("l", "From.Local", ir.Integer, map[string]any{"path": "missing", "default": 9.0}), int64(9)},
		{"missing", ir.Injector("l", "From.Local", "", map[string]any{"path": "user.age"}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluate(t, tt.node, locals))
		})
	}
}

func TestNowAndEnvInjectors(t *testing.T) {
	fixed := time.Date(2025, 6, 7, 8, 9, 10, 0, time.UTC)
	ev := NewEvaluator(nil, WithClock(func() time.Time { return fixed }))
	ec := eval.NewContext(eval.Client, nil)

	v, err := ev.Evaluate(context.Background(), ir.Injector("n", "From.Now", ir.PlainDate, nil), ec)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-07", v)

	v, err = ev.Evaluate(context.Background(), ir.Injector("e", "From.Env", ir.String, nil), ec)
	require.NoError(t, err)
	assert.Equal(t, "client", v)
}

func TestSetLocalInSequence(t *testing.T) {
	ec := eval.NewContext(eval.Client, nil)
	node := ir.Action("seq", "Act.Sequence",
		ir.Action("set", "Act.SetLocal", ir.Constant("k", ir.String, "count"), ir.Constant("v", ir.Integer, 1)),
		ir.Action("log", "Act.Log", ir.Constant("m", ir.String, "set")),
		ir.Injector("read", "From.Local", "", map[string]any{"path": "count"}))

	v, err := NewEvaluator(nil).Evaluate(context.Background(), node, ec)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	got, ok := ec.Local("count")
	require.True(t, ok)
	assert.Equal(t, int64(1), got)
}

func TestPolicies(t *testing.T) {
	admin := map[string]any{"user": map[string]any{"id": "u1", "roles": []any{"admin"}}}
	tests := []struct {
		name   string
		node   *ir.Node
		locals map[string]any
		want   bool
	}{
		{"role held", ir.Comparator("p", "Policy.HasRole", ir.Constant("c", ir.String, "admin")), admin, true},
		{"role missing", ir.Comparator("p", "Policy.HasRole", ir.Constant("c", ir.String, "owner")), admin, false},
		{"no user", ir.Comparator("p", "Policy.HasRole", ir.Constant("c", ir.String, "admin")), nil, false},
		{"any of roles", ir.Comparator("p", "Policy.HasRole",
			ir.Constant("c", "", map[string]any{"roles": []any{"owner", "admin"}})), admin, true},
		{"authenticated", ir.Comparator("p", "Policy.Authenticated"), admin, true},
		{"anonymous", ir.Comparator("p", "Policy.Authenticated"), map[string]any{}, false},
		{"expr", ir.Comparator("p", "Policy.Expr",
			ir.Constant("c", ir.String, "input > 3"), ir.Constant("i", ir.Integer, 5)), nil, true},
		{"expr not bool", ir.Comparator("p", "Policy.Expr",
			ir.Constant("c", ir.String, "input"), ir.Constant("i", ir.Integer, 5)), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evaluate(t, tt.node, tt.locals))
		})
	}
}

func TestEnsureKeepsExistingExecutors(t *testing.T) {
	reg := eval.NewRegistries()
	custom := func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (bool, error) {
		return false, nil
	}
	reg.Comparators.Register("Is.EqualTo", custom)

	Ensure(reg)
	Ensure(reg)

	ev := eval.NewEvaluator(eval.WithRegistries(reg))
	v, err := ev.Evaluate(context.Background(),
		ir.Comparator("eq", "Is.EqualTo", ir.Constant("a", "", 1), ir.Constant("b", "", 1)), nil)
	require.NoError(t, err)
	assert.Equal(t, false, v)
	assert.True(t, reg.Operators.Has("Op.Add"))
	assert.True(t, reg.Policies.Has("Policy.HasRole"))

	Register(reg)
	v, err = ev.Evaluate(context.Background(),
		ir.Comparator("eq", "Is.EqualTo", ir.Constant("a", "", 1), ir.Constant("b", "", 1)), nil)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEventName(t *testing.T) {
	reg := eval.NewRegistries()
	Register(reg)
	assert.Equal(t, "click", EventName(reg, "On.Click"))
	assert.Equal(t, "keydown", EventName(reg, "On.KeyDown"))
	assert.Equal(t, "dblclick", EventName(reg, "Custom.DblClick"))
	assert.Equal(t, "scroll", EventName(nil, "scroll"))
}
