package guard

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
	"github.com/stretchr/testify/assert"
)

var admin = map[string]any{"user": map[string]any{"roles": []any{"admin"}}}

func TestAuthorized(t *testing.T) {
	hasAdmin := Policy{Tag: "Policy.HasRole", Args: map[string]any{"role": "admin"}}
	tests := []struct {
		name   string
		locals map[string]any
		policy Policy
		onFail *OnFail
		want   Decision
	}{
		{name: "allowed", locals: admin, policy: hasAdmin, want: Allowed},
		{name: "default status", locals: nil, policy: hasAdmin, want: Decision{Status: http.StatusForbidden}},
		{name: "redirect", locals: nil, policy: hasAdmin,
			onFail: &OnFail{Redirect: "/login", Status: 401}, want: Decision{Redirect: "/login"}},
		{name: "status", locals: nil, policy: hasAdmin,
			onFail: &OnFail{Status: http.StatusUnauthorized}, want: Decision{Status: http.StatusUnauthorized}},
		{name: "unknown policy denies", locals: admin, policy: Policy{Tag: "Policy.Missing"},
			want: Decision{Status: http.StatusForbidden}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := eval.NewEvaluator()
			got := Authorized(context.Background(), ev, eval.NewContext(eval.Server, tt.locals), tt.policy, tt.onFail)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorizedKeepsRegisteredPolicies(t *testing.T) {
	ev := eval.NewEvaluator()
	ev.Registries().Policies.Register("Policy.HasRole", func(config any) eval.PolicyOperation {
		return func(ctx context.Context, input any, locals map[string]any) eval.Either {
			return eval.Left(errors.New("closed"))
		}
	})

	got := Authorized(context.Background(), ev, eval.NewContext(eval.Server, admin),
		Policy{Tag: "Policy.HasRole", Args: "admin"}, nil)
	assert.Equal(t, Decision{Status: http.StatusForbidden}, got)
	assert.True(t, ev.Registries().Operators.Has("Op.Add"))
}

func TestAuthorizedWithComparatorTag(t *testing.T) {
	ev := eval.NewEvaluator()
	ev.Registries().Comparators.Register("Is.Open", func(ctx context.Context, node *ir.Node, evaluate eval.EvalFunc, ec *eval.Context) (bool, error) {
		v, err := evaluate(ctx, node.Args[0])
		return v == "yes", err
	})

	assert.Equal(t, Allowed, Authorized(context.Background(), ev, nil, Policy{Tag: "Is.Open", Args: "yes"}, nil))
	assert.Equal(t, Decision{Status: http.StatusForbidden},
		Authorized(context.Background(), ev, nil, Policy{Tag: "Is.Open", Args: "no"}, nil))
}
