package defaults

import (
	"context"
	"errors"
	"fmt"

	"github.com/effectus/irkit/eval"
)

// Policy failures carried on the left of an Either
var (
	ErrMissingRole     = errors.New("missing role")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrPolicyConfig    = errors.New("invalid policy config")
)

// DefaultRolesClaim is where Policy.HasRole looks for roles by default
const DefaultRolesClaim = "user.roles"

// DefaultUserClaim is where Policy.Authenticated looks for the user
const DefaultUserClaim = "user"

func policies() map[string]eval.PolicyFunc {
	return map[string]eval.PolicyFunc{
		"Policy.HasRole":       hasRole,
		"Policy.Authenticated": authenticated,
		"Policy.Expr":          exprPolicy,
	}
}

// claims picks the mapping a policy inspects: the input when it is a
// mapping, otherwise the local values.
func claims(input any, locals map[string]any) map[string]any {
	if m, ok := input.(map[string]any); ok {
		return m
	}
	return locals
}

// hasRole accepts a role name, a list of role names, or a mapping with
// "role", "roles" and "claim" keys. It is satisfied when any listed role
// is present in the claim.
func hasRole(config any) eval.PolicyOperation {
	claim := DefaultRolesClaim
	var wanted []string

	switch c := config.(type) {
	case string:
		wanted = []string{c}
	case []any:
		wanted = stringsOf(c)
	case map[string]any:
		if s, ok := c["claim"].(string); ok && s != "" {
			claim = s
		}
		if s, ok := c["role"].(string); ok {
			wanted = append(wanted, s)
		}
		if list, ok := c["roles"].([]any); ok {
			wanted = append(wanted, stringsOf(list)...)
		}
	}

	return func(ctx context.Context, input any, locals map[string]any) eval.Either {
		if len(wanted) == 0 {
			return eval.Left(fmt.Errorf("%w: no roles configured", ErrPolicyConfig))
		}
		held, ok := Lookup(claims(input, locals), claim)
		if !ok {
			return eval.Left(fmt.Errorf("%w: claim %s not present", ErrMissingRole, claim))
		}
		for _, role := range wanted {
			if Contains(held, role) || Equal(held, role) {
				return eval.Right(true)
			}
		}
		return eval.Left(fmt.Errorf("%w: need one of %v", ErrMissingRole, wanted))
	}
}

func stringsOf(list []any) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// authenticated is satisfied when the claim (default "user", or the string
// config) holds a non-empty value.
func authenticated(config any) eval.PolicyOperation {
	claim := DefaultUserClaim
	if s, ok := config.(string); ok && s != "" {
		claim = s
	}
	return func(ctx context.Context, input any, locals map[string]any) eval.Either {
		v, ok := Lookup(claims(input, locals), claim)
		if !ok || IsEmpty(v) {
			return eval.Left(ErrUnauthenticated)
		}
		return eval.Right(true)
	}
}

// exprPolicy evaluates the configured expression with input and locals
// bound. The policy result is the expression's value.
func exprPolicy(config any) eval.PolicyOperation {
	source, _ := config.(string)
	return func(ctx context.Context, input any, locals map[string]any) eval.Either {
		if source == "" {
			return eval.Left(fmt.Errorf("%w: expression required", ErrPolicyConfig))
		}
		out, err := RunExpr(source, map[string]any{
			"input":  input,
			"locals": locals,
		})
		if err != nil {
			return eval.Left(err)
		}
		return eval.Right(out)
	}
}
