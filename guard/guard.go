// Package guard authorizes requests by evaluating a named policy through the
// evaluator's comparator path.
package guard

import (
	"context"
	"net/http"

	"github.com/effectus/irkit/defaults"
	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Policy names a policy tag and the configuration passed to it
type Policy struct {
	Tag  string `json:"tag" yaml:"tag"`
	Args any    `json:"args,omitempty" yaml:"args,omitempty"`
}

// OnFail selects the outcome of a denied check
type OnFail struct {
	Redirect string `json:"redirect,omitempty" yaml:"redirect,omitempty"`
	Status   int    `json:"status,omitempty" yaml:"status,omitempty"`
}

// Decision is the result of a guard check. Exactly one of Allow, Redirect
// or Status is set.
type Decision struct {
	Allow    bool
	Redirect string
	Status   int
}

// Allowed is the decision of a satisfied policy
var Allowed = Decision{Allow: true}

// Authorized checks policy in ec. The default executors are installed into
// the evaluator's registries first without replacing existing entries.
// Evaluation errors count as denial.
func Authorized(ctx context.Context, ev *eval.Evaluator, ec *eval.Context, policy Policy, onFail *OnFail) Decision {
	defaults.Ensure(ev.Registries(), defaults.WithLogger(ev.Logger()))

	config := ir.Constant(uuid.NewString(), "", policy.Args)
	check := ir.Comparator(uuid.NewString(), policy.Tag, config)

	v, err := ev.Evaluate(ctx, check, ec)
	if err != nil {
		ev.Logger().Warn("guard evaluation failed",
			zap.String("policy", policy.Tag),
			zap.Error(err))
	} else if eval.Truthy(v) {
		return Allowed
	}
	return deny(onFail)
}

func deny(onFail *OnFail) Decision {
	switch {
	case onFail != nil && onFail.Redirect != "":
		return Decision{Redirect: onFail.Redirect}
	case onFail != nil && onFail.Status != 0:
		return Decision{Status: onFail.Status}
	default:
		return Decision{Status: http.StatusForbidden}
	}
}
