// Package hydrate attaches the event bindings of an IR document to an
// already rendered DOM.
package hydrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/effectus/irkit/defaults"
	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
	"github.com/effectus/irkit/render"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrHandlerNotAction is returned for on-nodes whose handler is not an action
var ErrHandlerNotAction = errors.New("event handler must be an action node")

// Binding describes one attached listener
type Binding struct {
	ID       string
	NodeID   string
	AnchorID string
	Event    string
}

// Option configures a Hydrator
type Option func(*Hydrator)

// WithLogger sets the logger used for handler failures
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hydrator) {
		if logger != nil {
			h.log = logger
		}
	}
}

// Hydrator binds on-nodes to DOM listeners that evaluate their handlers
type Hydrator struct {
	ev  *eval.Evaluator
	log *zap.Logger
}

// New creates a hydrator evaluating handlers with ev
func New(ev *eval.Evaluator, opts ...Option) *Hydrator {
	h := &Hydrator{ev: ev, log: ev.Logger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hydrate attaches a listener for every rendered on-node in doc whose
// anchor exists in dom. The anchor of an on-node is its nearest element
// ancestor, or the on-node itself when it has none. Only the branch a
// conditional selects under ec is visited, matching what was rendered.
// Missing anchors are skipped.
func (h *Hydrator) Hydrate(ctx context.Context, dom DOM, doc *ir.Document, ec *eval.Context) ([]Binding, error) {
	if ec == nil {
		ec = eval.NewContext(eval.Client, nil)
	}

	var bindings []Binding
	var errs []error
	h.walk(ctx, doc.Root, nil, ec, func(on, owner *ir.Node) {
		b, ok, err := h.bind(dom, on, owner, ec)
		if err != nil {
			errs = append(errs, err)
		} else if ok {
			bindings = append(bindings, b)
		}
	})
	return bindings, errors.Join(errs...)
}

// walk visits the on-nodes reachable through rendered markup, passing the
// element that owns each.
func (h *Hydrator) walk(ctx context.Context, n, owner *ir.Node, ec *eval.Context, visit func(on, owner *ir.Node)) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ir.KindOn:
		visit(n, owner)
	case ir.KindElement:
		for _, child := range n.Children {
			h.walk(ctx, child, n, ec, visit)
		}
	case ir.KindConditional:
		branch, err := h.ev.Branch(ctx, n, ec)
		if err != nil {
			h.log.Debug("hydrate: condition failed", zap.String("node", n.ID), zap.Error(err))
			return
		}
		for _, step := range branch {
			h.walk(ctx, step, owner, ec, visit)
		}
	}
}

func anchorID(on, owner *ir.Node) string {
	if owner != nil && owner.Kind == ir.KindElement {
		return owner.ID
	}
	return on.ID
}

// Anchor finds the element for id: the data attribute first, then the
// native id. Non-element matches are rejected.
func Anchor(dom DOM, id string) Node {
	if n := dom.ElementByAttr(render.AnchorAttr, id); n != nil && n.IsElement() {
		return n
	}
	if n := dom.ElementByID(id); n != nil && n.IsElement() {
		return n
	}
	return nil
}

func (h *Hydrator) bind(dom DOM, on, owner *ir.Node, ec *eval.Context) (Binding, bool, error) {
	anchor := anchorID(on, owner)
	el := Anchor(dom, anchor)
	if el == nil {
		h.log.Debug("hydrate: anchor not found", zap.String("node", on.ID), zap.String("anchor", anchor))
		return Binding{}, false, nil
	}
	if on.Handler == nil || on.Handler.Kind != ir.KindAction {
		return Binding{}, false, fmt.Errorf("%w: node %s", ErrHandlerNotAction, on.ID)
	}

	event := defaults.EventName(h.ev.Registries(), on.Event)
	handler := on.Handler
	el.Listen(event, func(ctx context.Context) {
		if _, err := h.ev.Evaluate(ctx, handler, ec); err != nil {
			h.log.Warn("event handler failed",
				zap.String("node", on.ID),
				zap.String("event", event),
				zap.Error(err))
		}
	})

	return Binding{
		ID:       uuid.NewString(),
		NodeID:   on.ID,
		AnchorID: anchor,
		Event:    event,
	}, true, nil
}
