// Package render produces server-side HTML from IR element trees. Every
// evaluated value is escaped before it reaches the output.
package render

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/effectus/irkit/defaults"
	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// AnchorAttr carries the id of an element that owns event bindings
const AnchorAttr = "data-ir-id"

var (
	validTag  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)
	validAttr = regexp.MustCompile(`^[A-Za-z_:][A-Za-z0-9_:.-]*$`)
	handler   = regexp.MustCompile(`(?i)^on[a-z]+$`)
)

// IsEventHandlerAttr reports whether name is an inline event handler
// attribute such as onclick.
func IsEventHandlerAttr(name string) bool {
	return handler.MatchString(name)
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// IsVoid reports whether tag is an HTML void element
func IsVoid(tag string) bool {
	return voidElements[strings.ToLower(tag)]
}

// Escape escapes & < > " and ' for use in text and attribute values
func Escape(s string) string {
	return html.EscapeString(s)
}

// Option configures a Renderer
type Option func(*Renderer)

// WithLogger sets the logger receiving swallowed evaluation failures
func WithLogger(logger *zap.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.log = logger
		}
	}
}

// Renderer turns IR nodes into HTML
type Renderer struct {
	ev  *eval.Evaluator
	log *zap.Logger
}

// New creates a renderer evaluating expressions with ev
func New(ev *eval.Evaluator, opts ...Option) *Renderer {
	r := &Renderer{ev: ev, log: ev.Logger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the HTML for node. Failures evaluating non-element nodes
// render as empty strings.
func (r *Renderer) Render(ctx context.Context, node *ir.Node, ec *eval.Context) string {
	if ec == nil {
		ec = eval.NewContext(eval.Server, nil)
	}
	var sb strings.Builder
	r.write(ctx, &sb, node, ec)
	return sb.String()
}

func (r *Renderer) write(ctx context.Context, sb *strings.Builder, node *ir.Node, ec *eval.Context) {
	if node == nil {
		return
	}
	switch node.Kind {
	case ir.KindElement:
		r.element(ctx, sb, node, ec)
	case ir.KindText:
		sb.WriteString(Escape(node.Content))
	case ir.KindOn:
	case ir.KindConditional:
		r.conditional(ctx, sb, node, ec)
	default:
		v, err := r.ev.Evaluate(ctx, node, ec)
		if err != nil {
			r.log.Debug("render: evaluation failed",
				zap.String("node", node.ID),
				zap.String("kind", node.Kind.String()),
				zap.Error(err))
			return
		}
		sb.WriteString(Escape(stringify(v)))
	}
}

func stringify(v any) string {
	if _, ok := v.(*eval.ElementResult); ok {
		return ""
	}
	return defaults.Stringify(v)
}

// conditional renders the nodes of the selected branch in order so that
// elements inside branches produce markup. A conditional the evaluator
// rejects renders nothing.
func (r *Renderer) conditional(ctx context.Context, sb *strings.Builder, node *ir.Node, ec *eval.Context) {
	branch, err := r.ev.Branch(ctx, node, ec)
	if err != nil {
		r.log.Debug("render: condition failed", zap.String("node", node.ID), zap.Error(err))
		return
	}
	for _, step := range branch {
		r.write(ctx, sb, step, ec)
	}
}

func (r *Renderer) element(ctx context.Context, sb *strings.Builder, node *ir.Node, ec *eval.Context) {
	if !validTag.MatchString(node.Tag) {
		r.log.Debug("render: dropping element with invalid tag",
			zap.String("node", node.ID), zap.String("tag", node.Tag))
		return
	}

	sb.WriteByte('<')
	sb.WriteString(node.Tag)
	writeAttrs(sb, node)

	if IsVoid(node.Tag) {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')

	children := make([]string, len(node.Children))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range node.Children {
		g.Go(func() error {
			var csb strings.Builder
			r.write(gctx, &csb, child, ec)
			children[i] = csb.String()
			return nil
		})
	}
	_ = g.Wait()
	for _, c := range children {
		sb.WriteString(c)
	}

	sb.WriteString("</")
	sb.WriteString(node.Tag)
	sb.WriteByte('>')
}

func writeAttrs(sb *strings.Builder, node *ir.Node) {
	attrs := make(map[string]any, len(node.Attrs)+1)
	for name, v := range node.Attrs {
		if !validAttr.MatchString(name) || IsEventHandlerAttr(name) {
			continue
		}
		attrs[name] = v
	}
	if HasBinding(node) {
		attrs[AnchorAttr] = node.ID
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		switch v := attrs[name].(type) {
		case nil:
		case bool:
			if v {
				sb.WriteByte(' ')
				sb.WriteString(name)
			}
		default:
			sb.WriteByte(' ')
			sb.WriteString(name)
			sb.WriteString(`="`)
			sb.WriteString(Escape(defaults.Stringify(v)))
			sb.WriteByte('"')
		}
	}
}

// HasBinding reports whether node is an element owning an on-node: a direct
// child, or one inside a conditional branch among its children.
func HasBinding(node *ir.Node) bool {
	if node == nil || node.Kind != ir.KindElement {
		return false
	}
	return ownsOn(node.Children)
}

func ownsOn(nodes []*ir.Node) bool {
	for _, n := range nodes {
		if n == nil {
			continue
		}
		switch n.Kind {
		case ir.KindOn:
			return true
		case ir.KindConditional:
			if ownsOn(n.IfTrue) || ownsOn(n.IfFalse) {
				return true
			}
		}
	}
	return false
}
