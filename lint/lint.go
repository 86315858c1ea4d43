package lint

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/effectus/irkit/defaults"
	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
	"github.com/effectus/irkit/render"
	"github.com/expr-lang/expr"
	exprast "github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

const (
	SeverityWarning = "warning"
	SeverityError   = "error"

	CodeUnknownTag        = "unknown-tag"
	CodeBadCondition      = "bad-condition"
	CodeBadHandler        = "bad-handler"
	CodeDeadBranch        = "dead-branch"
	CodeEmptyBranches     = "empty-branches"
	CodeInvalidExpression = "invalid-expression"
	CodeUnsafeExpression  = "unsafe-expression"
	CodeInvalidPattern    = "invalid-pattern"
	CodeUnsafeAttr        = "unsafe-attr"
	CodeDroppedAttr       = "dropped-attr"
	CodeUnknownScope      = "unknown-scope"
	CodeUnanchoredEvent   = "unanchored-event"
)

// UnsafeMode controls how unsafe expression usage is reported.
type UnsafeMode string

const (
	UnsafeIgnore UnsafeMode = "ignore"
	UnsafeWarn   UnsafeMode = "warn"
	UnsafeError  UnsafeMode = "error"
)

// LintOptions configures lint behavior.
type LintOptions struct {
	UnsafeMode UnsafeMode
}

// DefaultOptions returns the default lint options.
func DefaultOptions() LintOptions {
	return LintOptions{UnsafeMode: UnsafeWarn}
}

// ParseUnsafeMode parses a string into UnsafeMode.
func ParseUnsafeMode(raw string) (UnsafeMode, error) {
	trimmed := strings.TrimSpace(strings.ToLower(raw))
	switch trimmed {
	case "", "warn", "warning":
		return UnsafeWarn, nil
	case "error", "err":
		return UnsafeError, nil
	case "ignore", "off", "none":
		return UnsafeIgnore, nil
	default:
		return UnsafeWarn, fmt.Errorf("unknown unsafe mode: %s", raw)
	}
}

// Issue represents a linter finding.
type Issue struct {
	File     string
	NodeID   string
	Severity string
	Code     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s [%s] node %s: %s", i.File, i.Severity, i.Code, i.NodeID, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Tags whose first operand is an expr-lang expression
var exprTags = map[string]bool{
	"Is.Expr":     true,
	"Op.Expr":     true,
	"Policy.Expr": true,
}

var (
	validAttr = regexp.MustCompile(`^[A-Za-z_:][A-Za-z0-9_:.-]*$`)
	urlAttrs  = map[string]bool{"href": true, "src": true, "action": true, "formaction": true}
)

// LintDocument runs lint checks on an IR document.
func LintDocument(doc *ir.Document, path string, reg *eval.Registries) []Issue {
	return LintDocumentWithOptions(doc, path, reg, DefaultOptions())
}

// LintDocumentWithOptions runs lint checks with custom options. Tag checks
// are skipped when reg is nil.
func LintDocumentWithOptions(doc *ir.Document, path string, reg *eval.Registries, options LintOptions) []Issue {
	if doc == nil {
		return nil
	}

	l := &linter{
		path:   path,
		doc:    doc,
		reg:    reg,
		mode:   normalizeUnsafeMode(options.UnsafeMode),
		owners: make(map[*ir.Node]*ir.Node),
	}
	doc.Walk(func(n, parent *ir.Node) bool {
		// Conditional branches render inside the element holding the
		// conditional, so they share its owner.
		var owner *ir.Node
		switch {
		case parent == nil:
		case parent.Kind == ir.KindElement:
			owner = parent
		case parent.Kind == ir.KindConditional && n != parent.Condition:
			owner = l.owners[parent]
		}
		l.owners[n] = owner
		l.node(n, owner)
		return true
	})
	return l.issues
}

type linter struct {
	path   string
	doc    *ir.Document
	reg    *eval.Registries
	mode   UnsafeMode
	issues []Issue
	owners map[*ir.Node]*ir.Node
}

func (l *linter) add(n *ir.Node, severity, code, format string, args ...any) {
	l.issues = append(l.issues, Issue{
		File:     l.path,
		NodeID:   n.ID,
		Severity: severity,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
	})
}

// node checks n. owner is the element n renders inside, if any.
func (l *linter) node(n, owner *ir.Node) {
	if l.reg != nil && !l.reg.Known(n) {
		l.add(n, SeverityError, CodeUnknownTag, "%s tag %q is not registered", n.Kind, n.Tagged())
	}

	switch n.Kind {
	case ir.KindElement:
		l.attrs(n)
	case ir.KindConditional:
		l.conditional(n)
	case ir.KindValidator:
		if n.Rule == nil || n.Rule.Kind != ir.KindComparator {
			l.add(n, SeverityError, CodeBadCondition, "validator rule must be a comparator")
		}
		if n.Scope != "" && n.Scope != ir.ScopeSelf {
			if _, ok := l.doc.Lookup(n.Scope); !ok {
				l.add(n, SeverityWarning, CodeUnknownScope, "validator scope %q does not name a node", n.Scope)
			}
		}
	case ir.KindOn:
		if n.Handler == nil || n.Handler.Kind != ir.KindAction {
			l.add(n, SeverityError, CodeBadHandler, "event handler must be an action")
		}
		if owner == nil {
			l.add(n, SeverityWarning, CodeUnanchoredEvent, "event binding has no element to anchor to")
		}
	case ir.KindComparator, ir.KindOperator:
		tag := n.Tagged()
		if exprTags[tag] {
			l.expression(n)
		}
		if tag == "Is.Matches" || tag == "Is.NotMatches" {
			l.pattern(n)
		}
	}
}

func (l *linter) attrs(n *ir.Node) {
	names := make([]string, 0, len(n.Attrs))
	for name := range n.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		lower := strings.ToLower(name)
		switch {
		case !validAttr.MatchString(name):
			l.add(n, SeverityWarning, CodeDroppedAttr, "attribute %q is not a valid name and will not render", name)
		case render.IsEventHandlerAttr(name):
			l.add(n, SeverityWarning, CodeDroppedAttr, "inline handler attribute %q will not render; bind an on node instead", name)
		case urlAttrs[lower]:
			if s, ok := n.Attrs[name].(string); ok && strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "javascript:") {
				l.add(n, SeverityError, CodeUnsafeAttr, "attribute %q carries a javascript: url", name)
			}
		}
	}
}

func (l *linter) conditional(n *ir.Node) {
	if n.Condition == nil || n.Condition.Kind != ir.KindComparator {
		l.add(n, SeverityError, CodeBadCondition, "conditional condition must be a comparator")
		return
	}
	if len(n.IfTrue) == 0 && len(n.IfFalse) == 0 {
		l.add(n, SeverityWarning, CodeEmptyBranches, "conditional has no branch bodies")
	}
	if n.Condition.Cmp != "Is.Expr" {
		return
	}
	source, ok := constantString(n.Condition, 0)
	if !ok || len(n.Condition.Args) > 1 {
		return
	}
	if value, ok := constantBool(source); ok {
		dead := "ifFalse"
		if !value {
			dead = "ifTrue"
		}
		l.add(n, SeverityWarning, CodeDeadBranch, "condition %q is constant; the %s branch never runs", source, dead)
	}
}

func (l *linter) expression(n *ir.Node) {
	source, ok := constantString(n, 0)
	if !ok {
		return
	}
	if _, err := parser.Parse(source); err != nil {
		l.add(n, SeverityError, CodeInvalidExpression, "expression %q does not parse: %v", source, err)
		return
	}
	if l.mode == UnsafeIgnore {
		return
	}
	if usage := findUnsafeOps(source); len(usage) > 0 {
		severity := SeverityWarning
		if l.mode == UnsafeError {
			severity = SeverityError
		}
		l.add(n, severity, CodeUnsafeExpression, "expression uses unsafe operations: %s", strings.Join(usage, ", "))
	}
}

func (l *linter) pattern(n *ir.Node) {
	pattern, ok := constantString(n, 1)
	if !ok {
		return
	}
	flags, _ := constantString(n, 2)
	if _, err := defaults.CompilePattern(pattern, flags); err != nil {
		l.add(n, SeverityWarning, CodeInvalidPattern, "pattern %q with flags %q is invalid; the comparator is always false: %v", pattern, flags, err)
	}
}

// constantString returns the string value of the i-th operand when it is a
// constant injector.
func constantString(n *ir.Node, i int) (string, bool) {
	if i >= len(n.Args) {
		return "", false
	}
	arg := n.Args[i]
	if arg == nil || arg.Kind != ir.KindInjector || arg.Injector != ir.ConstantTag {
		return "", false
	}
	s, ok := arg.Config["value"].(string)
	return s, ok
}

func normalizeUnsafeMode(mode UnsafeMode) UnsafeMode {
	switch strings.ToLower(strings.TrimSpace(string(mode))) {
	case string(UnsafeError):
		return UnsafeError
	case string(UnsafeIgnore):
		return UnsafeIgnore
	default:
		return UnsafeWarn
	}
}

// findUnsafeOps lists operations with unbounded cost: regular expression
// matching and the environment-reaching builtins.
func findUnsafeOps(expression string) []string {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})

	var visit func(node exprast.Node)
	visit = func(node exprast.Node) {
		if node == nil {
			return
		}

		switch n := node.(type) {
		case *exprast.BinaryNode:
			if strings.EqualFold(n.Operator, "matches") {
				seen["matches"] = struct{}{}
			}
			visit(n.Left)
			visit(n.Right)
		case *exprast.CallNode:
			if ident, ok := n.Callee.(*exprast.IdentifierNode); ok && unsafeFuncs[ident.Value] {
				seen[ident.Value] = struct{}{}
			}
			visit(n.Callee)
			for _, arg := range n.Arguments {
				visit(arg)
			}
		case *exprast.MemberNode:
			visit(n.Node)
			visit(n.Property)
		case *exprast.UnaryNode:
			visit(n.Node)
		case *exprast.ChainNode:
			visit(n.Node)
		case *exprast.SliceNode:
			visit(n.Node)
			if n.From != nil {
				visit(n.From)
			}
			if n.To != nil {
				visit(n.To)
			}
		case *exprast.BuiltinNode:
			if unsafeFuncs[n.Name] {
				seen[n.Name] = struct{}{}
			}
			for _, arg := range n.Arguments {
				visit(arg)
			}
		case *exprast.PredicateNode:
			visit(n.Node)
		case *exprast.SequenceNode:
			for _, child := range n.Nodes {
				visit(child)
			}
		case *exprast.ConditionalNode:
			visit(n.Cond)
			visit(n.Exp1)
			visit(n.Exp2)
		case *exprast.ArrayNode:
			for _, child := range n.Nodes {
				visit(child)
			}
		case *exprast.MapNode:
			for _, pair := range n.Pairs {
				visit(pair)
			}
		case *exprast.PairNode:
			visit(n.Key)
			visit(n.Value)
		}
	}

	visit(tree.Node)

	results := make([]string, 0, len(seen))
	for op := range seen {
		results = append(results, op)
	}
	sort.Strings(results)
	return results
}

var unsafeFuncs = map[string]bool{
	"now":      true,
	"date":     true,
	"duration": true,
	"repeat":   true,
}

func constantBool(expression string) (bool, bool) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return false, false
	}

	visitor := &variableVisitor{}
	node := tree.Node
	exprast.Walk(&node, visitor)
	if visitor.hasVariables {
		return false, false
	}

	result, err := expr.Eval(expression, map[string]any{})
	if err != nil {
		return false, false
	}
	value, ok := result.(bool)
	return value, ok
}

type variableVisitor struct {
	hasVariables bool
}

func (v *variableVisitor) Visit(node *exprast.Node) {
	switch (*node).(type) {
	case *exprast.IdentifierNode, *exprast.MemberNode, *exprast.PointerNode, *exprast.VariableDeclaratorNode:
		v.hasVariables = true
	}
}
