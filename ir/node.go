// Package ir defines the serializable UI intermediate representation: a tree
// of tagged-union nodes mixing markup with executable expressions.
package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaVersion is the value every node carries in its "v" field.
const SchemaVersion = "1"

// Kind discriminates node variants
type Kind string

const (
	KindElement     Kind = "element"
	KindInjector    Kind = "injector"
	KindOperator    Kind = "operator"
	KindComparator  Kind = "comparator"
	KindConditional Kind = "conditional"
	KindValidator   Kind = "validator"
	KindAction      Kind = "action"
	KindOn          Kind = "on"
	KindText        Kind = "text"
)

func (k Kind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known node kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindElement, KindInjector, KindOperator, KindComparator, KindConditional,
		KindValidator, KindAction, KindOn, KindText:
		return true
	default:
		return false
	}
}

// Datatype is the declared result type of injectors and operators
type Datatype string

const (
	String        Datatype = "String"
	Integer       Datatype = "Integer"
	Float         Datatype = "Float"
	Boolean       Datatype = "Boolean"
	PlainDate     Datatype = "PlainDate"
	PlainDateTime Datatype = "PlainDateTime"
	ZonedDateTime Datatype = "ZonedDateTime"
)

// Valid reports whether d belongs to the fixed datatype enumeration.
// The empty datatype is valid and means "unspecified".
func (d Datatype) Valid() bool {
	switch d {
	case "", String, Integer, Float, Boolean, PlainDate, PlainDateTime, ZonedDateTime:
		return true
	default:
		return false
	}
}

// ParseDatatype parses a datatype name case-insensitively.
func ParseDatatype(raw string) (Datatype, error) {
	for _, d := range []Datatype{String, Integer, Float, Boolean, PlainDate, PlainDateTime, ZonedDateTime} {
		if strings.EqualFold(string(d), strings.TrimSpace(raw)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown datatype %q", raw)
}

// ValidationMode is advisory; evaluation always reduces a validator to its rule.
type ValidationMode string

const (
	ModeAccumulate   ValidationMode = "accumulate"
	ModeShortCircuit ValidationMode = "short-circuit"
)

// ScopeSelf is the validator scope that refers to the validator's own node.
const ScopeSelf = "self"

// Node is a single IR node. Only the fields belonging to Kind are meaningful.
type Node struct {
	V    string         `json:"v"`
	ID   string         `json:"id"`
	Kind Kind           `json:"kind"`
	Meta map[string]any `json:"meta,omitempty"`

	// element
	Tag      string         `json:"tag,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
	Children []*Node        `json:"children,omitempty"`

	// injector
	Injector string `json:"injector,omitempty"`
	// Config holds the injector's free-form "args" mapping.
	Config map[string]any `json:"-"`

	// injector, operator
	Datatype Datatype `json:"datatype,omitempty"`

	// operator, comparator, action
	Op     string  `json:"op,omitempty"`
	Cmp    string  `json:"cmp,omitempty"`
	Action string  `json:"action,omitempty"`
	Args   []*Node `json:"-"`

	// conditional
	Condition *Node   `json:"condition,omitempty"`
	IfTrue    []*Node `json:"ifTrue,omitempty"`
	IfFalse   []*Node `json:"ifFalse,omitempty"`

	// validator
	Rule  *Node          `json:"rule,omitempty"`
	Scope string         `json:"scope,omitempty"`
	Mode  ValidationMode `json:"mode,omitempty"`

	// on
	Event   string `json:"event,omitempty"`
	Handler *Node  `json:"handler,omitempty"`

	// text
	Content string `json:"content,omitempty"`
}

// nodeAlias drops the methods of Node so the codec can reuse its field tags.
type nodeAlias Node

type wireNode struct {
	*nodeAlias
	Args json.RawMessage `json:"args,omitempty"`
}

// MarshalJSON writes "args" as a mapping for injectors and a sequence otherwise.
func (n *Node) MarshalJSON() ([]byte, error) {
	w := wireNode{nodeAlias: (*nodeAlias)(n)}
	var (
		raw []byte
		err error
	)
	switch {
	case n.Kind == KindInjector && n.Config != nil:
		raw, err = json.Marshal(n.Config)
	case n.Kind != KindInjector && len(n.Args) > 0:
		raw, err = json.Marshal(n.Args)
	}
	if err != nil {
		return nil, fmt.Errorf("marshaling args of %s: %w", n.ID, err)
	}
	w.Args = raw
	return json.Marshal(w)
}

// UnmarshalJSON decodes "args" according to the node kind.
func (n *Node) UnmarshalJSON(data []byte) error {
	w := wireNode{nodeAlias: (*nodeAlias)(n)}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Args) == 0 || string(w.Args) == "null" {
		return nil
	}
	if n.Kind == KindInjector {
		if err := json.Unmarshal(w.Args, &n.Config); err != nil {
			return fmt.Errorf("node %s: injector args must be a mapping: %w", n.ID, err)
		}
		return nil
	}
	if err := json.Unmarshal(w.Args, &n.Args); err != nil {
		return fmt.Errorf("node %s: %s args must be a node sequence: %w", n.ID, n.Kind, err)
	}
	return nil
}

// Tagged returns the namespaced executor tag of the node, if its kind has one.
func (n *Node) Tagged() string {
	switch n.Kind {
	case KindInjector:
		return n.Injector
	case KindOperator:
		return n.Op
	case KindComparator:
		return n.Cmp
	case KindAction:
		return n.Action
	case KindOn:
		return n.Event
	case KindElement:
		return n.Tag
	default:
		return ""
	}
}

// Edges returns the node's direct sub-nodes in evaluation order.
func (n *Node) Edges() []*Node {
	var out []*Node
	switch n.Kind {
	case KindElement:
		out = append(out, n.Children...)
	case KindOperator, KindComparator, KindAction:
		out = append(out, n.Args...)
	case KindConditional:
		if n.Condition != nil {
			out = append(out, n.Condition)
		}
		out = append(out, n.IfTrue...)
		out = append(out, n.IfFalse...)
	case KindValidator:
		if n.Rule != nil {
			out = append(out, n.Rule)
		}
	case KindOn:
		if n.Handler != nil {
			out = append(out, n.Handler)
		}
	}
	return out
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if tag := n.Tagged(); tag != "" {
		return fmt.Sprintf("%s(%s %s)", n.Kind, n.ID, tag)
	}
	return fmt.Sprintf("%s(%s)", n.Kind, n.ID)
}
