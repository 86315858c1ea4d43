package ir

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	ErrDuplicateID        = errors.New("duplicate node id")
	ErrMissingID          = errors.New("node id is required")
	ErrUnknownKind        = errors.New("unknown node kind")
	ErrInvalidAttr        = errors.New("attribute values must be strings, numbers or booleans")
	ErrInvalidDatatype    = errors.New("invalid datatype")
	ErrUnsupportedVersion = errors.New("unsupported schema version")
)

// Document is an IR tree with an index of its node ids.
type Document struct {
	Root *Node
	byID map[string]*Node
}

// NewDocument indexes and validates the tree under root.
func NewDocument(root *Node) (*Document, error) {
	if root == nil {
		return nil, errors.New("document root is nil")
	}
	doc := &Document{Root: root, byID: make(map[string]*Node)}
	var err error
	doc.Walk(func(n, _ *Node) bool {
		if err = validateNode(n); err != nil {
			return false
		}
		if _, exists := doc.byID[n.ID]; exists {
			err = fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
			return false
		}
		doc.byID[n.ID] = n
		return true
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func validateNode(n *Node) error {
	if n.ID == "" {
		return fmt.Errorf("%w (kind %s)", ErrMissingID, n.Kind)
	}
	if n.V != "" && n.V != SchemaVersion {
		return fmt.Errorf("node %s: %w %q", n.ID, ErrUnsupportedVersion, n.V)
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("node %s: %w %q", n.ID, ErrUnknownKind, n.Kind)
	}
	if !n.Datatype.Valid() {
		return fmt.Errorf("node %s: %w %q", n.ID, ErrInvalidDatatype, n.Datatype)
	}
	for name, value := range n.Attrs {
		if !IsPrimitive(value) {
			return fmt.Errorf("node %s attr %q: %w", n.ID, name, ErrInvalidAttr)
		}
	}
	return nil
}

// IsPrimitive reports whether v may be used as an attribute value.
func IsPrimitive(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return true
	default:
		return false
	}
}

// Lookup returns the node with the given id.
func (d *Document) Lookup(id string) (*Node, bool) {
	n, ok := d.byID[id]
	return n, ok
}

// Len returns the number of nodes in the document.
func (d *Document) Len() int {
	return len(d.byID)
}

// Walk visits every node depth-first in containment order, passing the
// node's parent (nil for the root). Returning false stops the walk.
func (d *Document) Walk(fn func(n, parent *Node) bool) {
	var visit func(n, parent *Node) bool
	visit = func(n, parent *Node) bool {
		if n == nil {
			return true
		}
		if !fn(n, parent) {
			return false
		}
		for _, child := range n.Edges() {
			if !visit(child, n) {
				return false
			}
		}
		return true
	}
	visit(d.Root, nil)
}

// MarshalJSON serializes the document as its root node.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Root)
}

// ParseJSON decodes and validates a JSON document.
func ParseJSON(data []byte) (*Document, error) {
	var root Node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing ir json: %w", err)
	}
	return NewDocument(&root)
}

// ParseYAML decodes a YAML document by normalizing it to JSON first.
func ParseYAML(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing ir yaml: %w", err)
	}
	payload, err := json.Marshal(normalizeYAML(raw))
	if err != nil {
		return nil, fmt.Errorf("converting ir yaml: %w", err)
	}
	return ParseJSON(payload)
}

// normalizeYAML converts map[any]any values (possible in YAML) into
// JSON-compatible map[string]any.
func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = normalizeYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizeYAML(item)
		}
		return out
	default:
		return v
	}
}
