package eval

import (
	"errors"
	"fmt"

	"github.com/effectus/irkit/ir"
)

var (
	// ErrUnregistered matches every *UnregisteredError
	ErrUnregistered = errors.New("unregistered tag")
	ErrInvalidNode  = errors.New("invalid node")
)

// UnregisteredError reports a tag with no executor in the registry of its kind.
type UnregisteredError struct {
	Kind     ir.Kind
	Tag      string
	Datatype ir.Datatype
	NodeID   string
}

func (e *UnregisteredError) Error() string {
	if e.Datatype != "" {
		return fmt.Sprintf("unregistered %s %q (datatype %s) at node %s", e.Kind, e.Tag, e.Datatype, e.NodeID)
	}
	return fmt.Sprintf("unregistered %s %q at node %s", e.Kind, e.Tag, e.NodeID)
}

func (e *UnregisteredError) Unwrap() error {
	return ErrUnregistered
}

func unregistered(node *ir.Node) error {
	return &UnregisteredError{
		Kind:     node.Kind,
		Tag:      node.Tagged(),
		Datatype: node.Datatype,
		NodeID:   node.ID,
	}
}
