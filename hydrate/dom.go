package hydrate

import "context"

// Listener handles a fired DOM event
type Listener func(ctx context.Context)

// Node is a DOM node that may receive event listeners
type Node interface {
	IsElement() bool
	Listen(event string, fn Listener)
}

// DOM locates anchor nodes. Lookups return nil when nothing matches.
type DOM interface {
	ElementByAttr(name, value string) Node
	ElementByID(id string) Node
}
