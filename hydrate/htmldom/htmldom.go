// Package htmldom is a server-side DOM over golang.org/x/net/html. It lets
// rendered pages be hydrated and their events dispatched outside a browser.
package htmldom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/effectus/irkit/hydrate"
	"github.com/effectus/irkit/ir"
	"github.com/effectus/irkit/render"
	"golang.org/x/net/html"
)

// ErrPayloadNotFound is returned when no payload element has the given id
var ErrPayloadNotFound = errors.New("payload element not found")

// Document is a parsed HTML document with listener bookkeeping
type Document struct {
	root *html.Node

	mu    sync.Mutex
	nodes map[*html.Node]*Element
}

var _ hydrate.DOM = (*Document)(nil)

// Parse reads an HTML document
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return &Document{root: root, nodes: make(map[*html.Node]*Element)}, nil
}

// ParseString reads an HTML document from s
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Element wraps a node of the document
type Element struct {
	node *html.Node

	mu        sync.Mutex
	listeners map[string][]hydrate.Listener
}

// IsElement reports whether the wrapped node is an element
func (e *Element) IsElement() bool {
	return e.node.Type == html.ElementNode
}

// Tag returns the element's tag name
func (e *Element) Tag() string {
	return e.node.Data
}

// Attr returns the value of the named attribute
func (e *Element) Attr(name string) (string, bool) {
	return attr(e.node, name)
}

// Listen registers fn for event
func (e *Element) Listen(event string, fn hydrate.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]hydrate.Listener)
	}
	e.listeners[event] = append(e.listeners[event], fn)
}

// Fire calls the listeners registered for event and returns how many ran.
func (e *Element) Fire(ctx context.Context, event string) int {
	e.mu.Lock()
	fns := append([]hydrate.Listener(nil), e.listeners[event]...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
	return len(fns)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (d *Document) wrap(n *html.Node) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.nodes[n]; ok {
		return el
	}
	el := &Element{node: n}
	d.nodes[n] = el
	return el
}

// find returns the first node in document order for which match is true.
func (d *Document) find(match func(*html.Node) bool) *html.Node {
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if match(n) {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(d.root)
}

func (d *Document) byAttr(name, value string) *Element {
	n := d.find(func(n *html.Node) bool {
		v, ok := attr(n, name)
		return n.Type == html.ElementNode && ok && v == value
	})
	if n == nil {
		return nil
	}
	return d.wrap(n)
}

// ElementByAttr returns the first element whose attribute name equals value
func (d *Document) ElementByAttr(name, value string) hydrate.Node {
	if el := d.byAttr(name, value); el != nil {
		return el
	}
	return nil
}

// ElementByID returns the element with the given id attribute
func (d *Document) ElementByID(id string) hydrate.Node {
	if el := d.byAttr("id", id); el != nil {
		return el
	}
	return nil
}

// Dispatch fires event on the anchor for id and returns how many listeners
// ran. An unknown id fires nothing.
func (d *Document) Dispatch(ctx context.Context, id, event string) int {
	el := d.byAttr(render.AnchorAttr, id)
	if el == nil {
		el = d.byAttr("id", id)
	}
	if el == nil {
		return 0
	}
	return el.Fire(ctx, event)
}

// Payload reads back the IR document embedded by the renderer under id.
func (d *Document) Payload(id string) (*ir.Document, error) {
	el := d.byAttr("id", id)
	if el == nil || el.node.Data != "script" {
		return nil, fmt.Errorf("%w: %s", ErrPayloadNotFound, id)
	}
	if typ, _ := el.Attr("type"); typ != render.PayloadType {
		return nil, fmt.Errorf("%w: %s has type %q", ErrPayloadNotFound, id, typ)
	}
	var sb strings.Builder
	for c := el.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return ir.ParseJSON([]byte(sb.String()))
}
