package render

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
)

// Payload conventions read back by the hydrator
const (
	PayloadType      = "application/x-ir+json"
	DefaultPayloadID = "ir-root"
)

// Payload serializes doc into a script element with the default id.
func Payload(doc *ir.Document) (string, error) {
	return PayloadWithID(doc, DefaultPayloadID)
}

// PayloadWithID serializes doc into a script element addressable by id.
// The JSON encoder escapes <, > and & so the document cannot close the
// script element early.
func PayloadWithID(doc *ir.Document, id string) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return fmt.Sprintf(`<script type="%s" id="%s">%s</script>`, PayloadType, Escape(id), data), nil
}

// PageOption configures Page
type PageOption func(*pageOptions)

type pageOptions struct {
	payload   bool
	payloadID string
	title     string
	lang      string
}

// WithPayload toggles the embedded IR payload (on by default)
func WithPayload(enabled bool) PageOption {
	return func(o *pageOptions) { o.payload = enabled }
}

// WithPayloadID sets the payload element id
func WithPayloadID(id string) PageOption {
	return func(o *pageOptions) { o.payloadID = id }
}

// WithTitle sets the document title
func WithTitle(title string) PageOption {
	return func(o *pageOptions) { o.title = title }
}

// WithLang sets the html lang attribute
func WithLang(lang string) PageOption {
	return func(o *pageOptions) { o.lang = lang }
}

// Page renders doc as a complete HTML document with the IR payload appended
// to the body.
func (r *Renderer) Page(ctx context.Context, doc *ir.Document, ec *eval.Context, opts ...PageOption) (string, error) {
	o := &pageOptions{payload: true, payloadID: DefaultPayloadID, lang: "en"}
	for _, opt := range opts {
		opt(o)
	}

	var sb strings.Builder
	sb.WriteString("<!doctype html>")
	fmt.Fprintf(&sb, `<html lang="%s"><head><meta charset="utf-8"/>`, Escape(o.lang))
	if o.title != "" {
		fmt.Fprintf(&sb, "<title>%s</title>", Escape(o.title))
	}
	sb.WriteString("</head><body>")
	sb.WriteString(r.Render(ctx, doc.Root, ec))
	if o.payload {
		payload, err := PayloadWithID(doc, o.payloadID)
		if err != nil {
			return "", err
		}
		sb.WriteString(payload)
	}
	sb.WriteString("</body></html>")
	return sb.String(), nil
}
