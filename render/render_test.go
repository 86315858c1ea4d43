package render

import (
	"context"
	"strings"
	"testing"

	"github.com/effectus/irkit/defaults"
	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer() *Renderer {
	return New(defaults.NewEvaluator(nil))
}

func TestTextIsEscaped(t *testing.T) {
	node := ir.Element("p", "p", nil, ir.Text("t", `<script>alert("x")</script>`))
	out := newRenderer().Render(context.Background(), node, nil)

	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, "<script>")
	assert.Equal(t, `<p>&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;</p>`, out)
}

func TestEvaluatedValuesAreEscaped(t *testing.T) {
	node := ir.Element("d", "div", nil,
		ir.Constant("c", ir.String, "<b>&'"))
	out := newRenderer().Render(context.Background(), node, nil)
	assert.Equal(t, `<div>&lt;b&gt;&amp;&#39;</div>`, out)
}

func TestVoidElementsSelfClose(t *testing.T) {
	node := ir.Element("d", "div", nil,
		ir.Element("b", "br", nil),
		ir.Element("i", "img", map[string]any{"src": "/a.png"}))
	out := newRenderer().Render(context.Background(), node, nil)

	assert.Equal(t, `<div><br/><img src="/a.png"/></div>`, out)
	assert.NotContains(t, out, "</br>")
}

func TestAttributes(t *testing.T) {
	node := ir.Element("in", "input", map[string]any{
		"type":      "text",
		"value":     `"quoted" & <angled>`,
		"maxlength": 10,
		"disabled":  true,
		"hidden":    false,
		"bad name":  "x",
		"onclick":   "steal()",
	})
	out := newRenderer().Render(context.Background(), node, nil)
	assert.Equal(t,
		`<input disabled maxlength="10" type="text" value="&#34;quoted&#34; &amp; &lt;angled&gt;"/>`,
		out)
}

func TestInvalidTagIsDropped(t *testing.T) {
	node := ir.Element("d", "div", nil,
		ir.Element("x", "a b", nil, ir.Text("t", "gone")),
		ir.Text("k", "kept"))
	assert.Equal(t, "<div>kept</div>", newRenderer().Render(context.Background(), node, nil))
}

func TestFailingChildRendersEmpty(t *testing.T) {
	node := ir.Element("d", "div", nil,
		ir.Text("a", "before"),
		ir.Operator("bad", "Op.Missing", ir.Integer),
		ir.Text("b", "after"))
	assert.Equal(t, "<div>beforeafter</div>", newRenderer().Render(context.Background(), node, nil))
}

func TestChildrenKeepOrder(t *testing.T) {
	var children []*ir.Node
	var want strings.Builder
	want.WriteString("<ul>")
	for i := 0; i < 50; i++ {
		id := string(rune('A'+i%26)) + strings.Repeat("x", i/26)
		children = append(children, ir.Element("li"+id, "li", nil, ir.Text("t"+id, id)))
		want.WriteString("<li>" + id + "</li>")
	}
	want.WriteString("</ul>")
	out := newRenderer().Render(context.Background(), ir.Element("ul", "ul", nil, children...), nil)
	assert.Equal(t, want.String(), out)
}

func TestConditionalRendersBranchMarkup(t *testing.T) {
	node := ir.Element("d", "div", nil,
		ir.Conditional("if",
			ir.Comparator("cmp", "Policy.Authenticated"),
			[]*ir.Node{ir.Element("w", "span", nil, ir.Text("hi", "welcome"))},
			[]*ir.Node{ir.Element("l", "a", map[string]any{"href": "/login"}, ir.Text("li", "log in"))}))

	r := newRenderer()
	anon := r.Render(context.Background(), node, eval.NewContext(eval.Server, nil))
	assert.Equal(t, `<div><a href="/login">log in</a></div>`, anon)

	user := r.Render(context.Background(), node, eval.NewContext(eval.Server, map[string]any{"user": "ada"}))
	assert.Equal(t, `<div><span>welcome</span></div>`, user)
}

func TestBindingAnchor(t *testing.T) {
	node := ir.Element("root", "div", nil,
		ir.Element("btn", "button", map[string]any{"type": "button"},
			ir.Text("label", "Go"),
			ir.On("click", "On.Click", ir.Action("noop", "Act.Noop"))))
	out := newRenderer().Render(context.Background(), node, nil)
	assert.Equal(t, `<div><button data-ir-id="btn" type="button">Go</button></div>`, out)
}

func TestEventHandlerAttributesOnly(t *testing.T) {
	node := ir.Element("p", "p", map[string]any{
		"onclick":     "steal()",
		"ONMOUSEOVER": "steal()",
		"one-thing":   "a",
		"only":        "b",
		"on":          "c",
	})
	out := newRenderer().Render(context.Background(), node, nil)
	assert.Equal(t, `<p on="c" one-thing="a" only="b"></p>`, out)

	assert.True(t, IsEventHandlerAttr("onclick"))
	assert.True(t, IsEventHandlerAttr("OnLoad"))
	assert.False(t, IsEventHandlerAttr("one-thing"))
	assert.False(t, IsEventHandlerAttr("on"))
}

func TestConditionalNeedsComparator(t *testing.T) {
	node := ir.Element("d", "div", nil,
		ir.Conditional("if",
			ir.Constant("yes", ir.Boolean, true),
			[]*ir.Node{ir.Text("t", "shown")},
			[]*ir.Node{ir.Text("f", "hidden")}))
	out := newRenderer().Render(context.Background(), node, nil)
	assert.Equal(t, `<div></div>`, out)

	_, err := defaults.NewEvaluator(nil).Evaluate(context.Background(), node.Children[0], nil)
	assert.ErrorIs(t, err, eval.ErrInvalidNode)
}

func TestBindingAnchorThroughConditional(t *testing.T) {
	node := ir.Element("root", "div", nil,
		ir.Element("btn", "button", nil,
			ir.Text("label", "go"),
			ir.Conditional("if",
				ir.Comparator("cmp", "Policy.Authenticated"),
				[]*ir.Node{ir.On("in", "On.Click", ir.Action("a", "Act.Noop"))},
				[]*ir.Node{ir.On("out", "On.Click", ir.Action("b", "Act.Noop"))})),
		ir.Element("plain", "span", nil,
			ir.Element("inner", "em", nil, ir.On("deep", "On.Click", ir.Action("c", "Act.Noop")))))
	out := newRenderer().Render(context.Background(), node, nil)
	assert.Equal(t, `<div><button data-ir-id="btn">go</button><span><em data-ir-id="inner"></em></span></div>`, out)

	assert.True(t, HasBinding(node.Children[0]))
	assert.False(t, HasBinding(node.Children[1]))
}

func TestPayloadIsScriptSafe(t *testing.T) {
	doc, err := ir.NewDocument(ir.Element("root", "div", nil, ir.Text("t", "</script><script>")))
	require.NoError(t, err)

	out, err := Payload(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `<script type="application/x-ir+json" id="ir-root">`))
	assert.Equal(t, 1, strings.Count(out, "</script>"))
	assert.Contains(t, out, `</script>`)

	body := strings.TrimSuffix(strings.TrimPrefix(out, `<script type="application/x-ir+json" id="ir-root">`), "</script>")
	back, err := ir.ParseJSON([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "</script><script>", back.Root.Children[0].Content)
}

func TestPage(t *testing.T) {
	doc, err := ir.NewDocument(ir.Element("root", "main", nil, ir.Text("t", "hello")))
	require.NoError(t, err)

	r := newRenderer()
	page, err := r.Page(context.Background(), doc, nil, WithTitle("A & B"), WithPayloadID("state"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(page, "<!doctype html>"))
	assert.Contains(t, page, "<title>A &amp; B</title>")
	assert.Contains(t, page, "<main>hello</main>")
	assert.Contains(t, page, `id="state"`)

	bare, err := r.Page(context.Background(), doc, nil, WithPayload(false))
	require.NoError(t, err)
	assert.NotContains(t, bare, PayloadType)
}
