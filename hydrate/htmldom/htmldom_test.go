package htmldom

import (
	"context"
	"testing"

	"github.com/effectus/irkit/defaults"
	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/hydrate"
	"github.com/effectus/irkit/ir"
	"github.com/effectus/irkit/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counter(t *testing.T) *ir.Document {
	t.Helper()
	doc, err := ir.NewDocument(ir.Element("app", "div", map[string]any{"id": "app"},
		ir.Element("inc", "button", nil,
			ir.Text("label", "+1"),
			ir.On("inc-click", "On.Click",
				ir.Action("set", "Act.SetLocal",
					ir.Constant("k", ir.String, "count"),
					ir.Operator("next", "Op.Add", ir.Integer,
						ir.Injector("cur", "From.Local", ir.Integer, map[string]any{"path": "count", "default": 0}),
						ir.Constant("one", ir.Integer, 1)))))))
	require.NoError(t, err)
	return doc
}

func TestRenderParseHydrateDispatch(t *testing.T) {
	ev := defaults.NewEvaluator(nil)
	page, err := render.New(ev).Page(context.Background(), counter(t), nil)
	require.NoError(t, err)

	dom, err := ParseString(page)
	require.NoError(t, err)

	doc, err := dom.Payload(render.DefaultPayloadID)
	require.NoError(t, err)
	_, ok := doc.Lookup("inc-click")
	assert.True(t, ok)

	ec := eval.NewContext(eval.Client, nil)
	bindings, err := hydrate.New(ev).Hydrate(context.Background(), dom, doc, ec)
	require.NoError(t, err)
	require.Len(t, bindings, 1)

	assert.Equal(t, 1, dom.Dispatch(context.Background(), "inc", "click"))
	assert.Equal(t, 1, dom.Dispatch(context.Background(), "inc", "click"))
	assert.Equal(t, 0, dom.Dispatch(context.Background(), "inc", "keyup"))
	assert.Equal(t, 0, dom.Dispatch(context.Background(), "nope", "click"))

	v, _ := ec.Local("count")
	assert.Equal(t, int64(2), v)
}

func TestHydrateBindsInsideConditional(t *testing.T) {
	doc, err := ir.NewDocument(ir.Element("root", "div", nil,
		ir.Element("btn", "button", nil,
			ir.Text("label", "go"),
			ir.Conditional("if",
				ir.Comparator("cmp", "Policy.Authenticated"),
				[]*ir.Node{ir.On("member", "On.Click",
					ir.Action("set-member", "Act.SetLocal", ir.Constant("k1", ir.String, "hit"), ir.Constant("v1", ir.String, "member")))},
				[]*ir.Node{ir.On("guest", "On.Click",
					ir.Action("set-guest", "Act.SetLocal", ir.Constant("k2", ir.String, "hit"), ir.Constant("v2", ir.String, "guest")))}))))
	require.NoError(t, err)

	ev := defaults.NewEvaluator(nil)
	for _, tt := range []struct {
		name   string
		locals map[string]any
		node   string
		hit    string
	}{
		{"guest", nil, "guest", "guest"},
		{"member", map[string]any{"user": "ada"}, "member", "member"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ec := eval.NewContext(eval.Client, tt.locals)
			markup := render.New(ev).Render(context.Background(), doc.Root, ec)
			assert.Equal(t, `<div><button data-ir-id="btn">go</button></div>`, markup)

			dom, err := ParseString(markup)
			require.NoError(t, err)
			bindings, err := hydrate.New(ev).Hydrate(context.Background(), dom, doc, ec)
			require.NoError(t, err)
			require.Len(t, bindings, 1)
			assert.Equal(t, tt.node, bindings[0].NodeID)
			assert.Equal(t, "btn", bindings[0].AnchorID)

			assert.Equal(t, 1, dom.Dispatch(context.Background(), "btn", "click"))
			v, _ := ec.Local("hit")
			assert.Equal(t, tt.hit, v)
		})
	}
}

func TestLookups(t *testing.T) {
	dom, err := ParseString(`<div id="a"><span data-ir-id="b">x</span></div>`)
	require.NoError(t, err)

	a := dom.ElementByID("a")
	require.NotNil(t, a)
	assert.True(t, a.IsElement())
	assert.Equal(t, "div", a.(*Element).Tag())

	assert.NotNil(t, dom.ElementByAttr("data-ir-id", "b"))
	assert.Nil(t, dom.ElementByID("b"))
	assert.Nil(t, dom.ElementByAttr("data-ir-id", "a"))
}

func TestPayloadMissing(t *testing.T) {
	dom, err := ParseString(`<div id="ir-root"></div>`)
	require.NoError(t, err)
	_, err = dom.Payload("ir-root")
	assert.ErrorIs(t, err, ErrPayloadNotFound)
}
