package ir

func base(id string, kind Kind) *Node {
	return &Node{V: SchemaVersion, ID: id, Kind: kind}
}

// Element creates an element node
func Element(id, tag string, attrs map[string]any, children ...*Node) *Node {
	n := base(id, KindElement)
	n.Tag = tag
	n.Attrs = attrs
	n.Children = children
	return n
}

// Text creates a literal text leaf
func Text(id, content string) *Node {
	n := base(id, KindText)
	n.Content = content
	return n
}

// Injector creates an injector node with a free-form argument mapping
func Injector(id, tag string, datatype Datatype, config map[string]any) *Node {
	n := base(id, KindInjector)
	n.Injector = tag
	n.Datatype = datatype
	n.Config = config
	return n
}

// ConstantTag is the injector tag producing its "value" argument.
const ConstantTag = "From.Constant"

// Constant creates a From.Constant injector carrying value
func Constant(id string, datatype Datatype, value any) *Node {
	return Injector(id, ConstantTag, datatype, map[string]any{"value": value})
}

// Operator creates an operator node
func Operator(id, tag string, datatype Datatype, args ...*Node) *Node {
	n := base(id, KindOperator)
	n.Op = tag
	n.Datatype = datatype
	n.Args = args
	return n
}

// Comparator creates a comparator node
func Comparator(id, tag string, args ...*Node) *Node {
	n := base(id, KindComparator)
	n.Cmp = tag
	n.Args = args
	return n
}

// Conditional creates a conditional node with two branch bodies
func Conditional(id string, condition *Node, ifTrue, ifFalse []*Node) *Node {
	n := base(id, KindConditional)
	n.Condition = condition
	n.IfTrue = ifTrue
	n.IfFalse = ifFalse
	return n
}

// Validator creates a validator node
func Validator(id string, rule *Node, scope string, mode ValidationMode) *Node {
	n := base(id, KindValidator)
	n.Rule = rule
	n.Scope = scope
	n.Mode = mode
	return n
}

// Action creates an action node
func Action(id, tag string, args ...*Node) *Node {
	n := base(id, KindAction)
	n.Action = tag
	n.Args = args
	return n
}

// On creates an event binding node
func On(id, event string, handler *Node) *Node {
	n := base(id, KindOn)
	n.Event = event
	n.Handler = handler
	return n
}
