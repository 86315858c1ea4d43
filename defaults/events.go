package defaults

import (
	"strings"

	"github.com/effectus/irkit/eval"
)

var domEvents = map[string]string{
	"On.Click":   "click",
	"On.Submit":  "submit",
	"On.Input":   "input",
	"On.Change":  "change",
	"On.KeyDown": "keydown",
	"On.KeyUp":   "keyup",
	"On.Focus":   "focus",
	"On.Blur":    "blur",
}

func events() map[string]eval.EventFunc {
	out := make(map[string]eval.EventFunc, len(domEvents))
	for tag, name := range domEvents {
		out[tag] = func(string) string { return name }
	}
	return out
}

// EventName maps an event tag to a DOM event type: the registered mapping
// when there is one, otherwise the lowercased suffix after the last dot.
func EventName(reg *eval.Registries, tag string) string {
	if reg != nil {
		if fn, ok := reg.Events.Get(tag); ok {
			return fn(tag)
		}
	}
	if i := strings.LastIndexByte(tag, '.'); i >= 0 {
		tag = tag[i+1:]
	}
	return strings.ToLower(tag)
}
