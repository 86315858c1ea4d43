package defaults

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// Lookup resolves a dotted path (with optional [n] indexes) against the
// local values. Paths without dots or brackets are read directly.
func Lookup(locals map[string]any, path string) (any, bool) {
	if v, ok := locals[path]; ok {
		return v, true
	}
	if !strings.ContainsAny(path, ".[") {
		return nil, false
	}

	raw, err := json.Marshal(locals)
	if err != nil {
		return nil, false
	}

	// gjson uses dots for array indexes
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")

	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil, false
	}
	return fromResult(result), true
}

func fromResult(result gjson.Result) any {
	switch result.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		if result.Float() == float64(result.Int()) {
			return result.Int()
		}
		return result.Float()
	case gjson.String:
		return result.String()
	case gjson.JSON:
		if result.IsArray() {
			arr := result.Array()
			out := make([]any, len(arr))
			for i, v := range arr {
				out[i] = fromResult(v)
			}
			return out
		}
		out := make(map[string]any)
		for k, v := range result.Map() {
			out[k] = fromResult(v)
		}
		return out
	default:
		return result.Value()
	}
}
