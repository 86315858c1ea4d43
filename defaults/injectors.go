package defaults

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/effectus/irkit/eval"
	"github.com/effectus/irkit/ir"
)

// Date and time layouts for the plain datatypes
const (
	PlainDateLayout     = "2006-01-02"
	PlainDateTimeLayout = "2006-01-02T15:04:05"
)

func injectors(o *options) map[string]eval.InjectorFunc {
	return map[string]eval.InjectorFunc{
		ir.ConstantTag: constant,
		"From.Local":   local,
		"From.Now": func(ctx context.Context, node *ir.Node, ec *eval.Context) (any, error) {
			return now(o.now(), node.Datatype), nil
		},
		"From.Env": func(ctx context.Context, node *ir.Node, ec *eval.Context) (any, error) {
			return string(ec.Env), nil
		},
	}
}

func constant(ctx context.Context, node *ir.Node, ec *eval.Context) (any, error) {
	v, ok := node.Config["value"]
	if !ok {
		return nil, fmt.Errorf("%w: injector %s has no value", eval.ErrInvalidNode, node.ID)
	}
	out, err := Coerce(v, node.Datatype)
	if err != nil {
		return nil, fmt.Errorf("injector %s: %w", node.ID, err)
	}
	return out, nil
}

func local(ctx context.Context, node *ir.Node, ec *eval.Context) (any, error) {
	path, _ := node.Config["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("%w: injector %s has no path", eval.ErrInvalidNode, node.ID)
	}
	v, ok := Lookup(ec.Locals(), path)
	if !ok {
		v, ok = node.Config["default"]
		if !ok {
			return nil, nil
		}
	}
	if v == nil || node.Datatype == "" {
		return v, nil
	}
	out, err := Coerce(v, node.Datatype)
	if err != nil {
		return nil, fmt.Errorf("injector %s: %w", node.ID, err)
	}
	return out, nil
}

func now(t time.Time, datatype ir.Datatype) any {
	switch datatype {
	case ir.PlainDate:
		return t.Format(PlainDateLayout)
	case ir.PlainDateTime:
		return t.Format(PlainDateTimeLayout)
	case ir.String:
		return t.Format(time.RFC3339)
	case ir.Integer:
		return t.Unix()
	default:
		return t
	}
}

// Coerce converts v to the Go representation of datatype: int64, float64,
// string, bool, or time.Time for ZonedDateTime. Plain dates stay strings in
// their canonical layouts. An empty datatype returns v unchanged.
func Coerce(v any, datatype ir.Datatype) (any, error) {
	switch datatype {
	case "":
		return v, nil

	case ir.String:
		return Stringify(v), nil

	case ir.Integer:
		if s, ok := v.(string); ok {
			i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to %s", s, datatype)
			}
			return i, nil
		}
		if i, ok := toInt(v); ok {
			return i, nil
		}

	case ir.Float:
		if s, ok := v.(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to %s", s, datatype)
			}
			return f, nil
		}
		if f, ok := toFloat(v); ok {
			return f, nil
		}

	case ir.Boolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to %s", b, datatype)
			}
			return parsed, nil
		}

	case ir.PlainDate:
		return parseLayout(v, PlainDateLayout, datatype)

	case ir.PlainDateTime:
		return parseLayout(v, PlainDateTimeLayout, datatype)

	case ir.ZonedDateTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			return parseZoned(t)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ir.ErrInvalidDatatype, datatype)
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, datatype)
}

func parseLayout(v any, layout string, datatype ir.Datatype) (any, error) {
	switch t := v.(type) {
	case time.Time:
		return t.Format(layout), nil
	case string:
		parsed, err := time.Parse(layout, strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to %s: %w", t, datatype, err)
		}
		return parsed.Format(layout), nil
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, datatype)
}

// parseZoned accepts RFC 3339 with an optional bracketed zone name suffix,
// e.g. 2024-03-01T10:00:00+01:00[Europe/Paris].
func parseZoned(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	zone := ""
	if i := strings.IndexByte(s, '['); i >= 0 && strings.HasSuffix(s, "]") {
		zone = s[i+1 : len(s)-1]
		s = s[:i]
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("cannot convert %q to %s: %w", s, ir.ZonedDateTime, err)
	}
	if zone != "" {
		loc, err := time.LoadLocation(zone)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown zone %q: %w", zone, err)
		}
		t = t.In(loc)
	}
	return t, nil
}
