package commands

import (
	"math"
	"reflect"
	"strconv"

	"twitchbot/pkg/chat"
)

type absentMarker struct{}

// String renders the marker as empty text in templates and logs.
func (absentMarker) String() string { return "" }

// Absent is bound to arguments that were neither provided nor defaulted.
// It is distinct from an empty string.
var Absent any = absentMarker{}

// Params maps argument names to bound values.
type Params map[string]any

// Provided reports whether name is bound to something other than Absent.
func (p Params) Provided(name string) bool {
	v, ok := p[name]
	return ok && v != Absent
}

// String returns the value of name as a string.
func (p Params) String(name string) (string, bool) {
	s, ok := p[name].(string)
	return s, ok
}

// Number returns the value of name as a float64.
func (p Params) Number(name string) (float64, bool) {
	switch v := p[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Bool returns the value of name as a bool.
func (p Params) Bool(name string) (bool, bool) {
	b, ok := p[name].(bool)
	return b, ok
}

// Bind maps raw tokens onto args by position. It never fails: missing
// tokens fall back to the default or Absent, unparsable numbers become NaN.
func Bind(args []ArgSpec, raw []string, msg *chat.Message) Params {
	params := make(Params, len(args))

	for i, spec := range args {
		if i >= len(raw) || raw[i] == "" {
			if spec.HasDefault {
				params[spec.Name] = spec.Default
			} else {
				params[spec.Name] = Absent
			}
			continue
		}

		value := coerce(spec.Type, raw[i])
		params[spec.Name] = value

		if spec.Prepare != nil {
			input := value
			if !truthy(input) {
				input = raw[i]
			}
			if prepared := spec.Prepare(input, msg); truthy(prepared) {
				params[spec.Name] = prepared
			}
		}
	}

	return params
}

func coerce(t ArgType, token string) any {
	switch t {
	case ArgNumber:
		n, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	case ArgBoolean:
		return token != ""
	default:
		return token
	}
}

// truthy reports whether v carries a meaningful value: nil, the zero value
// of its type, NaN and Absent are not.
func truthy(v any) bool {
	if v == nil || v == Absent {
		return false
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return false
	}
	return !reflect.ValueOf(v).IsZero()
}
