package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	xerrors "WaxAgentKit/internal/errors"
)

// Input is a parsed tool argument object. Numbers keep their json.Number
// form so integer and decimal inputs are preserved.
type Input map[string]any

// ParseInput decodes the raw tool argument string. Blank input is treated
// as an empty object; anything other than a JSON object is rejected.
func ParseInput(raw string) (Input, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Input{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidInput, err, "Invalid JSON input")
	}
	if dec.More() {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "Invalid JSON input: unexpected data after object")
	}
	obj, ok := value.(map[string]any)
	if !ok {
		if value == nil {
			return Input{}, nil
		}
		return nil, xerrors.New(xerrors.CodeInvalidInput, "Invalid JSON input: expected an object")
	}
	return Input(obj), nil
}

// Present reports whether key holds a truthy value: set, not null, and not
// an empty string, zero or false.
func (in Input) Present(key string) bool {
	v, ok := in[key]
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case string:
		return t != ""
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}
	return true
}

// String returns the value for key when it is a JSON string.
func (in Input) String(key string) (string, bool) {
	v, ok := in[key].(string)
	return v, ok
}

// OptionalString returns the string value for key or "".
func (in Input) OptionalString(key string) string {
	v, _ := in.String(key)
	return v
}

// Number returns the value for key when it is a JSON number.
func (in Input) Number(key string) (float64, bool) {
	n, ok := in[key].(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Integer reads key as an integer the way a lenient parser would: numbers
// are truncated and strings contribute their leading digits. ok is false
// when no digits can be read.
func (in Input) Integer(key string) (int64, bool) {
	switch v := in[key].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case string:
		return leadingInt(v)
	}
	return 0, false
}

// Object returns the value for key when it is a JSON object.
func (in Input) Object(key string) (map[string]any, bool) {
	v, ok := in[key].(map[string]any)
	return v, ok
}

// Plain converts json.Number values back to float64 or int64 so the map can
// be re-encoded for action data.
func Plain(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Plain(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Plain(val)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}

func leadingInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func invalid(format string, args ...any) error {
	return xerrors.New(xerrors.CodeInvalidInput, fmt.Sprintf(format, args...))
}
