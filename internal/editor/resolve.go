package editor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/ggufedit/internal/gguf"
)

// Text is an update value given as unparsed command-line text (--set
// key=value). It is parsed according to the existing entry's variant, or
// inferred when the key is new.
type Text string

// Resolve turns a loosely typed update value into a gguf.Value for key.
//
// raw may be a gguf.Value (used as is), a Text, or anything decoded from
// JSON or YAML: bool, string, json.Number, Go integer and float types,
// []any, and the typed form map{"type": "u16", "value": 7} (arrays add
// "elem"). When md already holds key the value must fit its exact variant;
// anything else is a *gguf.TypeMismatchError. New keys get an inferred
// variant.
func Resolve(key string, raw any, md *gguf.Metadata) (gguf.Value, error) {
	existing, exists := md.Get(key)

	switch v := raw.(type) {
	case gguf.Value:
		if exists && !gguf.SameVariant(existing, v) {
			return gguf.Value{}, mismatch(key, existing, v.Variant())
		}
		return v, nil
	case map[string]any:
		return resolveTyped(key, v, existing, exists)
	case Text:
		if exists {
			return parseText(key, string(v), existing)
		}
		return inferText(string(v)), nil
	case nil:
		return gguf.Value{}, invalidUpdatef("key %q: null value", key)
	}

	if exists {
		out, err := coerce(existing.Type, elemTypeOf(existing), raw)
		if err != nil {
			return gguf.Value{}, mismatch(key, existing, describe(raw))
		}
		return gguf.Value{Type: existing.Type, Value: out}, nil
	}
	v, err := infer(raw)
	if err != nil {
		return gguf.Value{}, invalidUpdatef("key %q: %v", key, err)
	}
	return v, nil
}

func mismatch(key string, existing gguf.Value, actual string) error {
	return &gguf.TypeMismatchError{Key: key, Expected: existing.Variant(), Actual: actual}
}

func elemTypeOf(v gguf.Value) gguf.ValueType {
	if arr, ok := v.Value.(gguf.ArrayValue); ok {
		return arr.ElemType
	}
	return 0
}

func resolveTyped(key string, m map[string]any, existing gguf.Value, exists bool) (gguf.Value, error) {
	name, ok := m["type"].(string)
	if !ok {
		return gguf.Value{}, invalidUpdatef("key %q: typed value needs a string \"type\"", key)
	}
	t, err := gguf.ParseValueType(name)
	if err != nil {
		return gguf.Value{}, invalidUpdatef("key %q: %v", key, err)
	}
	raw, ok := m["value"]
	if !ok || raw == nil {
		return gguf.Value{}, invalidUpdatef("key %q: typed value needs \"value\"", key)
	}

	var elem gguf.ValueType
	variant := t.String()
	if t == gguf.TypeArray {
		elemName, ok := m["elem"].(string)
		if !ok {
			return gguf.Value{}, invalidUpdatef("key %q: array value needs a string \"elem\"", key)
		}
		if elem, err = gguf.ParseValueType(elemName); err != nil {
			return gguf.Value{}, invalidUpdatef("key %q: %v", key, err)
		}
		if elem == gguf.TypeArray {
			return gguf.Value{}, invalidUpdatef("key %q: typed nested arrays are not supported", key)
		}
		variant = "array[" + elem.String() + "]"
	}

	if exists {
		want := existing.Variant()
		if want != variant {
			return gguf.Value{}, mismatch(key, existing, variant)
		}
	}
	out, err := coerce(t, elem, raw)
	if err != nil {
		return gguf.Value{}, &gguf.TypeMismatchError{Key: key, Expected: variant, Actual: describe(raw)}
	}
	return gguf.Value{Type: t, Value: out}, nil
}

// coerce converts raw to the Go type held by tag t. elem is the element tag
// when t is an array.
func coerce(t, elem gguf.ValueType, raw any) (any, error) {
	switch t {
	case gguf.TypeBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, errNoFit
		}
		return b, nil
	case gguf.TypeString:
		s, ok := raw.(string)
		if !ok {
			return nil, errNoFit
		}
		return s, nil
	case gguf.TypeArray:
		items, ok := raw.([]any)
		if !ok {
			return nil, errNoFit
		}
		out := make([]any, len(items))
		for i, item := range items {
			if elem == gguf.TypeArray {
				// Inner arrays take their element type from their contents.
				v, err := infer(item)
				if err != nil || v.Type != gguf.TypeArray {
					return nil, errNoFit
				}
				out[i] = v.Value
				continue
			}
			v, err := coerce(elem, 0, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = v
		}
		return gguf.ArrayValue{ElemType: elem, Values: out}, nil
	}

	n, ok := toNumber(raw)
	if !ok {
		return nil, errNoFit
	}
	return n.as(t)
}

var errNoFit = fmt.Errorf("value does not fit")

// infer picks a variant for a value with no existing entry.
func infer(raw any) (gguf.Value, error) {
	switch v := raw.(type) {
	case bool:
		return gguf.Value{Type: gguf.TypeBool, Value: v}, nil
	case string:
		return gguf.Value{Type: gguf.TypeString, Value: v}, nil
	case []any:
		if len(v) == 0 {
			return gguf.Value{}, fmt.Errorf("cannot infer the element type of an empty array")
		}
		first, err := infer(v[0])
		if err != nil {
			return gguf.Value{}, err
		}
		elem := first.Type
		if elem == gguf.TypeArray {
			return gguf.Value{}, fmt.Errorf("cannot infer nested arrays")
		}
		if first.Type != gguf.TypeBool && first.Type != gguf.TypeString {
			elem = widestNumeric(v)
		}
		out, err := coerce(gguf.TypeArray, elem, v)
		if err != nil {
			return gguf.Value{}, fmt.Errorf("mixed array elements: %w", err)
		}
		return gguf.Value{Type: gguf.TypeArray, Value: out}, nil
	}

	n, ok := toNumber(raw)
	if !ok {
		return gguf.Value{}, fmt.Errorf("unsupported value %s", describe(raw))
	}
	t := n.inferType()
	out, err := n.as(t)
	if err != nil {
		return gguf.Value{}, err
	}
	return gguf.Value{Type: t, Value: out}, nil
}

// widestNumeric picks one numeric tag able to hold every element of a
// numeric array. Non-numeric elements are left for coerce to reject.
func widestNumeric(items []any) gguf.ValueType {
	var (
		anyFloat, anyNeg, bigU, bigI bool
		needF64                      bool
	)
	for _, item := range items {
		n, ok := toNumber(item)
		if !ok {
			continue
		}
		switch {
		case !n.isInt:
			anyFloat = true
			if float64(float32(n.f)) != n.f {
				needF64 = true
			}
		case n.neg:
			anyNeg = true
			if n.i < math.MinInt32 {
				bigI = true
			}
		default:
			if n.u > math.MaxInt32 {
				bigI = true
			}
			if n.u > math.MaxUint32 {
				bigU = true
			}
		}
	}
	switch {
	case anyFloat && needF64:
		return gguf.TypeFloat64
	case anyFloat:
		return gguf.TypeFloat32
	case anyNeg && bigI:
		return gguf.TypeInt64
	case anyNeg:
		return gguf.TypeInt32
	case bigU:
		return gguf.TypeUint64
	default:
		return gguf.TypeUint32
	}
}

// number is a decoded numeric literal. Integers keep their exact value in
// u (non-negative) or i (negative); f always holds the nearest float.
type number struct {
	isInt bool
	neg   bool
	u     uint64
	i     int64
	f     float64
}

func toNumber(raw any) (number, bool) {
	switch v := raw.(type) {
	case json.Number:
		return parseNumber(string(v))
	case int:
		return fromInt(int64(v)), true
	case int8:
		return fromInt(int64(v)), true
	case int16:
		return fromInt(int64(v)), true
	case int32:
		return fromInt(int64(v)), true
	case int64:
		return fromInt(v), true
	case uint:
		return fromUint(uint64(v)), true
	case uint8:
		return fromUint(uint64(v)), true
	case uint16:
		return fromUint(uint64(v)), true
	case uint32:
		return fromUint(uint64(v)), true
	case uint64:
		return fromUint(v), true
	case float32:
		return number{f: float64(v)}, true
	case float64:
		return number{f: v}, true
	default:
		return number{}, false
	}
}

func fromInt(v int64) number {
	if v >= 0 {
		return fromUint(uint64(v))
	}
	return number{isInt: true, neg: true, i: v, f: float64(v)}
}

func fromUint(v uint64) number {
	return number{isInt: true, u: v, f: float64(v)}
}

func parseNumber(s string) (number, bool) {
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return fromUint(u), true
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromInt(i), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return number{}, false
	}
	return number{f: f}, true
}

func (n number) inferType() gguf.ValueType {
	switch {
	case !n.isInt:
		if float64(float32(n.f)) == n.f {
			return gguf.TypeFloat32
		}
		return gguf.TypeFloat64
	case n.neg && n.i >= math.MinInt32:
		return gguf.TypeInt32
	case n.neg:
		return gguf.TypeInt64
	case n.u <= math.MaxUint32:
		return gguf.TypeUint32
	default:
		return gguf.TypeUint64
	}
}

// as converts n to the Go type of tag t, failing when the value is out of
// range or, for integer tags, not an integer.
func (n number) as(t gguf.ValueType) (any, error) {
	switch t {
	case gguf.TypeFloat32:
		f := float32(n.f)
		if math.IsInf(float64(f), 0) && !math.IsInf(n.f, 0) {
			return nil, errNoFit
		}
		return f, nil
	case gguf.TypeFloat64:
		return n.f, nil
	}
	if !n.isInt {
		return nil, errNoFit
	}

	if !n.neg {
		switch t {
		case gguf.TypeUint8:
			if n.u <= math.MaxUint8 {
				return uint8(n.u), nil
			}
		case gguf.TypeUint16:
			if n.u <= math.MaxUint16 {
				return uint16(n.u), nil
			}
		case gguf.TypeUint32:
			if n.u <= math.MaxUint32 {
				return uint32(n.u), nil
			}
		case gguf.TypeUint64:
			return n.u, nil
		case gguf.TypeInt8:
			if n.u <= math.MaxInt8 {
				return int8(n.u), nil
			}
		case gguf.TypeInt16:
			if n.u <= math.MaxInt16 {
				return int16(n.u), nil
			}
		case gguf.TypeInt32:
			if n.u <= math.MaxInt32 {
				return int32(n.u), nil
			}
		case gguf.TypeInt64:
			if n.u <= math.MaxInt64 {
				return int64(n.u), nil
			}
		}
		return nil, errNoFit
	}

	switch t {
	case gguf.TypeInt8:
		if n.i >= math.MinInt8 {
			return int8(n.i), nil
		}
	case gguf.TypeInt16:
		if n.i >= math.MinInt16 {
			return int16(n.i), nil
		}
	case gguf.TypeInt32:
		if n.i >= math.MinInt32 {
			return int32(n.i), nil
		}
	case gguf.TypeInt64:
		return n.i, nil
	}
	return nil, errNoFit
}

// parseText interprets command-line text against an existing variant.
func parseText(key, s string, existing gguf.Value) (gguf.Value, error) {
	var raw any
	switch existing.Type {
	case gguf.TypeString:
		raw = s
	case gguf.TypeBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return gguf.Value{}, mismatch(key, existing, fmt.Sprintf("text %q", s))
		}
		raw = b
	case gguf.TypeArray:
		items, err := decodeJSONArray(s)
		if err != nil {
			return gguf.Value{}, mismatch(key, existing, fmt.Sprintf("text %q", s))
		}
		raw = items
	default:
		raw = json.Number(strings.TrimSpace(s))
	}
	out, err := coerce(existing.Type, elemTypeOf(existing), raw)
	if err != nil {
		return gguf.Value{}, mismatch(key, existing, fmt.Sprintf("text %q", s))
	}
	return gguf.Value{Type: existing.Type, Value: out}, nil
}

// inferText picks a variant for command-line text naming a new key: bool
// and number literals are recognised, JSON arrays are decoded, everything
// else is a string.
func inferText(s string) gguf.Value {
	t := strings.TrimSpace(s)
	if t == "true" || t == "false" {
		return gguf.Value{Type: gguf.TypeBool, Value: t == "true"}
	}
	if n, ok := parseNumber(t); ok && !math.IsInf(n.f, 0) && !math.IsNaN(n.f) {
		if v, err := infer(json.Number(t)); err == nil {
			return v
		}
	}
	if strings.HasPrefix(t, "[") {
		if items, err := decodeJSONArray(t); err == nil {
			if v, err := infer(items); err == nil {
				return v
			}
		}
	}
	return gguf.Value{Type: gguf.TypeString, Value: s}
}

func decodeJSONArray(s string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	if items == nil {
		return nil, fmt.Errorf("not an array")
	}
	return items, nil
}

// describe names the shape of a raw value for error messages.
func describe(raw any) string {
	switch v := raw.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case json.Number:
		if n, ok := parseNumber(string(v)); ok && n.isInt {
			return "integer " + string(v)
		}
		return "number " + string(v)
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if n, ok := toNumber(raw); ok {
		if n.isInt {
			return fmt.Sprintf("integer %v", raw)
		}
		return fmt.Sprintf("number %v", raw)
	}
	return fmt.Sprintf("%T", raw)
}
