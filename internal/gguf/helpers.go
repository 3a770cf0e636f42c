package gguf

import "fmt"

func GetString(md *Metadata, key string) (string, bool) {
	v, ok := md.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.Value.(string)
	return s, ok
}

func GetBool(md *Metadata, key string) (bool, bool) {
	v, ok := md.Get(key)
	if !ok {
		return false, false
	}
	b, ok := v.Value.(bool)
	return b, ok
}

func GetUint64(md *Metadata, key string) (uint64, bool) {
	v, ok := md.Get(key)
	if !ok {
		return 0, false
	}
	return asUint64(v.Value)
}

func GetFloat64(md *Metadata, key string) (float64, bool) {
	v, ok := md.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.Value.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// GetArray retrieves a slice of type T from the table.
// It checks that the value exists, is an array, and that all elements can be asserted to type T.
func GetArray[T any](md *Metadata, key string) ([]T, bool) {
	v, ok := md.Get(key)
	if !ok {
		return nil, false
	}
	arr, ok := v.Value.(ArrayValue)
	if !ok {
		return nil, false
	}

	out := make([]T, 0, len(arr.Values))
	for _, item := range arr.Values {
		tItem, ok := item.(T)
		if !ok {
			return nil, false
		}
		out = append(out, tItem)
	}
	return out, true
}

// FormatValue renders v for humans. Arrays longer than limit are summarised;
// limit <= 0 prints every element.
func FormatValue(v Value, limit int) string {
	switch val := v.Value.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case ArrayValue:
		if limit > 0 && len(val.Values) > limit {
			return fmt.Sprintf("array[%s] len=%d", val.ElemType, len(val.Values))
		}
		out := make([]byte, 0, 16*len(val.Values))
		out = append(out, '[')
		for i, e := range val.Values {
			if i > 0 {
				out = append(out, ", "...)
			}
			out = append(out, FormatValue(Value{Type: val.ElemType, Value: e}, limit)...)
		}
		return string(append(out, ']'))
	default:
		return fmt.Sprintf("%v", val)
	}
}
