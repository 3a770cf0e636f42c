package gguf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// maxArrayDepth bounds nested arrays so a hostile file cannot recurse
// without limit.
const maxArrayDepth = 8

var errMalformed = errors.New("malformed")

func readValue(r *reader, vtype ValueType) (any, error) {
	return readValueDepth(r, vtype, 0)
}

func readValueDepth(r *reader, vtype ValueType, depth int) (any, error) {
	if w := fixedWidth(vtype); w > 0 {
		bits, err := r.bits(int(w))
		if err != nil {
			return nil, err
		}
		return scalarFromBits(vtype, bits)
	}
	switch vtype {
	case TypeString:
		return r.str(MaxStringLen)
	case TypeArray:
		if depth >= maxArrayDepth {
			return nil, fmt.Errorf("arrays nested deeper than %d: %w", maxArrayDepth, errMalformed)
		}
		elemTag, err := r.u8()
		if err != nil {
			return nil, err
		}
		elemType := ValueType(elemTag)
		if !elemType.Valid() {
			return nil, fmt.Errorf("unknown array element type %d: %w", elemTag, errMalformed)
		}
		count, err := r.u64()
		if err != nil {
			return nil, err
		}
		if minw := minEncodedWidth(elemType); count > uint64(r.remaining())/minw {
			return nil, fmt.Errorf("array of %d %s exceeds %d remaining bytes: %w", count, elemType, r.remaining(), errTruncated)
		}
		values := make([]any, 0, count)
		for range count {
			v, err := readValueDepth(r, elemType, depth+1)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ArrayValue{ElemType: elemType, Values: values}, nil
	default:
		return nil, fmt.Errorf("unknown value type %d: %w", uint8(vtype), errMalformed)
	}
}

// scalarFromBits converts the raw little-endian bits of a fixed-width value
// to its Go payload.
func scalarFromBits(t ValueType, bits uint64) (any, error) {
	switch t {
	case TypeUint8:
		return uint8(bits), nil
	case TypeInt8:
		return int8(bits), nil
	case TypeUint16:
		return uint16(bits), nil
	case TypeInt16:
		return int16(bits), nil
	case TypeUint32:
		return uint32(bits), nil
	case TypeInt32:
		return int32(bits), nil
	case TypeUint64:
		return bits, nil
	case TypeInt64:
		return int64(bits), nil
	case TypeFloat32:
		return math.Float32frombits(uint32(bits)), nil
	case TypeFloat64:
		return math.Float64frombits(bits), nil
	case TypeBool:
		if bits > 1 {
			return nil, fmt.Errorf("bool byte %d: %w", bits, errMalformed)
		}
		return bits == 1, nil
	default:
		return nil, fmt.Errorf("%s is not a fixed-width type: %w", t, errMalformed)
	}
}

// isDecodeError separates bad encodings from failures of the underlying
// reader, which are passed through untouched.
func isDecodeError(err error) bool {
	return errors.Is(err, errTruncated) || errors.Is(err, errMalformed)
}

// fixedWidth returns the encoded width of scalar types and 0 for strings and
// arrays.
func fixedWidth(t ValueType) uint64 {
	switch t {
	case TypeUint8, TypeInt8, TypeBool:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

func minEncodedWidth(t ValueType) uint64 {
	switch t {
	case TypeString:
		return 8
	case TypeArray:
		return 1 + 8
	default:
		return fixedWidth(t)
	}
}

// EncodedSize returns the number of bytes AppendValue produces for v's
// payload, excluding the type tag. It returns false when v is malformed.
func EncodedSize(v Value) (uint64, bool) {
	return payloadSize(v.Type, v.Value)
}

func payloadSize(t ValueType, x any) (uint64, bool) {
	switch t {
	case TypeString:
		s, ok := x.(string)
		if !ok || len(s) > MaxStringLen {
			return 0, false
		}
		return 8 + uint64(len(s)), true
	case TypeArray:
		arr, ok := x.(ArrayValue)
		if !ok || !arr.ElemType.Valid() {
			return 0, false
		}
		n := uint64(1 + 8)
		if w := fixedWidth(arr.ElemType); w > 0 {
			for _, e := range arr.Values {
				if !scalarMatches(arr.ElemType, e) {
					return 0, false
				}
			}
			return n + w*uint64(len(arr.Values)), true
		}
		for _, e := range arr.Values {
			w, ok := payloadSize(arr.ElemType, e)
			if !ok {
				return 0, false
			}
			n += w
		}
		return n, true
	default:
		if !scalarMatches(t, x) {
			return 0, false
		}
		return fixedWidth(t), true
	}
}

func scalarMatches(t ValueType, x any) bool {
	switch x.(type) {
	case uint8:
		return t == TypeUint8
	case int8:
		return t == TypeInt8
	case uint16:
		return t == TypeUint16
	case int16:
		return t == TypeInt16
	case uint32:
		return t == TypeUint32
	case int32:
		return t == TypeInt32
	case uint64:
		return t == TypeUint64
	case int64:
		return t == TypeInt64
	case float32:
		return t == TypeFloat32
	case float64:
		return t == TypeFloat64
	case bool:
		return t == TypeBool
	default:
		return false
	}
}

// CheckValue reports whether v's Go payload agrees with its tag, recursively.
func CheckValue(v Value) error {
	if !v.Type.Valid() {
		return &ValueError{Reason: fmt.Sprintf("unknown value type %d", uint8(v.Type))}
	}
	if s, ok := v.Value.(string); ok && len(s) > MaxStringLen {
		return &ValueError{Reason: fmt.Sprintf("string of %d bytes exceeds limit of %d", len(s), MaxStringLen)}
	}
	if _, ok := EncodedSize(v); !ok {
		return &ValueError{Reason: fmt.Sprintf("payload %T does not match tag %s", v.Value, v.Variant())}
	}
	return nil
}

// AppendValue appends the payload of v (no tag) to dst.
func AppendValue(dst []byte, v Value) ([]byte, error) {
	if err := CheckValue(v); err != nil {
		return dst, err
	}
	return appendPayload(dst, v.Type, v.Value), nil
}

// appendPayload expects a checked payload.
func appendPayload(dst []byte, t ValueType, x any) []byte {
	le := binary.LittleEndian
	switch v := x.(type) {
	case uint8:
		return append(dst, v)
	case int8:
		return append(dst, uint8(v))
	case uint16:
		return le.AppendUint16(dst, v)
	case int16:
		return le.AppendUint16(dst, uint16(v))
	case uint32:
		return le.AppendUint32(dst, v)
	case int32:
		return le.AppendUint32(dst, uint32(v))
	case uint64:
		return le.AppendUint64(dst, v)
	case int64:
		return le.AppendUint64(dst, uint64(v))
	case float32:
		return le.AppendUint32(dst, math.Float32bits(v))
	case float64:
		return le.AppendUint64(dst, math.Float64bits(v))
	case bool:
		if v {
			return append(dst, 1)
		}
		return append(dst, 0)
	case string:
		return appendString(dst, v)
	case ArrayValue:
		dst = append(dst, uint8(v.ElemType))
		dst = le.AppendUint64(dst, uint64(len(v.Values)))
		for _, e := range v.Values {
			dst = appendPayload(dst, v.ElemType, e)
		}
		return dst
	default:
		panic(fmt.Sprintf("gguf: unchecked payload %T for %s", x, t))
	}
}

func appendString(dst []byte, s string) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(len(s)))
	return append(dst, s...)
}
