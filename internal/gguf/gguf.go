// Package gguf models the GGUF-style container this tool edits: a fixed
// header, a run of typed key/value metadata, the tensor descriptor table and
// an opaque tensor-data segment. It decodes, validates and re-encodes
// everything in front of the tensor data; the data itself is only ever
// referenced by byte range.
package gguf

import (
	"fmt"
	"io"
	"strings"
)

const (
	magicGGUF = "GGUF"

	// Version is the only container version this package reads and writes.
	Version uint32 = 1

	// DefaultAlignment applies when general.alignment is absent.
	DefaultAlignment uint64 = 32

	// KeyAlignment overrides the tensor-data alignment.
	KeyAlignment = "general.alignment"
)

// ValueType is the on-disk tag of a metadata value.
type ValueType uint8

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

func (t ValueType) String() string {
	switch t {
	case TypeUint8:
		return "u8"
	case TypeInt8:
		return "i8"
	case TypeUint16:
		return "u16"
	case TypeInt16:
		return "i16"
	case TypeUint32:
		return "u32"
	case TypeInt32:
		return "i32"
	case TypeUint64:
		return "u64"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Valid reports whether t is a known tag.
func (t ValueType) Valid() bool {
	return t <= TypeFloat64
}

// ParseValueType accepts the short names printed by String as well as the
// long Go-style spellings (uint32, float64, ...).
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u8", "uint8":
		return TypeUint8, nil
	case "i8", "int8":
		return TypeInt8, nil
	case "u16", "uint16":
		return TypeUint16, nil
	case "i16", "int16":
		return TypeInt16, nil
	case "u32", "uint32":
		return TypeUint32, nil
	case "i32", "int32":
		return TypeInt32, nil
	case "u64", "uint64":
		return TypeUint64, nil
	case "i64", "int64":
		return TypeInt64, nil
	case "f32", "float32":
		return TypeFloat32, nil
	case "f64", "float64":
		return TypeFloat64, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "string", "str":
		return TypeString, nil
	case "array":
		return TypeArray, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", s)
	}
}

// ArrayValue is the payload of a TypeArray value. Every element holds the Go
// type matching ElemType; nested arrays hold ArrayValue elements.
type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

// Value is a tagged metadata value. The dynamic type of Value follows Type:
// uint8..uint64, int8..int64, float32, float64, bool, string or ArrayValue.
type Value struct {
	Type  ValueType
	Value any
}

// Variant describes the value's exact variant, including the element type of
// arrays (e.g. "array[i32]").
func (v Value) Variant() string {
	if v.Type != TypeArray {
		return v.Type.String()
	}
	arr, ok := v.Value.(ArrayValue)
	if !ok {
		return "array"
	}
	return "array[" + arr.ElemType.String() + "]"
}

// SameVariant reports whether a and b share a tag and, for arrays, an
// element tag.
func SameVariant(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	if a.Type != TypeArray {
		return true
	}
	aa, aok := a.Value.(ArrayValue)
	ba, bok := b.Value.(ArrayValue)
	return aok && bok && aa.ElemType == ba.ElemType
}

type Header struct {
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// File is a decoded container: everything in front of the tensor data plus
// a byte-range reference to the data segment in the source.
type File struct {
	Path      string
	Header    Header
	Metadata  *Metadata
	Tensors   []TensorInfo
	Alignment uint64
	Layout

	// DataStart and DataSize locate the tensor-data segment in the source.
	// They are not affected by relayout; the writer copies this range
	// verbatim to Layout.DataOffset.
	DataStart uint64
	DataSize  uint64
	// Size is the length of the source file.
	Size uint64

	src    io.ReaderAt
	closer io.Closer
}

// Close releases the source handle, if File owns one.
func (f *File) Close() error {
	if f == nil || f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}

// TensorByName returns the tensor info for the given name.
func (f *File) TensorByName(name string) (TensorInfo, bool) {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return TensorInfo{}, false
}

// DataReader streams the source tensor-data segment.
func (f *File) DataReader() *io.SectionReader {
	adviseSequential(f.src, int64(f.DataStart), int64(f.DataSize))
	return io.NewSectionReader(f.src, int64(f.DataStart), int64(f.DataSize))
}

func align(offset, alignment uint64) uint64 {
	if alignment == 0 {
		return offset
	}
	rem := offset % alignment
	if rem == 0 {
		return offset
	}
	return offset + (alignment - rem)
}

func asUint64(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int8:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int16:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int32:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	case int64:
		if t < 0 {
			return 0, false
		}
		return uint64(t), true
	default:
		return 0, false
	}
}
