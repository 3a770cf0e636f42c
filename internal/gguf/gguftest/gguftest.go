// Package gguftest writes small container files for tests. The encoder here
// is written independently of package gguf so round-trip tests do not check
// the codec against itself.
package gguftest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/samcharles93/ggufedit/internal/gguf"
)

type KV struct {
	Key   string
	Value gguf.Value
}

type Tensor struct {
	Name string
	Dims []uint64
	Type gguf.TensorType
	// Data defaults to a deterministic pattern of the tensor's byte size.
	Data []byte
}

// Fixture describes a file. Zero Version means gguf.Version; zero Alignment
// means the alignment implied by the metadata.
type Fixture struct {
	Magic     string
	Version   uint32
	Alignment uint64
	KV        []KV
	Tensors   []Tensor
	// Trailing bytes appended after the tensor data.
	Trailing []byte
}

// Sample is a two-tensor, three-entry file.
func Sample() Fixture {
	return Fixture{
		KV: []KV{
			{"general.architecture", gguf.Value{Type: gguf.TypeString, Value: "llama"}},
			{"general.name", gguf.Value{Type: gguf.TypeString, Value: "tiny"}},
			{"block_count", gguf.Value{Type: gguf.TypeUint32, Value: uint32(2)}},
		},
		Tensors: []Tensor{
			{Name: "token_embd.weight", Dims: []uint64{8, 4}, Type: gguf.GGMLTypeF32},
			{Name: "output.weight", Dims: []uint64{8, 3}, Type: gguf.GGMLTypeF16},
		},
	}
}

// Bytes encodes the fixture.
func (fx Fixture) Bytes(tb testing.TB) []byte {
	tb.Helper()
	var buf bytes.Buffer
	le := binary.LittleEndian
	w := func(v any) {
		if err := binary.Write(&buf, le, v); err != nil {
			tb.Fatalf("encode fixture: %v", err)
		}
	}

	magic := fx.Magic
	if magic == "" {
		magic = "GGUF"
	}
	buf.WriteString(magic)
	version := fx.Version
	if version == 0 {
		version = gguf.Version
	}
	w(version)
	w(uint64(len(fx.Tensors)))
	w(uint64(len(fx.KV)))

	alignment := fx.Alignment
	for _, kv := range fx.KV {
		writeString(w, &buf, kv.Key)
		w(uint8(kv.Value.Type))
		writeValue(tb, w, &buf, kv.Value.Type, kv.Value.Value)
		if kv.Key == gguf.KeyAlignment && alignment == 0 {
			if v, ok := kv.Value.Value.(uint32); ok {
				alignment = uint64(v)
			}
		}
	}
	if alignment == 0 {
		alignment = gguf.DefaultAlignment
	}

	data := fx.TensorData(tb, alignment)
	var off uint64
	for _, t := range fx.Tensors {
		off = alignUp(off, alignment)
		writeString(w, &buf, t.Name)
		w(uint32(len(t.Dims)))
		for _, d := range t.Dims {
			w(d)
		}
		w(uint32(t.Type))
		w(off)
		off += uint64(len(tensorBytes(tb, t)))
	}

	if pad := alignUp(uint64(buf.Len()), alignment) - uint64(buf.Len()); pad > 0 {
		buf.Write(make([]byte, pad))
	}
	buf.Write(data)
	buf.Write(fx.Trailing)
	return buf.Bytes()
}

// TensorData returns the tensor-data segment: every tensor's bytes at its
// aligned offset.
func (fx Fixture) TensorData(tb testing.TB, alignment uint64) []byte {
	tb.Helper()
	var out []byte
	for _, t := range fx.Tensors {
		if pad := alignUp(uint64(len(out)), alignment) - uint64(len(out)); pad > 0 {
			out = append(out, make([]byte, pad)...)
		}
		out = append(out, tensorBytes(tb, t)...)
	}
	return out
}

// Write stores the fixture as dir/name and returns the path.
func (fx Fixture) Write(tb testing.TB, dir, name string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, fx.Bytes(tb), 0o644); err != nil {
		tb.Fatalf("write fixture: %v", err)
	}
	return path
}

func tensorBytes(tb testing.TB, t Tensor) []byte {
	tb.Helper()
	if t.Data != nil {
		return t.Data
	}
	size, ok, err := gguf.TensorInfo{Dims: t.Dims, Type: t.Type}.ByteSize()
	if err != nil || !ok {
		tb.Fatalf("fixture tensor %s: no byte size for %s (%v)", t.Name, t.Type, err)
	}
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(len(t.Name) + i*7)
	}
	return out
}

func writeString(w func(any), buf *bytes.Buffer, s string) {
	w(uint64(len(s)))
	buf.WriteString(s)
}

func writeValue(tb testing.TB, w func(any), buf *bytes.Buffer, t gguf.ValueType, v any) {
	tb.Helper()
	switch x := v.(type) {
	case string:
		writeString(w, buf, x)
	case gguf.ArrayValue:
		w(uint8(x.ElemType))
		w(uint64(len(x.Values)))
		for _, e := range x.Values {
			writeValue(tb, w, buf, x.ElemType, e)
		}
	case uint8, int8, uint16, int16, uint32, int32, uint64, int64, float32, float64, bool:
		w(x)
	default:
		tb.Fatalf("fixture value %T for %s", v, t)
	}
}

func alignUp(off, a uint64) uint64 {
	if rem := off % a; rem != 0 {
		return off + a - rem
	}
	return off
}
