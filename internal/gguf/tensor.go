package gguf

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

type TensorType uint32

const (
	GGMLTypeF32  TensorType = 0
	GGMLTypeF16  TensorType = 1
	GGMLTypeQ4_0 TensorType = 2
	GGMLTypeQ4_1 TensorType = 3
	GGMLTypeQ4_2 TensorType = 4
	GGMLTypeQ4_3 TensorType = 5
	GGMLTypeQ5_0 TensorType = 6
	GGMLTypeQ5_1 TensorType = 7
	GGMLTypeQ8_0 TensorType = 8
	GGMLTypeQ8_1 TensorType = 9
	GGMLTypeQ2_K TensorType = 10
	GGMLTypeQ3_K TensorType = 11
	GGMLTypeQ4_K TensorType = 12
	GGMLTypeQ5_K TensorType = 13
	GGMLTypeQ6_K TensorType = 14
	GGMLTypeQ8_K TensorType = 15
	GGMLTypeI8   TensorType = 16
	GGMLTypeI16  TensorType = 17
	GGMLTypeI32  TensorType = 18
	GGMLTypeI64  TensorType = 19
	GGMLTypeF64  TensorType = 20
	GGMLTypeBF16 TensorType = 30
)

func (t TensorType) String() string {
	switch t {
	case GGMLTypeF32:
		return "F32"
	case GGMLTypeF16:
		return "F16"
	case GGMLTypeQ4_0:
		return "Q4_0"
	case GGMLTypeQ4_1:
		return "Q4_1"
	case GGMLTypeQ4_2:
		return "Q4_2"
	case GGMLTypeQ4_3:
		return "Q4_3"
	case GGMLTypeQ5_0:
		return "Q5_0"
	case GGMLTypeQ5_1:
		return "Q5_1"
	case GGMLTypeQ8_0:
		return "Q8_0"
	case GGMLTypeQ8_1:
		return "Q8_1"
	case GGMLTypeQ2_K:
		return "Q2_K"
	case GGMLTypeQ3_K:
		return "Q3_K"
	case GGMLTypeQ4_K:
		return "Q4_K"
	case GGMLTypeQ5_K:
		return "Q5_K"
	case GGMLTypeQ6_K:
		return "Q6_K"
	case GGMLTypeQ8_K:
		return "Q8_K"
	case GGMLTypeI8:
		return "I8"
	case GGMLTypeI16:
		return "I16"
	case GGMLTypeI32:
		return "I32"
	case GGMLTypeI64:
		return "I64"
	case GGMLTypeF64:
		return "F64"
	case GGMLTypeBF16:
		return "BF16"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// QK_K is the super-block size of the k-quant formats.
const QK_K = 256

// typeTraits maps an element type to (elements per block, bytes per block).
var typeTraits = map[TensorType][2]uint64{
	GGMLTypeF32:  {1, 4},
	GGMLTypeF16:  {1, 2},
	GGMLTypeQ4_0: {32, 2 + 16},
	GGMLTypeQ4_1: {32, 2 + 2 + 16},
	GGMLTypeQ5_0: {32, 2 + 4 + 16},
	GGMLTypeQ5_1: {32, 2 + 2 + 4 + 16},
	GGMLTypeQ8_0: {32, 2 + 32},
	GGMLTypeQ8_1: {32, 4 + 4 + 32},
	GGMLTypeQ2_K: {QK_K, 16 + 64 + 2 + 2},
	GGMLTypeQ3_K: {QK_K, 32 + 64 + 12 + 2},
	GGMLTypeQ4_K: {QK_K, 2 + 2 + 12 + 128},
	GGMLTypeQ5_K: {QK_K, 2 + 2 + 12 + 32 + 128},
	GGMLTypeQ6_K: {QK_K, 128 + 64 + 16 + 2},
	GGMLTypeQ8_K: {QK_K, 4 + 256 + 32},
	GGMLTypeI8:   {1, 1},
	GGMLTypeI16:  {1, 2},
	GGMLTypeI32:  {1, 4},
	GGMLTypeI64:  {1, 8},
	GGMLTypeF64:  {1, 8},
	GGMLTypeBF16: {1, 2},
}

// TensorInfo is one tensor descriptor. Offset is the on-disk field and is
// relative to the start of the tensor-data segment. FileOffset is where the
// tensor's bytes sit in the file described by the owning File's layout.
type TensorInfo struct {
	Name       string
	Dims       []uint64
	Type       TensorType
	Offset     uint64
	FileOffset uint64
}

// Elements returns the element count of the tensor. A tensor without
// dimensions is a scalar.
func (t TensorInfo) Elements() (uint64, error) {
	var n uint64 = 1
	for _, d := range t.Dims {
		hi, lo := bits.Mul64(n, d)
		if hi != 0 {
			return 0, fmt.Errorf("tensor too large")
		}
		n = lo
	}
	return n, nil
}

// ByteSize returns the encoded size of the tensor's data. ok is false for
// element types whose block layout is unknown.
func (t TensorInfo) ByteSize() (size uint64, ok bool, err error) {
	traits, known := typeTraits[t.Type]
	if !known {
		return 0, false, nil
	}
	n, err := t.Elements()
	if err != nil {
		return 0, true, err
	}
	if n%traits[0] != 0 {
		return 0, true, fmt.Errorf("%s: %d elements is not a multiple of block size %d", t.Type, n, traits[0])
	}
	hi, lo := bits.Mul64(n/traits[0], traits[1])
	if hi != 0 {
		return 0, true, fmt.Errorf("tensor too large")
	}
	return lo, true, nil
}

func (t TensorInfo) encodedSize() uint64 {
	return 8 + uint64(len(t.Name)) + 4 + 8*uint64(len(t.Dims)) + 4 + 8
}

func appendTensorInfo(dst []byte, t TensorInfo) []byte {
	le := binary.LittleEndian
	dst = appendString(dst, t.Name)
	dst = le.AppendUint32(dst, uint32(len(t.Dims)))
	for _, d := range t.Dims {
		dst = le.AppendUint64(dst, d)
	}
	dst = le.AppendUint32(dst, uint32(t.Type))
	return le.AppendUint64(dst, t.Offset)
}

func readTensorInfo(r *reader) (TensorInfo, error) {
	name, err := r.str(MaxKeyLen)
	if err != nil {
		return TensorInfo{}, fmt.Errorf("name: %w", err)
	}
	nDim, err := r.u32()
	if err != nil {
		return TensorInfo{Name: name}, fmt.Errorf("dims: %w", err)
	}
	if uint64(nDim) > uint64(r.remaining())/8 {
		return TensorInfo{Name: name}, fmt.Errorf("%d dims exceed %d remaining bytes: %w", nDim, r.remaining(), errTruncated)
	}
	dims := make([]uint64, nDim)
	for d := range nDim {
		v, err := r.u64()
		if err != nil {
			return TensorInfo{Name: name}, fmt.Errorf("dim %d: %w", d, err)
		}
		dims[d] = v
	}
	ttype, err := r.u32()
	if err != nil {
		return TensorInfo{Name: name}, fmt.Errorf("type: %w", err)
	}
	offset, err := r.u64()
	if err != nil {
		return TensorInfo{Name: name}, fmt.Errorf("offset: %w", err)
	}
	return TensorInfo{
		Name:   name,
		Dims:   dims,
		Type:   TensorType(ttype),
		Offset: offset,
	}, nil
}

func cloneTensors(in []TensorInfo) []TensorInfo {
	out := make([]TensorInfo, len(in))
	for i, t := range in {
		t.Dims = append([]uint64(nil), t.Dims...)
		out[i] = t
	}
	return out
}
