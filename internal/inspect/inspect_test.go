package inspect

import (
	"bytes"
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/ggufedit/internal/gguf"
	"github.com/samcharles93/ggufedit/internal/gguf/gguftest"
)

func decode(t *testing.T, fx gguftest.Fixture) *gguf.File {
	t.Helper()
	raw := fx.Bytes(t)
	f, err := gguf.Decode(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	return f
}

func TestBuildSample(t *testing.T) {
	r := Build(decode(t, gguftest.Sample()), DefaultOptions)

	assert.Equal(t, uint32(1), r.Version)
	assert.Equal(t, uint64(3), r.KVCount)
	assert.Equal(t, uint64(2), r.TensorCount)
	assert.Equal(t, uint64(32), r.Alignment)
	assert.Equal(t, Layout{
		MetadataOffset:   24,
		MetadataSize:     99,
		TensorInfoOffset: 123,
		TensorInfoSize:   110,
		DataOffset:       256,
		DataSize:         176,
		FileSize:         432,
	}, r.Layout)

	require.Len(t, r.Metadata, 3)
	assert.Equal(t, Entry{Key: "general.name", Type: "string", Value: "tiny"}, r.Metadata[1])
	assert.Equal(t, Entry{Key: "block_count", Type: "u32", Value: uint32(2)}, r.Metadata[2])

	require.Len(t, r.Tensors, 2)
	assert.Equal(t, Tensor{
		Name:       "output.weight",
		Type:       "F16",
		Dims:       []uint64{8, 3},
		Offset:     128,
		FileOffset: 384,
		Size:       48,
	}, r.Tensors[1])
}

func TestBuildArraysAndFloats(t *testing.T) {
	fx := gguftest.Sample()
	vals := make([]any, 20)
	for i := range vals {
		vals[i] = int32(i)
	}
	fx.KV = append(fx.KV,
		gguftest.KV{Key: "ids", Value: gguf.Value{Type: gguf.TypeArray, Value: gguf.ArrayValue{ElemType: gguf.TypeInt32, Values: vals}}},
		gguftest.KV{Key: "eps", Value: gguf.Value{Type: gguf.TypeFloat32, Value: float32(1e-5)}},
		gguftest.KV{Key: "bad", Value: gguf.Value{Type: gguf.TypeFloat64, Value: math.Inf(1)}},
	)
	r := Build(decode(t, fx), Options{ArrayLimit: 4, TensorLimit: 1, Filter: ""})

	ids := r.Metadata[3]
	assert.Equal(t, "array[i32]", ids.Type)
	assert.Equal(t, 20, ids.Len)
	assert.True(t, ids.Truncated)
	assert.Equal(t, []any{int32(0), int32(1), int32(2), int32(3)}, ids.Value)

	assert.Equal(t, json.Number("1e-05"), r.Metadata[4].Value)
	assert.Equal(t, "+Inf", r.Metadata[5].Value)

	assert.Len(t, r.Tensors, 1)
	assert.Equal(t, 1, r.MoreTensors)

	out, err := json.Marshal(r.Metadata[4])
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"eps","type":"f32","value":1e-05}`, string(out))
}

func TestBuildFilter(t *testing.T) {
	r := Build(decode(t, gguftest.Sample()), Options{TensorLimit: -1, Filter: "general."})
	require.Len(t, r.Metadata, 2)
	assert.Empty(t, r.Tensors)

	r = Build(decode(t, gguftest.Sample()), Options{TensorLimit: -1, Filter: "output"})
	assert.Empty(t, r.Metadata)
	require.Len(t, r.Tensors, 1)
	assert.Equal(t, "output.weight", r.Tensors[0].Name)
}

func TestWriteText(t *testing.T) {
	fx := gguftest.Sample()
	fx.KV = append(fx.KV, gguftest.KV{Key: "tokens", Value: gguf.Value{
		Type:  gguf.TypeArray,
		Value: gguf.ArrayValue{ElemType: gguf.TypeString, Values: []any{"a", "b", "c"}},
	}})
	r := Build(decode(t, fx), Options{ArrayLimit: 2, TensorLimit: 1})
	r.Path = "tiny.gguf"

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "File: tiny.gguf (")
	assert.Contains(t, out, "GGUF v1 | tensors=2 | kv=4 | alignment=32")
	assert.Contains(t, out, `"tiny"`)
	assert.Contains(t, out, `["a", "b", ...] (len=3)`)
	assert.Contains(t, out, "token_embd.weight")
	assert.Contains(t, out, "dims=[8x4]")
	assert.Contains(t, out, "... (1 more)")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "432 B", FormatBytes(432))
	assert.Equal(t, "1.50 KiB", FormatBytes(1536))
	assert.Equal(t, "2.00 GiB", FormatBytes(2<<30))
}
