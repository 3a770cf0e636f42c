package editor

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/ggufedit/internal/gguf"
)

func resolveMetadata(t *testing.T) *gguf.Metadata {
	t.Helper()
	md, err := gguf.NewMetadata(
		gguf.Entry{Key: "general.name", Value: gguf.Value{Type: gguf.TypeString, Value: "tiny"}},
		gguf.Entry{Key: "block_count", Value: gguf.Value{Type: gguf.TypeUint32, Value: uint32(2)}},
		gguf.Entry{Key: "rope.freq_base", Value: gguf.Value{Type: gguf.TypeFloat32, Value: float32(10000)}},
		gguf.Entry{Key: "use_parallel", Value: gguf.Value{Type: gguf.TypeBool, Value: false}},
		gguf.Entry{Key: "shift", Value: gguf.Value{Type: gguf.TypeInt8, Value: int8(-1)}},
		gguf.Entry{Key: "tokens", Value: gguf.Value{Type: gguf.TypeArray, Value: gguf.ArrayValue{
			ElemType: gguf.TypeString, Values: []any{"a", "b"},
		}}},
	)
	require.NoError(t, err)
	return md
}

func TestResolveAgainstExisting(t *testing.T) {
	md := resolveMetadata(t)

	tests := []struct {
		key  string
		raw  any
		want gguf.Value
	}{
		{"block_count", json.Number("7"), gguf.Value{Type: gguf.TypeUint32, Value: uint32(7)}},
		{"block_count", 4294967295, gguf.Value{Type: gguf.TypeUint32, Value: uint32(4294967295)}},
		{"rope.freq_base", json.Number("1"), gguf.Value{Type: gguf.TypeFloat32, Value: float32(1)}},
		{"rope.freq_base", 0.25, gguf.Value{Type: gguf.TypeFloat32, Value: float32(0.25)}},
		{"use_parallel", true, gguf.Value{Type: gguf.TypeBool, Value: true}},
		{"shift", json.Number("-128"), gguf.Value{Type: gguf.TypeInt8, Value: int8(-128)}},
		{"general.name", "tiny-v2", gguf.Value{Type: gguf.TypeString, Value: "tiny-v2"}},
		{"tokens", []any{"x", "y", "z"}, gguf.Value{Type: gguf.TypeArray, Value: gguf.ArrayValue{
			ElemType: gguf.TypeString, Values: []any{"x", "y", "z"},
		}}},
		{"tokens", []any{}, gguf.Value{Type: gguf.TypeArray, Value: gguf.ArrayValue{
			ElemType: gguf.TypeString, Values: []any{},
		}}},
	}
	for _, tc := range tests {
		got, err := Resolve(tc.key, tc.raw, md)
		require.NoError(t, err, "%s <- %v", tc.key, tc.raw)
		assert.Equal(t, tc.want, got, "%s <- %v", tc.key, tc.raw)
	}
}

func TestResolveMismatch(t *testing.T) {
	md := resolveMetadata(t)

	tests := []struct {
		key string
		raw any
	}{
		{"block_count", "four"},
		{"block_count", json.Number("-1")},
		{"block_count", json.Number("4294967296")},
		{"block_count", json.Number("1.5")},
		{"block_count", true},
		{"shift", json.Number("128")},
		{"general.name", json.Number("3")},
		{"use_parallel", "yes"},
		{"tokens", []any{json.Number("1")}},
		{"tokens", "a,b"},
		{"rope.freq_base", json.Number("1e39")},
		{"block_count", map[string]any{"type": "u64", "value": json.Number("2")}},
		{"block_count", gguf.Value{Type: gguf.TypeInt32, Value: int32(2)}},
	}
	for _, tc := range tests {
		_, err := Resolve(tc.key, tc.raw, md)
		require.ErrorIs(t, err, gguf.ErrTypeMismatch, "%s <- %#v", tc.key, tc.raw)
		var tm *gguf.TypeMismatchError
		require.ErrorAs(t, err, &tm)
		assert.Equal(t, tc.key, tm.Key)
	}
}

func TestResolveInfersNewKeys(t *testing.T) {
	md := resolveMetadata(t)

	tests := []struct {
		raw  any
		want gguf.Value
	}{
		{true, gguf.Value{Type: gguf.TypeBool, Value: true}},
		{"mit", gguf.Value{Type: gguf.TypeString, Value: "mit"}},
		{json.Number("5"), gguf.Value{Type: gguf.TypeUint32, Value: uint32(5)}},
		{json.Number("-5"), gguf.Value{Type: gguf.TypeInt32, Value: int32(-5)}},
		{json.Number("5000000000"), gguf.Value{Type: gguf.TypeUint64, Value: uint64(5000000000)}},
		{json.Number("-5000000000"), gguf.Value{Type: gguf.TypeInt64, Value: int64(-5000000000)}},
		{json.Number("0.5"), gguf.Value{Type: gguf.TypeFloat32, Value: float32(0.5)}},
		{json.Number("0.1"), gguf.Value{Type: gguf.TypeFloat64, Value: 0.1}},
		{7, gguf.Value{Type: gguf.TypeUint32, Value: uint32(7)}},
		{[]any{1, 2, -3}, gguf.Value{Type: gguf.TypeArray, Value: gguf.ArrayValue{
			ElemType: gguf.TypeInt32, Values: []any{int32(1), int32(2), int32(-3)},
		}}},
		{[]any{json.Number("1"), json.Number("0.5")}, gguf.Value{Type: gguf.TypeArray, Value: gguf.ArrayValue{
			ElemType: gguf.TypeFloat32, Values: []any{float32(1), float32(0.5)},
		}}},
		{[]any{"a", "b"}, gguf.Value{Type: gguf.TypeArray, Value: gguf.ArrayValue{
			ElemType: gguf.TypeString, Values: []any{"a", "b"},
		}}},
		{map[string]any{"type": "u16", "value": json.Number("7")}, gguf.Value{Type: gguf.TypeUint16, Value: uint16(7)}},
		{map[string]any{"type": "array", "elem": "i8", "value": []any{json.Number("-1")}}, gguf.Value{
			Type: gguf.TypeArray, Value: gguf.ArrayValue{ElemType: gguf.TypeInt8, Values: []any{int8(-1)}},
		}},
	}
	for _, tc := range tests {
		got, err := Resolve("new.key", tc.raw, md)
		require.NoError(t, err, "%#v", tc.raw)
		assert.Equal(t, tc.want, got, "%#v", tc.raw)
	}
}

func TestResolveInvalid(t *testing.T) {
	md := resolveMetadata(t)

	for _, raw := range []any{
		nil,
		[]any{},
		[]any{"a", json.Number("1")},
		map[string]any{"value": json.Number("1")},
		map[string]any{"type": "complex64", "value": json.Number("1")},
		map[string]any{"type": "array", "value": []any{}},
		struct{}{},
	} {
		_, err := Resolve("new.key", raw, md)
		require.Error(t, err, "%#v", raw)
	}

	_, err := Resolve("new.key", nil, md)
	assert.ErrorIs(t, err, ErrInvalidUpdate)
	_, err = Resolve("new.key", []any{}, md)
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestResolveText(t *testing.T) {
	md := resolveMetadata(t)

	tests := []struct {
		key  string
		text Text
		want gguf.Value
	}{
		{"block_count", "9", gguf.Value{Type: gguf.TypeUint32, Value: uint32(9)}},
		{"use_parallel", "true", gguf.Value{Type: gguf.TypeBool, Value: true}},
		{"general.name", "12", gguf.Value{Type: gguf.TypeString, Value: "12"}},
		{"rope.freq_base", "500000", gguf.Value{Type: gguf.TypeFloat32, Value: float32(500000)}},
		{"tokens", `["p","q"]`, gguf.Value{Type: gguf.TypeArray, Value: gguf.ArrayValue{
			ElemType: gguf.TypeString, Values: []any{"p", "q"},
		}}},
		{"new.count", "12", gguf.Value{Type: gguf.TypeUint32, Value: uint32(12)}},
		{"new.flag", "false", gguf.Value{Type: gguf.TypeBool, Value: false}},
		{"new.name", "hello world", gguf.Value{Type: gguf.TypeString, Value: "hello world"}},
		{"new.inf", "inf", gguf.Value{Type: gguf.TypeString, Value: "inf"}},
		{"new.list", "[1, 2]", gguf.Value{Type: gguf.TypeArray, Value: gguf.ArrayValue{
			ElemType: gguf.TypeUint32, Values: []any{uint32(1), uint32(2)},
		}}},
	}
	for _, tc := range tests {
		got, err := Resolve(tc.key, tc.text, md)
		require.NoError(t, err, "%s=%s", tc.key, tc.text)
		assert.Equal(t, tc.want, got, "%s=%s", tc.key, tc.text)
	}

	_, err := Resolve("block_count", Text("many"), md)
	assert.ErrorIs(t, err, gguf.ErrTypeMismatch)
	_, err = Resolve("use_parallel", Text("maybe"), md)
	assert.ErrorIs(t, err, gguf.ErrTypeMismatch)
}
