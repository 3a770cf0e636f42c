// Package inspect turns a decoded container into a report for people and
// for JSON clients.
package inspect

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/samcharles93/ggufedit/internal/gguf"
)

// Options limits how much of a file a report carries.
type Options struct {
	// ArrayLimit caps the elements listed per array value. Zero or less
	// lists all of them.
	ArrayLimit int
	// TensorLimit caps the tensors listed. Zero lists none, a negative
	// value lists all.
	TensorLimit int
	// Filter keeps only metadata keys and tensor names containing it.
	Filter string
}

// DefaultOptions is what the CLI and the HTTP service use unless told
// otherwise.
var DefaultOptions = Options{ArrayLimit: 16, TensorLimit: -1}

type Report struct {
	Path        string   `json:"path,omitempty"`
	Version     uint32   `json:"version"`
	TensorCount uint64   `json:"tensor_count"`
	KVCount     uint64   `json:"kv_count"`
	Alignment   uint64   `json:"alignment"`
	Layout      Layout   `json:"layout"`
	Metadata    []Entry  `json:"metadata"`
	Tensors     []Tensor `json:"tensors"`
	// MoreTensors counts tensors left out by Options.TensorLimit.
	MoreTensors int `json:"more_tensors,omitempty"`
}

type Layout struct {
	MetadataOffset   uint64 `json:"metadata_offset"`
	MetadataSize     uint64 `json:"metadata_size"`
	TensorInfoOffset uint64 `json:"tensor_info_offset"`
	TensorInfoSize   uint64 `json:"tensor_info_size"`
	DataOffset       uint64 `json:"data_offset"`
	DataSize         uint64 `json:"data_size"`
	FileSize         uint64 `json:"file_size"`
}

// Entry is one metadata key. Value holds JSON-friendly data. Floats are
// json.Number in their shortest form, or strings when not finite.
type Entry struct {
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     any    `json:"value"`
	Len       int    `json:"len,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
}

type Tensor struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	Dims       []uint64 `json:"dims"`
	Offset     uint64   `json:"offset"`
	FileOffset uint64   `json:"file_offset"`
	Size       uint64   `json:"size,omitempty"`
}

// Build describes f.
func Build(f *gguf.File, opts Options) *Report {
	r := &Report{
		Path:        f.Path,
		Version:     f.Header.Version,
		TensorCount: f.Header.TensorCount,
		KVCount:     f.Header.KVCount,
		Alignment:   f.Alignment,
		Layout: Layout{
			MetadataOffset:   f.MetadataOffset,
			MetadataSize:     f.MetadataSize,
			TensorInfoOffset: f.TensorInfoOffset,
			TensorInfoSize:   f.TensorInfoSize,
			DataOffset:       f.DataOffset,
			DataSize:         f.DataSize,
			FileSize:         f.DataOffset + f.DataSize,
		},
		Metadata: []Entry{},
		Tensors:  []Tensor{},
	}

	for _, e := range f.Metadata.Entries() {
		if !matches(e.Key, opts.Filter) {
			continue
		}
		entry := Entry{Key: e.Key, Type: e.Value.Variant()}
		entry.Value, entry.Truncated = jsonValue(e.Value.Value, opts.ArrayLimit)
		if arr, ok := e.Value.Value.(gguf.ArrayValue); ok {
			entry.Len = len(arr.Values)
		}
		r.Metadata = append(r.Metadata, entry)
	}

	listed := 0
	for _, t := range f.Tensors {
		if !matches(t.Name, opts.Filter) {
			continue
		}
		if opts.TensorLimit >= 0 && listed >= opts.TensorLimit {
			r.MoreTensors++
			continue
		}
		listed++
		size, _, _ := t.ByteSize()
		r.Tensors = append(r.Tensors, Tensor{
			Name:       t.Name,
			Type:       t.Type.String(),
			Dims:       append([]uint64{}, t.Dims...),
			Offset:     t.Offset,
			FileOffset: t.FileOffset,
			Size:       size,
		})
	}
	return r
}

func matches(s, filter string) bool {
	return filter == "" || strings.Contains(s, filter)
}

func jsonValue(v any, limit int) (any, bool) {
	switch x := v.(type) {
	case float32:
		return jsonFloat(float64(x), 32), false
	case float64:
		return jsonFloat(x, 64), false
	case gguf.ArrayValue:
		n := len(x.Values)
		truncated := false
		if limit > 0 && n > limit {
			n = limit
			truncated = true
		}
		out := make([]any, 0, n)
		for _, e := range x.Values[:n] {
			ev, _ := jsonValue(e, limit)
			out = append(out, ev)
		}
		return out, truncated
	default:
		return v, false
	}
}

func jsonFloat(f float64, bits int) any {
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	return json.Number(s)
}

// WriteText prints r the way the CLI shows it.
func WriteText(w io.Writer, r *Report) error {
	pw := &printer{w: w}
	if r.Path != "" {
		pw.printf("File: %s (%s)\n", r.Path, FormatBytes(r.Layout.FileSize))
	}
	pw.printf("GGUF v%d | tensors=%d | kv=%d | alignment=%d | data_offset=%d\n",
		r.Version, r.TensorCount, r.KVCount, r.Alignment, r.Layout.DataOffset)
	pw.printf("Layout: metadata=[%d,%d) descriptors=[%d,%d) data=[%d,%d)\n",
		r.Layout.MetadataOffset, r.Layout.MetadataOffset+r.Layout.MetadataSize,
		r.Layout.TensorInfoOffset, r.Layout.TensorInfoOffset+r.Layout.TensorInfoSize,
		r.Layout.DataOffset, r.Layout.DataOffset+r.Layout.DataSize)

	if len(r.Metadata) > 0 {
		pw.printf("\nMetadata:\n")
		for _, e := range r.Metadata {
			pw.printf("  %-40s %-12s %s\n", e.Key, e.Type, formatEntry(e))
		}
	}

	if len(r.Tensors) > 0 || r.MoreTensors > 0 {
		pw.printf("\nTensors:\n")
		for _, t := range r.Tensors {
			pw.printf("  %-40s %-6s dims=%s off=%d\n", t.Name, t.Type, FormatDims(t.Dims), t.Offset)
		}
		if r.MoreTensors > 0 {
			pw.printf("  ... (%d more)\n", r.MoreTensors)
		}
	}
	return pw.err
}

func formatEntry(e Entry) string {
	s := formatJSONValue(e.Value)
	if e.Truncated {
		s = strings.TrimSuffix(s, "]") + ", ...] (len=" + strconv.Itoa(e.Len) + ")"
	}
	return s
}

func formatJSONValue(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatJSONValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case json.Number:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func FormatDims(dims []uint64) string {
	if len(dims) == 0 {
		return "[]"
	}
	parts := make([]string, len(dims))
	for i, v := range dims {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return "[" + strings.Join(parts, "x") + "]"
}

func FormatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
		tb = 1024 * gb
	)
	switch {
	case b >= tb:
		return fmt.Sprintf("%.2f TiB", float64(b)/float64(tb))
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
