package gguf

import "fmt"

// Validate checks the structural invariants a reader relies on: counts in
// the header, section boundaries, alignment, descriptor offsets and tensor
// extents against the data segment. It never looks at what metadata means.
func Validate(f *File) error {
	if f == nil || f.Metadata == nil {
		return layoutErrorf("missing metadata table")
	}
	if f.Header.Version != Version {
		return &VersionError{Version: f.Header.Version}
	}
	if f.Header.KVCount != uint64(f.Metadata.Len()) {
		return layoutErrorf("header declares %d metadata entries, table has %d", f.Header.KVCount, f.Metadata.Len())
	}
	if f.Header.TensorCount != uint64(len(f.Tensors)) {
		return layoutErrorf("header declares %d tensors, table has %d", f.Header.TensorCount, len(f.Tensors))
	}

	a := f.Alignment
	if a == 0 || a&(a-1) != 0 {
		return layoutErrorf("alignment %d is not a power of two", a)
	}
	if declared := f.Metadata.Alignment(); declared != a {
		return layoutErrorf("alignment %d disagrees with %s=%d", a, KeyAlignment, declared)
	}
	if want := ComputeLayout(f.Metadata, f.Tensors, a); want != f.Layout {
		return layoutErrorf("section boundaries %+v do not match tables (want %+v)", f.Layout, want)
	}

	names := make(map[string]struct{}, len(f.Tensors))
	var prev uint64
	for i, t := range f.Tensors {
		if _, dup := names[t.Name]; dup {
			return &LayoutError{Tensor: t.Name, Offset: t.Offset, Detail: "duplicate tensor name"}
		}
		names[t.Name] = struct{}{}

		if i > 0 && t.Offset < prev {
			return &LayoutError{Tensor: t.Name, Offset: t.Offset, Detail: fmt.Sprintf("offset decreases (previous tensor at %d)", prev)}
		}
		prev = t.Offset
		if t.Offset%a != 0 {
			return &LayoutError{Tensor: t.Name, Offset: t.Offset, Detail: fmt.Sprintf("offset not aligned to %d", a)}
		}
		if t.FileOffset != f.DataOffset+t.Offset {
			return &LayoutError{Tensor: t.Name, Offset: t.Offset, Detail: fmt.Sprintf("file offset %d does not match data offset %d", t.FileOffset, f.DataOffset)}
		}

		size, known, err := t.ByteSize()
		if err != nil {
			return &LayoutError{Tensor: t.Name, Offset: t.Offset, Detail: err.Error()}
		}
		if t.Offset > f.DataSize || (known && size > f.DataSize-t.Offset) {
			return &LayoutError{
				Tensor: t.Name,
				Offset: t.Offset,
				Detail: fmt.Sprintf("extent of %d bytes exceeds data segment of %d bytes", size, f.DataSize),
			}
		}
	}
	return nil
}
