package gguf

import (
	"fmt"
	"io"
	"os"
)

// Layout holds the section boundaries implied by a metadata table, a
// descriptor table and an alignment. All offsets are absolute.
type Layout struct {
	MetadataOffset   uint64
	MetadataSize     uint64
	TensorInfoOffset uint64
	TensorInfoSize   uint64
	// PrefixEnd is the end of the descriptor table, before padding.
	PrefixEnd  uint64
	DataOffset uint64
}

// ComputeLayout derives the boundaries for md and tensors.
func ComputeLayout(md *Metadata, tensors []TensorInfo, alignment uint64) Layout {
	l := Layout{MetadataOffset: HeaderSize, MetadataSize: md.EncodedSize()}
	l.TensorInfoOffset = l.MetadataOffset + l.MetadataSize
	for _, t := range tensors {
		l.TensorInfoSize += t.encodedSize()
	}
	l.PrefixEnd = l.TensorInfoOffset + l.TensorInfoSize
	l.DataOffset = align(l.PrefixEnd, alignment)
	return l
}

// Open decodes the file at path. The returned File keeps the file open as
// the source of the tensor-data segment until Close.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	gf, err := Decode(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	gf.Path = path
	gf.closer = f
	return gf, nil
}

// Decode parses header, metadata and tensor descriptors from r. Tensor data
// is not read. r must stay readable for as long as the File is used.
func Decode(r io.ReaderAt, size int64) (*File, error) {
	if size < 0 {
		return nil, layoutErrorf("negative file size %d", size)
	}
	rd := newReader(io.NewSectionReader(r, 0, size), size)

	raw, err := rd.readN(int(min(size, HeaderSize)))
	if err != nil {
		return nil, err
	}
	header, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}

	md, err := readMetadata(rd, header.KVCount)
	if err != nil {
		return nil, err
	}

	if header.TensorCount > uint64(rd.remaining())/(8+4+4+8) {
		return nil, &ValueError{Offset: rd.off, Reason: fmt.Sprintf("tensor count %d exceeds file size", header.TensorCount)}
	}
	tensors := make([]TensorInfo, 0, header.TensorCount)
	for i := range header.TensorCount {
		start := rd.off
		t, err := readTensorInfo(rd)
		if err != nil {
			entity := fmt.Sprintf("tensor %d", i)
			if t.Name != "" {
				entity = fmt.Sprintf("tensor %q", t.Name)
			}
			return nil, decodeErr(err, entity, start, "%v", err)
		}
		tensors = append(tensors, t)
	}

	alignment := md.Alignment()
	layout := ComputeLayout(md, tensors, alignment)
	if layout.PrefixEnd != uint64(rd.off) {
		return nil, layoutErrorf("descriptor table ends at %d, expected %d", rd.off, layout.PrefixEnd)
	}
	if layout.DataOffset > uint64(size) {
		return nil, &LayoutError{
			Detail: fmt.Sprintf("data segment starts beyond end of file (%d bytes)", size),
			Offset: layout.DataOffset,
		}
	}
	for i := range tensors {
		tensors[i].FileOffset = layout.DataOffset + tensors[i].Offset
	}

	return &File{
		Header:    header,
		Metadata:  md,
		Tensors:   tensors,
		Alignment: alignment,
		Layout:    layout,
		DataStart: layout.DataOffset,
		DataSize:  uint64(size) - layout.DataOffset,
		Size:      uint64(size),
		src:       r,
	}, nil
}

func decodeErr(err error, entity string, off int64, format string, args ...any) error {
	if !isDecodeError(err) {
		if entity == "" {
			return fmt.Errorf("read at offset %d: %w", off, err)
		}
		return fmt.Errorf("read %s at offset %d: %w", entity, off, err)
	}
	return &ValueError{Entity: entity, Offset: off, Reason: fmt.Sprintf(format, args...)}
}

// WithMetadata returns a copy of f carrying md, with counts, alignment and
// layout recomputed and every tensor's FileOffset moved by the change of the
// padded prefix. delta is that change. The copy reads tensor data from the
// same source; f keeps ownership of it.
func (f *File) WithMetadata(md *Metadata) (next *File, delta int64) {
	n := *f
	n.closer = nil
	n.Metadata = md
	n.Header.KVCount = uint64(md.Len())
	n.Alignment = md.Alignment()
	n.Layout = ComputeLayout(md, f.Tensors, n.Alignment)

	delta = int64(n.DataOffset) - int64(f.DataOffset)
	n.Tensors = cloneTensors(f.Tensors)
	for i := range n.Tensors {
		n.Tensors[i].FileOffset = uint64(int64(n.Tensors[i].FileOffset) + delta)
	}
	return &n, delta
}

// AppendMetadata appends the encoded metadata section.
func (f *File) AppendMetadata(dst []byte) []byte {
	return f.Metadata.AppendTo(dst)
}

// AppendPrefix appends everything in front of the tensor data: header,
// metadata, descriptors and zero padding up to DataOffset.
func (f *File) AppendPrefix(dst []byte) []byte {
	start := len(dst)
	dst = AppendHeader(dst, f.Header)
	dst = f.Metadata.AppendTo(dst)
	for _, t := range f.Tensors {
		dst = appendTensorInfo(dst, t)
	}
	if pad := int(f.DataOffset) - (len(dst) - start); pad > 0 {
		dst = append(dst, make([]byte, pad)...)
	}
	return dst
}

// AppendDescriptors appends the descriptor table followed by the padding
// up to DataOffset.
func (f *File) AppendDescriptors(dst []byte) []byte {
	start := len(dst)
	for _, t := range f.Tensors {
		dst = appendTensorInfo(dst, t)
	}
	if pad := int(f.DataOffset-f.TensorInfoOffset) - (len(dst) - start); pad > 0 {
		dst = append(dst, make([]byte, pad)...)
	}
	return dst
}
