package gguf

import (
	"bufio"
	"fmt"
	"io"
)

// Length limits applied to length-prefixed strings on decode and on Set.
const (
	// MaxKeyLen bounds metadata keys and tensor names.
	MaxKeyLen = 1 << 20
	// MaxStringLen bounds string values, including array elements.
	MaxStringLen = 64 << 20
)

// reader is a little-endian cursor bounded by size. Reads past the bound
// fail with errTruncated without touching the underlying reader.
type reader struct {
	r    *bufio.Reader
	off  int64
	size int64
	word [8]byte
}

var errTruncated = fmt.Errorf("truncated: %w", io.ErrUnexpectedEOF)

func newReader(rd io.Reader, size int64) *reader {
	return &reader{
		r:    bufio.NewReaderSize(rd, 64*1024),
		size: size,
	}
}

func (r *reader) remaining() int64 {
	return r.size - r.off
}

// fill reads exactly len(buf) bytes.
func (r *reader) fill(buf []byte) error {
	if int64(len(buf)) > r.remaining() {
		return errTruncated
	}
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return err
	}
	r.off += int64(len(buf))
	return nil
}

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	if int64(n) > r.remaining() {
		return nil, errTruncated
	}
	buf := make([]byte, n)
	if err := r.fill(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// bits reads a little-endian unsigned integer of width 1, 2, 4 or 8 bytes
// without allocating.
func (r *reader) bits(width int) (uint64, error) {
	b := r.word[:width]
	if err := r.fill(b); err != nil {
		return 0, err
	}
	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

func (r *reader) u8() (uint8, error) {
	v, err := r.bits(1)
	return uint8(v), err
}

func (r *reader) u32() (uint32, error) {
	v, err := r.bits(4)
	return uint32(v), err
}

func (r *reader) u64() (uint64, error) {
	return r.bits(8)
}

// str reads a u64 length and that many bytes. Lengths above limit are
// rejected before anything is allocated.
func (r *reader) str(limit uint64) (string, error) {
	n, err := r.u64()
	if err != nil {
		return "", err
	}
	switch {
	case n == 0:
		return "", nil
	case n > limit:
		return "", fmt.Errorf("string length %d exceeds limit of %d bytes: %w", n, limit, errMalformed)
	case n > uint64(r.remaining()):
		return "", fmt.Errorf("string length %d exceeds %d remaining bytes: %w", n, r.remaining(), errTruncated)
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
