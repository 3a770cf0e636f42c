package gguf

import "encoding/binary"

// HeaderSize is the encoded size of Header including the magic.
const HeaderSize = 4 + 4 + 8 + 8

// EncodeHeader writes h into dst, which must hold at least HeaderSize bytes.
func EncodeHeader(dst []byte, h Header) bool {
	if len(dst) < HeaderSize {
		return false
	}
	copy(dst[0:4], magicGGUF)
	binary.LittleEndian.PutUint32(dst[4:8], h.Version)
	binary.LittleEndian.PutUint64(dst[8:16], h.TensorCount)
	binary.LittleEndian.PutUint64(dst[16:24], h.KVCount)
	return true
}

// AppendHeader appends the encoded header to dst.
func AppendHeader(dst []byte, h Header) []byte {
	var raw [HeaderSize]byte
	EncodeHeader(raw[:], h)
	return append(dst, raw[:]...)
}

// DecodeHeader parses and checks the fixed header. A bad magic is reported
// before anything else is looked at.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < 4 || string(src[0:4]) != magicGGUF {
		return Header{}, ErrInvalidMagic
	}
	if len(src) < 8 {
		return Header{}, layoutErrorf("truncated header: %d bytes", len(src))
	}
	version := binary.LittleEndian.Uint32(src[4:8])
	if version != Version {
		return Header{}, &VersionError{Version: version}
	}
	if len(src) < HeaderSize {
		return Header{}, layoutErrorf("truncated header: %d bytes", len(src))
	}
	return Header{
		Version:     version,
		TensorCount: binary.LittleEndian.Uint64(src[8:16]),
		KVCount:     binary.LittleEndian.Uint64(src[16:24]),
	}, nil
}
