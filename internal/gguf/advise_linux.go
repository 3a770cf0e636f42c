//go:build linux

package gguf

import (
	"io"

	"golang.org/x/sys/unix"
)

// adviseSequential tells the kernel the data segment is about to be read
// front to back. Sources without a descriptor are ignored.
func adviseSequential(src io.ReaderAt, off, n int64) {
	f, ok := src.(interface{ Fd() uintptr })
	if !ok {
		return
	}
	_ = unix.Fadvise(int(f.Fd()), off, n, unix.FADV_SEQUENTIAL)
}
