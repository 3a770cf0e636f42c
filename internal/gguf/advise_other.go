//go:build !linux

package gguf

import "io"

func adviseSequential(io.ReaderAt, int64, int64) {}
