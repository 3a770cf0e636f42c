package editor

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/samcharles93/ggufedit/internal/fs"
	"github.com/samcharles93/ggufedit/internal/gguf"
)

const copyBufferSize = 1 << 20

// writeInPlace overwrites the metadata section of path, and the descriptor
// table plus padding when the metadata length changed. Everything from
// DataOffset on is left alone.
func writeInPlace(ctx context.Context, fsys fs.FileSystem, path string, orig, cur *gguf.File) (int64, error) {
	if cur.DataOffset != orig.DataOffset || cur.Header != orig.Header {
		return 0, fmt.Errorf("in-place write needs an unchanged header and data offset")
	}
	st, err := fsys.Stat(path)
	if err != nil {
		return 0, ioErr(err)
	}
	if uint64(st.Size()) != orig.Size {
		return 0, fmt.Errorf("%w: %s changed size since it was opened (%d -> %d bytes)", ErrIO, path, orig.Size, st.Size())
	}

	buf := cur.AppendMetadata(make([]byte, 0, cur.DataOffset-cur.MetadataOffset))
	if cur.MetadataSize != orig.MetadataSize {
		buf = cur.AppendDescriptors(buf)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := fsys.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return 0, ioErr(err)
	}
	n, err := f.WriteAt(buf, int64(cur.MetadataOffset))
	if err != nil {
		_ = f.Close()
		return int64(n), ioErr(err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return int64(n), ioErr(err)
	}
	if err := f.Close(); err != nil {
		return int64(n), ioErr(err)
	}
	return int64(n), nil
}

// writeRewrite streams cur to path through a temporary file: header,
// metadata, descriptors, padding, then the source tensor-data segment byte
// for byte.
func writeRewrite(ctx context.Context, fsys fs.FileSystem, path string, cur *gguf.File, perm os.FileMode) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := fs.WriteFileAtomic(fsys, path, perm, func(w io.Writer) error {
		if _, err := w.Write(cur.AppendPrefix(nil)); err != nil {
			return err
		}
		_, err := copyData(ctx, w, cur)
		return err
	})
	return n, ioErr(err)
}

// copyData copies the tensor-data segment of cur to w, checking ctx
// between chunks.
func copyData(ctx context.Context, w io.Writer, cur *gguf.File) (int64, error) {
	src := cur.DataReader()
	buf := make([]byte, copyBufferSize)
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rn, rerr := src.Read(buf)
		if rn > 0 {
			wn, werr := w.Write(buf[:rn])
			n += int64(wn)
			if werr != nil {
				return n, werr
			}
			if wn != rn {
				return n, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return n, rerr
		}
	}
	if uint64(n) != cur.DataSize {
		return n, fmt.Errorf("copied %d of %d tensor-data bytes", n, cur.DataSize)
	}
	return n, nil
}
