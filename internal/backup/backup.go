// Package backup makes verbatim copies of a container before it is edited.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samcharles93/ggufedit/internal/fs"
)

// DefaultSuffix is appended to the source path when no backup path is given.
const DefaultSuffix = ".bak"

// Path returns the default backup location for src.
func Path(src, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	if !strings.HasPrefix(suffix, ".") && !strings.HasPrefix(suffix, "-") && !strings.HasPrefix(suffix, "_") {
		suffix = "." + suffix
	}
	return src + suffix
}

// Copy writes a byte-identical copy of src to dst, replacing dst atomically.
// The copy keeps src's permission bits. It returns the number of bytes
// copied.
func Copy(ctx context.Context, fsys fs.FileSystem, src, dst string) (int64, error) {
	fsys = fs.OrDefault(fsys)
	if src == dst {
		return 0, fmt.Errorf("backup path %s is the source file", dst)
	}
	in, err := fsys.OpenFile(src, os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return 0, err
	}

	n, err := fs.WriteFileAtomic(fsys, dst, st.Mode().Perm(), func(w io.Writer) error {
		copied, err := io.Copy(w, &ctxReader{ctx: ctx, r: in})
		if err != nil {
			return err
		}
		if copied != st.Size() {
			return fmt.Errorf("copied %d of %d bytes from %s", copied, st.Size(), src)
		}
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("backup %s to %s: %w", src, dst, err)
	}
	return n, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
