package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const atomicBufferSize = 256 * 1024

// TempName returns the sibling temporary path used while replacing path.
func TempName(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp-"+uuid.NewString())
}

// WriteFileAtomic replaces path with whatever write produces. The content is
// written to a temporary file in the same directory, synced and renamed over
// path; the directory is synced afterwards. On any failure the temporary file
// is removed and path is left as it was. It returns the number of bytes
// written.
func WriteFileAtomic(fsys FileSystem, path string, perm os.FileMode, write func(io.Writer) error) (n int64, err error) {
	fsys = OrDefault(fsys)
	tmpName := TempName(path)

	f, err := fsys.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = f.Close()
		}
		if rmErr := fsys.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("remove temp file: %w", rmErr))
		}
	}()

	cw := &countingWriter{w: f}
	buf := bufio.NewWriterSize(cw, atomicBufferSize)
	if err = write(buf); err != nil {
		return cw.n, err
	}
	if err = buf.Flush(); err != nil {
		return cw.n, err
	}
	if err = f.Sync(); err != nil {
		return cw.n, fmt.Errorf("sync temp file: %w", err)
	}
	closed = true
	if err = f.Close(); err != nil {
		return cw.n, fmt.Errorf("close temp file: %w", err)
	}
	if err = fsys.Rename(tmpName, path); err != nil {
		return cw.n, fmt.Errorf("rename temp file: %w", err)
	}

	// The rename has happened; a failed directory sync is reported, not undone.
	if syncErr := SyncDir(fsys, filepath.Dir(path)); syncErr != nil {
		return cw.n, &DirSyncError{Dir: filepath.Dir(path), Err: syncErr}
	}
	return cw.n, nil
}

// DirSyncError is returned by WriteFileAtomic when the file was replaced but
// its directory could not be synced.
type DirSyncError struct {
	Dir string
	Err error
}

func (e *DirSyncError) Error() string {
	return fmt.Sprintf("sync directory %s: %v", e.Dir, e.Err)
}

func (e *DirSyncError) Unwrap() error { return e.Err }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
