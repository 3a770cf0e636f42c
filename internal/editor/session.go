// Package editor changes metadata of a container file without disturbing its
// tensor data. A Session owns one open file: updates are applied to an
// in-memory copy of the metadata, checked against the layout invariants, and
// written either in place or as a full rewrite through a temporary file.
package editor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/ggufedit/internal/backup"
	"github.com/samcharles93/ggufedit/internal/fs"
	"github.com/samcharles93/ggufedit/internal/gguf"
	"github.com/samcharles93/ggufedit/internal/logger"
)

// Options configures a Session.
type Options struct {
	// NoInsert makes updates of missing keys fail with gguf.ErrKeyNotFound
	// instead of appending them.
	NoInsert bool
	// ForceRewrite writes a complete new file even when the change would
	// fit in place.
	ForceRewrite bool
	// Backup copies the file before Commit writes to it.
	Backup       bool
	BackupSuffix string

	FS      fs.FileSystem
	Logger  logger.Logger
	Metrics MetricsCollector
}

// Session is one open container. It is not safe for concurrent use.
type Session struct {
	ID   string
	path string
	opts Options
	log  logger.Logger

	src     fs.File
	perm    os.FileMode
	orig    *gguf.File
	doc     *gguf.File
	changes []gguf.Change
	closed  bool
}

// Open decodes and validates path. The file stays open until Commit or
// Close.
func Open(ctx context.Context, path string, opts Options) (*Session, error) {
	opts.FS = fs.OrDefault(opts.FS)
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsCollector{}
	}
	s := &Session{
		ID:   uuid.NewString(),
		path: path,
		opts: opts,
	}
	s.log = opts.Logger.With("session", s.ID, "path", path)

	if err := ctx.Err(); err != nil {
		return nil, s.fail(StageDecode, err)
	}
	src, err := opts.FS.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, s.fail(StageDecode, ioErr(err))
	}
	st, err := src.Stat()
	if err != nil {
		_ = src.Close()
		return nil, s.fail(StageDecode, ioErr(err))
	}
	f, err := gguf.Decode(src, st.Size())
	if err != nil {
		_ = src.Close()
		return nil, s.fail(StageDecode, ioErr(err))
	}
	f.Path = path
	if err := gguf.Validate(f); err != nil {
		_ = src.Close()
		return nil, s.fail(StageValidate, err)
	}

	s.src = src
	s.perm = st.Mode().Perm()
	s.orig = f
	s.doc = f
	s.log.Debug("opened file",
		"tensors", f.Header.TensorCount,
		"metadata", f.Header.KVCount,
		"alignment", f.Alignment,
		"data_offset", f.DataOffset,
	)
	return s, nil
}

// Path is the file the session edits.
func (s *Session) Path() string { return s.path }

// File returns the current document, including applied updates. It must not
// be modified.
func (s *Session) File() *gguf.File { return s.doc }

// Original returns the document as it was opened.
func (s *Session) Original() *gguf.File { return s.orig }

// Validate re-checks the current document.
func (s *Session) Validate() error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := gguf.Validate(s.doc); err != nil {
		return s.fail(StageValidate, err)
	}
	return nil
}

// Apply resolves and applies a batch of updates. The batch is all or
// nothing: on error the session is exactly as before the call. Successive
// batches accumulate; the returned plan always compares against the file as
// opened.
func (s *Session) Apply(ctx context.Context, updates []Update) (*Plan, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(StageUpdate, err)
	}
	next, changes, err := applyUpdates(s.doc, updates, s.opts.NoInsert)
	if err != nil {
		return nil, s.fail(StageUpdate, err)
	}

	if s.log.Enabled(slog.LevelDebug) {
		for _, c := range changes {
			s.log.Debug("set key",
				"key", c.Key,
				"old", describeChangeValue(c.Old, c.Inserted),
				"new", gguf.FormatValue(c.New, 8),
				"inserted", c.Inserted,
				"size_delta", int64(c.NewSize)-int64(c.OldSize),
			)
		}
	}

	s.doc = next
	s.changes = append(s.changes, changes...)
	p := s.Plan()
	s.log.Debug("planned update", "mode", p.Mode, "delta", p.Delta, "data_offset", p.NewDataOffset)
	return p, nil
}

// Plan reports the accumulated changes and how Commit would write them.
func (s *Session) Plan() *Plan {
	return plan(s.orig, s.doc, append([]gguf.Change(nil), s.changes...), s.opts.ForceRewrite)
}

// Commit writes the accumulated updates to the session's file and closes
// the session. When nothing changed no byte is written.
func (s *Session) Commit(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	defer s.Close()

	p := s.Plan()
	if p.Mode == ModeNone {
		s.log.Info("no changes to write")
		return nil
	}
	if s.opts.Backup {
		if _, err := s.Backup(ctx, ""); err != nil {
			return err
		}
	}

	start := time.Now()
	var (
		n   int64
		err error
	)
	switch p.Mode {
	case ModeInPlace:
		n, err = writeInPlace(ctx, s.opts.FS, s.path, s.orig, s.doc)
	default:
		n, err = writeRewrite(ctx, s.opts.FS, s.path, s.doc, s.perm)
	}
	err = s.tolerateDirSync(err)
	s.opts.Metrics.RecordCommit(p.Mode, n, time.Since(start), err)
	if err != nil {
		return s.fail(StageWrite, err)
	}

	s.log.Info("wrote file",
		"mode", p.Mode,
		"changes", len(p.Changes),
		"delta", p.Delta,
		"bytes", n,
		"size", p.NewSize,
	)
	return nil
}

// WriteTo writes the current document to dst as a complete file, leaving
// the source untouched. Writing to the session's own path is a forced
// rewrite and ends the session like Commit.
func (s *Session) WriteTo(ctx context.Context, dst string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if samePath(dst, s.path) {
		s.opts.ForceRewrite = true
		if s.Plan().Mode == ModeNone {
			// Nothing changed; still honour the explicit request.
			defer s.Close()
			return s.rewrite(ctx, s.path)
		}
		return s.Commit(ctx)
	}
	return s.rewrite(ctx, dst)
}

func (s *Session) rewrite(ctx context.Context, dst string) error {
	start := time.Now()
	n, err := writeRewrite(ctx, s.opts.FS, dst, s.doc, s.perm)
	err = s.tolerateDirSync(err)
	s.opts.Metrics.RecordCommit(ModeRewrite, n, time.Since(start), err)
	if err != nil {
		return &StageError{Stage: StageWrite, Path: dst, Err: err}
	}
	s.log.Info("wrote file", "mode", ModeRewrite, "dst", dst, "bytes", n)
	return nil
}

// Backup copies the file as opened to dst, or to the default backup path
// when dst is empty, and returns the path written.
func (s *Session) Backup(ctx context.Context, dst string) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	if dst == "" {
		dst = backup.Path(s.path, s.opts.BackupSuffix)
	}
	n, err := backup.Copy(ctx, s.opts.FS, s.path, dst)
	if err = s.tolerateDirSync(err); err != nil {
		return "", s.fail(StageBackup, ioErr(err))
	}
	s.log.Info("backup written", "backup", dst, "bytes", n)
	return dst, nil
}

// Close releases the file. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.src == nil {
		return nil
	}
	return s.src.Close()
}

func (s *Session) fail(stage Stage, err error) error {
	s.opts.Metrics.RecordFailure(stage)
	s.log.Debug("session failed", "stage", string(stage), "err", err)
	return &StageError{Stage: stage, Path: s.path, Err: err}
}

// tolerateDirSync downgrades a failed directory sync after a successful
// rename to a warning.
func (s *Session) tolerateDirSync(err error) error {
	var dse *fs.DirSyncError
	if errors.As(err, &dse) {
		s.log.Warn("file replaced but directory sync failed", "dir", dse.Dir, "err", dse.Err)
		return nil
	}
	return err
}

func describeChangeValue(v gguf.Value, inserted bool) string {
	if inserted {
		return "<none>"
	}
	return gguf.FormatValue(v, 8)
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
