package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ggufedit/internal/backup"
	"github.com/samcharles93/ggufedit/internal/editor"
	"github.com/samcharles93/ggufedit/internal/gguf"
	"github.com/samcharles93/ggufedit/internal/inspect"
	"github.com/samcharles93/ggufedit/internal/request"
)

const fileExt = ".gguf"

// filePath maps a file name from the URL to a path under the root. Only
// plain names of .gguf files are accepted.
func (s *Server) filePath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", newInvalidRequest(fmt.Sprintf("invalid file name %q", name))
	}
	if !strings.EqualFold(filepath.Ext(name), fileExt) {
		return "", newInvalidRequest(fmt.Sprintf("file name %q must end in %s", name, fileExt))
	}
	return filepath.Join(s.cfg.Root, name), nil
}

func (s *Server) handleListFiles(c *echo.Context) error {
	entries, err := s.cfg.FS.ReadDir(s.cfg.Root)
	if err != nil {
		return writeFailure(c, fmt.Errorf("%w: list %s: %w", editor.ErrIO, s.cfg.Root, err))
	}
	out := FileList{Object: "list", Data: []FileSummary{}}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), fileExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		out.Data = append(out.Data, FileSummary{
			Name:     e.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleInspect(c *echo.Context) error {
	name := c.Param("name")
	path, err := s.filePath(name)
	if err != nil {
		return writeBadRequest(c, err.Error(), "name")
	}
	opts := inspect.DefaultOptions
	if opts.ArrayLimit, err = intParam(c, "array_limit", opts.ArrayLimit); err != nil {
		return writeBadRequest(c, err.Error(), "array_limit")
	}
	if opts.TensorLimit, err = intParam(c, "tensor_limit", opts.TensorLimit); err != nil {
		return writeBadRequest(c, err.Error(), "tensor_limit")
	}
	opts.Filter = c.QueryParam("filter")

	sess, err := editor.Open(c.Request().Context(), path, s.cfg.Editor)
	if err != nil {
		return writeFailure(c, err)
	}
	defer sess.Close()

	report := inspect.Build(sess.File(), opts)
	report.Path = name
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleValidate(c *echo.Context) error {
	name := c.Param("name")
	path, err := s.filePath(name)
	if err != nil {
		return writeBadRequest(c, err.Error(), "name")
	}
	sess, err := editor.Open(c.Request().Context(), path, s.cfg.Editor)
	if err != nil {
		if gguf.IsFormatError(err) {
			return c.JSON(http.StatusOK, ValidateResponse{
				Name:  name,
				Error: err.Error(),
				Stage: string(editor.StageOf(err)),
			})
		}
		return writeFailure(c, err)
	}
	_ = sess.Close()
	return c.JSON(http.StatusOK, ValidateResponse{Name: name, Valid: true})
}

// handleUpdate applies a JSON or YAML object of key/value updates. Query
// parameters dry_run, backup, no_insert and force_rewrite adjust the
// session.
func (s *Server) handleUpdate(c *echo.Context) error {
	name := c.Param("name")
	path, err := s.filePath(name)
	if err != nil {
		return writeBadRequest(c, err.Error(), "name")
	}

	opts := s.cfg.Editor
	var dryRun, withBackup, noInsert, force bool
	for _, p := range []struct {
		name string
		dst  *bool
	}{
		{"dry_run", &dryRun},
		{"backup", &withBackup},
		{"no_insert", &noInsert},
		{"force_rewrite", &force},
	} {
		if *p.dst, err = boolParam(c, p.name); err != nil {
			return writeBadRequest(c, err.Error(), p.name)
		}
	}
	opts.Backup = opts.Backup || withBackup
	opts.NoInsert = opts.NoInsert || noInsert
	opts.ForceRewrite = opts.ForceRewrite || force

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		return writeBadRequest(c, "read request body: "+err.Error(), "")
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		return writeError(c, http.StatusRequestEntityTooLarge, "invalid_request_error",
			fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes), "", "")
	}
	updates, err := request.Read(bytes.NewReader(body))
	if err != nil {
		return writeFailure(c, err)
	}
	if len(updates) == 0 {
		return writeBadRequest(c, "request contains no updates", "")
	}

	unlock := s.lock(name)
	defer unlock()

	ctx := c.Request().Context()
	sess, err := editor.Open(ctx, path, opts)
	if err != nil {
		return writeFailure(c, err)
	}
	defer sess.Close()

	plan, err := sess.Apply(ctx, updates)
	if err != nil {
		return writeFailure(c, err)
	}
	resp := UpdateResponse{
		Name:    name,
		DryRun:  dryRun,
		Plan:    plan,
		Changes: summarize(plan.Changes),
	}
	if dryRun {
		return c.JSON(http.StatusOK, resp)
	}
	if opts.Backup && plan.Mode != editor.ModeNone {
		resp.Backup = filepath.Base(backup.Path(path, opts.BackupSuffix))
	}
	if err := sess.Commit(ctx); err != nil {
		return writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func summarize(changes []gguf.Change) []ChangeSummary {
	out := make([]ChangeSummary, 0, len(changes))
	for _, ch := range changes {
		cs := ChangeSummary{
			Key:       ch.Key,
			Type:      ch.New.Variant(),
			New:       gguf.FormatValue(ch.New, 8),
			Inserted:  ch.Inserted,
			SizeDelta: int64(ch.NewSize) - int64(ch.OldSize),
		}
		if !ch.Inserted {
			cs.Old = gguf.FormatValue(ch.Old, 8)
		}
		out = append(out, cs)
	}
	return out
}
