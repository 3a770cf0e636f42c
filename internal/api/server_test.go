package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ggufedit/internal/editor"
	"github.com/samcharles93/ggufedit/internal/gguf"
	"github.com/samcharles93/ggufedit/internal/gguf/gguftest"
	"github.com/samcharles93/ggufedit/internal/inspect"
	"github.com/samcharles93/ggufedit/internal/metrics"
)

type planView struct {
	Mode          string `json:"mode"`
	Delta         int64  `json:"delta"`
	NewDataOffset uint64 `json:"new_data_offset"`
	NewSize       uint64 `json:"new_size"`
}

type updateView struct {
	Name    string          `json:"name"`
	DryRun  bool            `json:"dry_run"`
	Plan    planView        `json:"plan"`
	Changes []ChangeSummary `json:"changes"`
	Backup  string          `json:"backup"`
}

type errorView struct {
	Error ResponseError `json:"error"`
}

func newTestEcho(t *testing.T, cfg Config) (*echo.Echo, string) {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}
	gguftest.Sample().Write(t, cfg.Root, "tiny.gguf")
	server := NewServer(cfg)
	e := echo.New()
	server.Register(e)
	return e, cfg.Root
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, e, method, path, echo.MIMEApplicationJSON, body)
}

func doRequest(t *testing.T, e *echo.Echo, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, errType string) ResponseError {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status: got %d want %d body=%s", rec.Code, status, rec.Body.String())
	}
	var out errorView
	decodeBody(t, rec, &out)
	if out.Error.Type != errType {
		t.Fatalf("error type: got %q want %q", out.Error.Type, errType)
	}
	return out.Error
}

func readFile(t *testing.T, path string) (*gguf.File, []byte) {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	f, err := gguf.Decode(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return f, raw
}

func TestListFiles(t *testing.T) {
	t.Parallel()

	e, root := newTestEcho(t, Config{})
	gguftest.Sample().Write(t, root, "another.gguf")
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "dir.gguf"), 0o755); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, e, http.MethodGet, "/v1/files", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var out FileList
	decodeBody(t, rec, &out)
	if len(out.Data) != 2 {
		t.Fatalf("expected 2 files, got %+v", out.Data)
	}
	if out.Data[0].Name != "another.gguf" || out.Data[1].Name != "tiny.gguf" {
		t.Fatalf("unexpected listing %+v", out.Data)
	}
	if out.Data[1].Size != 432 {
		t.Fatalf("size: got %d want 432", out.Data[1].Size)
	}
}

func TestInspectFile(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t, Config{})
	rec := doJSON(t, e, http.MethodGet, "/v1/files/tiny.gguf?tensor_limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var report inspect.Report
	decodeBody(t, rec, &report)
	if report.Path != "tiny.gguf" {
		t.Fatalf("path: got %q", report.Path)
	}
	if report.Layout.DataOffset != 256 || report.Layout.FileSize != 432 {
		t.Fatalf("unexpected layout %+v", report.Layout)
	}
	if len(report.Metadata) != 3 || report.Metadata[1].Value != "tiny" {
		t.Fatalf("unexpected metadata %+v", report.Metadata)
	}
	if len(report.Tensors) != 1 || report.MoreTensors != 1 {
		t.Fatalf("tensor limit not applied: %+v more=%d", report.Tensors, report.MoreTensors)
	}
}

func TestInspectErrors(t *testing.T) {
	t.Parallel()

	e, root := newTestEcho(t, Config{})
	expectError(t, doJSON(t, e, http.MethodGet, "/v1/files/missing.gguf", ""), http.StatusNotFound, "not_found_error")
	expectError(t, doJSON(t, e, http.MethodGet, "/v1/files/notes.txt", ""), http.StatusBadRequest, "invalid_request_error")
	expectError(t, doJSON(t, e, http.MethodGet, "/v1/files/tiny.gguf?array_limit=x", ""), http.StatusBadRequest, "invalid_request_error")

	bad := gguftest.Sample()
	bad.Magic = "GGML"
	bad.Write(t, root, "bad.gguf")
	apiErr := expectError(t, doJSON(t, e, http.MethodGet, "/v1/files/bad.gguf", ""), http.StatusUnprocessableEntity, "invalid_file_error")
	if apiErr.Code != string(editor.StageDecode) {
		t.Fatalf("code: got %q want %q", apiErr.Code, editor.StageDecode)
	}
}

func TestFilePathRejectsEscapes(t *testing.T) {
	t.Parallel()

	s := NewServer(Config{Root: "/srv/models"})
	for _, name := range []string{"", ".", "..", "../x.gguf", "a/b.gguf", `a\b.gguf`, "model.bin"} {
		if _, err := s.filePath(name); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
	got, err := s.filePath("m.GGUF")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != filepath.Join("/srv/models", "m.GGUF") {
		t.Fatalf("path: got %q", got)
	}
}

func TestValidateFile(t *testing.T) {
	t.Parallel()

	e, root := newTestEcho(t, Config{})
	rec := doJSON(t, e, http.MethodPost, "/v1/files/tiny.gguf/validate", "")
	var ok ValidateResponse
	decodeBody(t, rec, &ok)
	if rec.Code != http.StatusOK || !ok.Valid {
		t.Fatalf("expected valid file, got %d %+v", rec.Code, ok)
	}

	raw := gguftest.Sample().Bytes(t)
	if err := os.WriteFile(filepath.Join(root, "short.gguf"), raw[:240], 0o644); err != nil {
		t.Fatal(err)
	}
	rec = doJSON(t, e, http.MethodPost, "/v1/files/short.gguf/validate", "")
	var bad ValidateResponse
	decodeBody(t, rec, &bad)
	if rec.Code != http.StatusOK || bad.Valid || bad.Error == "" {
		t.Fatalf("expected invalid file, got %d %+v", rec.Code, bad)
	}
	if bad.Stage != string(editor.StageDecode) {
		t.Fatalf("stage: got %q", bad.Stage)
	}
}

func TestUpdateInPlace(t *testing.T) {
	t.Parallel()

	e, root := newTestEcho(t, Config{})
	rec := doJSON(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata", `{"block_count": 7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var out updateView
	decodeBody(t, rec, &out)
	if out.Plan.Mode != "in-place" || out.Plan.Delta != 0 {
		t.Fatalf("unexpected plan %+v", out.Plan)
	}
	if len(out.Changes) != 1 || out.Changes[0].Old != "2" || out.Changes[0].New != "7" {
		t.Fatalf("unexpected changes %+v", out.Changes)
	}

	f, raw := readFile(t, filepath.Join(root, "tiny.gguf"))
	if len(raw) != 432 {
		t.Fatalf("size: got %d want 432", len(raw))
	}
	if v, _ := gguf.GetUint64(f.Metadata, "block_count"); v != 7 {
		t.Fatalf("block_count: got %d want 7", v)
	}
}

func TestUpdateDryRunWritesNothing(t *testing.T) {
	t.Parallel()

	e, root := newTestEcho(t, Config{})
	path := filepath.Join(root, "tiny.gguf")
	_, before := readFile(t, path)

	rec := doJSON(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata?dry_run=true", `{"general.name": "a much longer model name"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var out updateView
	decodeBody(t, rec, &out)
	if !out.DryRun || out.Plan.Mode != "in-place" {
		t.Fatalf("unexpected response %+v", out)
	}

	_, after := readFile(t, path)
	if !bytes.Equal(before, after) {
		t.Fatalf("dry run modified the file")
	}
}

func TestUpdateYAMLRewriteWithBackup(t *testing.T) {
	t.Parallel()

	e, root := newTestEcho(t, Config{})
	path := filepath.Join(root, "tiny.gguf")
	_, before := readFile(t, path)

	body := "general.name: " + strings.Repeat("n", 64) + "\n"
	rec := doRequest(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata?backup=1", "application/yaml", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var out updateView
	decodeBody(t, rec, &out)
	if out.Plan.Mode != "rewrite" || out.Plan.NewDataOffset != 320 || out.Plan.NewSize != 496 {
		t.Fatalf("unexpected plan %+v", out.Plan)
	}
	if out.Backup != "tiny.gguf.bak" {
		t.Fatalf("backup: got %q", out.Backup)
	}

	_, saved := readFile(t, filepath.Join(root, "tiny.gguf.bak"))
	if !bytes.Equal(before, saved) {
		t.Fatalf("backup differs from original")
	}
	f, raw := readFile(t, path)
	if len(raw) != 496 {
		t.Fatalf("size: got %d want 496", len(raw))
	}
	if !bytes.Equal(raw[320:], before[256:]) {
		t.Fatalf("tensor data not preserved")
	}
	if name, _ := gguf.GetString(f.Metadata, "general.name"); name != strings.Repeat("n", 64) {
		t.Fatalf("general.name: got %q", name)
	}
}

func TestUpdateErrors(t *testing.T) {
	t.Parallel()

	e, root := newTestEcho(t, Config{})
	path := filepath.Join(root, "tiny.gguf")
	_, before := readFile(t, path)

	apiErr := expectError(t, doJSON(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata", `{"block_count": "seven"}`),
		http.StatusBadRequest, "type_mismatch_error")
	if apiErr.Code != string(editor.StageUpdate) {
		t.Fatalf("code: got %q", apiErr.Code)
	}
	expectError(t, doJSON(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata?no_insert=true", `{"new.key": 1}`),
		http.StatusBadRequest, "key_not_found_error")
	expectError(t, doJSON(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata", `{"block_count": 1} {}`),
		http.StatusBadRequest, "invalid_request_error")
	expectError(t, doJSON(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata", `{}`),
		http.StatusBadRequest, "invalid_request_error")
	apiErr = expectError(t, doJSON(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata?dry_run=maybe", `{"block_count": 1}`),
		http.StatusBadRequest, "invalid_request_error")
	if apiErr.Param != "dry_run" {
		t.Fatalf("param: got %q", apiErr.Param)
	}
	expectError(t, doJSON(t, e, http.MethodPatch, "/v1/files/missing.gguf/metadata", `{"block_count": 1}`),
		http.StatusNotFound, "not_found_error")

	_, after := readFile(t, path)
	if !bytes.Equal(before, after) {
		t.Fatalf("failed updates modified the file")
	}
}

func TestUpdateBodyLimit(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t, Config{MaxBodyBytes: 16})
	rec := doJSON(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata", `{"general.name": "far too long for the limit"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	e, _ := newTestEcho(t, Config{
		Editor:         editor.Options{Metrics: m},
		MetricsHandler: m.Handler(),
	})
	if rec := doJSON(t, e, http.MethodPatch, "/v1/files/tiny.gguf/metadata", `{"block_count": 3}`); rec.Code != http.StatusOK {
		t.Fatalf("update status: got %d body=%s", rec.Code, rec.Body.String())
	}

	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `ggufedit_updates_total{mode="in-place",status="ok"} 1`) {
		t.Fatalf("missing update counter in:\n%s", rec.Body.String())
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	e, _ := newTestEcho(t, Config{})
	rec := doJSON(t, e, http.MethodGet, "/v1/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var out map[string]any
	decodeBody(t, rec, &out)
	if v, _ := out["version"].(string); v == "" {
		t.Fatalf("missing version in %s", rec.Body.String())
	}
}
