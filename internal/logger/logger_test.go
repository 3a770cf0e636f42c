package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	if log.Enabled(slog.LevelError) {
		t.Fatal("discard logger should not be enabled")
	}
	// Should not panic
	log.With("k", "v").Error("dropped")
}

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	output := buf.String()
	if !strings.Contains(output, `"msg":"hello"`) {
		t.Fatalf("expected hello in output, got: %s", output)
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Fatalf("expected key=value in JSON output, got: %s", output)
	}
	if !strings.Contains(output, `"level":"INFO"`) {
		t.Fatalf("expected level INFO in output, got: %s", output)
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")

	if buf.Len() > 0 {
		t.Fatalf("expected no output for info/debug at warn level, got: %s", buf.String())
	}
	if log.Enabled(slog.LevelInfo) || !log.Enabled(slog.LevelWarn) {
		t.Fatal("Enabled disagrees with the handler level")
	}

	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message in output, got: %s", buf.String())
	}
}

func TestPrettyWithoutColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo)
	log.Info("rewrote file", "path", "model.gguf", "delta", 32)

	output := buf.String()
	if strings.Contains(output, "\033[") {
		t.Fatalf("buffer is not a terminal, expected no escapes: %q", output)
	}
	if !strings.Contains(output, "INFO  rewrote file path=model.gguf delta=32\n") {
		t.Fatalf("unexpected line: %q", output)
	}
}

func TestPrettyColor(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, &PrettyOptions{Level: slog.LevelDebug, Color: true}))
	log.Debug("debug msg", "k", "v")

	output := buf.String()
	if !strings.Contains(output, colorGray+colorBold+"DEBUG"+colorReset) {
		t.Fatalf("expected colored level, got: %q", output)
	}
	if !strings.Contains(output, colorCyan+" k=v"+colorReset) {
		t.Fatalf("expected colored attrs, got: %q", output)
	}
}

func TestWith(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	childLog := log.With("component", "test")
	childLog.Info("child message")

	output := buf.String()
	if !strings.Contains(output, `"component":"test"`) {
		t.Fatalf("expected component=test in output, got: %s", output)
	}
	if !strings.Contains(output, "child message") {
		t.Fatalf("expected 'child message' in output, got: %s", output)
	}
}

func TestSetup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level, format string
		want          string
		wantErr       bool
	}{
		{"debug", "json", `"level":"DEBUG"`, false},
		{"INFO", "text", "level=INFO", false},
		{"", "", "INFO  probe", false},
		{"loud", "json", "", true},
		{"info", "xml", "", true},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log, err := Setup(&buf, tc.level, tc.format)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Setup(%q, %q): expected error", tc.level, tc.format)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Setup(%q, %q): %v", tc.level, tc.format, err)
		}
		log.Debug("probe")
		log.Info("probe")
		if !strings.Contains(buf.String(), tc.want) {
			t.Errorf("Setup(%q, %q): expected %q in %q", tc.level, tc.format, tc.want, buf.String())
		}
	}
}

func TestFromContextDefault(t *testing.T) {
	t.Parallel()
	log := FromContext(context.Background())
	if log == nil {
		t.Fatal("FromContext with no logger returned nil")
	}
	// Should not panic
	log.Info("from context")
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	ctx := WithContext(context.Background(), log)
	FromContext(ctx).Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"unknown", slog.LevelInfo, true},
	}

	for _, tc := range tests {
		result, err := ParseLevel(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q): unexpected error state %v", tc.input, err)
		}
		if result != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, result)
		}
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &PrettyOptions{Level: slog.LevelWarn})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected warn to be enabled at warn level")
	}
	if !NewPrettyHandler(&buf, nil).Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be enabled by default")
	}
}

func TestPrettyHandlerGroupsAndAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, nil)).
		With("session", "abc").
		WithGroup("plan").
		WithGroup("").
		With("mode", "rewrite")
	log.Info("planned", "delta", 32, slog.Group("data", "offset", 288))

	want := "planned session=abc plan.mode=rewrite plan.delta=32 plan.data.offset=288\n"
	if !strings.HasSuffix(buf.String(), want) {
		t.Fatalf("expected suffix %q, got %q", want, buf.String())
	}
}

func TestPrettyQuoting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(NewPrettyHandler(&buf, nil))
	log.Warn("odd values", "name", "tiny model", "empty", "", "err", errors.New("disk full"))

	output := buf.String()
	for _, want := range []string{`name="tiny model"`, `empty=""`, `err="disk full"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in %q", want, output)
		}
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{"simple", false},
		{"general.name", false},
		{"with space", true},
		{"a=b", true},
		{`say "hi"`, true},
		{"tab\there", true},
		{"", true},
	}
	for _, tc := range tests {
		if got := needsQuoting(tc.input); got != tc.want {
			t.Errorf("needsQuoting(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
