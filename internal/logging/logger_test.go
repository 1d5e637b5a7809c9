package logging

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"storybook/internal/observability"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.add("DEBUG", format, args...) }
func (r *recordingLogger) Info(format string, args ...any)  { r.add("INFO", format, args...) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.add("WARN", format, args...) }
func (r *recordingLogger) Error(format string, args ...any) { r.add("ERROR", format, args...) }

func (r *recordingLogger) add(level, format string, args ...any) {
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

func TestOrNopHandlesTypedNilPointers(t *testing.T) {
	var typed *recordingLogger
	var logger Logger = typed
	if !IsNil(logger) {
		t.Fatalf("expected typed nil pointer to be detected")
	}
	safe := OrNop(logger)
	if IsNil(safe) {
		t.Fatalf("expected OrNop to return a usable logger")
	}
	safe.Info("hello %s", "world") // should not panic
}

func TestFromObservabilityFormatsMessages(t *testing.T) {
	buf := &bytes.Buffer{}
	base := observability.NewLogger(observability.LogConfig{
		Level:  "info",
		Format: "text",
		Output: buf,
	})

	logger := FromObservabilityWithComponent(base, "test")
	logger.Info("hello %s", "world")

	if want := "hello world"; !bytes.Contains(buf.Bytes(), []byte(want)) {
		t.Fatalf("expected %q in output, got %q", want, buf.String())
	}
	if !strings.Contains(buf.String(), "component=test") {
		t.Fatalf("expected component field, got %q", buf.String())
	}
}

func TestComponentLoggerFollowsDefault(t *testing.T) {
	logger := NewComponentLogger("Relay")

	buf := &bytes.Buffer{}
	SetDefault(observability.NewLogger(observability.LogConfig{Output: buf}))
	logger.Warn("frame %d dropped", 7)

	out := buf.String()
	if !strings.Contains(out, "frame 7 dropped") || !strings.Contains(out, "component=Relay") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFromContextPrefixesRunID(t *testing.T) {
	rec := &recordingLogger{}
	ctx := observability.ContextWithRunID(context.Background(), "r-42")

	FromContext(ctx, rec).Info("started %s", "job")
	FromContext(context.Background(), rec).Info("plain")

	if rec.lines[0] != "INFO run_id=r-42 started job" {
		t.Fatalf("unexpected line %q", rec.lines[0])
	}
	if rec.lines[1] != "INFO plain" {
		t.Fatalf("unexpected line %q", rec.lines[1])
	}
}

func TestWithRunIDUsesStructuredFieldWhenAvailable(t *testing.T) {
	buf := &bytes.Buffer{}
	base := FromObservabilityWithComponent(observability.NewLogger(observability.LogConfig{Output: buf}), "Relay")

	WithRunID(base, "r-7").Info("relaying")
	if !strings.Contains(buf.String(), "run_id=r-7") || strings.Contains(buf.String(), "msg=\"run_id") {
		t.Fatalf("expected structured run_id, got %q", buf.String())
	}
}
