package subprocess

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestSubprocess_StderrTailCapturesOutput(t *testing.T) {
	proc := New(Config{
		Command: "sh",
		Args:    []string{"-c", "echo err 1>&2; exit 2"},
	})
	if err := proc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, proc.Stdout())
	err := proc.Wait()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 2 {
		t.Fatalf("expected exit status 2, got %v", err)
	}
	if !strings.Contains(proc.StderrTail(), "err") {
		t.Fatalf("expected stderr tail to contain output, got %q", proc.StderrTail())
	}
	if err := proc.Wait(); err != exitErr {
		t.Fatalf("second wait returned %v", err)
	}
}

func TestSubprocess_StderrTailIsBounded(t *testing.T) {
	proc := New(Config{
		Command:    "sh",
		Args:       []string{"-c", "printf 'aaaaaaaaaabbbbb' 1>&2"},
		StderrTail: 5,
	})
	if err := proc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, proc.Stdout())
	if err := proc.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if got := proc.StderrTail(); got != "bbbbb" {
		t.Fatalf("unexpected tail %q", got)
	}
}

func TestSubprocess_ExtraFilesStartAtDescriptorThree(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer r.Close()

	proc := New(Config{
		Command:    "sh",
		Args:       []string{"-c", "echo hello >&3"},
		ExtraFiles: []*os.File{w},
	})
	if err := proc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	_ = w.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	_, _ = io.Copy(io.Discard, proc.Stdout())
	if err := proc.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Fatalf("unexpected fd 3 output %q", out)
	}
}

func TestSubprocess_CancelTerminatesProcessGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	proc := New(Config{
		Command:   "sh",
		Args:      []string{"-c", "sleep 30 & wait"},
		StopGrace: 500 * time.Millisecond,
	})
	if err := proc.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if proc.PID() == 0 {
		t.Fatalf("expected pid")
	}

	cancel()
	done := make(chan error, 1)
	go func() {
		_, _ = io.Copy(io.Discard, proc.Stdout())
		done <- proc.Wait()
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("process group survived cancellation")
	}
}
