package subprocess

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const (
	defaultStderrTail = 4 * 1024
	defaultStopGrace  = 5 * time.Second
)

// Config defines how to spawn and manage one executor process.
type Config struct {
	Command    string
	Args       []string
	Env        map[string]string
	WorkingDir string
	// ExtraFiles are inherited by the child starting at descriptor 3.
	ExtraFiles []*os.File
	// StderrTail bounds how much trailing stderr is kept for error reports.
	StderrTail int
	// StopGrace is how long the process group gets between SIGTERM and SIGKILL
	// once the context is cancelled.
	StopGrace time.Duration
}

// Subprocess manages the lifecycle of a single child process and its
// process group. Cancelling the start context terminates the whole group.
type Subprocess struct {
	cfg    Config
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	done   chan struct{}
	err    error
	mu     sync.Mutex

	waitOnce sync.Once
}

// New creates a new Subprocess from the given config.
func New(cfg Config) *Subprocess {
	if cfg.StderrTail <= 0 {
		cfg.StderrTail = defaultStderrTail
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = defaultStopGrace
	}
	return &Subprocess{cfg: cfg, stderr: newTailBuffer(cfg.StderrTail)}
}

func (s *Subprocess) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("subprocess already started")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := exec.CommandContext(ctx, s.cfg.Command, s.cfg.Args...)
	if s.cfg.WorkingDir != "" {
		cmd.Dir = s.cfg.WorkingDir
	}
	if len(s.cfg.Env) > 0 {
		env := append([]string{}, os.Environ()...)
		for k, v := range s.cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}
	cmd.ExtraFiles = s.cfg.ExtraFiles
	cmd.Stderr = s.stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = s.cfg.StopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start subprocess: %w", err)
	}
	s.cmd = cmd
	s.stdout = stdout
	s.done = make(chan struct{})

	// SIGTERM may be ignored; make sure the group is gone after the grace period.
	go func(done <-chan struct{}) {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		timer := time.NewTimer(s.cfg.StopGrace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			_ = signalGroup(cmd, syscall.SIGKILL)
		}
	}(s.done)

	return nil
}

// Stdout returns the child's standard output. It must be drained before Wait.
func (s *Subprocess) Stdout() io.ReadCloser {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdout
}

// StderrTail returns the last bytes the child wrote to stderr.
func (s *Subprocess) StderrTail() string {
	return s.stderr.String()
}

// Wait blocks until the child exits. It is safe to call more than once.
func (s *Subprocess) Wait() error {
	s.mu.Lock()
	cmd := s.cmd
	done := s.done
	s.mu.Unlock()
	if cmd == nil {
		return nil
	}
	s.waitOnce.Do(func() {
		s.err = cmd.Wait()
		close(done)
	})
	<-done
	return s.err
}

func (s *Subprocess) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		pgid = cmd.Process.Pid
	}
	if err := syscall.Kill(-pgid, sig); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
