package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"storybook/internal/async"
	"storybook/internal/logging"
	"storybook/internal/stream"
)

// ReplayConfig configures the replay executor.
type ReplayConfig struct {
	Path  string
	Delay time.Duration
}

// Replay plays back a recorded frame file instead of running a job. The
// recording is the exact byte stream a client received, so the job request
// only affects logging.
type Replay struct {
	cfg    ReplayConfig
	logger logging.Logger
}

func NewReplay(cfg ReplayConfig, logger logging.Logger) *Replay {
	return &Replay{cfg: cfg, logger: logging.OrNop(logger)}
}

func (p *Replay) Start(ctx context.Context, job Job) (Run, error) {
	f, err := os.Open(p.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	p.logger.Info("replaying %s for %s", p.cfg.Path, job)

	r := newRun()
	go func() {
		defer f.Close()
		r.finish(async.Run(p.logger, "replay", func() error {
			return p.play(ctx, r, f)
		}))
	}()
	return r, nil
}

func (p *Replay) play(ctx context.Context, r *run, src io.Reader) error {
	reader := stream.NewReader(src, stream.WithDiagnostics(func(err *stream.FrameError) {
		p.logger.Warn("skipping recorded frame: %v", err)
	}))

	var timer *time.Timer
	if p.cfg.Delay > 0 {
		timer = time.NewTimer(p.cfg.Delay)
		defer timer.Stop()
	}

	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read recording: %w", err)
		}
		if timer != nil {
			select {
			case <-timer.C:
				timer.Reset(p.cfg.Delay)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := r.send(ctx, ev); err != nil {
			return err
		}
	}
}
