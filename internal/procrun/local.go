package procrun

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/calvex/runbook/pkg/schema"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxOutputSize = 10 * 1024 * 1024 // 10MB
	chunkSize            = 4096
)

// Config configures the local process runner.
type Config struct {
	DefaultTimeout time.Duration
	MaxOutputSize  int64
}

// LocalRunner executes commands as local child processes with merged
// stdout+stderr capture, output size capping, and deadline enforcement.
type LocalRunner struct {
	cfg    Config
	logger *slog.Logger
}

// NewLocalRunner creates a LocalRunner with defaults applied.
func NewLocalRunner(cfg Config, logger *slog.Logger) *LocalRunner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MaxOutputSize <= 0 {
		cfg.MaxOutputSize = defaultMaxOutputSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalRunner{cfg: cfg, logger: logger}
}

// Submit starts the process and returns a handle streaming its merged
// output. The deadline is req.Timeout (or the runner default); on expiry
// the process is killed and the result reports Killed.
func (r *LocalRunner) Submit(ctx context.Context, req Request) (*Handle, error) {
	if req.Command == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty command")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.cfg.DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)

	cmd := exec.CommandContext(execCtx, req.Command, req.Args...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}
	if req.Env != nil {
		cmd.Env = os.Environ()
		for k, v := range req.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}

	// Single merged stream: stdout and stderr share one pipe.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	start := time.Now()
	if err := cmd.Start(); err != nil {
		cancel()
		pw.Close()
		pr.Close()
		return nil, schema.NewErrorf(schema.ErrCodeCommandFailed,
			"spawn %q: %s", req.Command, err.Error()).WithCause(err)
	}

	output := make(chan Chunk, 16)
	done := make(chan Result, 1)

	// Reader goroutine: forwards capped output, keeps draining past the cap
	// so the child never blocks on a full pipe.
	go func() {
		defer close(output)
		var written int64
		buf := make([]byte, chunkSize)
		for {
			n, err := pr.Read(buf)
			if n > 0 {
				remaining := r.cfg.MaxOutputSize - written
				if remaining > 0 {
					data := buf[:n]
					if int64(len(data)) > remaining {
						data = data[:remaining]
					}
					chunk := make([]byte, len(data))
					copy(chunk, data)
					output <- Chunk{Data: chunk}
					written += int64(len(data))
				}
			}
			if err != nil {
				return
			}
		}
	}()

	// Waiter goroutine: closes the pipe when the process exits, then
	// delivers the single Result.
	go func() {
		defer cancel()
		waitErr := cmd.Wait()
		pw.Close()

		res := Result{Duration: time.Since(start)}
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				res.ExitCode = exitErr.ExitCode()
			} else {
				res.Err = waitErr
			}
			if execCtx.Err() != nil {
				res.Killed = true
			}
		}
		done <- res
	}()

	return &Handle{Output: output, Done: done}, nil
}

var _ Runner = (*LocalRunner)(nil)
