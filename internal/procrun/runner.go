package procrun

import (
	"context"
	"time"
)

// Request describes one process invocation. Command and Args are fully
// resolved text; Env entries are added over the inherited environment.
type Request struct {
	Command    string
	Args       []string
	WorkingDir string
	Env        map[string]string
	Stdin      string
	Timeout    time.Duration // 0 means the runner's default
}

// Chunk is one piece of the merged stdout+stderr stream.
type Chunk struct {
	Data []byte
}

// Result is the final completion status of a submitted process.
type Result struct {
	ExitCode int
	Killed   bool // terminated by timeout or cancellation
	Duration time.Duration
	Err      error // non-exit failure after start, nil otherwise
}

// Handle exposes a running process: Output carries merged output chunks
// until the process exits, then closes; Done delivers exactly one Result.
type Handle struct {
	Output <-chan Chunk
	Done   <-chan Result
}

// Runner spawns external processes for command steps. A spawn failure is
// returned from Submit directly; once submitted, completion always arrives
// via the handle. Output is a single merged stream, the model does not
// distinguish stdout from stderr after capture.
type Runner interface {
	Submit(ctx context.Context, req Request) (*Handle, error)
}

// Collect drains a handle into a single string and waits for completion.
func Collect(h *Handle) (string, Result) {
	var buf []byte
	for chunk := range h.Output {
		buf = append(buf, chunk.Data...)
	}
	res := <-h.Done
	return string(buf), res
}
