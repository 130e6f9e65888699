package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// LocalExecutor runs commands through the local shell. The host
// argument is ignored; it exists so local and SSH execution share one
// call shape.
type LocalExecutor struct{}

// NewLocalExecutor creates a local shell executor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// Run executes command via /bin/sh -c with the given timeout. Stderr is
// appended under a [stderr] marker; a timeout or launch failure becomes
// in-band output text.
func (e *LocalExecutor) Run(ctx context.Context, host, command string, timeout time.Duration) string {
	_ = host

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return timeoutMessage(timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Sprintf("exec error: %v", err)
		}
		// Non-zero exit is still evidence; fall through with the output.
	}
	return combineOutput(stdout.String(), stderr.String())
}
