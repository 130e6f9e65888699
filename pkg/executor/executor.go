// Package executor runs shell commands on the diagnosed host, locally
// or over SSH. Execution failures are returned in-band as output text
// rather than as errors: a timeout or an unreachable host is diagnostic
// evidence, and the caller records it like any other command result.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Executor runs one already-policy-checked command on a host and
// returns its combined output. Implementations respect ctx and the
// per-command timeout and never panic on remote failure.
type Executor interface {
	Run(ctx context.Context, host, command string, timeout time.Duration) string
}

// timeoutMessage is the in-band marker for a command that exceeded its
// budget. Stable text so downstream consumers recognize it.
func timeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("command timeout after %ds", int(timeout.Seconds()))
}

// combineOutput appends stderr under a marker so a single artifact
// holds everything the command said.
func combineOutput(stdout, stderr string) string {
	out := stdout
	if stderr != "" {
		out += "\n[stderr]\n" + stderr
	}
	return out
}

// shellQuote single-quotes a string for POSIX shell contexts, the
// embedded-quote dance included.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
