package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AarenWang/haifa-ai/pkg/config"
)

func TestLocalRun(t *testing.T) {
	e := NewLocalExecutor()
	out := e.Run(context.Background(), "localhost", "echo hello", 5*time.Second)
	assert.Equal(t, "hello\n", out)
}

func TestLocalRunCapturesStderr(t *testing.T) {
	e := NewLocalExecutor()
	out := e.Run(context.Background(), "localhost", "echo out; echo err 1>&2", 5*time.Second)
	assert.Equal(t, "out\n\n[stderr]\nerr\n", out)
}

func TestLocalRunNonZeroExitKeepsOutput(t *testing.T) {
	e := NewLocalExecutor()
	out := e.Run(context.Background(), "localhost", "echo partial; exit 3", 5*time.Second)
	assert.Contains(t, out, "partial")
	assert.NotContains(t, out, "exec error")
}

func TestLocalRunTimeout(t *testing.T) {
	e := NewLocalExecutor()
	out := e.Run(context.Background(), "localhost", "sleep 5", 1*time.Second)
	assert.Equal(t, "command timeout after 1s", out)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, "'plain'", shellQuote("plain"))
	assert.Equal(t, `'it'"'"'s'`, shellQuote("it's"))
}

func TestSSHBuildRemoteScript(t *testing.T) {
	off := false
	e := NewSSHExecutor(config.SSHConfig{
		Env:           map[string]string{"LANG": "C", "APP_ENV": "prod"},
		PathExtra:     []string{"/opt/java/bin"},
		ShellInit:     []string{"umask 022"},
		SourceProfile: &off,
	})

	script := e.buildRemoteScript("jstat -gcutil 4242 1000 3")
	assert.Equal(t,
		"export APP_ENV='prod'; export LANG='C'; export PATH='/opt/java/bin':$PATH; umask 022; jstat -gcutil 4242 1000 3",
		script)
}

func TestSSHProfileSourcingDefaultsOn(t *testing.T) {
	e := NewSSHExecutor(config.SSHConfig{})

	script := e.buildRemoteScript("uptime")
	assert.Contains(t, script, ". ~/.bashrc >/dev/null 2>&1 || true")
	assert.Contains(t, script, "JAVA_HOME")
	assert.True(t, strings.HasSuffix(script, "; uptime"))
}

func TestSSHWrapCommandUsesLoginShell(t *testing.T) {
	off := false
	e := NewSSHExecutor(config.SSHConfig{SourceProfile: &off})

	wrapped := e.wrapCommand("uptime")
	assert.Equal(t, "bash -lc 'uptime'", wrapped)
}

func TestSSHRunWithoutCredentials(t *testing.T) {
	e := NewSSHExecutor(config.SSHConfig{})
	out := e.Run(context.Background(), "host01", "uptime", time.Second)
	assert.Contains(t, out, "ssh error: no ssh credentials configured")
}
