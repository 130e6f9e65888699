package executor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/AarenWang/haifa-ai/pkg/config"
)

// profileInit sources the usual shell profiles so tools installed via
// login shells (jps, jstack) resolve, then derives JAVA_HOME from the
// java binary when the profiles did not set it.
var profileInit = []string{
	". /etc/profile >/dev/null 2>&1 || true",
	". ~/.bash_profile >/dev/null 2>&1 || true",
	". ~/.profile >/dev/null 2>&1 || true",
	". ~/.bashrc >/dev/null 2>&1 || true",
	`if [ -z "$JAVA_HOME" ] && command -v java >/dev/null 2>&1; then export JAVA_HOME=$(dirname $(dirname $(readlink -f $(command -v java)))); export PATH=$JAVA_HOME/bin:$PATH; fi`,
}

// SSHExecutor runs commands on a remote host over SSH. Authentication
// is password or private key; host keys are not verified because the
// agent targets hosts named at invocation time, not a fixed fleet.
type SSHExecutor struct {
	cfg config.SSHConfig
}

// NewSSHExecutor creates an executor from SSH settings.
func NewSSHExecutor(cfg config.SSHConfig) *SSHExecutor {
	if cfg.User == "" {
		cfg.User = "root"
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10
	}
	return &SSHExecutor{cfg: cfg}
}

// buildRemoteScript prepends environment exports, PATH extensions, and
// shell init lines to the command, joined into one bash script.
func (e *SSHExecutor) buildRemoteScript(command string) string {
	var lines []string
	for _, k := range sortedKeys(e.cfg.Env) {
		lines = append(lines, fmt.Sprintf("export %s=%s", k, shellQuote(e.cfg.Env[k])))
	}
	for _, p := range e.cfg.PathExtra {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, fmt.Sprintf("export PATH=%s:$PATH", shellQuote(p)))
		}
	}
	for _, init := range e.cfg.ShellInit {
		if init = strings.TrimSpace(init); init != "" {
			lines = append(lines, init)
		}
	}
	if e.cfg.SourceProfile == nil || *e.cfg.SourceProfile {
		lines = append(lines, profileInit...)
	}
	lines = append(lines, command)
	return strings.Join(lines, "; ")
}

// wrapCommand wraps the remote script in a login shell so PATH and
// JAVA_HOME behave as they would for an interactive operator.
func (e *SSHExecutor) wrapCommand(command string) string {
	return "bash -lc " + shellQuote(e.buildRemoteScript(command))
}

func (e *SSHExecutor) authMethods() ([]ssh.AuthMethod, error) {
	if e.cfg.Password != "" {
		return []ssh.AuthMethod{ssh.Password(e.cfg.Password)}, nil
	}
	if e.cfg.KeyPath != "" {
		key, err := os.ReadFile(e.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", e.cfg.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse key %s: %w", e.cfg.KeyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	return nil, fmt.Errorf("no ssh credentials configured")
}

// Run executes command on host with the given timeout. Connection and
// execution failures come back as in-band output text so the session
// records them as evidence.
func (e *SSHExecutor) Run(ctx context.Context, host, command string, timeout time.Duration) string {
	user := e.cfg.User
	if at := strings.IndexByte(host, '@'); at >= 0 {
		user, host = host[:at], host[at+1:]
	}

	auth, err := e.authMethods()
	if err != nil {
		return fmt.Sprintf("ssh error: %v", err)
	}

	clientCfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         time.Duration(e.cfg.ConnectTimeout) * time.Second,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", e.cfg.Port))
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return fmt.Sprintf("ssh error: connect %s: %v", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Sprintf("ssh error: open session: %v", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- session.Run(e.wrapCommand(command))
	}()

	select {
	case <-runCtx.Done():
		session.Close()
		return timeoutMessage(timeout)
	case err := <-done:
		if err != nil {
			if _, ok := err.(*ssh.ExitError); !ok {
				return fmt.Sprintf("ssh error: %v", err)
			}
			// Non-zero remote exit is evidence, keep the output.
		}
		return combineOutput(stdout.String(), stderr.String())
	}
}

// sortedKeys keeps the export order deterministic across runs.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
