package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AarenWang/haifa-ai/pkg/config"
	"github.com/AarenWang/haifa-ai/pkg/executor"
	"github.com/AarenWang/haifa-ai/pkg/version"
)

// Process exit codes, stable for scripting.
const (
	exitConfigError     = 2
	exitPolicyBlocked   = 3
	exitInvalidInput    = 4
	exitRenderFailure   = 5
	exitInvalidExecMode = 6
)

// exitError carries a process exit code with an optional message
// printed to stderr.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitf(code int, format string, args ...any) *exitError {
	return &exitError{code: code, msg: fmt.Sprintf(format, args...)}
}

type rootOptions struct {
	configDir string
	logLevel  string
}

// sshOverrides are the per-invocation SSH credential flags shared by
// every subcommand that executes commands.
type sshOverrides struct {
	user     string
	password string
	port     int
}

func registerSSHFlags(cmd *cobra.Command) *sshOverrides {
	o := &sshOverrides{}
	cmd.Flags().StringVar(&o.user, "ssh-user", "", "SSH user override")
	cmd.Flags().StringVar(&o.password, "ssh-password", "", "SSH password override")
	cmd.Flags().IntVar(&o.port, "ssh-port", 0, "SSH port override")
	return o
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "sre-agent",
		Short:         "Read-only SRE diagnostic agent",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			envPath := filepath.Join(opts.configDir, ".env")
			if err := godotenv.Load(envPath); err != nil {
				slog.Debug("No .env file, continuing with existing environment", "path", envPath)
			}
			configureLogging(opts.logLevel)
		},
	}

	root.PersistentFlags().StringVar(&opts.configDir, "config-dir",
		envOr("CONFIG_DIR", "configs"), "path to configuration directory")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level",
		envOr("SRE_LOG_LEVEL", "info"), "log level (debug|info|warn|error)")

	root.AddCommand(
		newExecCmd(opts),
		newRunCmd(opts),
		newDiagnoseCmd(opts),
		newReportCmd(opts),
		newIngestAlertCmd(),
		newTicketCmd(),
		newServeCmd(opts),
	)
	return root
}

func configureLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Initialize(opts.configDir)
	if err != nil {
		return nil, exitf(exitConfigError, "failed to load configuration: %v", err)
	}
	return cfg, nil
}

// buildExecutor resolves the execution backend for a subcommand.
// SSH credential flags override the configured values for this
// invocation only.
func buildExecutor(cfg *config.Config, execMode string, ssh *sshOverrides) (executor.Executor, string, error) {
	mode := strings.ToLower(execMode)
	if mode == "" {
		mode = "ssh"
	}
	switch mode {
	case "local":
		return executor.NewLocalExecutor(), mode, nil
	case "ssh":
		sshCfg := cfg.SSH
		if ssh.user != "" {
			sshCfg.User = ssh.user
		}
		if ssh.password != "" {
			sshCfg.Password = ssh.password
		}
		if ssh.port > 0 {
			sshCfg.Port = ssh.port
		}
		return executor.NewSSHExecutor(sshCfg), mode, nil
	default:
		return nil, mode, exitf(exitInvalidExecMode, "invalid --exec-mode (use ssh|local)")
	}
}

// printJSON writes indented JSON to stdout, matching the artifact
// files on disk.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// writeJSONFile persists indented JSON, creating parent directories.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
