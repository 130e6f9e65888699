package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AarenWang/haifa-ai/pkg/audit"
	"github.com/AarenWang/haifa-ai/pkg/config"
	"github.com/AarenWang/haifa-ai/pkg/orchestrator"
	"github.com/AarenWang/haifa-ai/pkg/policy"
	"github.com/AarenWang/haifa-ai/pkg/redact"
)

// newExecCmd runs one registered command and prints its redacted
// output. Every execution goes through the same policy, validation,
// and redaction path as a full session; only the evidence store is
// skipped.
func newExecCmd(opts *rootOptions) *cobra.Command {
	var (
		host       string
		cmdID      string
		service    string
		pid        string
		timeoutSec int
		execMode   string
		auditPath  string
	)

	var ssh *sshOverrides
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute a whitelisted command by cmd_id",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return runExec(cmd, cfg, execArgs{
				host: host, cmdID: cmdID, service: service, pid: pid,
				timeoutSec: timeoutSec, execMode: execMode, auditPath: auditPath,
				ssh: ssh,
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "target host")
	cmd.Flags().StringVar(&cmdID, "cmd-id", "", "registered command id")
	cmd.Flags().StringVar(&service, "service", "", "service name for {service} templates")
	cmd.Flags().StringVar(&pid, "pid", "", "process id for {pid} templates")
	cmd.Flags().IntVar(&timeoutSec, "timeout", 30, "command timeout in seconds")
	cmd.Flags().StringVar(&execMode, "exec-mode", "ssh", "execution backend (ssh|local)")
	cmd.Flags().StringVar(&auditPath, "audit-log", "", "audit log path override")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("cmd-id")
	ssh = registerSSHFlags(cmd)

	return cmd
}

type execArgs struct {
	host, cmdID, service, pid string
	timeoutSec                int
	execMode                  string
	auditPath                 string
	ssh                       *sshOverrides
}

func runExec(cmd *cobra.Command, cfg *config.Config, a execArgs) error {
	slog.Info("exec start", "host", a.host, "cmd_id", a.cmdID, "exec_mode", a.execMode)

	meta, err := cfg.Commands.Get(a.cmdID)
	if err != nil {
		return exitf(exitConfigError, "command not found: %v", err)
	}

	if !policy.IsCommandAllowed(meta, cfg.Policy.AllowedRisks, cfg.Policy.DenyKeywords) {
		slog.Warn("exec blocked by policy", "cmd_id", a.cmdID)
		return exitf(exitPolicyBlocked, "command blocked by policy")
	}

	if meta.RequiresService() && !orchestrator.ValidService(a.service) {
		return exitf(exitInvalidInput, "invalid or missing --service")
	}
	if meta.RequiresPID() && !orchestrator.ValidPID(a.pid) {
		return exitf(exitInvalidInput, "invalid or missing --pid")
	}

	command, err := config.RenderCommand(meta.Cmd, a.service, a.pid)
	if err != nil {
		return exitf(exitRenderFailure, "failed to render command: %v", err)
	}

	exec, _, err := buildExecutor(cfg, a.execMode, a.ssh)
	if err != nil {
		return err
	}

	startedAt := time.Now().UTC()
	output := exec.Run(cmd.Context(), a.host, command, time.Duration(a.timeoutSec)*time.Second)
	elapsed := time.Since(startedAt)
	slog.Info("exec finished", "cmd_id", a.cmdID, "elapsed_ms", elapsed.Milliseconds())

	redacted, tags, replaced := redact.NewRedactor().Redact(output)

	auditPath := a.auditPath
	if auditPath == "" {
		auditPath = cfg.AuditLog
	}
	if auditPath != "" {
		// Standalone executions still get a session id so the audit
		// log stays replayable per session.
		entry := audit.Entry{
			SessionID:      orchestrator.NewSessionID(),
			ID:             fmt.Sprintf("%s-%d", a.cmdID, startedAt.Unix()),
			CmdID:          a.cmdID,
			Cmd:            command,
			StartedAt:      startedAt.Format(time.RFC3339),
			ElapsedMS:      elapsed.Milliseconds(),
			OutputHash:     redact.HashText(redacted),
			RedactedFields: tags,
			RedactedCount:  replaced,
		}
		if err := audit.NewLog(auditPath).Append(entry); err != nil {
			slog.Warn("audit append failed", "path", auditPath, "error", err)
		}
	}

	fmt.Println(redacted)
	return nil
}
