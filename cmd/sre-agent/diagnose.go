package main

import (
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AarenWang/haifa-ai/pkg/audit"
	"github.com/AarenWang/haifa-ai/pkg/config"
	"github.com/AarenWang/haifa-ai/pkg/diagnose"
	"github.com/AarenWang/haifa-ai/pkg/history"
	"github.com/AarenWang/haifa-ai/pkg/orchestrator"
	"github.com/AarenWang/haifa-ai/pkg/planner"
)

// newDiagnoseCmd runs the full multi-round loop: deterministic
// collection, LLM-planned rounds, report. Artifacts land in the
// session's evidence tree; --output-* flags additionally copy them to
// standalone files.
func newDiagnoseCmd(opts *rootOptions) *cobra.Command {
	var (
		host          string
		service       string
		windowMinutes int
		env           string
		pid           string
		platform      string
		sessionID     string
		execMode      string

		budget = diagnose.DefaultBudget()

		outputEvidence string
		outputReport   string
		outputTrace    string
	)

	var ssh *sshOverrides
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Run a multi-round diagnosis (collect, plan, report)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if !orchestrator.ValidService(service) {
				return exitf(exitInvalidInput, "invalid or missing --service")
			}
			if pid != "" && !orchestrator.ValidPID(pid) {
				return exitf(exitInvalidInput, "invalid --pid")
			}

			exec, mode, err := buildExecutor(cfg, execMode, ssh)
			if err != nil {
				return err
			}
			llm, err := planner.NewClient(cfg.LLM)
			if err != nil {
				return exitf(exitConfigError, "failed to create LLM client: %v", err)
			}
			if sessionID == "" {
				sessionID = orchestrator.NewSessionID()
			}

			octx := orchestrator.Context{
				Host:          host,
				Service:       service,
				WindowMinutes: windowMinutes,
				Env:           env,
				SessionID:     sessionID,
				ExecMode:      mode,
				PID:           pid,
				Platform:      platform,
			}

			slog.Info("diagnose start",
				"host", host, "service", service, "pid", pid,
				"exec_mode", mode, "platform", platform,
				"session_id", sessionID, "llm", cfg.LLM.Vendor)

			res, err := diagnose.Run(cmd.Context(), cfg, octx, exec, llm, budget)
			if err != nil {
				return err
			}

			if cfg.History.Enabled {
				saveHistory(cmd, cfg, res)
			}

			if outputEvidence != "" {
				if err := writeJSONFile(outputEvidence, res.EvidencePack); err != nil {
					return err
				}
			}
			if outputTrace != "" {
				if err := writeJSONFile(outputTrace, res.Trace); err != nil {
					return err
				}
			}
			if outputReport != "" {
				if err := writeJSONFile(outputReport, res.Report); err != nil {
					return err
				}
			}

			sessionDir, _ := filepath.Abs(filepath.Join(cfg.Evidence.BaseDir, sessionID))
			slog.Info("diagnose finished",
				"session_id", sessionID, "stop_reason", res.Trace.StopReason,
				"session_dir", sessionDir)

			if outputReport == "" {
				return printJSON(res.Report)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "target host")
	cmd.Flags().StringVar(&service, "service", "", "service name")
	cmd.Flags().IntVar(&windowMinutes, "window-minutes", 30, "observation window in minutes")
	cmd.Flags().StringVar(&env, "env", "", "environment label")
	cmd.Flags().StringVar(&pid, "pid", "", "target process id")
	cmd.Flags().StringVar(&platform, "platform", "auto", "target platform (auto|linux|darwin|k8s)")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id (generated when empty)")
	cmd.Flags().StringVar(&execMode, "exec-mode", "ssh", "execution backend (ssh|local)")

	cmd.Flags().IntVar(&budget.MaxRounds, "max-rounds", budget.MaxRounds, "maximum planner rounds")
	cmd.Flags().IntVar(&budget.MaxCmdsPerRound, "max-cmds-per-round", budget.MaxCmdsPerRound, "maximum commands per round")
	cmd.Flags().IntVar(&budget.MaxTotalCmds, "max-total-cmds", budget.MaxTotalCmds, "maximum commands per session")
	cmd.Flags().IntVar(&budget.TimeBudgetSec, "time-budget-sec", budget.TimeBudgetSec, "session time budget in seconds")
	cmd.Flags().Float64Var(&budget.ConfidenceThreshold, "confidence-threshold", budget.ConfidenceThreshold, "early-stop confidence threshold")

	cmd.Flags().StringVar(&outputEvidence, "output-evidence", "", "also write the evidence pack to this file")
	cmd.Flags().StringVar(&outputReport, "output-report", "", "also write the report to this file")
	cmd.Flags().StringVar(&outputTrace, "output-trace", "", "also write the diagnosis trace to this file")

	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("service")
	ssh = registerSSHFlags(cmd)

	return cmd
}

// saveHistory records the finished session and its audit entries in
// Postgres. History is best effort; failures are logged and never fail
// the run.
func saveHistory(cmd *cobra.Command, cfg *config.Config, res *diagnose.Result) {
	store, err := history.NewStore(cmd.Context(), history.ConfigFromEnv())
	if err != nil {
		slog.Warn("history store unavailable", "error", err)
		return
	}
	defer func() { _ = store.Close() }()

	sessionID := res.EvidencePack.Meta.SessionID
	if err := store.SaveSession(cmd.Context(), res); err != nil {
		slog.Warn("history save failed", "session_id", sessionID, "error", err)
		return
	}
	entries, err := audit.NewLog(cfg.AuditLog).ReadSession(sessionID)
	if err != nil {
		slog.Warn("audit read failed", "session_id", sessionID, "error", err)
		return
	}
	if err := store.SaveExecutions(cmd.Context(), sessionID, entries); err != nil {
		slog.Warn("history executions save failed", "session_id", sessionID, "error", err)
	}
}
