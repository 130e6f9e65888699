package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AarenWang/haifa-ai/pkg/orchestrator"
	"github.com/AarenWang/haifa-ai/pkg/schema"
)

// newRunCmd runs the deterministic collection pass only: baseline,
// classification, targeted commands. The validated evidence pack goes
// to --output or stdout.
func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		host          string
		service       string
		windowMinutes int
		env           string
		pid           string
		platform      string
		sessionID     string
		execMode      string
		output        string
	)

	var ssh *sshOverrides
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect an evidence pack without LLM rounds",
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

			orch := orchestrator.New(cfg, exec)
			pack, err := orch.Run(cmd.Context(), octx)
			if err != nil {
				return err
			}
			slog.Info("run finished", "session_id", sessionID)

			if err := schema.Validate(pack, schema.EvidencePack); err != nil {
				return err
			}

			if output != "" {
				return writeJSONFile(output, pack)
			}
			return printJSON(pack)
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
	cmd.Flags().StringVar(&output, "output", "", "write evidence pack to file instead of stdout")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("service")
	ssh = registerSSHFlags(cmd)

	return cmd
}
