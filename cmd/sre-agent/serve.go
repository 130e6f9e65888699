package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AarenWang/haifa-ai/pkg/api"
	"github.com/AarenWang/haifa-ai/pkg/history"
	"github.com/AarenWang/haifa-ai/pkg/planner"
)

// newServeCmd starts the HTTP API: alert-triggered diagnose sessions
// and read-only artifact retrieval.
func newServeCmd(opts *rootOptions) *cobra.Command {
	var execMode string

	var ssh *sshOverrides
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP diagnosis API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			exec, _, err := buildExecutor(cfg, execMode, ssh)
			if err != nil {
				return err
			}
			llm, err := planner.NewClient(cfg.LLM)
			if err != nil {
				return exitf(exitConfigError, "failed to create LLM client: %v", err)
			}

			srv := api.NewServer(cfg, exec, llm)

			if cfg.History.Enabled {
				store, err := history.NewStore(cmd.Context(), history.ConfigFromEnv())
				if err != nil {
					slog.Warn("history store unavailable, sessions will not be recorded", "error", err)
				} else {
					defer func() { _ = store.Close() }()
					srv.SetHistory(store)
				}
			}

			return srv.Run()
		},
	}

	cmd.Flags().StringVar(&execMode, "exec-mode", "ssh", "execution backend (ssh|local)")
	ssh = registerSSHFlags(cmd)

	return cmd
}
