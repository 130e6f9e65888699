package main

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AarenWang/haifa-ai/pkg/models"
	"github.com/AarenWang/haifa-ai/pkg/planner"
	"github.com/AarenWang/haifa-ai/pkg/report"
)

// newReportCmd builds a diagnosis report from a saved evidence pack.
// Packs written before the policy block was introduced fall back to
// the configured action policy.
func newReportCmd(opts *rootOptions) *cobra.Command {
	var evidencePath string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a report from a saved evidence pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(evidencePath)
			if err != nil {
				return exitf(exitInvalidInput, "failed to read evidence pack: %v", err)
			}
			var pack models.EvidencePack
			if err := json.Unmarshal(data, &pack); err != nil {
				return exitf(exitInvalidInput, "failed to parse evidence pack: %v", err)
			}
			if len(pack.Policy.AllowedRisks) == 0 {
				pack.Policy = models.PackPolicy{
					AllowedRisks: cfg.Policy.AllowedRisks,
					DenyKeywords: cfg.Policy.DenyKeywords,
				}
			}

			llm, err := planner.NewClient(cfg.LLM)
			if err != nil {
				return exitf(exitConfigError, "failed to create LLM client: %v", err)
			}

			slog.Info("report start", "evidence", evidencePath, "llm", cfg.LLM.Vendor)
			rep, err := report.Build(cmd.Context(), llm, &pack)
			if err != nil {
				return err
			}
			slog.Info("report finished")
			return printJSON(rep)
		},
	}

	cmd.Flags().StringVar(&evidencePath, "evidence", "", "path to evidence pack JSON")
	_ = cmd.MarkFlagRequired("evidence")

	return cmd
}
