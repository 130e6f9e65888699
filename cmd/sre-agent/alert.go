package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/AarenWang/haifa-ai/pkg/alert"
	"github.com/AarenWang/haifa-ai/pkg/models"
)

// newIngestAlertCmd normalizes a monitoring webhook payload into run
// arguments, for wiring alert pipelines to the diagnose command.
func newIngestAlertCmd() *cobra.Command {
	var payloadPath string

	cmd := &cobra.Command{
		Use:   "ingest-alert",
		Short: "Normalize an alert payload into run arguments",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(payloadPath)
			if err != nil {
				return exitf(exitInvalidInput, "failed to read payload: %v", err)
			}
			var payload map[string]any
			if err := json.Unmarshal(data, &payload); err != nil {
				return exitf(exitInvalidInput, "failed to parse payload: %v", err)
			}
			return printJSON(alert.NormalizeAlert(payload))
		},
	}

	cmd.Flags().StringVar(&payloadPath, "payload", "", "path to alert payload JSON")
	_ = cmd.MarkFlagRequired("payload")

	return cmd
}

// newTicketCmd converts a diagnosis report into a generic ticket
// payload for downstream ticketing systems.
func newTicketCmd() *cobra.Command {
	var reportPath string

	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Convert a report into a ticket payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(reportPath)
			if err != nil {
				return exitf(exitInvalidInput, "failed to read report: %v", err)
			}
			var rep models.DiagnosisReport
			if err := json.Unmarshal(data, &rep); err != nil {
				return exitf(exitInvalidInput, "failed to parse report: %v", err)
			}
			return printJSON(alert.BuildTicketPayload(&rep))
		},
	}

	cmd.Flags().StringVar(&reportPath, "report", "", "path to report JSON")
	_ = cmd.MarkFlagRequired("report")

	return cmd
}
