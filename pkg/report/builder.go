// Package report turns an evidence pack into the final schema-validated
// diagnosis report. The planner writes the report; the policy guard has
// the last word on next_actions.
package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AarenWang/haifa-ai/pkg/models"
	"github.com/AarenWang/haifa-ai/pkg/planner"
	"github.com/AarenWang/haifa-ai/pkg/policy"
	"github.com/AarenWang/haifa-ai/pkg/schema"
)

// defaultAllowedRisks applies when the evidence pack carries no policy,
// slightly wider than execution policy because actions are advisory.
var defaultAllowedRisks = []string{"READ_ONLY", "LOW"}

// Build prompts the planner for a diagnosis report over the evidence
// pack, filters next_actions through the pack's embedded policy, and
// validates the result. Blocked actions are preserved under
// audit.blocked_actions rather than silently dropped.
func Build(ctx context.Context, llm planner.Client, pack *models.EvidencePack) (*models.DiagnosisReport, error) {
	prompt := planner.BuildReportPrompt(pack)
	raw, err := llm.GenerateJSON(ctx, prompt, 0.2)
	if err != nil {
		return nil, fmt.Errorf("report: planner call failed: %w", err)
	}

	var rep models.DiagnosisReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("report: decode planner output: %w", err)
	}

	allowedRisks := pack.Policy.AllowedRisks
	if len(allowedRisks) == 0 {
		allowedRisks = defaultAllowedRisks
	}
	allowed, blocked := policy.FilterActions(rep.NextActions, allowedRisks, pack.Policy.DenyKeywords)
	rep.NextActions = allowed
	if rep.Audit.BlockedActions == nil {
		rep.Audit.BlockedActions = []models.Action{}
	}
	rep.Audit.BlockedActions = append(rep.Audit.BlockedActions, blocked...)

	if rep.EvidenceSummary == nil {
		rep.EvidenceSummary = []string{}
	}

	if err := schema.Validate(&rep, schema.Report); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return &rep, nil
}
