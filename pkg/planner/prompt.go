package planner

import (
	"encoding/json"
	"fmt"

	"github.com/AarenWang/haifa-ai/pkg/schema"
)

// PlanState is the compact, redacted session summary handed to the
// planner each round. It carries summaries and signals only, never raw
// command output.
type PlanState struct {
	Meta            any            `json:"meta"`
	PrimaryCategory string         `json:"primary_category"`
	Hypothesis      any            `json:"hypothesis"`
	Signals         map[string]any `json:"signals"`
	Snapshots       any            `json:"snapshots"`
	ExecutedCmdIDs  []string       `json:"executed_cmd_ids"`
	Budget          map[string]any `json:"budget"`
}

// BuildPlanPrompt assembles the per-round planning prompt: hard
// constraints first, then the state, the remaining allowlist, and the
// plan schema the response must conform to.
func BuildPlanPrompt(state PlanState, allowedCmdPool []string, maxCmdsPerRound int) string {
	allowed := dedupe(allowedCmdPool)
	executed := state.ExecutedCmdIDs
	if executed == nil {
		executed = []string{}
	}
	budget := state.Budget
	if budget == nil {
		budget = map[string]any{}
	}

	return "You are an SRE diagnosis planner. Your job is to decide what evidence to collect next.\n" +
		"Hard constraints:\n" +
		"- You MUST return ONLY a single JSON object (no markdown, no code fences).\n" +
		"- The JSON MUST conform to the provided plan schema (no extra keys).\n" +
		"- You MUST ONLY choose cmd_id from allowed_cmd_pool (never invent cmd_id).\n" +
		fmt.Sprintf("- You MUST propose at most %d cmd_id in next_cmds.\n", maxCmdsPerRound) +
		"- If evidence is sufficient, choose decision=STOP and explain stop_reason.\n\n" +
		"Context (redacted summaries only):\n" +
		"state=" + compactJSON(state) + "\n\n" +
		"allowed_cmd_pool=" + compactJSON(allowed) + "\n" +
		"already_executed_cmd_ids=" + compactJSON(executed) + "\n" +
		"budget=" + compactJSON(budget) + "\n\n" +
		"Plan schema:\n" + string(schema.PlanJSON)
}

// BuildReportPrompt assembles the final report prompt from the full
// evidence pack and the report schema.
func BuildReportPrompt(evidencePack any) string {
	return "You are an SRE assistant. Generate a diagnosis report strictly following the provided JSON schema. " +
		"Use the evidence pack and do not add extra keys.\n\n" +
		"Evidence pack:\n" + compactJSON(evidencePack) + "\n\n" +
		"Schema:\n" + string(schema.ReportJSON)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func dedupe(in []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
