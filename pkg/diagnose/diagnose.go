// Package diagnose runs the multi-round planning loop on top of the
// deterministic orchestrator. The planner proposes commands from a
// routing-restricted pool; the system filters, executes, reclassifies,
// and stops on the first exceeded budget.
package diagnose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AarenWang/haifa-ai/pkg/config"
	"github.com/AarenWang/haifa-ai/pkg/evidence"
	"github.com/AarenWang/haifa-ai/pkg/executor"
	"github.com/AarenWang/haifa-ai/pkg/models"
	"github.com/AarenWang/haifa-ai/pkg/orchestrator"
	"github.com/AarenWang/haifa-ai/pkg/planner"
	"github.com/AarenWang/haifa-ai/pkg/report"
	"github.com/AarenWang/haifa-ai/pkg/rules"
	"github.com/AarenWang/haifa-ai/pkg/schema"
	"github.com/AarenWang/haifa-ai/pkg/version"
)

// Stop reasons recorded in the diagnosis trace.
const (
	StopTimeBudgetExceeded   = "time_budget_exceeded"
	StopMaxTotalCmdsExceeded = "max_total_cmds_exceeded"
	StopPoolExhausted        = "allowed_cmd_pool_exhausted"
	StopLLM                  = "llm_stop"
	StopConfidenceReached    = "confidence_threshold_reached"
	StopMaxRoundsReached     = "max_rounds_reached"
	StopPlanSchemaError      = "plan_schema_error"
)

// Filter drop reasons recorded per blocked planner command.
const (
	DropNotInAllowedPool = "not_in_allowed_pool"
	DropDuplicate        = "duplicate"
	DropUnknownCmdID     = "unknown_cmd_id"
)

// Budget bounds one diagnose session.
type Budget struct {
	MaxRounds           int     `json:"max_rounds"`
	MaxCmdsPerRound     int     `json:"max_cmds_per_round"`
	MaxTotalCmds        int     `json:"max_total_cmds"`
	TimeBudgetSec       int     `json:"time_budget_sec"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// DefaultBudget returns the standard session bounds.
func DefaultBudget() Budget {
	return Budget{
		MaxRounds:           3,
		MaxCmdsPerRound:     3,
		MaxTotalCmds:        12,
		TimeBudgetSec:       120,
		ConfidenceThreshold: 0.85,
	}
}

// Trace is the persisted record of one diagnose session.
type Trace struct {
	SessionID      string              `json:"session_id"`
	InitialPrimary string              `json:"initial_primary"`
	Primary        string              `json:"primary"`
	StopReason     string              `json:"stop_reason"`
	Budget         Budget              `json:"budget"`
	Rounds         []models.RoundTrace `json:"rounds"`
}

// Result bundles everything a diagnose session produces.
type Result struct {
	EvidencePack *models.EvidencePack    `json:"evidence_pack"`
	Report       *models.DiagnosisReport `json:"diagnosis_report"`
	Trace        *Trace                  `json:"diagnosis_trace"`
}

// Run executes baseline collection, then up to budget.MaxRounds planner
// rounds, then the report builder. Stop conditions are checked before
// each round in a fixed order: time budget, total command budget, pool
// exhaustion; then the plan itself may stop the loop.
func Run(ctx context.Context, cfg *config.Config, octx orchestrator.Context, exec executor.Executor, llm planner.Client, budget Budget) (*Result, error) {
	orch := orchestrator.New(cfg, exec)
	pack, err := orch.Run(ctx, octx)
	if err != nil {
		return nil, err
	}

	initialPrimary := pack.PrimaryCategory()
	primary := initialPrimary
	allowedPool := cfg.Routes[primary]
	engine := rules.NewEngine(cfg.Rules)
	platform := orchestrator.ResolvePlatform(octx)
	store := evidence.NewStore(cfg.Evidence.BaseDir, octx.SessionID, cfg.Evidence.KeepRaw())

	executed := pack.ExecutedCmdIDs()

	var rounds []models.RoundTrace
	stopReason := ""
	start := time.Now()

	for round := 1; round <= budget.MaxRounds; round++ {
		if int(time.Since(start).Seconds()) >= budget.TimeBudgetSec {
			stopReason = StopTimeBudgetExceeded
			break
		}
		// Baseline executions count against the total command budget.
		if len(executed) >= budget.MaxTotalCmds {
			stopReason = StopMaxTotalCmdsExceeded
			break
		}

		var remaining []string
		for _, cmdID := range allowedPool {
			if !executed[cmdID] {
				remaining = append(remaining, cmdID)
			}
		}
		if len(remaining) == 0 {
			stopReason = StopPoolExhausted
			break
		}

		state := buildState(pack, primary, executed, budget, round)
		prompt := planner.BuildPlanPrompt(state, remaining, budget.MaxCmdsPerRound)

		slog.Info("llm plan", "round", round, "primary", primary, "remaining_pool", len(remaining))
		raw, err := llm.GenerateJSON(ctx, prompt, 0.2)
		if err != nil {
			return nil, fmt.Errorf("diagnose: planner round %d: %w", round, err)
		}
		if err := schema.Validate(raw, schema.Plan); err != nil {
			slog.Error("plan rejected", "round", round, "error", err)
			stopReason = StopPlanSchemaError
			break
		}
		var plan models.Plan
		if err := json.Unmarshal(raw, &plan); err != nil {
			slog.Error("plan rejected", "round", round, "error", err)
			stopReason = StopPlanSchemaError
			break
		}

		if plan.IsStop() {
			stopReason = plan.StopReason
			if stopReason == "" {
				stopReason = StopLLM
			}
			rounds = append(rounds, models.RoundTrace{
				Round:          round,
				Decision:       models.DecisionStop,
				Plan:           &plan,
				AllowedCmdPool: remaining,
				Blocked:        []models.BlockedCommand{},
				Executed:       []models.ExecutedCommand{},
			})
			break
		}

		kept, blocked := filterPlanCmds(cfg, plan, remaining, executed, budget.MaxCmdsPerRound)

		var execTrace []models.ExecutedCommand
		for _, item := range kept {
			timeoutSec := item.TimeoutSec
			if timeoutSec <= 0 {
				timeoutSec = 30
			}
			res, err := orch.ExecCmd(ctx, octx, item.CmdID, platform, store, timeoutSec)
			if err != nil {
				return nil, fmt.Errorf("diagnose: round %d: %w", round, err)
			}
			executed[item.CmdID] = true
			if res.Err != "" {
				slog.Warn("planned exec failed", "round", round, "cmd_id", item.CmdID, "reason", res.Err)
				pack.NextChecks = append(pack.NextChecks, models.NextCheck{
					CmdID: item.CmdID, Purpose: "blocked_or_failed",
				})
				pack.Metrics.Skipped++
				continue
			}
			mergeExecution(pack, item.CmdID, res, round)
			execTrace = append(execTrace, models.ExecutedCommand{
				CmdID: item.CmdID, TimeoutSec: timeoutSec, AuditRef: res.AuditRef,
			})
		}
		if execTrace == nil {
			execTrace = []models.ExecutedCommand{}
		}

		pack.Hypothesis = engine.Classify(pack.Signals)
		primary = pack.PrimaryCategory()

		trace := models.RoundTrace{
			Round:          round,
			Decision:       strings.ToUpper(plan.Decision),
			Plan:           &plan,
			AllowedCmdPool: remaining,
			Blocked:        blocked,
			Executed:       execTrace,
		}
		rounds = append(rounds, trace)
		if _, err := store.WriteIndex(fmt.Sprintf("llm_round_%03d", round), trace); err != nil {
			slog.Warn("round trace write failed", "round", round, "error", err)
		}

		if len(pack.Hypothesis) > 0 && pack.Hypothesis[0].Confidence >= budget.ConfidenceThreshold {
			stopReason = StopConfidenceReached
			break
		}
	}

	if stopReason == "" {
		stopReason = StopMaxRoundsReached
	}
	if rounds == nil {
		rounds = []models.RoundTrace{}
	}

	if pack.Meta.CollectionWindowMinutes == 0 {
		pack.Meta.CollectionWindowMinutes = octx.WindowMinutes
	}
	if pack.Meta.AgentVersion == "" {
		pack.Meta.AgentVersion = version.GitCommit
	}

	rep, err := report.Build(ctx, llm, pack)
	if err != nil {
		return nil, err
	}

	trace := &Trace{
		SessionID:      octx.SessionID,
		InitialPrimary: initialPrimary,
		Primary:        pack.PrimaryCategory(),
		StopReason:     stopReason,
		Budget:         budget,
		Rounds:         rounds,
	}

	if _, err := store.WriteIndex("diagnosis_trace", trace); err != nil {
		return nil, fmt.Errorf("diagnose: persist trace: %w", err)
	}
	if _, err := store.WriteIndex("diagnosis_report", rep); err != nil {
		return nil, fmt.Errorf("diagnose: persist report: %w", err)
	}
	if err := orch.PersistPack(store, pack); err != nil {
		return nil, err
	}

	slog.Info("diagnose finished",
		"session_id", octx.SessionID, "stop_reason", stopReason,
		"rounds", len(rounds), "primary", trace.Primary)
	return &Result{EvidencePack: pack, Report: rep, Trace: trace}, nil
}

// buildState assembles the compact redacted state the planner sees:
// summaries and signals only, capped at the last 20 snapshots.
func buildState(pack *models.EvidencePack, primary string, executed map[string]bool, budget Budget, round int) planner.PlanState {
	snapshots := pack.Snapshots
	if len(snapshots) > 20 {
		snapshots = snapshots[len(snapshots)-20:]
	}
	ids := make([]string, 0, len(executed))
	for id := range executed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return planner.PlanState{
		Meta:            pack.Meta,
		PrimaryCategory: primary,
		Hypothesis:      pack.Hypothesis,
		Signals:         pack.Signals,
		Snapshots:       snapshots,
		ExecutedCmdIDs:  ids,
		Budget: map[string]any{
			"round":                round,
			"max_rounds":           budget.MaxRounds,
			"max_cmds_per_round":   budget.MaxCmdsPerRound,
			"max_total_cmds":       budget.MaxTotalCmds,
			"time_budget_sec":      budget.TimeBudgetSec,
			"confidence_threshold": budget.ConfidenceThreshold,
		},
	}
}

// filterPlanCmds drops planner proposals that repeat an executed
// command, fall outside the round's allowlist, or name an unregistered
// command. Every drop is classified even once the round is full; valid
// proposals past maxPerRound are truncated.
func filterPlanCmds(cfg *config.Config, plan models.Plan, remaining []string, executed map[string]bool, maxPerRound int) ([]models.PlannedCommand, []models.BlockedCommand) {
	remainingSet := make(map[string]bool, len(remaining))
	for _, id := range remaining {
		remainingSet[id] = true
	}

	kept := []models.PlannedCommand{}
	blocked := []models.BlockedCommand{}
	for _, item := range plan.NextCmds {
		cmdID := strings.TrimSpace(item.CmdID)
		if cmdID == "" {
			continue
		}
		switch {
		case executed[cmdID]:
			blocked = append(blocked, models.BlockedCommand{CmdID: cmdID, Reason: DropDuplicate})
		case !remainingSet[cmdID]:
			blocked = append(blocked, models.BlockedCommand{CmdID: cmdID, Reason: DropNotInAllowedPool})
		case !cfg.Commands.Has(cmdID):
			blocked = append(blocked, models.BlockedCommand{CmdID: cmdID, Reason: DropUnknownCmdID})
		default:
			if len(kept) < maxPerRound {
				kept = append(kept, item)
			}
		}
	}
	return kept, blocked
}

// mergeExecution folds one planner-driven execution into the pack:
// snapshot, merged signals, and the same timeout/empty-output counters
// the baseline collection keeps.
func mergeExecution(pack *models.EvidencePack, cmdID string, res orchestrator.ExecResult, round int) {
	trimmed := strings.TrimSpace(res.Redacted)
	firstLine := ""
	if trimmed != "" {
		firstLine = strings.SplitN(trimmed, "\n", 2)[0]
		if len(firstLine) > 200 {
			firstLine = firstLine[:200]
		}
	} else {
		pack.Metrics.EmptyOutputs++
	}
	if strings.HasPrefix(res.Redacted, "command timeout after") {
		pack.Metrics.Timeouts++
	}
	pack.Snapshots = append(pack.Snapshots, models.Snapshot{
		CmdID:    cmdID,
		Signal:   firstLine,
		Summary:  fmt.Sprintf("round_%d", round),
		AuditRef: res.AuditRef,
	})
	for k, v := range res.Signals {
		if v != nil {
			pack.Signals[k] = v
		}
	}
}
