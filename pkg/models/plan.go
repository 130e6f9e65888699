package models

import "strings"

// Plan decisions produced by the planner each round.
const (
	DecisionContinue = "CONTINUE"
	DecisionStop     = "STOP"
)

// PlannedCommand is one command the planner proposes for the next round.
type PlannedCommand struct {
	CmdID      string `json:"cmd_id"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
	Rationale  string `json:"rationale,omitempty"`
}

// Plan is the planner output for one round. Every CmdID must come from
// the round's remaining allowlist; the diagnose loop enforces that after
// the plan is returned.
type Plan struct {
	Decision   string           `json:"decision"`
	NextCmds   []PlannedCommand `json:"next_cmds"`
	StopReason string           `json:"stop_reason,omitempty"`
}

// IsStop reports whether the planner chose to stop, case-insensitively.
func (p *Plan) IsStop() bool {
	return strings.EqualFold(p.Decision, DecisionStop)
}

// BlockedCommand records a planner-proposed command dropped by filtering.
type BlockedCommand struct {
	CmdID  string `json:"cmd_id"`
	Reason string `json:"reason"`
}

// ExecutedCommand records one command the diagnose loop actually ran.
type ExecutedCommand struct {
	CmdID      string `json:"cmd_id"`
	TimeoutSec int    `json:"timeout_sec"`
	AuditRef   string `json:"audit_ref"`
}

// RoundTrace is the persisted record of one planning round.
type RoundTrace struct {
	Round          int               `json:"round"`
	Decision       string            `json:"decision"`
	Plan           *Plan             `json:"plan"`
	AllowedCmdPool []string          `json:"allowed_cmd_pool"`
	Blocked        []BlockedCommand  `json:"blocked"`
	Executed       []ExecutedCommand `json:"executed"`
}
