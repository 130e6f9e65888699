// Package models holds the value types shared across the diagnostic
// pipeline: the evidence pack, planner plans, and report actions.
package models

// PackMeta identifies the session an evidence pack belongs to.
type PackMeta struct {
	Host                    string `json:"host"`
	Service                 string `json:"service"`
	Env                     string `json:"env"`
	SessionID               string `json:"session_id"`
	Platform                string `json:"platform"`
	Timestamp               string `json:"timestamp"`
	CollectionWindowMinutes int    `json:"collection_window_minutes,omitempty"`
	AgentVersion            string `json:"agent_version,omitempty"`
}

// Snapshot is the summary of one successful command execution.
// Signal carries the first output line; AuditRef resolves to an audit
// log entry for the same session.
type Snapshot struct {
	CmdID    string `json:"cmd_id"`
	Signal   string `json:"signal"`
	Summary  string `json:"summary"`
	AuditRef string `json:"audit_ref"`
}

// Hypothesis is a ranked classification of the observed signals.
type Hypothesis struct {
	Category        string   `json:"category"`
	Confidence      float64  `json:"confidence"`
	Why             string   `json:"why"`
	EvidenceRefs    []string `json:"evidence_refs"`
	CounterEvidence []string `json:"counter_evidence"`
}

// NextCheck records a command that was proposed or attempted but not
// executed (blocked, failed, or deferred).
type NextCheck struct {
	CmdID   string `json:"cmd_id"`
	Purpose string `json:"purpose"`
}

// PackPolicy echoes the action policy under which evidence was collected,
// so the report builder can enforce the same constraints later.
type PackPolicy struct {
	AllowedRisks []string `json:"allowed_risks"`
	DenyKeywords []string `json:"deny_keywords"`
}

// PackMetrics counts collection anomalies within a session.
type PackMetrics struct {
	Timeouts     int `json:"timeouts"`
	EmptyOutputs int `json:"empty_outputs"`
	Skipped      int `json:"skipped"`
}

// EvidencePack is the cumulative per-session record of what was
// collected and how it was classified. The orchestrator is its sole
// mutator during a session.
type EvidencePack struct {
	Meta       PackMeta       `json:"meta"`
	Snapshots  []Snapshot     `json:"snapshots"`
	Hypothesis []Hypothesis   `json:"hypothesis"`
	NextChecks []NextCheck    `json:"next_checks"`
	Signals    map[string]any `json:"signals"`
	Policy     PackPolicy     `json:"policy"`
	Metrics    PackMetrics    `json:"metrics"`
}

// PrimaryCategory returns the category of the top-ranked hypothesis,
// or UNKNOWN when no hypothesis is present.
func (p *EvidencePack) PrimaryCategory() string {
	if len(p.Hypothesis) > 0 && p.Hypothesis[0].Category != "" {
		return p.Hypothesis[0].Category
	}
	return "UNKNOWN"
}

// ExecutedCmdIDs returns the set of cmd_ids that already have snapshots.
func (p *EvidencePack) ExecutedCmdIDs() map[string]bool {
	ids := make(map[string]bool, len(p.Snapshots))
	for _, s := range p.Snapshots {
		if s.CmdID != "" {
			ids[s.CmdID] = true
		}
	}
	return ids
}
