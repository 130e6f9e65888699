package models

// Action is a proposed follow-up in the diagnosis report. Risk uses the
// same classes as command metadata; BlockedReason is set only for actions
// moved to audit.blocked_actions by the policy guard.
type Action struct {
	Action         string `json:"action"`
	Risk           string `json:"risk"`
	ExpectedEffect string `json:"expected_effect,omitempty"`
	BlockedReason  string `json:"blocked_reason,omitempty"`
}

// RootCause summarizes the leading diagnosis in the final report.
type RootCause struct {
	Category   string  `json:"category"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details,omitempty"`
}

// ReportAudit carries policy decisions made while building the report.
type ReportAudit struct {
	BlockedActions []Action `json:"blocked_actions"`
}

// DiagnosisReport is the final, schema-validated output of a session.
type DiagnosisReport struct {
	Meta            PackMeta    `json:"meta"`
	RootCause       RootCause   `json:"root_cause"`
	EvidenceSummary []string    `json:"evidence_summary"`
	NextActions     []Action    `json:"next_actions"`
	Audit           ReportAudit `json:"audit"`
}
