// Package policy enforces the read-only action policy: risk-class and
// deny-keyword checks on commands before execution and on proposed
// actions in the final report. All functions are pure; a denied command
// is reported back as a value, never as an error.
package policy

import (
	"strings"

	"github.com/AarenWang/haifa-ai/pkg/config"
	"github.com/AarenWang/haifa-ai/pkg/models"
)

// Block reasons attached to filtered actions.
const (
	ReasonRiskNotAllowed = "risk_not_allowed"
	ReasonDenyKeyword    = "deny_keyword"
)

// IsCommandAllowed reports whether a command may execute: its risk class
// must be in allowedRisks (case-insensitive) and no deny keyword may
// appear in the command template (case-insensitive substring match).
func IsCommandAllowed(meta config.CommandMeta, allowedRisks, denyKeywords []string) bool {
	if len(allowedRisks) > 0 && !containsFold(allowedRisks, meta.Risk) {
		return false
	}
	return !matchesKeyword(meta.Cmd, denyKeywords)
}

// FilterActions splits proposed report actions into allowed and blocked.
// Blocked actions carry a BlockedReason; risk checks run before keyword
// checks so the reason reflects the first failing rule.
func FilterActions(actions []models.Action, allowedRisks, denyKeywords []string) (allowed, blocked []models.Action) {
	allowed = []models.Action{}
	blocked = []models.Action{}
	for _, action := range actions {
		switch {
		case len(allowedRisks) > 0 && !containsFold(allowedRisks, action.Risk):
			action.BlockedReason = ReasonRiskNotAllowed
			blocked = append(blocked, action)
		case matchesKeyword(action.Action, denyKeywords):
			action.BlockedReason = ReasonDenyKeyword
			blocked = append(blocked, action)
		default:
			allowed = append(allowed, action)
		}
	}
	return allowed, blocked
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func matchesKeyword(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
