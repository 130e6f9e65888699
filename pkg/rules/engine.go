// Package rules classifies signal sets into problem categories with a
// deterministic, config-driven rule evaluator. Classification never
// fails: an empty match set degrades to a low-confidence UNKNOWN.
package rules

import (
	"fmt"
	"sort"

	"github.com/AarenWang/haifa-ai/pkg/config"
	"github.com/AarenWang/haifa-ai/pkg/models"
)

// defaultRules back the engine when the config carries no usable rules.
var defaultRules = []config.RuleConfig{
	{Category: "IO_WAIT", Signal: "iowait_pct", Op: ">=", Threshold: 20.0, Confidence: 0.8, Why: "high iowait"},
	{Category: "MEMORY", Signal: "mem_available_mb", Op: "<=", Threshold: 200.0, Confidence: 0.7, Why: "low available memory"},
	{Category: "CPU", Signal: "loadavg_1m", Op: ">=", Threshold: 5.0, Confidence: 0.6, Why: "high load average"},
}

// Engine evaluates an ordered rule list over a signal map.
type Engine struct {
	rules []config.RuleConfig
}

// NewEngine builds an engine from configured rules, discarding entries
// with an unsupported comparison operator. With no usable rules it falls
// back to the built-in defaults.
func NewEngine(cfgRules []config.RuleConfig) *Engine {
	var rules []config.RuleConfig
	for _, r := range cfgRules {
		switch r.Op {
		case ">", ">=", "<", "<=":
			rules = append(rules, r)
		}
	}
	if len(rules) == 0 {
		rules = defaultRules
	}
	return &Engine{rules: rules}
}

// Classify evaluates every rule against signals and returns at most the
// three highest-confidence hypotheses, sorted by confidence descending.
// The sort is stable so equal-confidence rules keep their declared order.
func (e *Engine) Classify(signals map[string]any) []models.Hypothesis {
	var matched []config.RuleConfig
	for _, r := range e.rules {
		if ruleMatches(r, signals) {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Confidence > matched[j].Confidence
	})
	if len(matched) > 3 {
		matched = matched[:3]
	}

	var out []models.Hypothesis
	for _, r := range matched {
		out = append(out, models.Hypothesis{
			Category:        r.Category,
			Confidence:      r.Confidence,
			Why:             fmt.Sprintf("%s (signal=%s value=%v)", r.Why, r.Signal, signals[r.Signal]),
			EvidenceRefs:    []string{},
			CounterEvidence: counterEvidence(r.Category, signals),
		})
	}

	if len(out) == 0 {
		out = append(out, models.Hypothesis{
			Category:        "UNKNOWN",
			Confidence:      0.2,
			Why:             "no rules matched",
			EvidenceRefs:    []string{},
			CounterEvidence: []string{},
		})
	}
	return out
}

func ruleMatches(r config.RuleConfig, signals map[string]any) bool {
	v, ok := signalFloat(signals, r.Signal)
	if !ok {
		return false
	}
	switch r.Op {
	case ">":
		return v > r.Threshold
	case ">=":
		return v >= r.Threshold
	case "<":
		return v < r.Threshold
	case "<=":
		return v <= r.Threshold
	}
	return false
}

// counterEvidence records signals arguing against a category so the
// report surfaces them instead of hiding contradicting data.
func counterEvidence(category string, signals map[string]any) []string {
	ce := []string{}
	switch category {
	case "IO_WAIT":
		if v, ok := signalFloat(signals, "iowait_pct"); ok && v < 5.0 {
			ce = append(ce, fmt.Sprintf("iowait_pct low (%v)", v))
		}
	case "CPU":
		if v, ok := signalFloat(signals, "loadavg_1m"); ok && v < 1.0 {
			ce = append(ce, fmt.Sprintf("loadavg_1m low (%v)", v))
		}
		if iw, ok := signalFloat(signals, "iowait_pct"); ok && iw >= 20.0 {
			ce = append(ce, fmt.Sprintf("iowait_pct high (%v) suggests IO_WAIT", iw))
		}
	case "MEMORY":
		if v, ok := signalFloat(signals, "mem_available_mb"); ok && v > 500.0 {
			ce = append(ce, fmt.Sprintf("mem_available_mb high (%v)", v))
		}
	}
	return ce
}

func signalFloat(signals map[string]any, name string) (float64, bool) {
	switch v := signals[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
