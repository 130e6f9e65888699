// Package redact strips sensitive values (addresses, credentials, paths,
// usernames) from command output before it is persisted or shown to the
// planner. Rules run in declared order over already-partly-redacted
// text, so a secret inside a path is counted once by the earlier rule.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// Rule pairs a tag with a compiled pattern. Matches are replaced with
// <TAG>.
type Rule struct {
	Tag     string
	Pattern *regexp.Regexp
}

// DefaultRules is the ordered built-in ruleset. SECRET precedes PATH so
// credentials embedded in file paths are attributed to SECRET.
var DefaultRules = []Rule{
	{Tag: "IP", Pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{Tag: "EMAIL", Pattern: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{Tag: "SECRET", Pattern: regexp.MustCompile(`(?i)(AKIA|ASIA|sk-|token=|apikey=)[A-Za-z0-9\-_]+`)},
	{Tag: "PATH", Pattern: regexp.MustCompile(`/(?:[\w.-]+/)+[\w.-]+`)},
	{Tag: "USER", Pattern: regexp.MustCompile(`(?i)\buser(?:name)?=\w+\b`)},
}

// Redactor applies an ordered ruleset to text.
type Redactor struct {
	rules []Rule
}

// NewRedactor creates a redactor with the given rules, or DefaultRules
// when none are provided.
func NewRedactor(rules ...Rule) *Redactor {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Redactor{rules: rules}
}

// Redact replaces every rule match with its <TAG> marker. It returns the
// redacted text, the tags of rules that matched at least once (in rule
// order), and the total replacement count.
func (r *Redactor) Redact(text string) (redacted string, appliedTags []string, replacedCount int) {
	redacted = text
	appliedTags = []string{}
	for _, rule := range r.rules {
		matches := rule.Pattern.FindAllStringIndex(redacted, -1)
		if len(matches) == 0 {
			continue
		}
		appliedTags = append(appliedTags, rule.Tag)
		replacedCount += len(matches)
		redacted = rule.Pattern.ReplaceAllString(redacted, "<"+rule.Tag+">")
	}
	return redacted, appliedTags, replacedCount
}

// HashText returns the lowercase hex SHA-256 of the UTF-8 encoded text.
// Stable across runs and platforms; used as the audit output_hash.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
