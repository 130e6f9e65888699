// Package planner is the LLM binding for the diagnose loop and report
// builder. The model is never trusted: it only proposes, as JSON, and
// every response passes through schema validation and the policy guard
// on the caller's side.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/AarenWang/haifa-ai/pkg/config"
)

// Client produces a single JSON object for a prompt. Implementations
// must not return markdown or surrounding prose; ExtractJSONObject is
// the shared recovery step for models that do anyway.
type Client interface {
	GenerateJSON(ctx context.Context, prompt string, temperature float64) (json.RawMessage, error)
}

// NewClient selects a client by configured vendor. Every supported
// vendor speaks the OpenAI-compatible chat completions protocol, which
// is also the default for an unset vendor; "mock" returns the
// deterministic offline client.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch strings.ToLower(cfg.Vendor) {
	case "", "openai", "gpt", "qwen", "dashscope", "deepseek", "compatible":
		return NewOpenAIClient(cfg)
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm vendor: %q", cfg.Vendor)
	}
}

var (
	trailingObjectPattern = regexp.MustCompile(`\{[\s\S]*\}\s*$`)
	anyObjectPattern      = regexp.MustCompile(`\{[\s\S]*\}`)
)

// ExtractJSONObject recovers a JSON object from model output that may
// carry code fences or prose. It tries the raw text first, then the
// outermost brace span.
func ExtractJSONObject(text string) (json.RawMessage, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, fmt.Errorf("empty model output")
	}

	if obj, ok := asObject(raw); ok {
		return obj, nil
	}

	m := trailingObjectPattern.FindString(raw)
	if m == "" {
		m = anyObjectPattern.FindString(raw)
	}
	if m != "" {
		if obj, ok := asObject(m); ok {
			return obj, nil
		}
	}
	return nil, fmt.Errorf("could not parse JSON object from model output")
}

func asObject(s string) (json.RawMessage, bool) {
	var probe map[string]any
	if err := json.Unmarshal([]byte(s), &probe); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}
