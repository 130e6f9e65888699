package report

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AarenWang/haifa-ai/pkg/models"
	"github.com/AarenWang/haifa-ai/pkg/planner"
	"github.com/AarenWang/haifa-ai/pkg/policy"
)

func samplePack() *models.EvidencePack {
	return &models.EvidencePack{
		Meta: models.PackMeta{
			Host: "host01", Service: "nginx", Env: "prod",
			SessionID: "s1", Platform: "linux", Timestamp: "2026-08-25T12:00:00Z",
		},
		Hypothesis: []models.Hypothesis{
			{Category: "MEMORY", Confidence: 0.7, Why: "low available memory"},
		},
		Signals: map[string]any{"mem_available_mb": 120.0},
	}
}

func TestBuildFiltersActions(t *testing.T) {
	mock := planner.NewMockClient(json.RawMessage(`{
		"meta": {"session_id": "s1"},
		"root_cause": {"category": "MEMORY", "summary": "available memory exhausted", "confidence": 0.7},
		"evidence_summary": ["mem_available_mb=120"],
		"next_actions": [
			{"action": "review heap dump for leaks", "risk": "READ_ONLY", "expected_effect": "identify leak"},
			{"action": "restart the service", "risk": "HIGH", "expected_effect": "free memory"}
		]
	}`))

	rep, err := Build(context.Background(), mock, samplePack())
	require.NoError(t, err)

	assert.Equal(t, "MEMORY", rep.RootCause.Category)
	require.Len(t, rep.NextActions, 1)
	assert.Equal(t, "review heap dump for leaks", rep.NextActions[0].Action)

	require.Len(t, rep.Audit.BlockedActions, 1)
	assert.Equal(t, "restart the service", rep.Audit.BlockedActions[0].Action)
	assert.Equal(t, policy.ReasonRiskNotAllowed, rep.Audit.BlockedActions[0].BlockedReason)
}

func TestBuildUsesPackPolicy(t *testing.T) {
	pack := samplePack()
	pack.Policy = models.PackPolicy{
		AllowedRisks: []string{"READ_ONLY"},
		DenyKeywords: []string{"heap dump"},
	}

	mock := planner.NewMockClient(json.RawMessage(`{
		"meta": {},
		"root_cause": {"category": "MEMORY", "summary": "s", "confidence": 0.7},
		"next_actions": [
			{"action": "collect a heap dump", "risk": "READ_ONLY"},
			{"action": "check gc logs", "risk": "READ_ONLY"}
		]
	}`))

	rep, err := Build(context.Background(), mock, pack)
	require.NoError(t, err)
	require.Len(t, rep.NextActions, 1)
	assert.Equal(t, "check gc logs", rep.NextActions[0].Action)
	require.Len(t, rep.Audit.BlockedActions, 1)
	assert.Equal(t, policy.ReasonDenyKeyword, rep.Audit.BlockedActions[0].BlockedReason)
}

func TestBuildRejectsInvalidReport(t *testing.T) {
	mock := planner.NewMockClient(json.RawMessage(`{
		"meta": {},
		"root_cause": {"category": "MEMORY", "summary": "s", "confidence": 1.7},
		"next_actions": []
	}`))

	_, err := Build(context.Background(), mock, samplePack())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation failed")
}
