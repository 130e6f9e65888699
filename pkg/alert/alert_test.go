package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AarenWang/haifa-ai/pkg/models"
)

func TestNormalizeAlertCanonicalKeys(t *testing.T) {
	req := NormalizeAlert(map[string]any{
		"host": "host01", "service": "nginx", "env": "prod", "window_minutes": float64(15),
	})
	assert.Equal(t, RunRequest{Host: "host01", Service: "nginx", Env: "prod", WindowMinutes: 15}, req)
}

func TestNormalizeAlertAliases(t *testing.T) {
	// Prometheus-style payloads use instance/job/environment.
	req := NormalizeAlert(map[string]any{
		"instance": "10.0.0.5:9100", "job": "node", "environment": "staging", "window": "45",
	})
	assert.Equal(t, "10.0.0.5:9100", req.Host)
	assert.Equal(t, "node", req.Service)
	assert.Equal(t, "staging", req.Env)
	assert.Equal(t, 45, req.WindowMinutes)
}

func TestNormalizeAlertDefaults(t *testing.T) {
	req := NormalizeAlert(map[string]any{"window": "soon"})
	assert.Empty(t, req.Host)
	assert.Empty(t, req.Service)
	assert.Equal(t, 30, req.WindowMinutes)
}

func TestBuildTicketPayload(t *testing.T) {
	report := &models.DiagnosisReport{
		Meta:      models.PackMeta{Host: "host01", Service: "nginx"},
		RootCause: models.RootCause{Category: "IO_WAIT", Summary: "disk saturation"},
	}

	ticket := BuildTicketPayload(report)
	assert.Equal(t, "SRE diagnosis: nginx on host01", ticket.Title)
	assert.Equal(t, "info", ticket.Severity)
	assert.Equal(t, []string{"sre-agent", "io_wait"}, ticket.Labels)
	assert.Equal(t, "disk saturation", ticket.Summary)
	assert.Same(t, report, ticket.Details)
}

func TestBuildTicketPayloadUnknownCategory(t *testing.T) {
	ticket := BuildTicketPayload(&models.DiagnosisReport{})
	assert.Equal(t, []string{"sre-agent", "unknown"}, ticket.Labels)
}
