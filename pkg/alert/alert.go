// Package alert normalizes incoming monitoring payloads into a run
// context and converts finished reports into generic ticket payloads.
// Payload shapes vary by monitoring stack, so lookups fall through a
// list of common key aliases.
package alert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AarenWang/haifa-ai/pkg/models"
)

// RunRequest is the normalized form of an incoming alert.
type RunRequest struct {
	Host          string `json:"host"`
	Service       string `json:"service"`
	Env           string `json:"env"`
	WindowMinutes int    `json:"window_minutes"`
}

// NormalizeAlert maps a webhook payload onto a run request. Hosts may
// arrive as host/hostname/instance, services as service/app/job; an
// unparseable window falls back to 30 minutes.
func NormalizeAlert(payload map[string]any) RunRequest {
	return RunRequest{
		Host:          firstString(payload, "host", "hostname", "instance"),
		Service:       firstString(payload, "service", "app", "job"),
		Env:           firstString(payload, "env", "environment"),
		WindowMinutes: windowMinutes(payload),
	}
}

// TicketPayload is the generic shape handed to ticketing integrations.
type TicketPayload struct {
	Title    string                  `json:"title"`
	Severity string                  `json:"severity"`
	Labels   []string                `json:"labels"`
	Summary  string                  `json:"summary"`
	Details  *models.DiagnosisReport `json:"details"`
}

// BuildTicketPayload converts a diagnosis report into a ticket payload.
func BuildTicketPayload(report *models.DiagnosisReport) TicketPayload {
	category := report.RootCause.Category
	if category == "" {
		category = "UNKNOWN"
	}
	return TicketPayload{
		Title:    fmt.Sprintf("SRE diagnosis: %s on %s", report.Meta.Service, report.Meta.Host),
		Severity: "info",
		Labels:   []string{"sre-agent", strings.ToLower(category)},
		Summary:  report.RootCause.Summary,
		Details:  report,
	}
}

func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case fmt.Stringer:
			if s := v.String(); s != "" {
				return s
			}
		}
	}
	return ""
}

func windowMinutes(payload map[string]any) int {
	for _, key := range []string{"window_minutes", "window"} {
		switch v := payload[key].(type) {
		case float64:
			if v > 0 {
				return int(v)
			}
		case int:
			if v > 0 {
				return v
			}
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 30
}
