package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUptime(t *testing.T) {
	out := " 12:00:01 up 42 days,  3:14,  2 users,  load average: 0.61, 0.55, 0.49\n"
	parsed := ParseOutput("uptime", out)

	assert.Equal(t, "uptime", parsed["cmd_id"])
	require.Contains(t, parsed, "loadavg")
	assert.Equal(t, []float64{0.61, 0.55, 0.49}, parsed["loadavg"])

	signals := ExtractSignals(parsed)
	assert.Equal(t, 0.61, signals["loadavg_1m"])
	assert.Equal(t, 0.55, signals["loadavg_5m"])
	assert.Equal(t, 0.49, signals["loadavg_15m"])
}

func TestParseUptimeDarwinPlural(t *testing.T) {
	out := "12:00  up 3 days, 1:02, 1 user, load averages: 1.20 1.10 0.95"
	parsed := ParseOutput("uptime", out)
	assert.Equal(t, []float64{1.20, 1.10, 0.95}, parsed["loadavg"])
}

func TestParseUptimeNoLoadAverage(t *testing.T) {
	parsed := ParseOutput("uptime", "garbled output")
	assert.NotContains(t, parsed, "loadavg")
	assert.Empty(t, ExtractSignals(parsed))
}

func TestParseLoadavg(t *testing.T) {
	parsed := ParseOutput("loadavg", "0.61 0.55 0.49 1/234 5678\n")
	assert.Equal(t, []float64{0.61, 0.55, 0.49}, parsed["loadavg"])
}

func TestParseFree(t *testing.T) {
	out := `              total        used        free      shared  buff/cache   available
Mem:           7821        6910         120          34         790         120
Swap:          2047        1024        1023
`
	parsed := ParseOutput("free", out)
	mem, ok := parsed["mem_mb"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 7821, mem["total"])
	assert.Equal(t, 6910, mem["used"])
	assert.Equal(t, 120, mem["available"])

	swap, ok := parsed["swap_mb"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1024, swap["used"])

	signals := ExtractSignals(parsed)
	assert.Equal(t, 120.0, signals["mem_available_mb"])
	assert.Equal(t, 6910.0, signals["mem_used_mb"])
	assert.Equal(t, 1024.0, signals["swap_used_mb"])
}

func TestParseIostat(t *testing.T) {
	out := `Linux 5.15.0 (host01) 	08/25/26 	_x86_64_	(4 CPU)

avg-cpu:  %user   %nice %system %iowait  %steal   %idle
           5.20    0.00    2.10   42.30    0.00   50.40
`
	parsed := ParseOutput("iostat", out)
	cpu, ok := parsed["iostat_avg_cpu"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 42.3, cpu["%iowait"])

	signals := ExtractSignals(parsed)
	assert.Equal(t, 42.3, signals["iowait_pct"])
}

func TestParseIostatMisalignedRows(t *testing.T) {
	out := "avg-cpu:  %user %iowait %idle\n1.0 2.0\n"
	parsed := ParseOutput("iostat", out)
	assert.NotContains(t, parsed, "iostat_avg_cpu")
	assert.Empty(t, ExtractSignals(parsed))
}

func TestParseFirstLineFallback(t *testing.T) {
	parsed := ParseOutput("vmstat", "procs -----------memory----------\nmore lines\n")
	assert.Equal(t, "procs -----------memory----------", parsed["first_line"])
	assert.Empty(t, ExtractSignals(parsed))
}

func TestParseUnknownCommandKeepsRaw(t *testing.T) {
	parsed := ParseOutput("custom_probe", "anything at all")
	assert.Equal(t, "anything at all", parsed["raw"])
}
