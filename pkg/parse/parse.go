// Package parse turns raw command output into structured fields and
// normalized signals. Parsers are deterministic and never fail hard:
// unrecognized output degrades to a best-effort field, not an error.
package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var loadAvgPattern = regexp.MustCompile(`load average[s]?:\s*([0-9.]+)[, ]+([0-9.]+)[, ]+([0-9.]+)`)

// ParseOutput extracts structured fields from one command's output.
// Every result carries cmd_id; the remaining fields depend on the
// command. Commands without a dedicated parser get a truncated
// first_line, and unknown commands keep the raw text.
func ParseOutput(cmdID, output string) map[string]any {
	parsed := map[string]any{"cmd_id": cmdID}

	switch cmdID {
	case "uptime":
		line := firstLine(output)
		parsed["uptime_line"] = line
		if m := loadAvgPattern.FindStringSubmatch(line); m != nil {
			parsed["loadavg"] = []float64{mustFloat(m[1]), mustFloat(m[2]), mustFloat(m[3])}
		}

	case "loadavg":
		parts := strings.Fields(firstLine(output))
		if len(parts) >= 3 {
			l1, ok1 := toFloat(parts[0])
			l5, ok2 := toFloat(parts[1])
			l15, ok3 := toFloat(parts[2])
			if ok1 && ok2 && ok3 {
				parsed["loadavg"] = []float64{l1, l5, l15}
			}
		}

	case "free":
		parseFree(output, parsed)

	case "iostat":
		parseIostat(output, parsed)

	case "mpstat", "vmstat", "top", "top_darwin", "ps_cpu", "ps_mem",
		"df", "jps", "jstat", "jstack", "jcmd_threads", "journalctl":
		parsed["first_line"] = truncate(firstLine(output), 500)

	default:
		parsed["raw"] = output
	}

	return parsed
}

// parseFree reads the Mem: and Swap: rows of free -m.
func parseFree(output string, parsed map[string]any) {
	var memLine, swapLine string
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "mem:") {
			memLine = line
		}
		if strings.HasPrefix(lower, "swap:") {
			swapLine = line
		}
	}
	if memLine != "" {
		cols := strings.Fields(memLine)
		// Mem: total used free shared buff/cache available
		if len(cols) >= 7 {
			parsed["mem_mb"] = map[string]any{
				"total":     toIntField(cols[1]),
				"used":      toIntField(cols[2]),
				"free":      toIntField(cols[3]),
				"available": toIntField(cols[6]),
			}
		}
	}
	if swapLine != "" {
		cols := strings.Fields(swapLine)
		if len(cols) >= 4 {
			parsed["swap_mb"] = map[string]any{
				"total": toIntField(cols[1]),
				"used":  toIntField(cols[2]),
				"free":  toIntField(cols[3]),
			}
		}
	}
}

// parseIostat aligns the avg-cpu header row with the value row beneath
// it. Header column names vary across iostat versions, so the values are
// keyed by whatever the header says.
func parseIostat(output string, parsed map[string]any) {
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "%iowait") && strings.Contains(line, "%idle") {
			parsed["cpu_iostat_header"] = strings.TrimSpace(line)
		}
		if strings.HasPrefix(strings.TrimSpace(line), "avg-cpu") {
			parsed["avg_cpu_section"] = true
		}
	}

	var lines []string
	for _, line := range strings.Split(output, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	for i, line := range lines {
		if strings.Contains(line, "%iowait") && i+1 < len(lines) {
			header := strings.Fields(line)
			vals := strings.Fields(lines[i+1])
			if len(vals) == len(header) {
				cpu := make(map[string]any, len(header))
				for j, h := range header {
					cpu[h] = toFloatField(vals[j])
				}
				parsed["iostat_avg_cpu"] = cpu
			}
			break
		}
	}
}

// ExtractSignals normalizes parsed fields into the flat signal names the
// rule engine evaluates. Unknown commands produce an empty signal set.
func ExtractSignals(parsed map[string]any) map[string]any {
	signals := map[string]any{}
	cmdID, _ := parsed["cmd_id"].(string)

	switch cmdID {
	case "uptime", "loadavg":
		if load, ok := parsed["loadavg"].([]float64); ok && len(load) == 3 {
			signals["loadavg_1m"] = load[0]
			signals["loadavg_5m"] = load[1]
			signals["loadavg_15m"] = load[2]
		}

	case "free":
		if mem, ok := parsed["mem_mb"].(map[string]any); ok {
			if v, ok := asFloat(mem["available"]); ok {
				signals["mem_available_mb"] = v
			}
			if v, ok := asFloat(mem["used"]); ok {
				signals["mem_used_mb"] = v
			}
		}
		if swap, ok := parsed["swap_mb"].(map[string]any); ok {
			if v, ok := asFloat(swap["used"]); ok {
				signals["swap_used_mb"] = v
			}
		}

	case "iostat":
		if cpu, ok := parsed["iostat_avg_cpu"].(map[string]any); ok {
			// Key varies across iostat versions.
			for _, k := range []string{"%iowait", "iowait"} {
				if v, ok := asFloat(cpu[k]); ok {
					signals["iowait_pct"] = v
					break
				}
			}
		}
	}

	return signals
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func toFloat(v string) (float64, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func mustFloat(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

// toIntField and toFloatField return nil for unparseable values so the
// parsed document records the column as present but unreadable.
func toIntField(v string) any {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return int(f)
}

func toFloatField(v string) any {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return f
}

// asFloat coerces the numeric types that appear in parsed documents,
// both freshly built (int, float64) and round-tripped through JSON.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
