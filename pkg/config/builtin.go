package config

// BuiltinConfig holds the compiled-in defaults that user YAML merges
// over: the read-only command set, the category routing table, and the
// action policy.
type BuiltinConfig struct {
	Commands     map[string]CommandMeta
	Routes       map[string][]string
	Policy       PolicyConfig
	BaselineCmds map[string][]string
}

// GetBuiltinConfig returns the built-in configuration. The command set
// mirrors the standard Linux/JVM triage toolbox; every entry is
// READ_ONLY by construction.
func GetBuiltinConfig() *BuiltinConfig {
	return &BuiltinConfig{
		Commands: map[string]CommandMeta{
			"uname":   {Cmd: "uname -a", Risk: RiskReadOnly, Platform: PlatformAny},
			"uptime":  {Cmd: "uptime", Risk: RiskReadOnly, Platform: PlatformAny},
			"loadavg": {Cmd: "cat /proc/loadavg", Risk: RiskReadOnly, Platform: PlatformLinux},
			"top":     {Cmd: "top -b -n 1 | head -40", Risk: RiskReadOnly, Platform: PlatformLinux},
			"top_darwin": {
				Cmd: "top -l 1 | head -40", Risk: RiskReadOnly, Platform: PlatformDarwin,
			},
			"ps_cpu": {Cmd: "ps aux --sort=-%cpu | head -15", Risk: RiskReadOnly, Platform: PlatformLinux},
			"ps_mem": {Cmd: "ps aux --sort=-%mem | head -15", Risk: RiskReadOnly, Platform: PlatformLinux},
			"vmstat": {Cmd: "vmstat 1 3", Risk: RiskReadOnly, Platform: PlatformLinux},
			"iostat": {Cmd: "iostat -x 1 3", Risk: RiskReadOnly, Platform: PlatformLinux},
			"free":   {Cmd: "free -m", Risk: RiskReadOnly, Platform: PlatformLinux},
			"df":     {Cmd: "df -h", Risk: RiskReadOnly, Platform: PlatformAny},
			"jps":    {Cmd: "jps -l", Risk: RiskReadOnly, Platform: PlatformAny},
			"jstat":  {Cmd: "jstat -gcutil {pid} 1000 3", Risk: RiskReadOnly, Platform: PlatformAny},
			"jstack": {Cmd: "jstack {pid}", Risk: RiskReadOnly, Platform: PlatformAny},
			"jcmd_threads": {
				Cmd: "jcmd {pid} Thread.print", Risk: RiskReadOnly, Platform: PlatformAny,
			},
			"journalctl": {
				Cmd:      "journalctl -u {service} --since '-30 min' --no-pager | tail -100",
				Risk:     RiskReadOnly,
				Platform: PlatformLinux,
			},
		},
		Routes: map[string][]string{
			"CPU":               {"top", "ps_cpu", "vmstat", "jps", "jstack"},
			"IO_WAIT":           {"iostat", "vmstat", "df"},
			"MEMORY":            {"free", "ps_mem", "vmstat", "jstat"},
			"GC":                {"jps", "jstat", "jcmd_threads"},
			"THREAD_CONTENTION": {"jps", "jstack", "jcmd_threads"},
			"UNKNOWN":           {"top", "vmstat", "journalctl"},
		},
		Policy: PolicyConfig{
			AllowedRisks: []string{RiskReadOnly},
			DenyKeywords: []string{
				"rm -", "kill", "reboot", "shutdown", "mkfs", "dd if=",
				"systemctl stop", "systemctl restart", "truncate",
			},
		},
		BaselineCmds: map[string][]string{
			PlatformAny:    {"uname", "uptime", "df"},
			PlatformLinux:  {"loadavg", "free", "vmstat"},
			PlatformDarwin: {"top_darwin"},
		},
	}
}
