// Package config loads and validates the agent's YAML configuration:
// the command registry, action policy, routing table, classifier rules,
// and runtime settings (evidence store, audit log, SSH, LLM).
package config

import "strings"

// Risk classes for registered commands, least to most dangerous.
const (
	RiskReadOnly = "READ_ONLY"
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
)

// Platform values accepted in command metadata and session contexts.
const (
	PlatformAny    = "any"
	PlatformLinux  = "linux"
	PlatformDarwin = "darwin"
	PlatformK8s    = "k8s"
)

// CommandMeta describes one whitelisted diagnostic command template.
// Templates may contain {service} and {pid} placeholders; nothing else
// is substituted.
type CommandMeta struct {
	CmdID    string `yaml:"-"`
	Cmd      string `yaml:"cmd"`
	Risk     string `yaml:"risk"`
	Platform string `yaml:"platform"`
	Desc     string `yaml:"desc,omitempty"`
}

// RequiresService reports whether the template needs a service name.
func (m CommandMeta) RequiresService() bool {
	return strings.Contains(m.Cmd, "{service}")
}

// RequiresPID reports whether the template needs a process id.
func (m CommandMeta) RequiresPID() bool {
	return strings.Contains(m.Cmd, "{pid}")
}

// MatchesPlatform reports whether the command may run on the resolved
// session platform. An empty or any/all platform matches everything.
func (m CommandMeta) MatchesPlatform(platform string) bool {
	p := strings.ToLower(m.Platform)
	return p == "" || p == PlatformAny || p == "all" || p == strings.ToLower(platform)
}

// PolicyConfig is the action policy applied to command execution and to
// next_actions in the final report.
type PolicyConfig struct {
	AllowedRisks []string `yaml:"allowed_risks"`
	DenyKeywords []string `yaml:"deny_keywords"`
}

// RuleConfig is one classifier rule: signal OP threshold → category.
type RuleConfig struct {
	Category   string  `yaml:"category"`
	Signal     string  `yaml:"signal"`
	Op         string  `yaml:"op"`
	Threshold  float64 `yaml:"threshold"`
	Confidence float64 `yaml:"confidence"`
	Why        string  `yaml:"why"`
}

// BaselineConfig selects the commands every session starts with.
// Cmds maps "any" plus platform names to cmd_id lists.
type BaselineConfig struct {
	Cmds map[string][]string `yaml:"cmds"`
}

// CommandsFor returns the baseline command list for a platform:
// the "any" set followed by the platform-specific set. Falls back to
// the built-in default when nothing is configured.
func (b BaselineConfig) CommandsFor(platform string) []string {
	cmds := append([]string{}, b.Cmds[PlatformAny]...)
	cmds = append(cmds, b.Cmds[strings.ToLower(platform)]...)
	if len(cmds) == 0 {
		return []string{"uname", "uptime", "df"}
	}
	return cmds
}

// EvidenceConfig controls the on-disk evidence store.
type EvidenceConfig struct {
	BaseDir   string `yaml:"base_dir"`
	RetainRaw *bool  `yaml:"retain_raw"`
}

// KeepRaw reports whether raw (pre-redaction) outputs are persisted.
// Default is true; redacted and parsed layers are always written.
func (e EvidenceConfig) KeepRaw() bool {
	return e.RetainRaw == nil || *e.RetainRaw
}

// SSHConfig configures the remote executor.
type SSHConfig struct {
	User           string            `yaml:"user"`
	Password       string            `yaml:"password"`
	KeyPath        string            `yaml:"key_path"`
	Port           int               `yaml:"port"`
	ConnectTimeout int               `yaml:"connect_timeout"`
	SourceProfile  *bool             `yaml:"source_profile"`
	ShellInit      []string          `yaml:"shell_init"`
	Env            map[string]string `yaml:"env"`
	PathExtra      []string          `yaml:"path_extra"`
}

// LLMConfig selects and configures the planner binding.
type LLMConfig struct {
	Vendor      string  `yaml:"vendor"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// HistoryConfig enables the optional Postgres session history store.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// Config is the fully resolved configuration for one process.
type Config struct {
	Commands *CommandRegistry
	Policy   PolicyConfig
	Routes   map[string][]string
	Rules    []RuleConfig
	Baseline BaselineConfig
	Evidence EvidenceConfig
	AuditLog string
	SSH      SSHConfig
	LLM      LLMConfig
	History  HistoryConfig
	Server   ServerConfig
}
