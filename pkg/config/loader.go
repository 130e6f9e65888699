package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Configuration file names expected in the config directory.
var configFiles = []string{
	"runtime.yaml",
	"policy.yaml",
	"commands.yaml",
	"routing.yaml",
	"rules.yaml",
}

// rawConfig mirrors the YAML layout across all config files. Files are
// merged in order, so each file may carry any subset of these keys.
type rawConfig struct {
	Commands     map[string]CommandMeta `yaml:"commands"`
	ActionPolicy *PolicyConfig          `yaml:"action_policy"`
	Routes       *routesSection         `yaml:"routes"`
	Rules        *rulesSection          `yaml:"rules"`
	Baseline     *BaselineConfig        `yaml:"baseline"`
	Evidence     *EvidenceConfig        `yaml:"evidence"`
	AuditLog     string                 `yaml:"audit_log"`
	SSH          *SSHConfig             `yaml:"ssh"`
	LLM          *LLMConfig             `yaml:"llm"`
	History      *HistoryConfig         `yaml:"history"`
	Server       *ServerConfig          `yaml:"server"`
	Environments map[string]rawConfig   `yaml:"environments"`
}

type routesSection struct {
	Routes map[string][]string `yaml:"routes"`
}

type rulesSection struct {
	Rules []RuleConfig `yaml:"rules"`
}

// Initialize loads, merges, and resolves configuration from configDir.
//
// Resolution order, weakest to strongest:
//  1. built-in defaults
//  2. YAML files (runtime, policy, commands, routing, rules)
//  3. the SRE_ENV overlay from the environments section
//  4. environment variable overrides (SRE_SSH_*, SRE_LLM_*, OPS_AGENT_AUDIT_LOG)
//
// Missing files are skipped; malformed files fail the load.
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	raw := rawConfig{}
	for _, name := range configFiles {
		fileCfg, err := loadYAMLFile(filepath.Join(configDir, name))
		if err != nil {
			if os.IsNotExist(err) {
				log.Debug("Config file absent, skipping", "file", name)
				continue
			}
			return nil, NewLoadError(name, err)
		}
		if err := mergo.Merge(&raw, fileCfg, mergo.WithOverride); err != nil {
			return nil, NewLoadError(name, err)
		}
	}

	// SRE_ENV selects an overlay that deep-merges over the base config.
	if env := os.Getenv("SRE_ENV"); env != "" {
		if overlay, ok := raw.Environments[env]; ok {
			if err := mergo.Merge(&raw, overlay, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("failed to apply %q environment overlay: %w", env, err)
			}
			log.Info("Applied environment overlay", "env", env)
		}
	}

	cfg := resolve(raw)
	applyEnvOverrides(cfg)

	log.Info("Configuration initialized",
		"commands", cfg.Commands.Len(),
		"routes", len(cfg.Routes),
		"rules", len(cfg.Rules),
		"allowed_risks", cfg.Policy.AllowedRisks)
	return cfg, nil
}

func loadYAMLFile(path string) (rawConfig, error) {
	var cfg rawConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	data = ExpandEnv(data)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return cfg, nil
}

// resolve merges built-in defaults under the parsed YAML and builds the
// final Config value.
func resolve(raw rawConfig) *Config {
	builtin := GetBuiltinConfig()

	commands := make(map[string]CommandMeta, len(builtin.Commands)+len(raw.Commands))
	for id, meta := range builtin.Commands {
		commands[id] = meta
	}
	for id, meta := range raw.Commands {
		commands[id] = meta
	}

	routes := builtin.Routes
	if raw.Routes != nil && len(raw.Routes.Routes) > 0 {
		routes = raw.Routes.Routes
	}

	policy := builtin.Policy
	if raw.ActionPolicy != nil {
		if len(raw.ActionPolicy.AllowedRisks) > 0 {
			policy.AllowedRisks = raw.ActionPolicy.AllowedRisks
		}
		if len(raw.ActionPolicy.DenyKeywords) > 0 {
			policy.DenyKeywords = raw.ActionPolicy.DenyKeywords
		}
	}

	baseline := BaselineConfig{Cmds: builtin.BaselineCmds}
	if raw.Baseline != nil && len(raw.Baseline.Cmds) > 0 {
		baseline = *raw.Baseline
	}

	cfg := &Config{
		Commands: NewCommandRegistry(commands),
		Policy:   policy,
		Routes:   routes,
		Baseline: baseline,
		Evidence: EvidenceConfig{BaseDir: "report"},
	}
	if raw.Rules != nil {
		cfg.Rules = raw.Rules.Rules
	}
	if raw.Evidence != nil {
		cfg.Evidence = *raw.Evidence
		if cfg.Evidence.BaseDir == "" {
			cfg.Evidence.BaseDir = "report"
		}
	}
	cfg.AuditLog = raw.AuditLog
	if raw.SSH != nil {
		cfg.SSH = *raw.SSH
	}
	if raw.LLM != nil {
		cfg.LLM = *raw.LLM
	}
	if raw.History != nil {
		cfg.History = *raw.History
	}
	if raw.Server != nil {
		cfg.Server = *raw.Server
	}
	if cfg.SSH.Port == 0 {
		cfg.SSH.Port = 22
	}
	if cfg.SSH.ConnectTimeout == 0 {
		cfg.SSH.ConnectTimeout = 10
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8088"
	}
	return cfg
}

// applyEnvOverrides applies the SRE_* process environment on top of the
// file-derived configuration. Absent variables leave values untouched.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SRE_SSH_USER"); v != "" {
		cfg.SSH.User = v
	}
	if v := os.Getenv("SRE_SSH_PASSWORD"); v != "" {
		cfg.SSH.Password = v
	}
	if v := os.Getenv("SRE_SSH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.SSH.Port = port
		} else {
			slog.Warn("Ignoring invalid SRE_SSH_PORT", "value", v)
		}
	}
	if v := os.Getenv("SRE_LLM_VENDOR"); v != "" {
		cfg.LLM.Vendor = v
	}
	if v := os.Getenv("SRE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("SRE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SRE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPS_AGENT_AUDIT_LOG"); v != "" {
		cfg.AuditLog = v
	}
}
