// Package orchestrator drives the deterministic half of a diagnosis
// session: discovery, baseline collection, rule classification, targeted
// collection, reclassification. Every command execution goes through
// ExecCmd, the single mediated path that applies policy, validation,
// redaction, evidence persistence, and audit logging.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AarenWang/haifa-ai/pkg/audit"
	"github.com/AarenWang/haifa-ai/pkg/config"
	"github.com/AarenWang/haifa-ai/pkg/evidence"
	"github.com/AarenWang/haifa-ai/pkg/executor"
	"github.com/AarenWang/haifa-ai/pkg/models"
	"github.com/AarenWang/haifa-ai/pkg/parse"
	"github.com/AarenWang/haifa-ai/pkg/policy"
	"github.com/AarenWang/haifa-ai/pkg/redact"
	"github.com/AarenWang/haifa-ai/pkg/rules"
	"github.com/AarenWang/haifa-ai/pkg/schema"
)

// Execution modes accepted in a session context.
const (
	ExecModeSSH   = "ssh"
	ExecModeLocal = "local"
)

// In-band errors returned by ExecCmd. A non-empty ExecResult.Err always
// holds one of these.
const (
	ErrBlockedByPolicy  = "blocked_by_policy"
	ErrPlatformMismatch = "platform_mismatch"
	ErrInvalidService   = "invalid_service"
	ErrInvalidPID       = "invalid_pid"
	ErrUnknownCommand   = "unknown_cmd_id"
)

var servicePattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]+$`)

// Context carries the per-session inputs fixed at launch.
type Context struct {
	Host          string
	Service       string
	WindowMinutes int
	Env           string
	SessionID     string
	ExecMode      string // ssh|local
	PID           string
	Platform      string // auto|linux|darwin|k8s
}

// NewSessionID returns a sortable session identifier:
// UTC timestamp plus a short random suffix.
func NewSessionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return time.Now().UTC().Format("20060102T150405Z") + "-" + suffix
}

// ValidService reports whether a service name is safe to substitute
// into a command template.
func ValidService(service string) bool {
	return service != "" && servicePattern.MatchString(service)
}

// ValidPID reports whether a pid string is all digits.
func ValidPID(pid string) bool {
	if pid == "" {
		return false
	}
	for _, r := range pid {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ExecResult is the outcome of one mediated command execution. Err is
// an in-band marker; when set, nothing was executed and no audit entry
// was written.
type ExecResult struct {
	Redacted string
	AuditRef string
	Signals  map[string]any
	Err      string
}

// Orchestrator runs deterministic diagnosis sessions against one
// executor. It is safe to run multiple sessions concurrently; only the
// audit log is shared.
type Orchestrator struct {
	cfg      *config.Config
	exec     executor.Executor
	rules    *rules.Engine
	redactor *redact.Redactor
	auditLog *audit.Log
}

// New builds an orchestrator from resolved configuration.
func New(cfg *config.Config, exec executor.Executor) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		exec:     exec,
		rules:    rules.NewEngine(cfg.Rules),
		redactor: redact.NewRedactor(),
		auditLog: audit.NewLog(cfg.AuditLog),
	}
}

// AuditLog exposes the session audit log for replay tooling.
func (o *Orchestrator) AuditLog() *audit.Log {
	return o.auditLog
}

// ResolvePlatform turns "auto" into a concrete platform: local
// execution follows the local OS, remote execution assumes linux.
func ResolvePlatform(octx Context) string {
	platform := strings.ToLower(octx.Platform)
	if platform == "" || platform == "auto" {
		if octx.ExecMode == ExecModeLocal && runtime.GOOS == "darwin" {
			return config.PlatformDarwin
		}
		return config.PlatformLinux
	}
	return platform
}

// ExecCmd executes one registered command for a session. The sequence
// is fixed: policy check, platform check, placeholder validation,
// render, execute, redact, audit, persist raw/redacted/parsed plus a
// per-execution event index. Denials and validation failures return an
// in-band Err with no audit entry and no artifacts. Audit and evidence
// writes are fatal: a failure returns an error and the session must
// stop, because the audit entry records an output hash the store can
// no longer prove.
func (o *Orchestrator) ExecCmd(ctx context.Context, octx Context, cmdID, platform string, store *evidence.Store, timeoutSec int) (ExecResult, error) {
	meta, err := o.cfg.Commands.Get(cmdID)
	if err != nil {
		return ExecResult{Err: ErrUnknownCommand}, nil
	}

	if !policy.IsCommandAllowed(meta, o.cfg.Policy.AllowedRisks, o.cfg.Policy.DenyKeywords) {
		return ExecResult{Err: ErrBlockedByPolicy}, nil
	}
	if !meta.MatchesPlatform(platform) {
		return ExecResult{Err: ErrPlatformMismatch}, nil
	}

	if meta.RequiresService() && !ValidService(octx.Service) {
		return ExecResult{Err: ErrInvalidService}, nil
	}
	if meta.RequiresPID() && !ValidPID(octx.PID) {
		return ExecResult{Err: ErrInvalidPID}, nil
	}

	command, err := config.RenderCommand(meta.Cmd, octx.Service, octx.PID)
	if err != nil {
		return ExecResult{Err: ErrInvalidService}, nil
	}

	if timeoutSec <= 0 {
		timeoutSec = 30
	}
	timeout := time.Duration(timeoutSec) * time.Second

	startedAt := time.Now().UTC()
	output := o.exec.Run(ctx, octx.Host, command, timeout)
	elapsed := time.Since(startedAt)

	redacted, redactionTags, redactedCount := o.redactor.Redact(output)
	outputHash := redact.HashText(redacted)

	auditRef := fmt.Sprintf("%s-%d", cmdID, startedAt.Unix())
	if err := o.auditLog.Append(audit.Entry{
		SessionID:      octx.SessionID,
		ID:             auditRef,
		CmdID:          cmdID,
		Cmd:            command,
		StartedAt:      startedAt.Format(time.RFC3339),
		ElapsedMS:      elapsed.Milliseconds(),
		OutputHash:     outputHash,
		RedactedFields: redactionTags,
		RedactedCount:  redactedCount,
	}); err != nil {
		return ExecResult{}, fmt.Errorf("orchestrator: audit append for %s: %w", cmdID, err)
	}

	rawRef, err := store.WriteRaw(cmdID, output)
	if err != nil {
		return ExecResult{}, fmt.Errorf("orchestrator: raw artifact for %s: %w", cmdID, err)
	}
	redactedRef, err := store.WriteRedacted(cmdID, redacted)
	if err != nil {
		return ExecResult{}, fmt.Errorf("orchestrator: redacted artifact for %s: %w", cmdID, err)
	}

	parsed := parse.ParseOutput(cmdID, redacted)
	parsedRef, err := store.WriteParsed(cmdID, parsed)
	if err != nil {
		return ExecResult{}, fmt.Errorf("orchestrator: parsed artifact for %s: %w", cmdID, err)
	}
	signals := parse.ExtractSignals(parsed)

	timedOut := strings.HasPrefix(output, "command timeout after")
	if _, err := store.WriteIndex("event-"+cmdID+"-"+auditRef, map[string]any{
		"cmd_id":       cmdID,
		"raw_ref":      rawRef,
		"redacted_ref": redactedRef,
		"parsed_ref":   parsedRef,
		"signals":      signals,
		"timing":       map[string]any{"elapsed_ms": elapsed.Milliseconds(), "timeout": timedOut},
		"audit_ref":    auditRef,
		"redaction":    map[string]any{"rules": redactionTags, "replaced_count": redactedCount},
	}); err != nil {
		return ExecResult{}, fmt.Errorf("orchestrator: event index for %s: %w", cmdID, err)
	}

	return ExecResult{Redacted: redacted, AuditRef: auditRef, Signals: signals}, nil
}

// Run executes one deterministic session: baseline commands, rule
// classification, targeted commands for the primary category, and a
// reclassification pass. The resulting evidence pack is validated and
// persisted under index/evidence_pack.json together with an audit
// summary for offline replay.
func (o *Orchestrator) Run(ctx context.Context, octx Context) (*models.EvidencePack, error) {
	if octx.SessionID == "" {
		return nil, fmt.Errorf("orchestrator: session_id is required")
	}
	if !ValidService(octx.Service) {
		return nil, fmt.Errorf("orchestrator: invalid service %q", octx.Service)
	}
	if octx.PID != "" && !ValidPID(octx.PID) {
		return nil, fmt.Errorf("orchestrator: invalid pid %q", octx.PID)
	}

	platform := ResolvePlatform(octx)
	slog.Info("orchestrator start",
		"session_id", octx.SessionID, "host", octx.Host, "service", octx.Service,
		"pid", octx.PID, "exec_mode", octx.ExecMode, "platform", platform,
		"window_minutes", octx.WindowMinutes)

	store := evidence.NewStore(o.cfg.Evidence.BaseDir, octx.SessionID, o.cfg.Evidence.KeepRaw())

	pack := &models.EvidencePack{
		Meta: models.PackMeta{
			Host:                    octx.Host,
			Service:                 octx.Service,
			Env:                     octx.Env,
			SessionID:               octx.SessionID,
			Platform:                platform,
			Timestamp:               time.Now().UTC().Format(time.RFC3339),
			CollectionWindowMinutes: octx.WindowMinutes,
		},
		Snapshots:  []models.Snapshot{},
		Hypothesis: []models.Hypothesis{},
		NextChecks: []models.NextCheck{},
		Signals:    map[string]any{},
		Policy: models.PackPolicy{
			AllowedRisks: o.cfg.Policy.AllowedRisks,
			DenyKeywords: o.cfg.Policy.DenyKeywords,
		},
	}

	var auditRefs []string
	baselineCmds := o.cfg.Baseline.CommandsFor(platform)

	for _, cmdID := range baselineCmds {
		slog.Info("baseline exec", "cmd_id", cmdID)
		res, err := o.ExecCmd(ctx, octx, cmdID, platform, store, 30)
		if err != nil {
			return nil, err
		}
		if res.Err != "" {
			slog.Warn("baseline skipped", "cmd_id", cmdID, "reason", res.Err)
			pack.Metrics.Skipped++
			continue
		}
		auditRefs = append(auditRefs, res.AuditRef)
		o.recordSnapshot(pack, cmdID, res, "collected")
	}

	pack.Hypothesis = o.classify(pack.Signals, auditRefs)
	primary := pack.PrimaryCategory()
	slog.Info("classify", "primary", primary)

	executed := map[string]bool{}
	for _, cmdID := range baselineCmds {
		executed[cmdID] = true
	}
	for _, cmdID := range o.cfg.Routes[primary] {
		if executed[cmdID] {
			continue
		}
		executed[cmdID] = true
		slog.Info("targeted exec", "cmd_id", cmdID)
		res, err := o.ExecCmd(ctx, octx, cmdID, platform, store, 30)
		if err != nil {
			return nil, err
		}
		if res.Err != "" {
			slog.Warn("targeted failed", "cmd_id", cmdID, "reason", res.Err)
			pack.NextChecks = append(pack.NextChecks, models.NextCheck{CmdID: cmdID, Purpose: "blocked_or_failed"})
			continue
		}
		auditRefs = append(auditRefs, res.AuditRef)
		o.recordSnapshot(pack, cmdID, res, "targeted")
	}
	if len(pack.NextChecks) > 8 {
		pack.NextChecks = pack.NextChecks[:8]
	}

	pack.Hypothesis = o.classify(pack.Signals, auditRefs)
	slog.Info("reclassify", "primary", pack.PrimaryCategory())

	if err := o.PersistPack(store, pack); err != nil {
		return nil, err
	}
	if err := o.writeAuditSummary(store, octx.SessionID); err != nil {
		slog.Warn("audit summary write failed", "error", err)
	}

	slog.Info("orchestrator finished",
		"session_id", octx.SessionID, "primary", pack.PrimaryCategory(),
		"baseline", len(baselineCmds), "snapshots", len(pack.Snapshots))
	return pack, nil
}

// recordSnapshot folds one successful execution into the pack: signals
// are merged last-writer-wins and the snapshot keeps the first output
// line as its signal summary.
func (o *Orchestrator) recordSnapshot(pack *models.EvidencePack, cmdID string, res ExecResult, summary string) {
	for k, v := range res.Signals {
		if v != nil {
			pack.Signals[k] = v
		}
	}
	trimmed := strings.TrimSpace(res.Redacted)
	firstLine := ""
	if trimmed != "" {
		firstLine = strings.SplitN(trimmed, "\n", 2)[0]
		if len(firstLine) > 200 {
			firstLine = firstLine[:200]
		}
	} else {
		pack.Metrics.EmptyOutputs++
	}
	if strings.HasPrefix(res.Redacted, "command timeout after") {
		pack.Metrics.Timeouts++
	}
	pack.Snapshots = append(pack.Snapshots, models.Snapshot{
		CmdID:    cmdID,
		Signal:   firstLine,
		Summary:  summary,
		AuditRef: res.AuditRef,
	})
}

// classify runs the rule engine and attaches up to eight audit refs as
// the evidence references of every hypothesis.
func (o *Orchestrator) classify(signals map[string]any, auditRefs []string) []models.Hypothesis {
	refs := auditRefs
	if len(refs) > 8 {
		refs = refs[:8]
	}
	if refs == nil {
		refs = []string{}
	}
	hyps := o.rules.Classify(signals)
	for i := range hyps {
		hyps[i].EvidenceRefs = refs
	}
	return hyps
}

// PersistPack validates the pack against its schema and writes it to
// the session index.
func (o *Orchestrator) PersistPack(store *evidence.Store, pack *models.EvidencePack) error {
	if err := schema.Validate(pack, schema.EvidencePack); err != nil {
		return fmt.Errorf("orchestrator: evidence pack invalid: %w", err)
	}
	if _, err := store.WriteIndex("evidence_pack", pack); err != nil {
		return fmt.Errorf("orchestrator: persist evidence pack: %w", err)
	}
	return nil
}

// writeAuditSummary copies this session's audit entries into the
// session index so the evidence tree replays without the shared log.
func (o *Orchestrator) writeAuditSummary(store *evidence.Store, sessionID string) error {
	if o.auditLog.Path() == "" {
		return nil
	}
	entries, err := o.auditLog.ReadSession(sessionID)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	_, err = store.WriteIndex("audit_summary", map[string]any{
		"session_id": sessionID,
		"commands":   entries,
	})
	return err
}
