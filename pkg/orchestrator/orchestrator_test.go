package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AarenWang/haifa-ai/pkg/config"
	"github.com/AarenWang/haifa-ai/pkg/evidence"
	"github.com/AarenWang/haifa-ai/pkg/redact"
)

// scriptedExecutor returns canned output keyed by the first word of the
// rendered command.
type scriptedExecutor struct {
	outputs map[string]string
	ran     []string
}

func (s *scriptedExecutor) Run(ctx context.Context, host, command string, timeout time.Duration) string {
	s.ran = append(s.ran, command)
	word := strings.Fields(command)[0]
	if out, ok := s.outputs[word]; ok {
		return out
	}
	return ""
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		Commands: config.NewCommandRegistry(map[string]config.CommandMeta{
			"uname":  {Cmd: "uname -a", Risk: "READ_ONLY", Platform: "any"},
			"uptime": {Cmd: "uptime", Risk: "READ_ONLY", Platform: "any"},
			"iostat": {Cmd: "iostat 1 2", Risk: "READ_ONLY", Platform: "linux"},
			"free":   {Cmd: "free -m", Risk: "READ_ONLY", Platform: "linux"},
			"jstack": {Cmd: "jstack {pid}", Risk: "READ_ONLY", Platform: "any"},
			"kill9":  {Cmd: "kill -9 {pid}", Risk: "READ_ONLY", Platform: "any"},
			"reboot": {Cmd: "reboot", Risk: "HIGH", Platform: "any"},
		}),
		Policy: config.PolicyConfig{
			AllowedRisks: []string{"READ_ONLY"},
			DenyKeywords: []string{"kill", "reboot"},
		},
		Routes: map[string][]string{
			"CPU":     {"iostat"},
			"IO_WAIT": {"iostat"},
			"MEMORY":  {"free"},
			"UNKNOWN": {"kill9"},
		},
		Baseline: config.BaselineConfig{Cmds: map[string][]string{
			"any": {"uname", "uptime"},
		}},
		Evidence: config.EvidenceConfig{BaseDir: filepath.Join(base, "report")},
		AuditLog: filepath.Join(base, "audit.jsonl"),
	}
}

func linuxCtx(sessionID string) Context {
	return Context{
		Host: "host01", Service: "nginx", Env: "prod",
		SessionID: sessionID, ExecMode: ExecModeSSH, Platform: "linux",
		WindowMinutes: 30,
	}
}

func TestRunBaselineCPUClassification(t *testing.T) {
	cfg := testConfig(t)
	exec := &scriptedExecutor{outputs: map[string]string{
		"uname":  "Linux host01 5.15.0",
		"uptime": "10:00:00 up 3 days, load average: 7.10, 6.50, 6.20",
	}}
	o := New(cfg, exec)

	pack, err := o.Run(context.Background(), linuxCtx("sess-cpu"))
	require.NoError(t, err)

	assert.Equal(t, 7.10, pack.Signals["loadavg_1m"])
	require.NotEmpty(t, pack.Hypothesis)
	assert.Equal(t, "CPU", pack.Hypothesis[0].Category)
	assert.Equal(t, 0.6, pack.Hypothesis[0].Confidence)

	// Baseline snapshots come first, then the CPU-routed iostat.
	require.Len(t, pack.Snapshots, 3)
	assert.Equal(t, "uname", pack.Snapshots[0].CmdID)
	assert.Equal(t, "collected", pack.Snapshots[0].Summary)
	assert.Equal(t, "iostat", pack.Snapshots[2].CmdID)
	assert.Equal(t, "targeted", pack.Snapshots[2].Summary)
}

func TestRunIOWaitDominance(t *testing.T) {
	cfg := testConfig(t)
	exec := &scriptedExecutor{outputs: map[string]string{
		"uname":  "Linux host01 5.15.0",
		"uptime": "10:00:00 up 3 days, load average: 7.10, 6.50, 6.20",
		"iostat": "avg-cpu:  %user   %nice %system %iowait  %steal   %idle\n5.20    0.00    2.10   42.30    0.00   50.40",
	}}
	o := New(cfg, exec)

	pack, err := o.Run(context.Background(), linuxCtx("sess-iowait"))
	require.NoError(t, err)

	assert.Equal(t, 42.3, pack.Signals["iowait_pct"])
	require.True(t, len(pack.Hypothesis) >= 2)
	assert.Equal(t, "IO_WAIT", pack.Hypothesis[0].Category)
	assert.Equal(t, 0.8, pack.Hypothesis[0].Confidence)
	assert.Equal(t, "CPU", pack.Hypothesis[1].Category)
	assert.Contains(t, pack.Hypothesis[1].CounterEvidence, "iowait_pct high (42.3) suggests IO_WAIT")
}

func TestRunMemoryPressure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Baseline.Cmds["linux"] = []string{"free"}
	exec := &scriptedExecutor{outputs: map[string]string{
		"uname":  "Linux host01 5.15.0",
		"uptime": "10:00:00 up 3 days, load average: 0.10, 0.20, 0.30",
		"free":   "              total        used        free      shared  buff/cache   available\nMem:          16000       15820          40           0         140         120\nSwap:          2047           0        2047",
	}}
	o := New(cfg, exec)

	pack, err := o.Run(context.Background(), linuxCtx("sess-mem"))
	require.NoError(t, err)

	assert.Equal(t, 120.0, pack.Signals["mem_available_mb"])
	assert.Equal(t, "MEMORY", pack.Hypothesis[0].Category)
	assert.Equal(t, 0.7, pack.Hypothesis[0].Confidence)
}

func TestRunPolicyBlockRecordedAsNextCheck(t *testing.T) {
	cfg := testConfig(t)
	exec := &scriptedExecutor{outputs: map[string]string{
		"uname":  "Linux host01 5.15.0",
		"uptime": "quiet system, no load to speak of",
	}}
	o := New(cfg, exec)

	// No signals extract, so the primary is UNKNOWN and the UNKNOWN
	// route proposes kill9, which the deny keyword blocks.
	pack, err := o.Run(context.Background(), linuxCtx("sess-block"))
	require.NoError(t, err)

	assert.Equal(t, "UNKNOWN", pack.PrimaryCategory())
	require.Len(t, pack.NextChecks, 1)
	assert.Equal(t, "kill9", pack.NextChecks[0].CmdID)
	assert.Equal(t, "blocked_or_failed", pack.NextChecks[0].Purpose)

	// The blocked command never reached the executor or the audit log.
	for _, cmd := range exec.ran {
		assert.NotContains(t, cmd, "kill")
	}
	entries, err := o.AuditLog().ReadSession("sess-block")
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "kill9", e.CmdID)
	}
}

func TestExecCmdPolicyDenial(t *testing.T) {
	cfg := testConfig(t)
	exec := &scriptedExecutor{outputs: map[string]string{}}
	o := New(cfg, exec)
	octx := linuxCtx("sess-exec")
	octx.PID = "4242"
	store := evidence.NewStore(cfg.Evidence.BaseDir, octx.SessionID, true)

	res, err := o.ExecCmd(context.Background(), octx, "kill9", "linux", store, 30)
	require.NoError(t, err)
	assert.Equal(t, ErrBlockedByPolicy, res.Err)
	assert.Empty(t, res.Redacted)
	assert.Empty(t, res.AuditRef)

	res, err = o.ExecCmd(context.Background(), octx, "reboot", "linux", store, 30)
	require.NoError(t, err)
	assert.Equal(t, ErrBlockedByPolicy, res.Err)

	res, err = o.ExecCmd(context.Background(), octx, "no_such_cmd", "linux", store, 30)
	require.NoError(t, err)
	assert.Equal(t, ErrUnknownCommand, res.Err)

	res, err = o.ExecCmd(context.Background(), octx, "iostat", "darwin", store, 30)
	require.NoError(t, err)
	assert.Equal(t, ErrPlatformMismatch, res.Err)

	octx.PID = ""
	res, err = o.ExecCmd(context.Background(), octx, "jstack", "linux", store, 30)
	require.NoError(t, err)
	assert.Equal(t, ErrInvalidPID, res.Err)

	assert.Empty(t, exec.ran)
}

func TestExecCmdHashMatchesRedactedArtifact(t *testing.T) {
	cfg := testConfig(t)
	exec := &scriptedExecutor{outputs: map[string]string{
		"uptime": "up since reboot, contacted 10.0.0.1 user=deploy",
	}}
	o := New(cfg, exec)
	octx := linuxCtx("sess-hash")
	store := evidence.NewStore(cfg.Evidence.BaseDir, octx.SessionID, true)

	res, err := o.ExecCmd(context.Background(), octx, "uptime", "linux", store, 30)
	require.NoError(t, err)
	require.Empty(t, res.Err)
	assert.NotContains(t, res.Redacted, "10.0.0.1")

	entries, err := o.AuditLog().ReadSession("sess-hash")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.AuditRef, entries[0].ID)
	assert.Equal(t, redact.HashText(res.Redacted), entries[0].OutputHash)
	assert.Contains(t, entries[0].RedactedFields, "IP")
	assert.Contains(t, entries[0].RedactedFields, "USER")
}

func TestExecCmdStorageFailureAbortsSession(t *testing.T) {
	cfg := testConfig(t)
	exec := &scriptedExecutor{outputs: map[string]string{
		"uname":  "Linux host01 5.15.0",
		"uptime": "10:00:00 up 3 days, load average: 0.10, 0.20, 0.30",
	}}
	o := New(cfg, exec)
	octx := linuxCtx("sess-broken-store")

	// A regular file where the session directory belongs makes every
	// artifact write fail.
	require.NoError(t, os.MkdirAll(cfg.Evidence.BaseDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Evidence.BaseDir, "sess-broken-store"), []byte("in the way"), 0o644))

	store := evidence.NewStore(cfg.Evidence.BaseDir, octx.SessionID, true)
	res, err := o.ExecCmd(context.Background(), octx, "uptime", "linux", store, 30)
	require.Error(t, err)
	assert.Empty(t, res.AuditRef)

	// The full session aborts on the first failed write instead of
	// producing a pack whose audit hashes point at missing artifacts.
	_, err = o.Run(context.Background(), octx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "artifact")
}

func TestRunWritesIndexDocuments(t *testing.T) {
	cfg := testConfig(t)
	exec := &scriptedExecutor{outputs: map[string]string{
		"uname":  "Linux host01 5.15.0",
		"uptime": "10:00:00 up 3 days, load average: 7.10, 6.50, 6.20",
	}}
	o := New(cfg, exec)

	pack, err := o.Run(context.Background(), linuxCtx("sess-index"))
	require.NoError(t, err)

	indexDir := filepath.Join(cfg.Evidence.BaseDir, "sess-index", "index")
	assert.FileExists(t, filepath.Join(indexDir, "evidence_pack.json"))
	assert.FileExists(t, filepath.Join(indexDir, "audit_summary.json"))

	// One event index per executed command.
	files, err := os.ReadDir(indexDir)
	require.NoError(t, err)
	events := 0
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "event-") {
			events++
		}
	}
	assert.Equal(t, len(pack.Snapshots), events)
}

func TestRunRejectsInvalidInput(t *testing.T) {
	o := New(testConfig(t), &scriptedExecutor{})

	octx := linuxCtx("sess-bad")
	octx.Service = "bad service; rm -rf /"
	_, err := o.Run(context.Background(), octx)
	assert.ErrorContains(t, err, "invalid service")

	octx = linuxCtx("sess-bad2")
	octx.PID = "12a4"
	_, err = o.Run(context.Background(), octx)
	assert.ErrorContains(t, err, "invalid pid")

	octx = linuxCtx("")
	_, err = o.Run(context.Background(), octx)
	assert.ErrorContains(t, err, "session_id is required")
}

func TestResolvePlatform(t *testing.T) {
	assert.Equal(t, "linux", ResolvePlatform(Context{ExecMode: ExecModeSSH, Platform: "auto"}))
	assert.Equal(t, "k8s", ResolvePlatform(Context{Platform: "K8S"}))
	assert.Equal(t, "darwin", ResolvePlatform(Context{Platform: "darwin"}))
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	parts := strings.SplitN(id, "-", 2)
	require.Len(t, parts, 2)
	_, err := time.Parse("20060102T150405Z", parts[0])
	assert.NoError(t, err)
	assert.Len(t, parts[1], 6)
	assert.NotEqual(t, id, NewSessionID())
}
