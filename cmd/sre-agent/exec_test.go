package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AarenWang/haifa-ai/pkg/audit"
	"github.com/AarenWang/haifa-ai/pkg/config"
)

func TestRunExecWritesSessionScopedAuditEntry(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	cfg := &config.Config{
		Commands: config.NewCommandRegistry(map[string]config.CommandMeta{
			"echo_ok": {Cmd: "echo ok", Risk: "READ_ONLY", Platform: "any"},
		}),
		Policy: config.PolicyConfig{AllowedRisks: []string{"READ_ONLY"}},
	}

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	err := runExec(cmd, cfg, execArgs{
		host: "localhost", cmdID: "echo_ok",
		timeoutSec: 5, execMode: "local", auditPath: auditPath,
	})
	require.NoError(t, err)

	entries, err := audit.NewLog(auditPath).ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].SessionID)
	assert.Equal(t, "echo_ok", entries[0].CmdID)
	assert.NotEmpty(t, entries[0].OutputHash)
}
