package audit

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReadSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	log := NewLog(path)

	entries := []Entry{
		{SessionID: "s1", ID: "uptime-100", CmdID: "uptime", Cmd: "uptime", ElapsedMS: 12, OutputHash: "aa"},
		{SessionID: "s2", ID: "df-101", CmdID: "df", Cmd: "df -h", ElapsedMS: 8, OutputHash: "bb"},
		{SessionID: "s1", ID: "free-102", CmdID: "free", Cmd: "free -m", ElapsedMS: 5, OutputHash: "cc", RedactedFields: []string{"IP"}, RedactedCount: 2},
	}
	for _, e := range entries {
		require.NoError(t, log.Append(e))
	}

	got, err := log.ReadSession("s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "uptime", got[0].CmdID)
	assert.Equal(t, "free", got[1].CmdID)
	assert.Equal(t, []string{"IP"}, got[1].RedactedFields)
	assert.Equal(t, 2, got[1].RedactedCount)
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	content := `{"session_id":"s1","id":"a-1","cmd_id":"a","cmd":"a","elapsed_ms":1}
not json at all
{"session_id":"s1","id":"b-2","cmd_id":"b","cmd":"b","elapsed_ms":2}

{broken
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	log := NewLog(path)
	entries, err := log.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].CmdID)
	assert.Equal(t, "b", entries[1].CmdID)
}

func TestReadMissingFile(t *testing.T) {
	log := NewLog(filepath.Join(t.TempDir(), "missing.jsonl"))
	entries, err := log.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log := NewLog(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Append(Entry{SessionID: "s1", ID: "x", CmdID: "x", Cmd: "x"})
		}()
	}
	wg.Wait()

	entries, err := log.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}
