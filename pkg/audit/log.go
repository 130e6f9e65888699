// Package audit provides the append-only JSON-lines execution log.
// The log is the only mutable resource shared across sessions; appends
// are line-atomic under a process-wide mutex, and readers tolerate
// malformed lines.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Entry is one command execution record. Entries are created right
// after the executor returns and never mutated.
type Entry struct {
	SessionID      string   `json:"session_id"`
	ID             string   `json:"id"`
	CmdID          string   `json:"cmd_id"`
	Cmd            string   `json:"cmd"`
	StartedAt      string   `json:"started_at"`
	ElapsedMS      int64    `json:"elapsed_ms"`
	OutputHash     string   `json:"output_hash"`
	RedactedFields []string `json:"redacted_fields"`
	RedactedCount  int      `json:"redacted_count"`
}

// Log appends entries to a JSONL file at a fixed path. A zero-path Log
// discards writes, which lets callers treat auditing as optional.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog creates a log writing to path. The file and its parent
// directory are created lazily on first append.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Path returns the configured log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one entry as a single JSON line. The parent directory
// is created if needed.
func (l *Log) Append(entry Entry) error {
	if l.path == "" {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if dir := filepath.Dir(l.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("audit: create directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write entry: %w", err)
	}
	return nil
}

// ReadAll returns every parseable entry in the log. Malformed lines are
// skipped; a missing file yields an empty slice.
func (l *Log) ReadAll() ([]Entry, error) {
	if l.path == "" {
		return nil, nil
	}

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan log: %w", err)
	}
	return entries, nil
}

// ReadSession returns the entries for one session, a linear scan
// filtered by session_id.
func (l *Log) ReadSession(sessionID string) ([]Entry, error) {
	all, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, e := range all {
		if e.SessionID == sessionID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
