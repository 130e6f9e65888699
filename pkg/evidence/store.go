// Package evidence persists per-session command artifacts under a base
// directory:
//
//	<base>/<session>/raw       command output as captured
//	<base>/<session>/redacted  output after redaction
//	<base>/<session>/parsed    extracted signals as JSON
//	<base>/<session>/index     summary documents (evidence pack, traces)
//
// All references handed to callers are relative to the base directory so
// artifacts stay addressable when the tree is archived or served.
package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	dirRaw      = "raw"
	dirRedacted = "redacted"
	dirParsed   = "parsed"
	dirIndex    = "index"
)

// Store writes artifacts for one session.
type Store struct {
	baseDir   string
	sessionID string
	retainRaw bool
}

// NewStore creates a store rooted at baseDir for the given session.
// When retainRaw is false, WriteRaw becomes a no-op and only redacted
// output is persisted.
func NewStore(baseDir, sessionID string, retainRaw bool) *Store {
	return &Store{baseDir: baseDir, sessionID: sessionID, retainRaw: retainRaw}
}

// SessionID returns the session this store writes for.
func (s *Store) SessionID() string {
	return s.sessionID
}

// SessionDir returns the absolute session directory.
func (s *Store) SessionDir() string {
	return filepath.Join(s.baseDir, s.sessionID)
}

// artifactName builds a collision-free file name for a command artifact.
// The random suffix keeps repeated executions of the same command apart.
func artifactName(cmdID, ext string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s%s", cmdID, suffix, ext)
}

func (s *Store) write(subdir, name string, data []byte) (string, error) {
	dir := filepath.Join(s.baseDir, s.sessionID, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("evidence: create %s directory: %w", subdir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("evidence: write %s artifact: %w", subdir, err)
	}
	rel := filepath.ToSlash(filepath.Join(s.sessionID, subdir, name))
	return rel, nil
}

// WriteRaw stores unredacted command output and returns its base-relative
// reference. Returns an empty reference when raw retention is disabled.
func (s *Store) WriteRaw(cmdID, output string) (string, error) {
	if !s.retainRaw {
		return "", nil
	}
	return s.write(dirRaw, artifactName(cmdID, ".txt"), []byte(output))
}

// WriteRedacted stores redacted command output and returns its
// base-relative reference.
func (s *Store) WriteRedacted(cmdID, output string) (string, error) {
	return s.write(dirRedacted, artifactName(cmdID, ".txt"), []byte(output))
}

// WriteParsed stores extracted signals for one command as JSON and
// returns the base-relative reference.
func (s *Store) WriteParsed(cmdID string, signals map[string]any) (string, error) {
	data, err := marshalIndent(signals)
	if err != nil {
		return "", fmt.Errorf("evidence: marshal parsed signals: %w", err)
	}
	return s.write(dirParsed, artifactName(cmdID, ".json"), data)
}

// WriteIndex stores a named summary document (evidence pack, audit
// summary, round trace) under index/ and returns the base-relative
// reference. Unlike command artifacts the name is caller-chosen and
// stable, so re-writes overwrite.
func (s *Store) WriteIndex(name string, doc any) (string, error) {
	data, err := marshalIndent(doc)
	if err != nil {
		return "", fmt.Errorf("evidence: marshal index document: %w", err)
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return s.write(dirIndex, name, data)
}

// ReadIndex loads a previously written index document into out.
func (s *Store) ReadIndex(name string, out any) error {
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	path := filepath.Join(s.baseDir, s.sessionID, dirIndex, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("evidence: read index document: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("evidence: decode index document: %w", err)
	}
	return nil
}

// Resolve turns a base-relative reference into an absolute path.
func (s *Store) Resolve(ref string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(ref))
}

// marshalIndent renders JSON with sorted keys and two-space indentation,
// the stable form used for every persisted document.
func marshalIndent(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
