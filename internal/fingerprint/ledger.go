// Package fingerprint implements the persistent metadata-fingerprint ledger
// that lets stage runners skip work whose outputs are already up to date.
//
// Fingerprints are derived from file metadata (modification time, size,
// basename), not content. A file rewritten with identical bytes but a new
// mtime reads as changed; an in-place edit that alters neither size nor mtime
// reads as unchanged. This is a documented limitation of the scheme, accepted
// because the fingerprints only gate cache skips.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
)

// DefaultFileName is the ledger file created in the working directory.
const DefaultFileName = ".file_metadata.json"

// Ledger is a process-wide key -> fingerprint map shared by all stage
// workers. Reads and writes are safe to interleave; per-key semantics are
// last-writer-wins.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]string
	path    string
	logger  *slog.Logger
}

// NewLedger creates an empty ledger persisted at path.
func NewLedger(path string) *Ledger {
	return &Ledger{
		entries: make(map[string]string),
		path:    path,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (l *Ledger) WithLogger(logger *slog.Logger) *Ledger {
	l.logger = logger
	return l
}

// Load reads the persisted ledger. An absent or unparsable file starts the
// run with an empty ledger; it never fails the run.
func (l *Ledger) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		l.logger.Warn("Could not read fingerprint ledger, starting empty", "path", l.path, "error", err)
		return pipeerrors.CacheIOError(err, "read fingerprint ledger")
	}
	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		l.logger.Warn("Fingerprint ledger is corrupt, starting empty", "path", l.path, "error", err)
		return pipeerrors.CacheIOError(err, "parse fingerprint ledger")
	}
	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	return nil
}

// Save writes the ledger back out. Called once at the end of a successful
// run.
func (l *Ledger) Save() error {
	l.mu.RLock()
	data, err := json.MarshalIndent(l.entries, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return pipeerrors.CacheIOError(err, "encode fingerprint ledger")
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return pipeerrors.CacheIOError(err, "write fingerprint ledger")
	}
	return nil
}

// IsUpToDate recomputes the fingerprint of primary plus deps from current
// file metadata and reports whether it matches the stored value. Read-only.
func (l *Ledger) IsUpToDate(primary string, deps ...string) bool {
	current, err := fingerprint(primary, deps...)
	if err != nil {
		return false
	}
	l.mu.RLock()
	stored, ok := l.entries[key(primary)]
	l.mu.RUnlock()
	return ok && stored == current
}

// Record overwrites the stored fingerprint for primary. Call after
// successfully producing or validating the artifact.
func (l *Ledger) Record(primary string, deps ...string) {
	fp, err := fingerprint(primary, deps...)
	if err != nil {
		l.logger.Warn("Could not fingerprint artifact", "path", primary, "error", err)
		return
	}
	l.mu.Lock()
	l.entries[key(primary)] = fp
	l.mu.Unlock()
}

// Len returns the number of recorded fingerprints.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// key derives the stable ledger key for an artifact from its basename alone,
// so rebuilding the same artifact under a fresh mtime still hits the same
// slot.
func key(primary string) string {
	return digest(filepath.Base(primary))
}

// fingerprint hashes the primary artifact's metadata concatenated with each
// dependency's metadata (for existing files) or literal value (for strings).
func fingerprint(primary string, deps ...string) (string, error) {
	part, err := metaString(primary)
	if err != nil {
		return "", err
	}
	s := part
	for _, dep := range deps {
		if m, err := metaString(dep); err == nil {
			s += m
			continue
		}
		s += dep
	}
	return digest(s), nil
}

func metaString(path string) (string, error) {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is a directory", path)
		}
		return "", err
	}
	return fmt.Sprintf("%d%d%s", st.ModTime().UnixNano(), st.Size(), filepath.Base(path)), nil
}

func digest(s string) string {
	return strconv.FormatUint(xxhash.Sum64String(s), 16)
}
