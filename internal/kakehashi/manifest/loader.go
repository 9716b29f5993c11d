// Package manifest handles loading and validation of the host manifest. The
// Loader is the authoritative source of the current live configuration.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"

	spec "github.com/bdobrica/Kakehashi/common/spec/manifest"
)

// Loader holds the current manifest and allows reloads.
type Loader struct {
	mu     sync.RWMutex
	config *spec.Config
	hash   string
}

// New creates an empty Loader with no manifest loaded yet.
func New() *Loader {
	return &Loader{}
}

// LoadFile reads a YAML manifest from disk, validates it, and applies it.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	return l.Apply(data)
}

// Apply parses and validates a raw YAML payload, then atomically replaces the
// current config. The live config is untouched when validation fails.
func (l *Loader) Apply(data []byte) error {
	cfg, err := spec.Parse(data)
	if err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}

	h := sha256.Sum256(data)
	hash := hex.EncodeToString(h[:])

	l.mu.Lock()
	defer l.mu.Unlock()

	l.config = cfg
	l.hash = hash

	slog.Info("manifest applied",
		"host", cfg.Metadata.Name,
		"servers", len(cfg.Servers),
		"hash", hash[:12],
	)
	return nil
}

// Config returns the current live manifest, or nil before the first Apply.
func (l *Loader) Config() *spec.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Hash returns the SHA-256 hex digest of the applied YAML, or "" when no
// manifest is loaded.
func (l *Loader) Hash() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hash
}
