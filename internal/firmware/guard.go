package firmware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotArmed is returned by Pristine before Backup has run.
var ErrNotArmed = errors.New("configuration source has not been backed up")

// Guard snapshots the header before a run and puts it back afterwards.
//
// Restore is a no-op until Backup succeeds and runs at most once per Backup,
// so it is safe to call from several defers and signal paths.
type Guard struct {
	source string
	backup string

	mu       sync.Mutex
	armed    bool
	pristine []byte
}

// NewGuard binds a guard to the header at source and a scratch copy at backup.
func NewGuard(source, backup string) *Guard {
	return &Guard{source: source, backup: backup}
}

// Source returns the guarded header path.
func (g *Guard) Source() string {
	return g.source
}

// BackupPath returns the scratch copy path.
func (g *Guard) BackupPath() string {
	return g.backup
}

// Backup copies the header to the scratch path, overwriting any previous copy,
// and arms the guard.
func (g *Guard) Backup() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	content, err := os.ReadFile(g.source)
	if err != nil {
		return fmt.Errorf("failed to read configuration source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(g.backup), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := os.WriteFile(g.backup, content, 0644); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	g.pristine = content
	g.armed = true
	return nil
}

// Armed reports whether a backup is held that has not been restored yet.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Pristine returns the header content captured by Backup.
func (g *Guard) Pristine() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.armed {
		return nil, ErrNotArmed
	}
	out := make([]byte, len(g.pristine))
	copy(out, g.pristine)
	return out, nil
}

// Restore writes the snapshot taken by Backup over the header and disarms
// the guard. The scratch file is never read back: another run may have
// overwritten it, and it is only kept for recovery after a crash.
func (g *Guard) Restore() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.armed {
		return nil
	}

	if err := os.WriteFile(g.source, g.pristine, 0644); err != nil {
		return fmt.Errorf("failed to restore configuration source: %w", err)
	}

	g.armed = false
	return nil
}
