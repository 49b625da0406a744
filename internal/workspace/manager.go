// Package workspace allocates collision-free output locations for jobs that
// share one download directory.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TitlePlaceholder and ExtPlaceholder are expanded by the extractor from the
// source's own metadata. The title is capped in bytes to stay below file
// name limits.
const (
	TitlePlaceholder = "%(title).150B"
	ExtPlaceholder   = "%(ext)s"
)

const dirPermissions = 0o755

// Manager hands out workspaces inside a shared base directory.
type Manager struct {
	baseDir string
}

// NewManager resolves baseDir to an absolute path and makes sure it exists.
func NewManager(baseDir string) (*Manager, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("download directory required")
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve download directory: %w", err)
	}
	m := &Manager{baseDir: abs}
	if err := m.EnsureBase(); err != nil {
		return nil, err
	}
	return m, nil
}

// BaseDir returns the absolute shared download directory.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// EnsureBase creates the base directory if needed. It is idempotent and safe
// to call from concurrent requests.
func (m *Manager) EnsureBase() error {
	if err := os.MkdirAll(m.baseDir, dirPermissions); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	return nil
}

// Allocate mints a fresh job identifier and returns its workspace.
func (m *Manager) Allocate() (*Workspace, error) {
	if err := m.EnsureBase(); err != nil {
		return nil, err
	}
	return m.workspace(uuid.New().String()), nil
}

// Open returns the workspace of an existing job.
func (m *Manager) Open(jobID string) (*Workspace, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", jobID, err)
	}
	return m.workspace(jobID), nil
}

func (m *Manager) workspace(jobID string) *Workspace {
	return &Workspace{
		ID:      jobID,
		BaseDir: m.baseDir,
		Prefix:  jobID + "-",
	}
}

// Workspace is the set of files in the base directory carrying one job's
// unique prefix.
type Workspace struct {
	ID      string
	BaseDir string
	Prefix  string
}

// OutputTemplate is the extractor output path for this job. Only the prefix
// is decided here; title and extension come from the source.
func (w *Workspace) OutputTemplate() string {
	dir := strings.ReplaceAll(w.BaseDir, "%", "%%")
	return filepath.Join(dir, w.Prefix+TitlePlaceholder+"."+ExtPlaceholder)
}

// Owns reports whether a base-directory entry belongs to this job.
func (w *Workspace) Owns(name string) bool {
	return strings.HasPrefix(name, w.Prefix)
}

// Entries lists the base-directory entries that belong to this job.
func (w *Workspace) Entries() ([]os.DirEntry, error) {
	all, err := os.ReadDir(w.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("list download directory: %w", err)
	}
	owned := make([]os.DirEntry, 0, 2)
	for _, entry := range all {
		if w.Owns(entry.Name()) {
			owned = append(owned, entry)
		}
	}
	return owned, nil
}

// Remove deletes every entry that belongs to this job.
func (w *Workspace) Remove() error {
	entries, err := w.Entries()
	if err != nil {
		return err
	}
	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(w.BaseDir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JobIDFromName extracts the job identifier from an artifact file name.
func JobIDFromName(name string) (string, bool) {
	const idLen = 36
	if len(name) <= idLen || name[idLen] != '-' {
		return "", false
	}
	id := name[:idLen]
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}
