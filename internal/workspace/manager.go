// Package workspace manages workspace directories for build jobs, supporting
// both ephemeral (timestamped) and persistent (fixed-path) modes.
//
// Ephemeral mode creates timestamped directories (e.g., relbuilder-20251214-122336)
// suitable for one-time releases, cleaning up completely after use. Persistent
// mode uses a fixed directory path that survives across releases.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/relbuilder/internal/logfields"
)

// Manager handles workspace operations (both temporary and persistent).
type Manager struct {
	baseDir    string
	workDir    string
	persistent bool // if true, use the fixed directory without timestamps
}

// NewManager creates a new workspace manager with ephemeral timestamped directories.
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// NewPersistentManager creates a workspace manager that uses a persistent directory.
// The workspace directory is fixed (baseDir/subdirName) and not cleaned up on Cleanup().
func NewPersistentManager(baseDir, subdirName string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if subdirName == "" {
		subdirName = "working"
	}
	return &Manager{
		baseDir:    baseDir,
		workDir:    filepath.Join(baseDir, subdirName),
		persistent: true,
	}
}

// Create creates the workspace directory. Ephemeral mode creates a timestamped
// directory; persistent mode ensures the fixed directory exists.
func (m *Manager) Create() error {
	if m.persistent {
		if err := os.MkdirAll(m.workDir, 0o750); err != nil {
			return fmt.Errorf("failed to create persistent workspace directory: %w", err)
		}
		slog.Info("Using persistent workspace", logfields.Path(m.workDir))
		return nil
	}

	timestamp := time.Now().Format("20060102-150405")
	workDir, err := os.MkdirTemp(m.baseDir, fmt.Sprintf("relbuilder-%s-", timestamp))
	if err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	m.workDir = workDir
	slog.Info("Created workspace", logfields.Path(workDir))
	return nil
}

// Path returns the path to the workspace directory.
func (m *Manager) Path() string { return m.workDir }

// Cleanup removes the workspace directory. Persistent workspaces are kept.
func (m *Manager) Cleanup() error {
	if m.workDir == "" {
		return nil
	}
	if m.persistent {
		slog.Debug("Skipping cleanup for persistent workspace", logfields.Path(m.workDir))
		return nil
	}
	if err := os.RemoveAll(m.workDir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Info("Cleaned up workspace", logfields.Path(m.workDir))
	m.workDir = ""
	return nil
}

// CreateSubdir creates a subdirectory within the workspace. Build jobs each
// get their own subdirectory so matrix entries stay isolated.
func (m *Manager) CreateSubdir(name string) (string, error) {
	if m.workDir == "" {
		return "", fmt.Errorf("workspace not created")
	}
	subdir := filepath.Join(m.workDir, name)
	if err := os.MkdirAll(subdir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}
	return subdir, nil
}
