// Package artifact stores release build artifacts on the filesystem with
// checksums and a per-release manifest.
//
// Layout:
//
//	<base>/
//	  releases/
//	    <release-id>/
//	      jj-x86_64-unknown-linux-musl
//	      jj-x86_64-unknown-linux-musl.sha256
//	      manifest.json
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Record describes one stored artifact.
type Record struct {
	Name      string    `json:"name"`       // artifact name, <bin>-<target-triple>
	BuildName string    `json:"build_name"` // matrix entry that produced it
	Target    string    `json:"target"`     // target triple
	Path      string    `json:"path"`       // absolute path in the store
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a filesystem-backed artifact store.
type Store struct {
	baseDir string
	mu      sync.Mutex
}

// NewStore creates the store directory structure.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "releases"), 0o750); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// releaseDir returns the directory for one release, creating it on demand.
func (s *Store) releaseDir(releaseID string) (string, error) {
	if releaseID == "" || strings.ContainsAny(releaseID, "/\\") {
		return "", fmt.Errorf("invalid release id %q", releaseID)
	}
	dir := filepath.Join(s.baseDir, "releases", releaseID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create release directory: %w", err)
	}
	return dir, nil
}

// Put copies the built binary at srcPath into the store under the given
// artifact name, computing its SHA-256 checksum while copying. A sidecar
// <name>.sha256 file is written alongside the artifact.
func (s *Store) Put(ctx context.Context, releaseID, name, buildName, target, srcPath string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if name == "" || strings.ContainsAny(name, "/\\") {
		return Record{}, fmt.Errorf("invalid artifact name %q", name)
	}

	dir, err := s.releaseDir(releaseID)
	if err != nil {
		return Record{}, err
	}

	src, err := os.Open(srcPath) // #nosec G304 - srcPath is the toolchain output location
	if err != nil {
		return Record{}, &MissingBinaryError{BuildName: buildName, Path: srcPath, Err: err}
	}
	defer src.Close()

	dstPath := filepath.Join(dir, name)
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o750) // #nosec G302 - artifact is an executable
	if err != nil {
		return Record{}, fmt.Errorf("create artifact file: %w", err)
	}
	defer dst.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return Record{}, fmt.Errorf("copy artifact: %w", err)
	}
	sum := hex.EncodeToString(h.Sum(nil))

	checksumLine := fmt.Sprintf("%s  %s\n", sum, name)
	if err := os.WriteFile(dstPath+".sha256", []byte(checksumLine), 0o600); err != nil {
		return Record{}, fmt.Errorf("write checksum file: %w", err)
	}

	return Record{
		Name:      name,
		BuildName: buildName,
		Target:    target,
		Path:      dstPath,
		SHA256:    sum,
		Size:      size,
		CreatedAt: time.Now(),
	}, nil
}

// List returns the artifact file names stored for a release (checksum and
// manifest sidecars excluded).
func (s *Store) List(releaseID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.baseDir, "releases", releaseID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read release directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".sha256") || name == manifestFileName {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// MissingBinaryError indicates the toolchain reported success but the
// conventional output path held no binary.
type MissingBinaryError struct {
	BuildName string
	Path      string
	Err       error
}

func (e *MissingBinaryError) Error() string {
	return fmt.Sprintf("missing build output for %s at %s: %v", e.BuildName, e.Path, e.Err)
}

func (e *MissingBinaryError) Unwrap() error { return e.Err }
