package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const manifestFileName = "manifest.json"

// Manifest lists every artifact of a release. It is written only once all
// matrix jobs have succeeded, so its presence marks a complete release.
type Manifest struct {
	ReleaseID string    `json:"release_id"`
	Binary    string    `json:"binary"`
	Commit    string    `json:"commit,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Artifacts []Record  `json:"artifacts"`
}

// WriteManifest persists the manifest for a release.
func (s *Store) WriteManifest(m Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.releaseDir(m.ReleaseID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName), data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a release manifest back.
func (s *Store) LoadManifest(releaseID string) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.baseDir, "releases", releaseID, manifestFileName)
	data, err := os.ReadFile(path) // #nosec G304 - path is store-internal
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}
