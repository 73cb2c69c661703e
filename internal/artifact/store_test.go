package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func writeBinary(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jj")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o700))
	return path
}

func TestPutStoresArtifactWithChecksum(t *testing.T) {
	s := newTestStore(t)
	src := writeBinary(t, "binary-bytes")

	rec, err := s.Put(context.Background(), "rel-1", "jj-x86_64-unknown-linux-musl",
		"build-linux-x86_64-musl", "x86_64-unknown-linux-musl", src)
	require.NoError(t, err)

	assert.Equal(t, int64(len("binary-bytes")), rec.Size)
	assert.Len(t, rec.SHA256, 64)

	stored, err := os.ReadFile(rec.Path)
	require.NoError(t, err)
	assert.Equal(t, "binary-bytes", string(stored))

	sidecar, err := os.ReadFile(rec.Path + ".sha256")
	require.NoError(t, err)
	assert.Contains(t, string(sidecar), rec.SHA256)
	assert.Contains(t, string(sidecar), rec.Name)
}

func TestPutMissingBinary(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Put(context.Background(), "rel-1", "jj-aarch64-apple-darwin",
		"build-macos-aarch64", "aarch64-apple-darwin", filepath.Join(t.TempDir(), "absent"))
	var merr *MissingBinaryError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "build-macos-aarch64", merr.BuildName)
}

func TestPutRejectsBadNames(t *testing.T) {
	s := newTestStore(t)
	src := writeBinary(t, "x")
	_, err := s.Put(context.Background(), "rel-1", "../escape", "b", "t", src)
	assert.Error(t, err)
	_, err = s.Put(context.Background(), "../rel", "jj-x", "b", "t", src)
	assert.Error(t, err)
}

func TestListSkipsSidecars(t *testing.T) {
	s := newTestStore(t)
	src := writeBinary(t, "x")
	_, err := s.Put(context.Background(), "rel-1", "jj-x86_64-apple-darwin", "b", "x86_64-apple-darwin", src)
	require.NoError(t, err)
	require.NoError(t, s.WriteManifest(Manifest{ReleaseID: "rel-1", Binary: "jj", CreatedAt: time.Now()}))

	names, err := s.List("rel-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"jj-x86_64-apple-darwin"}, names)
}

func TestManifestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	src := writeBinary(t, "payload")
	rec, err := s.Put(context.Background(), "rel-2", "jj-x86_64-pc-windows-msvc", "build-windows-x86_64", "x86_64-pc-windows-msvc", src)
	require.NoError(t, err)

	m := Manifest{
		ReleaseID: "rel-2",
		Binary:    "jj",
		Commit:    "abc123",
		CreatedAt: time.Now().UTC(),
		Artifacts: []Record{rec},
	}
	require.NoError(t, s.WriteManifest(m))

	got, err := s.LoadManifest("rel-2")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.Commit)
	require.Len(t, got.Artifacts, 1)
	assert.Equal(t, rec.SHA256, got.Artifacts[0].SHA256)
}

func TestLoadManifestMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadManifest("rel-none")
	assert.Error(t, err)
}
