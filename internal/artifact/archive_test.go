package artifact

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedRecord(t *testing.T, s *Store, name string) Record {
	t.Helper()
	src := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.WriteFile(src, []byte("reproducible-bytes"), 0o700))
	rec, err := s.Put(context.Background(), "rel-arch", name, "build", "triple", src)
	require.NoError(t, err)
	return rec
}

// Same inputs and epoch must produce byte-identical archives.
func TestTarArchiveIsReproducible(t *testing.T) {
	s := newTestStore(t)
	rec := storedRecord(t, s, "jj-x86_64-unknown-linux-musl")
	epoch := time.Unix(1700000000, 0)

	p1, err := Archive(rec, epoch, false)
	require.NoError(t, err)
	first, err := os.ReadFile(p1)
	require.NoError(t, err)

	p2, err := Archive(rec, epoch, false)
	require.NoError(t, err)
	second, err := os.ReadFile(p2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, rec.Path+".tar.gz", p1)
}

func TestZipArchiveClampsModTime(t *testing.T) {
	s := newTestStore(t)
	rec := storedRecord(t, s, "jj-x86_64-pc-windows-msvc")
	epoch := time.Unix(1700000000, 0).UTC()

	path, err := Archive(rec, epoch, true)
	require.NoError(t, err)
	assert.Equal(t, rec.Path+".zip", path)

	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 1)
	f := zr.File[0]
	assert.Equal(t, rec.Name, f.Name)
	// Zip timestamps have two-second granularity.
	assert.WithinDuration(t, epoch, f.Modified.UTC(), 2*time.Second)
	assert.Equal(t, os.FileMode(0o755), f.Mode().Perm())
}

func TestZipArchiveIsReproducible(t *testing.T) {
	s := newTestStore(t)
	rec := storedRecord(t, s, "jj-aarch64-pc-windows-msvc")
	epoch := time.Unix(1700000000, 0)

	p, err := Archive(rec, epoch, true)
	require.NoError(t, err)
	first, err := os.ReadFile(p)
	require.NoError(t, err)

	_, err = Archive(rec, epoch, true)
	require.NoError(t, err)
	second, err := os.ReadFile(p)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
