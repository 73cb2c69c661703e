package artifact

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Archive packages a stored artifact for distribution: tar.gz for unix
// targets, zip for windows ones. All timestamps inside the archive are
// clamped to the provided epoch so re-running with the same inputs produces
// byte-identical archives.
func Archive(rec Record, epoch time.Time, windows bool) (string, error) {
	if windows {
		return zipArtifact(rec, epoch)
	}
	return tarArtifact(rec, epoch)
}

func tarArtifact(rec Record, epoch time.Time) (string, error) {
	archivePath := rec.Path + ".tar.gz"
	out, err := os.Create(archivePath) // #nosec G304 - path is store-internal
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	gz, err := gzip.NewWriterLevel(out, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("gzip writer: %w", err)
	}
	// gzip stores a header mtime; pin it too.
	gz.Header.ModTime = epoch.UTC()
	tw := tar.NewWriter(gz)

	src, err := os.Open(rec.Path) // #nosec G304 - path is store-internal
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	hdr := &tar.Header{
		Name:    rec.Name,
		Mode:    0o755,
		Size:    rec.Size,
		ModTime: epoch.UTC(),
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return "", fmt.Errorf("write tar header: %w", err)
	}
	if _, err := io.Copy(tw, src); err != nil {
		return "", fmt.Errorf("write tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("close gzip: %w", err)
	}
	return archivePath, nil
}

func zipArtifact(rec Record, epoch time.Time) (string, error) {
	archivePath := rec.Path + ".zip"
	out, err := os.Create(archivePath) // #nosec G304 - path is store-internal
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	hdr := &zip.FileHeader{
		Name:     rec.Name,
		Method:   zip.Deflate,
		Modified: epoch.UTC(),
	}
	hdr.SetMode(0o755)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", fmt.Errorf("write zip header: %w", err)
	}

	src, err := os.Open(rec.Path) // #nosec G304 - path is store-internal
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	if _, err := io.Copy(w, src); err != nil {
		return "", fmt.Errorf("write zip body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close zip: %w", err)
	}
	return archivePath, nil
}
