package site

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyAlias materializes an alias (e.g. "latest") as a full copy of a
// deployed version directory. Git-based hosting has no symlink guarantee,
// so aliases are real trees.
func CopyAlias(siteRoot, version, alias string) error {
	src := filepath.Join(siteRoot, version)
	dst := filepath.Join(siteRoot, alias)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("clear alias %s: %w", alias, err)
	}
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		in, err := os.Open(path) // #nosec G304 - path comes from walking the version tree
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.Create(target) // #nosec G304 - target derives from the version tree
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		mod := info.ModTime()
		return os.Chtimes(target, mod, mod)
	})
	if err != nil {
		return fmt.Errorf("copy alias %s: %w", alias, err)
	}
	return nil
}

// WriteRootRedirect writes the site's root index.html redirecting to the
// default alias.
func WriteRootRedirect(siteRoot, alias string) error {
	content := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0; url=./%s/index.html">
</head>
<body></body>
</html>
`, alias)
	if err := os.WriteFile(filepath.Join(siteRoot, "index.html"), []byte(content), 0o600); err != nil {
		return fmt.Errorf("write root redirect: %w", err)
	}
	return nil
}
