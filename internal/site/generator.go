// Package site renders markdown documentation into a versioned static site.
// Each deployed version lives in its own directory; aliases (e.g. "latest")
// are full copies and versions.json records what is published.
package site

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Generator renders one documentation version into a site tree.
type Generator struct {
	title string
	md    goldmark.Markdown
	caser cases.Caser
}

// NewGenerator creates a generator for a site with the given title.
func NewGenerator(title string) *Generator {
	return &Generator{
		title: title,
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		caser: cases.Title(language.English),
	}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.PageTitle}} - {{.SiteTitle}}</title>
</head>
<body>
<header><h1>{{.SiteTitle}}</h1><span class="version">{{.Version}}</span></header>
<main>
{{.Content}}
</main>
</body>
</html>
`))

type pageData struct {
	SiteTitle string
	PageTitle string
	Version   string
	Content   template.HTML
}

// GenerateVersion renders every markdown file under srcDir into
// outDir/<version>, copying non-markdown assets through unchanged. File
// modification times in the output are clamped to epoch so the generated
// tree (and any archive of it) is reproducible for identical inputs.
func (g *Generator) GenerateVersion(srcDir, outDir, version string, epoch time.Time) error {
	versionDir := filepath.Join(outDir, version)
	// Rendering a version replaces it: pages deleted from the sources must
	// not survive from a previous deployment of the same label.
	if err := os.RemoveAll(versionDir); err != nil {
		return fmt.Errorf("clear version directory: %w", err)
	}
	if err := os.MkdirAll(versionDir, 0o750); err != nil {
		return fmt.Errorf("create version directory: %w", err)
	}

	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return os.MkdirAll(filepath.Join(versionDir, rel), 0o750)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			return g.renderPage(path, rel, versionDir, version, epoch)
		}
		return copyAsset(path, filepath.Join(versionDir, rel), epoch)
	})
	if err != nil {
		return fmt.Errorf("generate version %s: %w", version, err)
	}
	return nil
}

// renderPage converts one markdown file into HTML alongside its source layout
// (guide.md becomes guide.html).
func (g *Generator) renderPage(srcPath, rel, versionDir, version string, epoch time.Time) error {
	source, err := os.ReadFile(srcPath) // #nosec G304 - path comes from walking the docs tree
	if err != nil {
		return fmt.Errorf("read page %s: %w", rel, err)
	}

	var body bytes.Buffer
	if err := g.md.Convert(source, &body); err != nil {
		return fmt.Errorf("render page %s: %w", rel, err)
	}

	outRel := strings.TrimSuffix(rel, filepath.Ext(rel)) + ".html"
	outPath := filepath.Join(versionDir, outRel)
	out, err := os.Create(outPath) // #nosec G304 - output path derives from the docs tree
	if err != nil {
		return fmt.Errorf("create page %s: %w", outRel, err)
	}

	data := pageData{
		SiteTitle: g.title,
		PageTitle: g.pageTitle(rel),
		Version:   version,
		Content:   template.HTML(body.String()), // #nosec G203 - goldmark output of trusted docs
	}
	if err := pageTemplate.Execute(out, data); err != nil {
		out.Close()
		return fmt.Errorf("write page %s: %w", outRel, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(outPath, epoch, epoch)
}

// pageTitle derives a display title from the file name:
// "getting-started.md" renders as "Getting Started".
func (g *Generator) pageTitle(rel string) string {
	base := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	return g.caser.String(base)
}

func copyAsset(src, dst string, epoch time.Time) error {
	in, err := os.Open(src) // #nosec G304 - path comes from walking the docs tree
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst) // #nosec G304 - output path derives from the docs tree
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
	return os.Chtimes(dst, epoch, epoch)
}
