package site

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

// BrokenLink is one unresolvable internal reference in the generated site.
type BrokenLink struct {
	Page string // site-relative page the link appears on
	Href string
}

// Verify parses every generated HTML page and checks that internal links
// resolve to files inside the site tree. External and fragment-only links
// are ignored. A non-empty result means the deploy should abort before
// anything is published.
func Verify(siteRoot string) ([]BrokenLink, error) {
	var broken []BrokenLink
	err := filepath.Walk(siteRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".html") {
			return nil
		}
		rel, err := filepath.Rel(siteRoot, path)
		if err != nil {
			return err
		}
		refs, err := extractRefs(path)
		if err != nil {
			return fmt.Errorf("parse %s: %w", rel, err)
		}
		for _, ref := range refs {
			target, internal := resolveInternal(siteRoot, rel, ref)
			if !internal {
				continue
			}
			if target == "" {
				broken = append(broken, BrokenLink{Page: rel, Href: ref})
				continue
			}
			if _, statErr := os.Stat(target); statErr != nil {
				broken = append(broken, BrokenLink{Page: rel, Href: ref})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return broken, nil
}

// extractRefs collects href and src attributes from one HTML document.
func extractRefs(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from walking the generated site
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, err
	}

	var refs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key == "href" || attr.Key == "src" {
					refs = append(refs, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return refs, nil
}

// resolveInternal turns a link on page rel into a filesystem path within the
// site tree. Returns false for external, fragment-only or unparseable links.
func resolveInternal(siteRoot, rel, ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	p := u.Path
	var target string
	if strings.HasPrefix(p, "/") {
		target = filepath.Join(siteRoot, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	} else {
		target = filepath.Join(siteRoot, filepath.Dir(rel), filepath.FromSlash(p))
	}
	// Links escaping the site tree are internal but have no valid target.
	cleanRoot := filepath.Clean(siteRoot) + string(filepath.Separator)
	if !strings.HasPrefix(filepath.Clean(target)+string(filepath.Separator), cleanRoot) {
		return "", true
	}
	return target, true
}
