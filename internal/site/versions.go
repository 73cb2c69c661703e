package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const versionsFileName = "versions.json"

// VersionEntry is one published documentation version.
type VersionEntry struct {
	Version string   `json:"version"`
	Title   string   `json:"title"`
	Aliases []string `json:"aliases"`
}

// LoadVersions reads versions.json from a site root. A missing file yields
// an empty list.
func LoadVersions(siteRoot string) ([]VersionEntry, error) {
	data, err := os.ReadFile(filepath.Join(siteRoot, versionsFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read versions file: %w", err)
	}
	var entries []VersionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal versions file: %w", err)
	}
	return entries, nil
}

// ApplyVersion records a deployed version at the front of the list. An
// existing entry for the same version is replaced in place; aliases claimed
// by the new entry are removed from every other entry.
func ApplyVersion(entries []VersionEntry, version, title string, aliases []string) []VersionEntry {
	if title == "" {
		title = version
	}
	updated := VersionEntry{Version: version, Title: title, Aliases: slices.Clone(aliases)}
	if updated.Aliases == nil {
		updated.Aliases = []string{}
	}

	out := make([]VersionEntry, 0, len(entries)+1)
	replaced := false
	for _, e := range entries {
		if e.Version == version {
			// Keep position of a re-deployed version.
			out = append(out, updated)
			replaced = true
			continue
		}
		e.Aliases = slices.DeleteFunc(slices.Clone(e.Aliases), func(a string) bool {
			return slices.Contains(aliases, a)
		})
		out = append(out, e)
	}
	if !replaced {
		out = append([]VersionEntry{updated}, out...)
	}
	return out
}

// WriteVersions persists versions.json in a site root.
func WriteVersions(siteRoot string, entries []VersionEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal versions file: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(siteRoot, versionsFileName), data, 0o600); err != nil {
		return fmt.Errorf("write versions file: %w", err)
	}
	return nil
}
