// Package matrix models the release build matrix: the enumerated set of
// platform/target-triple combinations a release binary is cross-compiled for.
package matrix

import (
	"fmt"
	"path"
	"strings"
)

// RunnerOS identifies the operating system family a build entry runs on.
type RunnerOS string

const (
	RunnerLinux   RunnerOS = "linux"
	RunnerMacOS   RunnerOS = "macos"
	RunnerWindows RunnerOS = "windows"
)

// Triple is a parsed target triple (arch-vendor-sys[-abi]).
type Triple struct {
	Raw    string // original triple string
	Arch   string // cpu architecture, e.g. x86_64, aarch64
	Vendor string // vendor component, e.g. unknown, apple, pc
	Sys    string // OS/ABI remainder, e.g. linux-gnu, linux-musl, darwin, windows-msvc
}

// ParseTriple splits a target triple into its components.
// Triples have at least three dash-separated parts; everything after the
// vendor is treated as the sys/ABI remainder.
func ParseTriple(raw string) (Triple, error) {
	parts := strings.Split(raw, "-")
	if len(parts) < 3 {
		return Triple{}, fmt.Errorf("invalid target triple %q: expected arch-vendor-sys", raw)
	}
	for _, p := range parts {
		if p == "" {
			return Triple{}, fmt.Errorf("invalid target triple %q: empty component", raw)
		}
	}
	return Triple{
		Raw:    raw,
		Arch:   parts[0],
		Vendor: parts[1],
		Sys:    strings.Join(parts[2:], "-"),
	}, nil
}

// OSFamily maps the triple's sys component onto a runner OS family.
// Returns an empty string for unrecognized systems.
func (t Triple) OSFamily() RunnerOS {
	switch {
	case strings.HasPrefix(t.Sys, "linux"):
		return RunnerLinux
	case t.Sys == "darwin":
		return RunnerMacOS
	case strings.HasPrefix(t.Sys, "windows"):
		return RunnerWindows
	default:
		return ""
	}
}

// IsWindows reports whether the triple targets Windows.
func (t Triple) IsWindows() bool { return t.OSFamily() == RunnerWindows }

// Entry is a single build matrix record.
type Entry struct {
	Name     string   `yaml:"name"`               // build name, unique artifact key
	OS       RunnerOS `yaml:"os"`                 // runner OS family
	Target   string   `yaml:"target"`             // target triple
	Features []string `yaml:"features,omitempty"` // feature flags for the toolchain
}

// ArtifactName derives the published artifact name for this entry.
// The convention is <bin>-<target-triple>.
func (e Entry) ArtifactName(bin string) string {
	return bin + "-" + e.Target
}

// BinaryPath returns the conventional compiler output path for this entry,
// relative to the project root: target/<triple>/release/<bin>[.exe].
func (e Entry) BinaryPath(bin string) string {
	name := bin
	if t, err := ParseTriple(e.Target); err == nil && t.IsWindows() {
		name += ".exe"
	}
	return path.Join("target", e.Target, "release", name)
}

// Validate checks a whole matrix for structural correctness:
// every entry parses, every {os, target} pairing is supported, and build
// names as well as derived artifact names are unique.
func Validate(entries []Entry, bin string) error {
	if len(entries) == 0 {
		return &ValidationError{Reason: "build matrix is empty"}
	}
	seenNames := make(map[string]struct{}, len(entries))
	seenArtifacts := make(map[string]string, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return &ValidationError{Reason: fmt.Sprintf("entry %d has no build name", i)}
		}
		if _, dup := seenNames[e.Name]; dup {
			return &ValidationError{Entry: e.Name, Reason: "duplicate build name"}
		}
		seenNames[e.Name] = struct{}{}

		triple, err := ParseTriple(e.Target)
		if err != nil {
			return &ValidationError{Entry: e.Name, Reason: err.Error()}
		}
		family := triple.OSFamily()
		if family == "" {
			return &ValidationError{Entry: e.Name, Reason: fmt.Sprintf("unsupported target system %q", triple.Sys)}
		}
		if e.OS != family {
			return &ValidationError{
				Entry:  e.Name,
				Reason: fmt.Sprintf("os %q cannot build target %q (expected %s runner)", e.OS, e.Target, family),
			}
		}

		artifact := e.ArtifactName(bin)
		if other, dup := seenArtifacts[artifact]; dup {
			return &ValidationError{
				Entry:  e.Name,
				Reason: fmt.Sprintf("artifact name %q collides with entry %q", artifact, other),
			}
		}
		seenArtifacts[artifact] = e.Name
	}
	return nil
}

// ValidationError reports a structural problem in the build matrix.
type ValidationError struct {
	Entry  string // offending build name (may be empty for matrix-level problems)
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Entry == "" {
		return "invalid build matrix: " + e.Reason
	}
	return fmt.Sprintf("invalid build matrix entry %q: %s", e.Entry, e.Reason)
}
