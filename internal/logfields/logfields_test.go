package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"JobID", KeyJobID, "123", JobID("123")},
		{"ReleaseID", KeyReleaseID, "rel-1", ReleaseID("rel-1")},
		{"BuildName", KeyBuildName, "build-linux-x86_64", BuildName("build-linux-x86_64")},
		{"Target", KeyTarget, "x86_64-unknown-linux-musl", Target("x86_64-unknown-linux-musl")},
		{"Stage", KeyStage, "render", Stage("render")},
		{"Artifact", KeyArtifact, "jj-x86_64-apple-darwin", Artifact("jj-x86_64-apple-darwin")},
		{"Branch", KeyBranch, "gh-pages", Branch("gh-pages")},
		{"Commit", KeyCommit, "abc123", Commit("abc123")},
		{"Version", KeyVersion, "v1.2.0", Version("v1.2.0")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"Name", KeyName, "n", Name("n")},
		{"URL", KeyURL, "http://example", URL("http://example")},
		{"Worker", KeyWorker, "worker-0", Worker("worker-0")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if got := tc.attr.Value.String(); got != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestErrorHelper covers both nil and non-nil error values.
func TestErrorHelper(t *testing.T) {
	if got := Error(nil).Value.String(); got != "" {
		t.Fatalf("nil error: expected empty value, got %q", got)
	}
	if got := Error(errors.New("boom")).Value.String(); got != "boom" {
		t.Fatalf("expected boom, got %q", got)
	}
}
