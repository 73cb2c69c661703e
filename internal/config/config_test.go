package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"git.home.luguber.info/inful/relbuilder/internal/matrix"
	"git.home.luguber.info/inful/relbuilder/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relbuilder.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "project:\n  binary: jj\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "origin", cfg.Project.Remote)
	assert.Equal(t, "main", cfg.Project.Branch)
	assert.Len(t, cfg.Matrix, 7)
	assert.Equal(t, "cargo", cfg.Toolchain.Command)
	assert.Equal(t, "gh-pages", cfg.Docs.PublishBranch)
	assert.Equal(t, "latest", cfg.Docs.DefaultAlias)
	assert.Equal(t, 2, cfg.Build.Workers)
	assert.Equal(t, time.Minute, cfg.PollInterval())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("RELBUILDER_TEST_BRANCH", "release")
	path := writeConfig(t, "project:\n  branch: ${RELBUILDER_TEST_BRANCH}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Project.Branch)
}

func TestLoadRejectsInvalidMatrixPairing(t *testing.T) {
	path := writeConfig(t, `
matrix:
  - name: build-bad
    os: linux
    target: x86_64-apple-darwin
`)
	_, err := Load(path)
	require.Error(t, err)
	var verr *matrix.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLoadRejectsDuplicateArtifactNames(t *testing.T) {
	path := writeConfig(t, `
matrix:
  - name: build-a
    os: linux
    target: x86_64-unknown-linux-gnu
  - name: build-b
    os: linux
    target: x86_64-unknown-linux-gnu
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collides")
}

func TestValidateRejectsBadDurations(t *testing.T) {
	path := writeConfig(t, `
build:
  retry_initial_delay: soon
`)
	_, err := Load(path)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "build.retry_initial_delay", verr.Field)
}

func TestValidateRejectsUnknownBackoff(t *testing.T) {
	path := writeConfig(t, `
build:
  retry_backoff: eventually
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff")
}

func TestRetryPolicyFromConfig(t *testing.T) {
	path := writeConfig(t, `
build:
  max_retries: 4
  retry_backoff: exponential
  retry_initial_delay: 2s
  retry_max_delay: 10s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	p := cfg.RetryPolicy()
	assert.Equal(t, retry.BackoffExponential, p.Mode)
	assert.Equal(t, 2*time.Second, p.Initial)
	assert.Equal(t, 10*time.Second, p.Max)
	assert.Equal(t, 4, p.MaxRetries)
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relbuilder.yaml")
	require.NoError(t, Init(path, false))

	// Init must refuse to clobber without force.
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "jj", cfg.Project.Binary)
	assert.Len(t, cfg.Matrix, 7)
	require.NoError(t, matrix.Validate(cfg.Matrix, cfg.Project.Binary))
}

func TestDefaultMatrixIsValid(t *testing.T) {
	require.NoError(t, matrix.Validate(DefaultMatrix(), "jj"))
}
