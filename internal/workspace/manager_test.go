package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEphemeralWorkspaceLifecycle(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Create())

	path := m.Path()
	assert.True(t, strings.Contains(filepath.Base(path), "relbuilder-"))

	sub, err := m.CreateSubdir("build-linux-x86_64")
	require.NoError(t, err)
	info, err := os.Stat(sub)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, m.Cleanup())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, m.Path())
}

func TestPersistentWorkspaceSurvivesCleanup(t *testing.T) {
	base := t.TempDir()
	m := NewPersistentManager(base, "working")
	require.NoError(t, m.Create())

	path := m.Path()
	assert.Equal(t, filepath.Join(base, "working"), path)

	require.NoError(t, m.Cleanup())
	_, err := os.Stat(path)
	assert.NoError(t, err, "persistent workspace must not be removed")
}

func TestCreateSubdirRequiresWorkspace(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.CreateSubdir("x")
	assert.Error(t, err)
}
