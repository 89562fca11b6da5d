// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir changes into dir for the duration of the test, like t.Chdir does
// on newer Go toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		require.NoError(t, os.Chdir(oldWd))
	})
}

func TestNewWorkspaceLayout(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	ws, err := NewWorkspace()
	require.NoError(t, err)
	defer ws.Delete()

	// The workspace lives directly under the working directory.
	assert.Equal(t, dir, filepath.Dir(ws.Root()))
	assert.True(t, strings.HasPrefix(filepath.Base(ws.Root()), workspacePrefix))

	assert.DirExists(t, ws.LogsDir())
	assert.DirExists(t, ws.MountDir())
	assert.Equal(t, filepath.Join(ws.Root(), "disk.raw"), ws.ImagePath())
}

func TestNewWorkspaceIsUnique(t *testing.T) {
	chdir(t, t.TempDir())

	ws1, err := NewWorkspace()
	require.NoError(t, err)
	defer ws1.Delete()

	ws2, err := NewWorkspace()
	require.NoError(t, err)
	defer ws2.Delete()

	assert.NotEqual(t, ws1.Root(), ws2.Root())
}

func TestWorkspaceDelete(t *testing.T) {
	chdir(t, t.TempDir())

	ws, err := NewWorkspace()
	require.NoError(t, err)

	err = ws.Delete()
	require.NoError(t, err)
	assert.NoDirExists(t, ws.Root())

	// Deleting twice is harmless.
	assert.NoError(t, ws.Delete())
}
