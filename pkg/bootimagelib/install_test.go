// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAppletLinks(t *testing.T) {
	binDir := t.TempDir()
	applets := []string{"sh", "ls", "cat", "mount", "setsid", "cttyhack"}

	failed := createAppletLinks(binDir, applets, 4)
	assert.Empty(t, failed)

	for _, name := range applets {
		target, err := os.Readlink(filepath.Join(binDir, name))
		require.NoError(t, err)
		assert.Equal(t, "busybox", target)
	}
}

func TestCreateAppletLinksCollectsFailures(t *testing.T) {
	binDir := t.TempDir()

	// A pre-existing entry makes that one link fail; the rest still land.
	require.NoError(t, os.WriteFile(filepath.Join(binDir, "ls"), nil, 0o644))

	failed := createAppletLinks(binDir, []string{"sh", "ls", "cat"}, 2)
	assert.Equal(t, []string{"ls"}, failed)

	assert.FileExists(t, filepath.Join(binDir, "sh"))
	assert.FileExists(t, filepath.Join(binDir, "cat"))
}

func TestCreateAppletLinksNoApplets(t *testing.T) {
	failed := createAppletLinks(t.TempDir(), nil, 4)
	assert.Empty(t, failed)
}

func TestCreateAppletLinksClampsWorkers(t *testing.T) {
	binDir := t.TempDir()

	failed := createAppletLinks(binDir, []string{"sh"}, 0)
	assert.Empty(t, failed)
	assert.FileExists(t, filepath.Join(binDir, "sh"))
}
