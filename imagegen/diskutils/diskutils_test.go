// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package diskutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionDevPath(t *testing.T) {
	assert.Equal(t, "/dev/loop3p1", PartitionDevPath("/dev/loop3", 1))
	assert.Equal(t, "/dev/nbd0p2", PartitionDevPath("/dev/nbd0", 2))
	assert.Equal(t, "/dev/sda1", PartitionDevPath("/dev/sda", 1))
}

func TestCreateSparseDisk(t *testing.T) {
	diskPath := filepath.Join(t.TempDir(), "disk.raw")

	err := CreateSparseDisk(diskPath, 4, 0o644)
	require.NoError(t, err)

	info, err := os.Stat(diskPath)
	require.NoError(t, err)
	assert.Equal(t, int64(4*MiB), info.Size())
}

func TestCreateEmptyDiskPath(t *testing.T) {
	dir := t.TempDir()

	diskPath, err := CreateEmptyDisk(dir, "disk.raw", 1)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "disk.raw"), diskPath)
	assert.FileExists(t, diskPath)
}
