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

func TestGenerateGrubCfg(t *testing.T) {
	cfg := generateGrubCfg()

	assert.Contains(t, cfg, "set timeout=0\n")
	assert.Contains(t, cfg, "linux /boot/vmlinuz root=/dev/sda1 rw init=/sbin/init console=ttyS0 quiet\n")

	// Exactly one menu entry.
	assert.Equal(t, 1, strings.Count(cfg, "menuentry"))
}

func TestGenerateInitScript(t *testing.T) {
	script := generateInitScript()

	assert.True(t, strings.HasPrefix(script, "#!/bin/sh\n"))
	assert.Contains(t, script, "mount -t proc proc /proc\n")
	assert.Contains(t, script, "mount -t sysfs sysfs /sys\n")
	assert.Contains(t, script, "echo 'hello world'\n")

	// The script must end by replacing itself with the shell, or pid 1
	// would exit and panic the kernel.
	lines := strings.Split(strings.TrimRight(script, "\n"), "\n")
	assert.Equal(t, "exec setsid cttyhack /bin/sh", lines[len(lines)-1])
}

func TestFindKernelImage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "boot"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "boot", "config-6.1.0"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "boot", "vmlinuz-6.1.0"), nil, 0o644))

	path, err := findKernelImage(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "boot", "vmlinuz-6.1.0"), path)
}

func TestFindKernelImagePicksNewest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vmlinuz-6.1.0"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vmlinuz-6.4.0"), nil, 0o644))

	path, err := findKernelImage(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vmlinuz-6.4.0"), path)
}

func TestFindKernelImageMissing(t *testing.T) {
	_, err := findKernelImage(t.TempDir())
	assert.ErrorContains(t, err, "vmlinuz")
}
