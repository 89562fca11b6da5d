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

func writeProfileFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "profile.yaml")
	err := os.WriteFile(path, []byte(contents), 0o644)
	require.NoError(t, err)
	return path
}

func TestDefaultProfileIsValid(t *testing.T) {
	profile := DefaultProfile()
	assert.NoError(t, profile.IsValid())
	assert.Equal(t, uint64(1024), profile.ImageSizeMiB)
}

func TestLoadProfilePartialOverride(t *testing.T) {
	path := writeProfileFile(t, "imageSizeMiB: 256\n")

	profile, err := LoadProfile(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(256), profile.ImageSizeMiB)

	// Fields the file omits keep their defaults.
	defaults := DefaultProfile()
	assert.Equal(t, defaults.BusyboxUrl, profile.BusyboxUrl)
	assert.Equal(t, defaults.KernelUrl, profile.KernelUrl)
	assert.Equal(t, defaults.EmulatorMemoryMiB, profile.EmulatorMemoryMiB)
}

func TestLoadProfileRejectsUnknownField(t *testing.T) {
	path := writeProfileFile(t, "imageSizeMib: 256\n")

	_, err := LoadProfile(path)
	assert.Error(t, err)
}

func TestLoadProfileRejectsTinyImage(t *testing.T) {
	path := writeProfileFile(t, "imageSizeMiB: 16\n")

	_, err := LoadProfile(path)
	assert.ErrorContains(t, err, "imageSizeMiB")
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestProfileIsValidBounds(t *testing.T) {
	profile := DefaultProfile()
	profile.EmulatorCpus = 0
	assert.ErrorContains(t, profile.IsValid(), "emulatorCpus")

	profile = DefaultProfile()
	profile.EmulatorMemoryMiB = -1
	assert.ErrorContains(t, profile.IsValid(), "emulatorMemoryMiB")

	profile = DefaultProfile()
	profile.BusyboxUrl = ""
	assert.ErrorContains(t, profile.IsValid(), "busyboxUrl")

	profile = DefaultProfile()
	profile.KernelUrl = ""
	assert.ErrorContains(t, profile.IsValid(), "kernelUrl")
}
