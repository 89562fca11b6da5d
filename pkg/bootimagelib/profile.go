// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultImageSizeMiB = 1024

	defaultBusyboxUrl = "https://busybox.net/downloads/binaries/1.36.1-x86_64-linux-musl/busybox"
	defaultKernelUrl  = "https://releases.martin-r.dev/create-bootable-linux/kernel-x86_64.tar.gz"

	defaultEmulatorMemoryMiB = 512
	defaultEmulatorCpus      = 2
)

// Profile holds the tunable parameters of a build. Every field has a
// default; a profile file only needs to name the fields it overrides.
type Profile struct {
	// ImageSizeMiB is the nominal size of the produced raw disk image.
	ImageSizeMiB uint64 `yaml:"imageSizeMiB"`

	// BusyboxUrl locates the statically linked busybox binary.
	BusyboxUrl string `yaml:"busyboxUrl"`

	// KernelUrl locates the pre-built kernel package (.tar.gz).
	KernelUrl string `yaml:"kernelUrl"`

	// EmulatorMemoryMiB is the memory size handed to the emulator.
	EmulatorMemoryMiB int `yaml:"emulatorMemoryMiB"`

	// EmulatorCpus is the virtual core count handed to the emulator.
	EmulatorCpus int `yaml:"emulatorCpus"`
}

// DefaultProfile returns the fixed values used when no profile file is
// provided.
func DefaultProfile() Profile {
	return Profile{
		ImageSizeMiB:      defaultImageSizeMiB,
		BusyboxUrl:        defaultBusyboxUrl,
		KernelUrl:         defaultKernelUrl,
		EmulatorMemoryMiB: defaultEmulatorMemoryMiB,
		EmulatorCpus:      defaultEmulatorCpus,
	}
}

// LoadProfile reads a profile file, applying defaults for any field the
// file omits. Unknown fields are rejected.
func LoadProfile(profileFilePath string) (Profile, error) {
	profile := DefaultProfile()

	contents, err := os.ReadFile(profileFilePath)
	if err != nil {
		return profile, fmt.Errorf("failed to read profile file (%s):\n%w", profileFilePath, err)
	}

	decoder := yaml.NewDecoder(strings.NewReader(string(contents)))
	decoder.KnownFields(true)
	err = decoder.Decode(&profile)
	if err != nil {
		return profile, fmt.Errorf("failed to parse profile file (%s):\n%w", profileFilePath, err)
	}

	err = profile.IsValid()
	if err != nil {
		return profile, fmt.Errorf("invalid profile file (%s):\n%w", profileFilePath, err)
	}

	return profile, nil
}

// IsValid checks the profile's invariants.
func (p *Profile) IsValid() error {
	if p.ImageSizeMiB < 64 {
		return fmt.Errorf("imageSizeMiB (%d) is too small to hold a bootable system", p.ImageSizeMiB)
	}
	if p.BusyboxUrl == "" {
		return fmt.Errorf("busyboxUrl must not be empty")
	}
	if p.KernelUrl == "" {
		return fmt.Errorf("kernelUrl must not be empty")
	}
	if p.EmulatorMemoryMiB <= 0 {
		return fmt.Errorf("emulatorMemoryMiB (%d) must be positive", p.EmulatorMemoryMiB)
	}
	if p.EmulatorCpus <= 0 {
		return fmt.Errorf("emulatorCpus (%d) must be positive", p.EmulatorCpus)
	}
	return nil
}
