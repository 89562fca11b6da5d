// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
)

const emulatorProgram = "qemu-system-x86_64"

// launchEmulator replaces the current process with the emulator booting the
// image. It only returns on error.
func launchEmulator(imagePath string, memoryMiB int, cpus int) error {
	emulatorPath, err := exec.LookPath(emulatorProgram)
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeExternalTool,
			fmt.Sprintf("emulator (%s) not found in PATH", emulatorProgram), err)
	}

	argv := []string{
		emulatorProgram,
		"-drive", fmt.Sprintf("file=%s,format=raw", imagePath),
		"-m", fmt.Sprintf("%dM", memoryMiB),
		"-smp", fmt.Sprintf("%d", cpus),
		"-nographic",
	}

	logger.Log.Infof("Booting image (%s) in emulator", imagePath)

	err = unix.Exec(emulatorPath, argv, os.Environ())
	// Exec does not return on success.
	return NewBuildErrorWithCause(ErrTypeExternalTool, "failed to exec emulator", err)
}
