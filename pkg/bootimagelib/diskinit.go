// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"fmt"

	"github.com/martin-r-canonical-app/create-bootable-linux/imagegen/diskutils"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/safeloopback"
)

// initializeDisk creates the sparse raw disk image inside the workspace and
// binds it to a loop device.
func (b *Builder) initializeDisk() error {
	logger.Log.Infof("Creating disk image (%d MiB)", b.profile.ImageSizeMiB)

	err := diskutils.CreateSparseDisk(b.workspace.ImagePath(), b.profile.ImageSizeMiB, 0o644)
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeResourceAcquisition,
			fmt.Sprintf("failed to create disk image (%s)", b.workspace.ImagePath()), err)
	}

	loopback, err := safeloopback.NewLoopback(b.workspace.ImagePath())
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeResourceAcquisition,
			"failed to bind disk image to a loop device", err)
	}

	b.resources.trackLoopback(loopback)
	b.loopback = loopback

	logger.Log.Debugf("Disk image bound to (%s)", loopback.DevicePath())
	return nil
}
