// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"context"
	"fmt"

	"github.com/martin-r-canonical-app/create-bootable-linux/imagegen/diskutils"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
)

// partitionAndFormat writes the MBR partition table and creates the root
// filesystem. Any tool failure here is fatal: a malformed partition table
// would corrupt every later stage.
func (b *Builder) partitionAndFormat(ctx context.Context) error {
	diskDevPath := b.loopback.DevicePath()

	logger.Log.Infof("Partitioning (%s)", diskDevPath)

	err := diskutils.CreateBootPartitionTable(diskDevPath)
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeExternalTool, "failed to write partition table", err)
	}

	partDevPath := diskutils.PartitionDevPath(diskDevPath, 1)
	err = diskutils.WaitForPartitionDevice(ctx, partDevPath)
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeResourceAcquisition,
			fmt.Sprintf("partition device (%s) never appeared", partDevPath), err)
	}

	err = diskutils.FormatExt4Partition(diskDevPath, partDevPath)
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeExternalTool, "failed to create root filesystem", err)
	}

	b.partDevPath = partDevPath
	return nil
}
