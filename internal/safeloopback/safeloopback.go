// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package safeloopback binds a disk file to a loop device with scoped,
// at-most-once release semantics.
package safeloopback

import (
	"fmt"
	"path/filepath"

	"github.com/martin-r-canonical-app/create-bootable-linux/imagegen/diskutils"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
)

// Loopback represents a loop device bound to a backing disk file.
type Loopback struct {
	devicePath   string
	diskFilePath string
	isAttached   bool
}

// NewLoopback attaches the given disk file to a free loop device.
func NewLoopback(diskFilePath string) (*Loopback, error) {
	diskFilePathAbs, err := filepath.Abs(diskFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve disk file path (%s):\n%w", diskFilePath, err)
	}

	devicePath, err := diskutils.SetupLoopbackDevice(diskFilePathAbs)
	if err != nil {
		return nil, err
	}

	loopback := &Loopback{
		devicePath:   devicePath,
		diskFilePath: diskFilePathAbs,
		isAttached:   true,
	}
	return loopback, nil
}

// DevicePath returns the loop device's path (e.g. /dev/loop0).
func (l *Loopback) DevicePath() string {
	return l.devicePath
}

// DiskFilePath returns the backing disk file's path.
func (l *Loopback) DiskFilePath() string {
	return l.diskFilePath
}

// Close detaches the loop device, logging any failure. Safe to call
// multiple times.
func (l *Loopback) Close() {
	err := l.close(false /*confirmDetach*/)
	if err != nil {
		logger.Log.Warnf("Failed to close loopback device (%s): %v", l.devicePath, err)
	}
}

// CleanClose detaches the loop device and waits for the kernel to confirm
// the detach completed.
func (l *Loopback) CleanClose() error {
	return l.close(true /*confirmDetach*/)
}

func (l *Loopback) close(confirmDetach bool) error {
	if !l.isAttached {
		return nil
	}

	err := diskutils.DetachLoopbackDevice(l.devicePath)
	if err != nil {
		return err
	}
	l.isAttached = false

	if confirmDetach {
		// The detach can complete asynchronously when something briefly
		// holds the device open (e.g. udev probing).
		err = diskutils.WaitForLoopbackToDetach(l.devicePath, l.diskFilePath)
		if err != nil {
			return err
		}
	}

	return nil
}
