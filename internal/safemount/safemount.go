// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package safemount mounts a filesystem with scoped, at-most-once release
// semantics, including recursive release of any mounts nested under it.
package safemount

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/retry"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// Mount represents a mounted filesystem.
type Mount struct {
	source    string
	target    string
	isMounted bool
	dirOwned  bool
}

// NewMount mounts source at target. When makeAndDeleteDir is set, the target
// directory is created before mounting and removed after unmounting.
func NewMount(source, target, fstype string, flags uintptr, data string, makeAndDeleteDir bool,
) (*Mount, error) {
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mount target path (%s):\n%w", target, err)
	}

	if makeAndDeleteDir {
		err = os.MkdirAll(targetAbs, 0o755)
		if err != nil {
			return nil, fmt.Errorf("failed to create mount directory (%s):\n%w", targetAbs, err)
		}
	}

	logger.Log.Debugf("Mounting (%s) at (%s)", source, targetAbs)
	err = unix.Mount(source, targetAbs, fstype, flags, data)
	if err != nil {
		if makeAndDeleteDir {
			os.Remove(targetAbs)
		}
		return nil, fmt.Errorf("failed to mount (%s) at (%s):\n%w", source, targetAbs, err)
	}

	mount := &Mount{
		source:    source,
		target:    targetAbs,
		isMounted: true,
		dirOwned:  makeAndDeleteDir,
	}
	return mount, nil
}

// Source returns the mounted device or directory.
func (m *Mount) Source() string {
	return m.source
}

// Target returns the mount point path.
func (m *Mount) Target() string {
	return m.target
}

// Close unmounts the filesystem, logging any failure. Safe to call multiple
// times.
func (m *Mount) Close() {
	err := m.close()
	if err != nil {
		logger.Log.Warnf("Failed to unmount (%s): %v", m.target, err)
	}
}

// CleanClose unmounts the filesystem and reports any failure.
func (m *Mount) CleanClose() error {
	return m.close()
}

func (m *Mount) close() error {
	if !m.isMounted {
		return nil
	}

	// Anything mounted below the target (e.g. virtual filesystems attached
	// during population) must come off first, deepest path first.
	nested, err := nestedMountTargets(m.target)
	if err != nil {
		return err
	}

	for _, target := range nested {
		err = unmountWithRetry(target)
		if err != nil {
			return err
		}
	}

	err = unmountWithRetry(m.target)
	if err != nil {
		return err
	}
	m.isMounted = false

	if m.dirOwned {
		err = os.Remove(m.target)
		if err != nil {
			return fmt.Errorf("failed to remove mount directory (%s):\n%w", m.target, err)
		}
	}

	return nil
}

// nestedMountTargets returns the mount points strictly below target, deepest
// first.
func nestedMountTargets(target string) ([]string, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.PrefixFilter(target))
	if err != nil {
		return nil, fmt.Errorf("failed to list mounts under (%s):\n%w", target, err)
	}

	targets := []string(nil)
	for _, mount := range mounts {
		if mount.Mountpoint != target {
			targets = append(targets, mount.Mountpoint)
		}
	}

	sort.Slice(targets, func(i, j int) bool {
		return strings.Count(targets[i], "/") > strings.Count(targets[j], "/")
	})
	return targets, nil
}

func unmountWithRetry(target string) error {
	logger.Log.Debugf("Unmounting (%s)", target)

	// A just-finished child process (or udev) can hold the mount busy for a
	// moment.
	err := retry.Run(func() error {
		return unix.Unmount(target, 0)
	}, 3, 500*time.Millisecond)
	if err == nil {
		return nil
	}

	// Fall back to a lazy detach so that cleanup can still make progress.
	logger.Log.Warnf("Unmount of (%s) is busy, detaching lazily", target)
	err = unix.Unmount(target, unix.MNT_DETACH)
	if err != nil {
		return fmt.Errorf("failed to unmount (%s):\n%w", target, err)
	}

	return nil
}
