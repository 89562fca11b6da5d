// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package bootimagelib builds a bootable minimal Linux disk image and
// optionally hands the process off to an emulator running it.
package bootimagelib

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/martin-r-canonical-app/create-bootable-linux/imagegen/diskutils"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/file"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/safeloopback"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/safemount"
)

// buildState tracks the pipeline's strictly linear progress.
type buildState int

const (
	stateInit buildState = iota
	statePartitioned
	statePopulated
	stateBootInstalled
	stateFinalized
	stateFailed
)

func (s buildState) String() string {
	switch s {
	case stateInit:
		return "Init"
	case statePartitioned:
		return "Partitioned"
	case statePopulated:
		return "Populated"
	case stateBootInstalled:
		return "BootInstalled"
	case stateFinalized:
		return "Finalized"
	case stateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("buildState(%d)", int(s))
	}
}

// Options holds the resolved command-line configuration.
type Options struct {
	// OutputPath is where the finished image is published.
	OutputPath string

	// KeepTempFiles retains the workspace (including command logs) after
	// the build finishes.
	KeepTempFiles bool

	// PrepareOnly skips the emulator launch.
	PrepareOnly bool

	// Profile holds the build's tunable parameters.
	Profile Profile
}

// Builder owns one build invocation's state and resources.
type Builder struct {
	options      Options
	profile      Profile
	showProgress bool

	workspace *Workspace
	resources *resourceContext

	loopback    *safeloopback.Loopback
	mount       *safemount.Mount
	partDevPath string

	state buildState
}

// BuildImage runs the whole pipeline: disk init, partition/format,
// filesystem install, boot install, finalize. On success the image is
// published at options.OutputPath and, unless PrepareOnly is set, the
// process is replaced by the emulator. Cleanup runs exactly once on every
// exit path, including external interruption.
func BuildImage(ctx context.Context, options Options) error {
	if os.Geteuid() != 0 {
		return ErrToolMustRunAsRoot
	}

	err := options.Profile.IsValid()
	if err != nil {
		return err
	}

	workspace, err := NewWorkspace()
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeResourceAcquisition, "failed to create workspace", err)
	}

	builder := &Builder{
		options:      options,
		profile:      options.Profile,
		showProgress: logger.Log.IsLevelEnabled(logrus.InfoLevel),
		workspace:    workspace,
		resources:    newResourceContext(workspace, options.KeepTempFiles),
		state:        stateInit,
	}

	// The cleanup handler is in place before any OS resource is acquired.
	builder.resources.registerSignalHandler()
	defer builder.resources.stopSignalHandler()
	defer builder.resources.releaseAll()

	err = builder.run(ctx)
	if err != nil {
		builder.state = stateFailed
		if options.KeepTempFiles {
			logger.Log.Errorf("Build failed; command logs retained in (%s)", workspace.LogsDir())
		}
		return err
	}

	// Cleanup must finish before the emulator takes over the process.
	builder.resources.releaseAll()

	if options.PrepareOnly {
		logger.Log.Infof("Image ready: %s", options.OutputPath)
		return nil
	}

	return launchEmulator(options.OutputPath, builder.profile.EmulatorMemoryMiB, builder.profile.EmulatorCpus)
}

// run executes the pipeline stages in their fixed total order.
func (b *Builder) run(ctx context.Context) error {
	err := b.initializeDisk()
	if err != nil {
		return err
	}

	err = b.partitionAndFormat(ctx)
	if err != nil {
		return err
	}
	b.state = statePartitioned

	err = b.installFilesystem()
	if err != nil {
		return err
	}
	b.state = statePopulated

	err = b.installBoot()
	if err != nil {
		return err
	}
	b.state = stateBootInstalled

	err = b.finalize()
	if err != nil {
		return err
	}
	b.state = stateFinalized

	return nil
}

// finalize drains pending writes, releases the image's resources cleanly,
// and atomically publishes the image at the requested output path. The
// output path is only ever touched here, after every prior stage has
// succeeded.
func (b *Builder) finalize() error {
	logger.Log.Infof("Finalizing image")

	maj, min, err := diskutils.GetDiskIds(b.loopback.DevicePath())
	if err != nil {
		return err
	}

	err = diskutils.BlockOnDiskIOByIds(b.loopback.DevicePath(), maj, min)
	if err != nil {
		return fmt.Errorf("failed to flush disk writes:\n%w", err)
	}

	err = b.mount.CleanClose()
	if err != nil {
		return fmt.Errorf("failed to unmount root filesystem:\n%w", err)
	}
	b.resources.untrackMount()

	err = b.loopback.CleanClose()
	if err != nil {
		return fmt.Errorf("failed to release loop device:\n%w", err)
	}
	b.resources.untrackLoopback()

	err = file.MoveReplace(b.workspace.ImagePath(), b.options.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to publish image to (%s):\n%w", b.options.OutputPath, err)
	}

	return nil
}
