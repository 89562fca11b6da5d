// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/network"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/safemount"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/shell"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// skeletonDirs is the minimal directory tree a booted kernel needs: proc,
// sys and dev for the virtual filesystems, plus the conventional top-level
// directories the installed system uses.
var skeletonDirs = []string{"bin", "boot", "dev", "etc", "proc", "root", "sbin", "sys", "tmp"}

// installFilesystem mounts the root partition, lays down the directory
// skeleton, installs busybox, and fans out one symlink per busybox applet.
func (b *Builder) installFilesystem() error {
	logger.Log.Infof("Populating root filesystem")

	// atime/mtime bookkeeping is useless work for a scratch build.
	mount, err := safemount.NewMount(b.partDevPath, b.workspace.MountDir(), "ext4",
		unix.MS_NOATIME|unix.MS_NODIRATIME, "", false)
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeResourceAcquisition,
			fmt.Sprintf("failed to mount root filesystem (%s)", b.partDevPath), err)
	}
	b.resources.trackMount(mount)
	b.mount = mount

	for _, dir := range skeletonDirs {
		err = os.Mkdir(filepath.Join(mount.Target(), dir), 0o755)
		if err != nil {
			return fmt.Errorf("failed to create skeleton directory (%s):\n%w", dir, err)
		}
	}

	err = b.installBusybox(mount.Target())
	if err != nil {
		return err
	}

	return nil
}

func (b *Builder) installBusybox(rootDir string) error {
	busyboxPath := filepath.Join(rootDir, "bin", "busybox")

	logger.Log.Infof("Installing busybox")
	err := network.DownloadFile(b.profile.BusyboxUrl, busyboxPath, b.showProgress)
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeNetworkFetch, "failed to fetch busybox", err)
	}

	err = os.Chmod(busyboxPath, 0o755)
	if err != nil {
		return fmt.Errorf("failed to mark busybox executable:\n%w", err)
	}

	applets, err := listBusyboxApplets(busyboxPath)
	if err != nil {
		return err
	}

	failed := createAppletLinks(filepath.Join(rootDir, "bin"), applets, runtime.NumCPU())
	if len(failed) > 0 {
		// The system does not use every applet name, so a missing link is
		// not fatal to the image as a whole.
		err = NewBuildError(ErrTypePartialLink,
			fmt.Sprintf("failed to create %d of %d applet links", len(failed), len(applets)))
		logger.Log.Warnf("%v", err)
	}

	return nil
}

// listBusyboxApplets asks the installed binary which utility names it
// implements.
func listBusyboxApplets(busyboxPath string) ([]string, error) {
	stdout, _, err := shell.NewExecBuilder(busyboxPath, "--list").
		LogLevel(logrus.TraceLevel, logrus.DebugLevel).
		ExecuteCaptureOuput()
	if err != nil {
		return nil, fmt.Errorf("failed to list busybox applets:\n%w", err)
	}

	applets := []string(nil)
	for _, line := range strings.Split(stdout, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || name == "busybox" {
			continue
		}
		applets = append(applets, name)
	}
	return applets, nil
}

// createAppletLinks creates one relative symlink per applet name pointing
// back at the busybox binary, fanned out across the given number of
// workers. Link creations are independent of each other; failures are
// collected, not propagated.
func createAppletLinks(binDir string, applets []string, workers int) []string {
	if workers < 1 {
		workers = 1
	}

	names := make(chan string)
	var failedMutex sync.Mutex
	failed := []string(nil)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range names {
				err := os.Symlink("busybox", filepath.Join(binDir, name))
				if err != nil {
					logger.Log.Warnf("Failed to link applet (%s): %v", name, err)
					failedMutex.Lock()
					failed = append(failed, name)
					failedMutex.Unlock()
				}
			}
		}()
	}

	for _, name := range applets {
		names <- name
	}
	close(names)
	wg.Wait()

	return failed
}
