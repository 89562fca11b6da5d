// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/martin-r-canonical-app/create-bootable-linux/internal/file"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/network"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/shell"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/tarutils"
)

const (
	// rootDevice is the partition the kernel mounts as /. The emulator
	// presents the image as the first disk, so partition 1 lands here.
	rootDevice = "/dev/sda1"

	kernelImageName = "vmlinuz"
	initPath        = "/sbin/init"
	consoleDevice   = "ttyS0"
)

// installBoot makes the still-mounted filesystem bootable: bootloader
// config, kernel image, init program, and the bootloader itself.
func (b *Builder) installBoot() error {
	rootDir := b.mount.Target()

	logger.Log.Infof("Installing kernel and bootloader")

	err := b.installBootloaderConfig(rootDir)
	if err != nil {
		return err
	}

	err = b.installKernel(rootDir)
	if err != nil {
		return err
	}

	err = b.installInitProgram(rootDir)
	if err != nil {
		return err
	}

	err = b.installBootloader(rootDir)
	if err != nil {
		return err
	}

	return nil
}

func (b *Builder) installBootloaderConfig(rootDir string) error {
	grubCfgPath := filepath.Join(rootDir, "boot", "grub", "grub.cfg")

	err := os.MkdirAll(filepath.Dir(grubCfgPath), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create grub directory:\n%w", err)
	}

	err = file.Write(generateGrubCfg(), grubCfgPath)
	if err != nil {
		return fmt.Errorf("failed to write bootloader config:\n%w", err)
	}

	return nil
}

// generateGrubCfg produces the bootloader menu: a single entry booting the
// installed kernel straight into the generated init program on the serial
// console.
func generateGrubCfg() string {
	var sb strings.Builder
	sb.WriteString("set default=0\n")
	sb.WriteString("set timeout=0\n")
	sb.WriteString("\n")
	sb.WriteString("menuentry 'Minimal Linux' {\n")
	fmt.Fprintf(&sb, "    linux /boot/%s root=%s rw init=%s console=%s quiet\n",
		kernelImageName, rootDevice, initPath, consoleDevice)
	sb.WriteString("}\n")
	return sb.String()
}

func (b *Builder) installKernel(rootDir string) error {
	archivePath := filepath.Join(b.workspace.Root(), "kernel.tar.gz")
	extractDir := filepath.Join(b.workspace.Root(), "kernel")

	err := network.DownloadFile(b.profile.KernelUrl, archivePath, b.showProgress)
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeNetworkFetch, "failed to fetch kernel package", err)
	}

	err = tarutils.ExpandTarGzArchive(archivePath, extractDir)
	if err != nil {
		return fmt.Errorf("failed to extract kernel package:\n%w", err)
	}

	kernelImage, err := findKernelImage(extractDir)
	if err != nil {
		return err
	}

	err = file.Copy(kernelImage, filepath.Join(rootDir, "boot", kernelImageName))
	if err != nil {
		return fmt.Errorf("failed to install kernel image:\n%w", err)
	}

	return nil
}

// findKernelImage locates the kernel image inside the extracted package:
// the lexically last vmlinuz* entry, i.e. the newest version when the
// package carries more than one.
func findKernelImage(extractDir string) (string, error) {
	found := ""
	err := filepath.WalkDir(extractDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.HasPrefix(d.Name(), "vmlinuz") {
			if found == "" || d.Name() > filepath.Base(found) {
				found = path
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to search kernel package contents:\n%w", err)
	}

	if found == "" {
		return "", fmt.Errorf("kernel package contains no vmlinuz image")
	}
	return found, nil
}

func (b *Builder) installInitProgram(rootDir string) error {
	initFilePath := filepath.Join(rootDir, initPath)

	err := file.Write(generateInitScript(), initFilePath)
	if err != nil {
		return fmt.Errorf("failed to write init program:\n%w", err)
	}

	err = os.Chmod(initFilePath, 0o755)
	if err != nil {
		return fmt.Errorf("failed to mark init program executable:\n%w", err)
	}

	return nil
}

// generateInitScript produces the first userspace process: it attaches the
// virtual filesystems, greets the console, and becomes an interactive
// shell. It must never return; the exec'd shell only exits on explicit
// shutdown.
func generateInitScript() string {
	var sb strings.Builder
	sb.WriteString("#!/bin/sh\n")
	sb.WriteString("\n")
	sb.WriteString("mount -t proc proc /proc\n")
	sb.WriteString("mount -t sysfs sysfs /sys\n")
	sb.WriteString("\n")
	sb.WriteString("echo 'Welcome to your minimal Linux system.'\n")
	sb.WriteString("echo 'hello world'\n")
	sb.WriteString("\n")
	// cttyhack gives the shell a controlling terminal so job control works.
	sb.WriteString("exec setsid cttyhack /bin/sh\n")
	return sb.String()
}

func (b *Builder) installBootloader(rootDir string) error {
	const (
		grubInstallName  = "grub-install"
		grub2InstallName = "grub2-install"
	)

	bootDir := filepath.Join(rootDir, "boot")

	installName := grubInstallName
	grubInstallExists, err := file.CommandExists(grubInstallName)
	if err != nil {
		return err
	}
	if !grubInstallExists {
		grub2InstallExists, err := file.CommandExists(grub2InstallName)
		if err != nil {
			return err
		}
		if !grub2InstallExists {
			return fmt.Errorf("neither '%s' command nor '%s' command found", grubInstallName, grub2InstallName)
		}
		installName = grub2InstallName
	}

	// Only legacy-partition-table support is needed; everything else would
	// bloat the bootloader's embedded image.
	err = shell.ExecuteLive(false /*squashErrors*/, installName,
		"--target=i386-pc",
		"--boot-directory="+bootDir,
		"--modules=part_msdos",
		b.loopback.DevicePath())
	if err != nil {
		return NewBuildErrorWithCause(ErrTypeExternalTool, "failed to install bootloader", err)
	}

	return nil
}
