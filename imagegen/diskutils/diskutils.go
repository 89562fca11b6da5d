// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Utility to create and manipulate disks and partitions

package diskutils

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/retry"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/shell"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/sliceutils"
	"github.com/sirupsen/logrus"
)

// Unit to byte conversion values
const (
	B  = 1
	KB = 1000
	MB = 1000 * 1000
	GB = 1000 * 1000 * 1000

	KiB = 1024
	MiB = 1024 * 1024
	GiB = 1024 * 1024 * 1024
)

const (
	// bootPartitionStartMiB is where the first (and only) partition starts.
	// The gap in front of it is where the bootloader's embedded core image
	// lives, outside any filesystem's reserved blocks.
	bootPartitionStartMiB = 1

	// mbrLinuxPartitionType is the MBR partition type id for a Linux
	// filesystem partition.
	mbrLinuxPartitionType = "83"

	flockTimeoutInSeconds = "5"
)

type blockDevicesOutput struct {
	Devices []blockDeviceInfo `json:"blockdevices"`
}

type blockDeviceInfo struct {
	Name   string      `json:"name"`    // Example: sda
	MajMin string      `json:"maj:min"` // Example: 1:2
	Size   json.Number `json:"size"`    // Number of bytes. Can be a quoted string or a JSON number, depending on the util-linux version
}

type loopbackListOutput struct {
	Devices []loopbackDevice `json:"loopdevices"`
}

type loopbackDevice struct {
	Name        string `json:"name"`
	BackingFile string `json:"back-file"`
}

// CreateEmptyDisk creates an empty raw disk file in the given directory.
func CreateEmptyDisk(workDirPath, diskName string, sizeMiB uint64) (diskFilePath string, err error) {
	diskFilePath = filepath.Join(workDirPath, diskName)

	err = CreateSparseDisk(diskFilePath, sizeMiB, 0o644)
	return
}

// CreateSparseDisk creates an empty sparse disk file of the given size.
func CreateSparseDisk(diskPath string, sizeMiB uint64, perm os.FileMode) (err error) {
	file, err := os.OpenFile(diskPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("failed to create empty disk file:\n%w", err)
	}
	defer file.Close()

	// Resize the file to the desired size.
	err = file.Truncate(int64(sizeMiB * MiB))
	if err != nil {
		return fmt.Errorf("failed to set empty disk file's size:\n%w", err)
	}
	return
}

// SetupLoopbackDevice creates a /dev/loop device for the given disk file
func SetupLoopbackDevice(diskFilePath string) (devicePath string, err error) {
	logger.Log.Debugf("Attaching loopback: %v", diskFilePath)
	stdout, stderr, err := shell.Execute("losetup", "--show", "-f", "-P", diskFilePath)
	if err != nil {
		err = fmt.Errorf("failed to create loopback device using losetup:\n%v\n%w", stderr, err)
		return
	}
	devicePath = strings.TrimSpace(stdout)
	logger.Log.Debugf("Created loopback device at device path: %v", devicePath)
	return
}

// DetachLoopbackDevice detaches the specified disk's loop device.
func DetachLoopbackDevice(diskDevPath string) (err error) {
	logger.Log.Debugf("Detaching loopback device path: %v", diskDevPath)
	_, stderr, err := shell.Execute("losetup", "-d", diskDevPath)
	if err != nil {
		return fmt.Errorf("failed to detach loopback device using losetup:\n%v\n%w", stderr, err)
	}
	return
}

// WaitForLoopbackToDetach waits until the loop device no longer reports the
// given backing file.
func WaitForLoopbackToDetach(devicePath string, diskPath string) error {
	if !filepath.IsAbs(diskPath) {
		return fmt.Errorf("internal error: loopback disk path must be absolute (%s)", diskPath)
	}

	delay := 120 * time.Millisecond
	attempts := 10
	for failures := 0; failures < attempts; failures++ {
		stdout, _, err := shell.Execute("losetup", "--list", "--json", "--output", "NAME,BACK-FILE")
		if err != nil {
			return fmt.Errorf("failed to read loopback list:\n%w", err)
		}

		var output loopbackListOutput
		if stdout != "" {
			err = json.Unmarshal([]byte(stdout), &output)
			if err != nil {
				return fmt.Errorf("failed to parse loopback devices list JSON:\n%w", err)
			}
		}

		_, found := sliceutils.FindValueFunc(output.Devices, func(device loopbackDevice) bool {
			return device.Name == devicePath && device.BackingFile == diskPath
		})
		if !found {
			return nil
		}

		time.Sleep(delay)
		delay *= 2
	}

	return fmt.Errorf("timed out waiting for loopback device (%s) for disk (%s) to close", devicePath, diskPath)
}

// GetDiskIds returns the major and minor device numbers of the given disk.
func GetDiskIds(diskDevPath string) (maj string, min string, err error) {
	rawDiskOutput, stderr, err := shell.Execute("lsblk", "--nodeps", "--json", "--output", "NAME,MAJ:MIN", diskDevPath)
	if err != nil {
		err = fmt.Errorf("failed to find IDs for disk (%s):\n%v\n%w", diskDevPath, stderr, err)
		return
	}

	var blockDevices blockDevicesOutput
	if rawDiskOutput != "" {
		err = json.Unmarshal([]byte(rawDiskOutput), &blockDevices)
		if err != nil {
			return
		}
	}

	if len(blockDevices.Devices) != 1 {
		err = fmt.Errorf("couldn't find disk IDs for %s (%s), expecting only one result", diskDevPath, rawDiskOutput)
		return
	}
	// MAJ:MIN is returned in the form "1:2"
	diskIDs := strings.Split(blockDevices.Devices[0].MajMin, ":")
	if len(diskIDs) != 2 {
		err = fmt.Errorf("couldn't find disk IDs for %s (%s), couldn't parse MAJ:MIN", diskDevPath, rawDiskOutput)
		return
	}
	maj = diskIDs[0]
	min = diskIDs[1]
	return
}

// BlockOnDiskIOByIds waits until all outstanding operations against a disk complete.
func BlockOnDiskIOByIds(debugName string, maj string, min string) (err error) {
	const (
		// Indices for values in /proc/diskstats
		majIdx            = 0
		minIdx            = 1
		outstandingOpsIdx = 11
	)

	logger.Log.Debugf("Flushing all IO to disk")
	_, _, err = shell.Execute("sync")
	if err != nil {
		return
	}

	logger.Log.Tracef("Searching /proc/diskstats for %s (%s:%s)", debugName, maj, min)
	for {
		var (
			foundEntry     = false
			outstandingOps = ""
		)

		// Find the entry with Major#, Minor#, ..., IOs which matches our disk
		onStdout := func(line string) {
			if foundEntry {
				return
			}

			deviceStatsFields := strings.Fields(line)
			if maj == deviceStatsFields[majIdx] && min == deviceStatsFields[minIdx] {
				outstandingOps = deviceStatsFields[outstandingOpsIdx]
				foundEntry = true
			}
		}

		err = shell.NewExecBuilder("cat", "/proc/diskstats").
			StdoutCallback(onStdout).
			WarnLogLines(shell.DefaultWarnLogLines).
			LogLevel(logrus.TraceLevel, logrus.ErrorLevel).
			Execute()
		if err != nil {
			return
		}
		if !foundEntry {
			return fmt.Errorf("couldn't find entry for '%s' in /proc/diskstats", debugName)
		}
		logger.Log.Debugf("Outstanding operations on '%s': %s", debugName, outstandingOps)

		if outstandingOps == "0" {
			break
		}

		time.Sleep(time.Second / 4)
	}
	return
}

// CreateBootPartitionTable writes an MBR partition table to the disk with a
// single bootable Linux partition spanning the rest of the device.
func CreateBootPartitionTable(diskDevPath string) error {
	logger.Log.Debugf("Creating MBR partition table on (%s)", diskDevPath)

	// Start the partition past the MBR gap and let it run to the end of the
	// device. This will also wipe any existing partition table.
	sfdiskScript := fmt.Sprintf("label: dos\nstart=%dMiB, type=%s, bootable\n",
		bootPartitionStartMiB, mbrLinuxPartitionType)

	err := shell.NewExecBuilder("flock", "--timeout", flockTimeoutInSeconds, diskDevPath,
		"sfdisk", "--lock=no", diskDevPath).
		Stdin(sfdiskScript).
		LogLevel(logrus.DebugLevel, logrus.WarnLevel).
		ErrorStderrLines(1).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to create partition table (%s) using sfdisk:\n%w", diskDevPath, err)
	}

	return nil
}

// FormatExt4Partition creates an ext4 filesystem on the given partition.
func FormatExt4Partition(diskDevPath string, partDevPath string) error {
	logger.Log.Debugf("Formatting (%s) as ext4", partDevPath)

	_, stderr, err := shell.Execute("flock", "--timeout", flockTimeoutInSeconds, diskDevPath,
		"mkfs.ext4", "-q", partDevPath)
	if err != nil {
		return fmt.Errorf("failed to format (%s) as ext4:\n%v\n%w", partDevPath, stderr, err)
	}

	return nil
}

// PartitionDevPath returns the device path of the given partition number on
// the disk. Devices whose name ends in a digit (loop0, nbd1) address their
// partitions with a "p" separator.
func PartitionDevPath(diskDevPath string, partitionNumber int) string {
	separator := ""
	if lastChar := diskDevPath[len(diskDevPath)-1]; lastChar >= '0' && lastChar <= '9' {
		separator = "p"
	}
	return fmt.Sprintf("%s%s%d", diskDevPath, separator, partitionNumber)
}

// WaitForPartitionDevice waits for udev to process all pending events and
// for the given partition's device node to appear.
func WaitForPartitionDevice(ctx context.Context, partDevPath string) error {
	err := waitForDevicesToSettle()
	if err != nil {
		return err
	}

	// 'udevadm settle' is sometimes not enough. So, double check that the
	// partition's node has been populated.
	_, err = retry.RunWithExpBackoff(ctx, func() error {
		_, err := os.Stat(partDevPath)
		if err != nil {
			return fmt.Errorf("failed to find partition device node (%s):\n%w", partDevPath, err)
		}
		return nil
	}, 10, 120*time.Millisecond, 2.0)
	if err != nil {
		return fmt.Errorf("timed out waiting for partition (%s) to populate:\n%w", partDevPath, err)
	}

	return nil
}

// waitForDevicesToSettle waits for all udev events to be processed on the system.
// This can be used to wait for partitions to be discovered after attaching a disk.
func waitForDevicesToSettle() error {
	logger.Log.Debugf("Waiting for devices to settle")
	_, _, err := shell.Execute("udevadm", "settle")
	if err != nil {
		return fmt.Errorf("failed to wait for devices to settle:\n%w", err)
	}
	return nil
}
