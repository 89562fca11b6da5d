// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package file provides small file-manipulation helpers.
package file

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"golang.org/x/sys/unix"
)

// Read returns the full contents of the given file.
func Read(filePath string) (string, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file (%s):\n%w", filePath, err)
	}
	return string(contents), nil
}

// Write writes data to the given file, truncating it if it exists.
func Write(data string, filePath string) error {
	err := os.WriteFile(filePath, []byte(data), 0o644)
	if err != nil {
		return fmt.Errorf("failed to write file (%s):\n%w", filePath, err)
	}
	return nil
}

// Copy copies a file, creating the destination's parent directories and
// preserving the source's mode.
func Copy(src string, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat copy source (%s):\n%w", src, err)
	}

	return CopyAndChangeMode(src, dst, os.ModePerm, info.Mode().Perm())
}

// CopyAndChangeMode copies a file, creating the destination's parent
// directories with dirMode and setting the destination's mode to fileMode.
func CopyAndChangeMode(src string, dst string, dirMode os.FileMode, fileMode os.FileMode) error {
	logger.Log.Debugf("Copying (%s) -> (%s)", src, dst)

	err := os.MkdirAll(filepath.Dir(dst), dirMode)
	if err != nil {
		return fmt.Errorf("failed to create destination directory for (%s):\n%w", dst, err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open copy source (%s):\n%w", src, err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("failed to create copy destination (%s):\n%w", dst, err)
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	if err != nil {
		return fmt.Errorf("failed to copy (%s) to (%s):\n%w", src, dst, err)
	}

	return nil
}

// MoveReplace moves src to dst, replacing any existing file at dst. The
// replacement is atomic: dst never holds partial contents. When src and dst
// are on different filesystems, the contents are staged next to dst and
// renamed into place.
func MoveReplace(src string, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EXDEV) {
		return fmt.Errorf("failed to move (%s) to (%s):\n%w", src, dst, err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open move source (%s):\n%w", src, err)
	}
	defer srcFile.Close()

	pending, err := renameio.TempFile(filepath.Dir(dst), dst)
	if err != nil {
		return fmt.Errorf("failed to stage move destination (%s):\n%w", dst, err)
	}
	defer pending.Cleanup()

	_, err = io.Copy(pending, srcFile)
	if err != nil {
		return fmt.Errorf("failed to copy (%s) to (%s):\n%w", src, dst, err)
	}

	err = pending.CloseAtomicallyReplace()
	if err != nil {
		return fmt.Errorf("failed to publish (%s):\n%w", dst, err)
	}

	return os.Remove(src)
}

// CommandExists reports whether an executable with the given name can be
// found on the PATH.
func CommandExists(command string) (bool, error) {
	_, err := exec.LookPath(command)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up command (%s):\n%w", command, err)
	}
	return true, nil
}

// DirExists reports whether the given path exists and is a directory.
func DirExists(dirPath string) bool {
	info, err := os.Stat(dirPath)
	return err == nil && info.IsDir()
}
