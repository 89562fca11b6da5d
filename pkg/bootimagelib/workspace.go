// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/randomization"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/shell"
)

const (
	workspacePrefix = "bootimage-build"

	workspaceLogsDirName  = "logs"
	workspaceMountDirName = "mnt"
	workspaceImageName    = "disk.raw"
)

// Workspace is the ephemeral directory holding all of one build's
// intermediate state. It always lives directly under the current working
// directory and is never shared across invocations.
type Workspace struct {
	root     string
	logsDir  string
	mountDir string
}

// NewWorkspace creates the workspace directory and its subdirectories, and
// points the command runner's log tee at it.
func NewWorkspace() (*Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to find current working directory:\n%w", err)
	}

	name, err := randomization.UniqueDirName(workspacePrefix)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		root: filepath.Join(cwd, name),
	}
	ws.logsDir = filepath.Join(ws.root, workspaceLogsDirName)
	ws.mountDir = filepath.Join(ws.root, workspaceMountDirName)

	for _, dir := range []string{ws.root, ws.logsDir, ws.mountDir} {
		err = os.Mkdir(dir, 0o755)
		if err != nil {
			return nil, fmt.Errorf("failed to create workspace directory (%s):\n%w", dir, err)
		}
	}

	shell.SetTeeDirectory(ws.logsDir)

	logger.Log.Debugf("Created workspace (%s)", ws.root)
	return ws, nil
}

// Root returns the workspace's root directory.
func (w *Workspace) Root() string {
	return w.root
}

// LogsDir returns the directory holding per-command log files.
func (w *Workspace) LogsDir() string {
	return w.logsDir
}

// MountDir returns the directory used as the image filesystem's mount
// point.
func (w *Workspace) MountDir() string {
	return w.mountDir
}

// ImagePath returns the path of the in-progress disk image.
func (w *Workspace) ImagePath() string {
	return filepath.Join(w.root, workspaceImageName)
}

// Delete removes the workspace and everything under it.
func (w *Workspace) Delete() error {
	shell.SetTeeDirectory("")

	err := os.RemoveAll(w.root)
	if err != nil {
		return fmt.Errorf("failed to delete workspace (%s):\n%w", w.root, err)
	}
	return nil
}
