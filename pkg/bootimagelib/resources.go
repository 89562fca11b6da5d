// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"os"
	"os/signal"
	"sync"

	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"golang.org/x/sys/unix"
)

// loopbackResource and mountResource are the narrow views of the held OS
// resources that cleanup needs.
type loopbackResource interface {
	DevicePath() string
	Close()
}

type mountResource interface {
	Target() string
	Close()
}

// resourceContext tracks the OS resources a build currently holds so that
// they can be released exactly once, in the right order, no matter how the
// process exits.
type resourceContext struct {
	workspace     *Workspace
	keepWorkspace bool

	mutex    sync.Mutex
	loopback loopbackResource
	mount    mountResource

	releaseOnce sync.Once
	signals     chan os.Signal
}

func newResourceContext(workspace *Workspace, keepWorkspace bool) *resourceContext {
	return &resourceContext{
		workspace:     workspace,
		keepWorkspace: keepWorkspace,
	}
}

// registerSignalHandler arranges for releaseAll to run when the process is
// interrupted. Must be called before any resource is acquired.
func (c *resourceContext) registerSignalHandler() {
	c.signals = make(chan os.Signal, 1)
	signal.Notify(c.signals, unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGQUIT)

	go func() {
		sig, ok := <-c.signals
		if !ok {
			return
		}

		logger.Log.Errorf("Received signal (%s), cleaning up", sig)
		c.releaseAll()
		os.Exit(1)
	}()
}

// stopSignalHandler detaches the signal handler once the orchestrator has
// taken over responsibility for cleanup.
func (c *resourceContext) stopSignalHandler() {
	if c.signals != nil {
		signal.Stop(c.signals)
		close(c.signals)
		c.signals = nil
	}
}

func (c *resourceContext) trackLoopback(loopback loopbackResource) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.loopback = loopback
}

func (c *resourceContext) untrackLoopback() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.loopback = nil
}

func (c *resourceContext) trackMount(mount mountResource) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.mount = mount
}

func (c *resourceContext) untrackMount() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.mount = nil
}

// releaseAll releases every held resource. It runs its work at most once;
// later invocations are no-ops. Each step is attempted even if an earlier
// step failed: at teardown there is no further opportunity to react, so
// failures are logged rather than propagated.
func (c *resourceContext) releaseAll() {
	c.releaseOnce.Do(func() {
		c.mutex.Lock()
		mount := c.mount
		loopback := c.loopback
		c.mount = nil
		c.loopback = nil
		c.mutex.Unlock()

		// The mount must come off before the loop device can detach.
		if mount != nil {
			logger.Log.Debugf("Cleanup: unmounting (%s)", mount.Target())
			mount.Close()
		}

		if loopback != nil {
			logger.Log.Debugf("Cleanup: detaching (%s)", loopback.DevicePath())
			loopback.Close()
		}

		if c.workspace != nil {
			if c.keepWorkspace {
				logger.Log.Infof("Keeping temporary files in (%s)", c.workspace.Root())
			} else {
				logger.Log.Debugf("Cleanup: deleting workspace (%s)", c.workspace.Root())
				err := c.workspace.Delete()
				if err != nil {
					logger.Log.Warnf("Failed to delete workspace: %v", err)
				}
			}
		}
	})
}
