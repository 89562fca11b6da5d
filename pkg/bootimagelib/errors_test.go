// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildErrorMatchesItsType(t *testing.T) {
	cause := fmt.Errorf("losetup failed")
	err := NewBuildErrorWithCause(ErrTypeResourceAcquisition, "failed to attach loop device", cause)

	assert.ErrorIs(t, err, ErrTypeResourceAcquisition)
	assert.NotErrorIs(t, err, ErrTypeExternalTool)
	assert.NotErrorIs(t, err, ErrTypeNetworkFetch)
	assert.ErrorIs(t, err, cause)
}

func TestBuildErrorWrapsThroughLayers(t *testing.T) {
	inner := NewBuildError(ErrTypePartialLink, "failed to create 2 of 400 applet links")
	outer := fmt.Errorf("filesystem install failed:\n%w", inner)

	assert.ErrorIs(t, outer, ErrTypePartialLink)

	var buildErr *BuildError
	assert.True(t, errors.As(outer, &buildErr))
	assert.Contains(t, buildErr.Error(), "applet links")
}

func TestBuildErrorMessage(t *testing.T) {
	err := NewBuildErrorWithCause(ErrTypeExternalTool, "failed to install bootloader",
		fmt.Errorf("exit status 1"))

	assert.Contains(t, err.Error(), "failed to install bootloader")
	assert.Contains(t, err.Error(), "exit status 1")
}
