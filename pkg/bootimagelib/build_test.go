// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package bootimagelib

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildStateString(t *testing.T) {
	assert.Equal(t, "Init", stateInit.String())
	assert.Equal(t, "Partitioned", statePartitioned.String())
	assert.Equal(t, "Populated", statePopulated.String())
	assert.Equal(t, "BootInstalled", stateBootInstalled.String())
	assert.Equal(t, "Finalized", stateFinalized.String())
	assert.Equal(t, "Failed", stateFailed.String())
	assert.Equal(t, "buildState(42)", buildState(42).String())
}

func TestBuildImageRequiresRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root")
	}

	err := BuildImage(context.Background(), Options{
		OutputPath: "bootable.img",
		Profile:    DefaultProfile(),
	})
	assert.ErrorIs(t, err, ErrToolMustRunAsRoot)
}

func TestBuildImageRejectsInvalidProfile(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}

	profile := DefaultProfile()
	profile.ImageSizeMiB = 1

	err := BuildImage(context.Background(), Options{
		OutputPath: "bootable.img",
		Profile:    profile,
	})
	assert.ErrorContains(t, err, "imageSizeMiB")
}
