// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Tool to build a bootable minimal Linux disk image and boot it in an
// emulator.

package main

import (
	"context"
	"log"
	"maps"

	"github.com/alecthomas/kong"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/exekong"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/logger"
	"github.com/martin-r-canonical-app/create-bootable-linux/internal/ptrutils"
	"github.com/martin-r-canonical-app/create-bootable-linux/pkg/bootimagelib"
)

type BootImageCmd struct {
	Output      string `name:"output" help:"Path to write the bootable image to." default:"bootable.img"`
	KeepTemp    bool   `name:"keep-temp" help:"Retain the temporary workspace (including command logs) after the build."`
	PrepareOnly bool   `name:"prepare-only" help:"Build the image but do not boot it in the emulator."`
	ProfileFile string `name:"profile-file" help:"Path of a YAML build profile overriding the built-in defaults."`
	exekong.LogFlags
}

func main() {
	ctx := context.Background()

	cli := &BootImageCmd{}

	vars := kong.Vars{}
	maps.Copy(vars, exekong.KongVars)

	_ = kong.Parse(cli,
		vars,
		kong.HelpOptions{
			Compact:   true,
			FlagsLast: true,
		},
		kong.UsageOnError())

	logger.InitBestEffort(ptrutils.PtrTo(cli.LogFlags.AsLoggerFlags()))

	profile := bootimagelib.DefaultProfile()
	if cli.ProfileFile != "" {
		var err error
		profile, err = bootimagelib.LoadProfile(cli.ProfileFile)
		if err != nil {
			log.Fatalf("failed to load build profile:\n%v", err)
		}
	}

	err := bootimagelib.BuildImage(ctx, bootimagelib.Options{
		OutputPath:    cli.Output,
		KeepTempFiles: cli.KeepTemp,
		PrepareOnly:   cli.PrepareOnly,
		Profile:       profile,
	})
	if err != nil {
		log.Fatalf("image build failed:\n%v", err)
	}
}
